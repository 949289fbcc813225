package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-cart/pkg/auth"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service registers and signs in shoppers. Both operations fold the caller's
// guest cart into the user's cart when a guest cart id is supplied.
type Service interface {
	Register(ctx context.Context, req RegisterRequest, guestID string) (*Response, error)
	Login(ctx context.Context, req LoginRequest, guestID string) (*Response, error)
}

type userRepository interface {
	Create(ctx context.Context, dto users.NewUser) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, rehash string) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
	VerifyDummy(password string)
}

type tokenMinter interface {
	Mint(userID uuid.UUID, email string) (pkgAuth.Signed, error)
}

type cartMerger interface {
	MergeOnLogin(ctx context.Context, guest, user identity.Owner) (*cart.MergeResult, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo  userRepository
	Hasher    passwordHasher
	Carts     cartMerger
	Tokens    tokenMinter
	Logger    *logger.Logger
}

type service struct {
	users  userRepository
	hasher passwordHasher
	carts  cartMerger
	tokens tokenMinter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart merger is required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token minter is required")
	}
	return &service{
		users:  params.UserRepo,
		hasher: params.Hasher,
		carts:  params.Carts,
		tokens: params.Tokens,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest, guestID string) (*Response, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.Field("email", "is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, pkgerrors.Field("name", "is required")
	}
	if len(req.Password) < security.MinPasswordLength {
		return nil, pkgerrors.Field("password", fmt.Sprintf("must be at least %d characters", security.MinPasswordLength))
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	phone := req.Phone
	if phone != nil {
		trimmed := strings.TrimSpace(*phone)
		phone = &trimmed
		if trimmed == "" {
			phone = nil
		}
	}

	user, err := s.users.Create(ctx, users.NewUser{
		Email:        email,
		PasswordHash: hash,
		Name:         req.Name,
		Phone:        phone,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	return s.issue(ctx, user, guestID)
}

func (s *service) Login(ctx context.Context, req LoginRequest, guestID string) (*Response, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now, s.rehash(ctx, user, req.Password)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record login")
	}
	user.LastLoginAt = &now

	return s.issue(ctx, user, guestID)
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, strings.ToLower(input))
	if err != nil {
		if db.IsNotFound(err) {
			s.hasher.VerifyDummy(password)
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}

// rehash returns a fresh hash when the stored one was made with older
// costs. Failing to rehash never blocks the login.
func (s *service) rehash(ctx context.Context, user *models.User, password string) string {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return ""
	}
	fresh, err := s.hasher.Hash(password)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, user.ID.String()), "password rehash failed")
		}
		return ""
	}
	return fresh
}

// issue mints the access token and then merges the guest cart. A failed merge
// never fails the sign-in; the guest cart stays intact for a later attempt.
func (s *service) issue(ctx context.Context, user *models.User, guestID string) (*Response, error) {
	signed, err := s.tokens.Mint(user.ID, user.Email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	resp := &Response{
		AccessToken: signed.Token,
		ExpiresAt:   signed.ExpiresAt,
		User:        users.ProfileOf(user),
	}

	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		return resp, nil
	}
	result, err := s.carts.MergeOnLogin(ctx, identity.Guest(guestID), identity.User(user.ID))
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithUserID(ctx, user.ID.String())
			logCtx = s.logg.WithField(logCtx, "guest_cart_id", guestID)
			s.logg.Error(logCtx, "guest cart merge failed", err)
		}
		return resp, nil
	}
	resp.CartMerge = &MergeSummary{MovedLines: result.MovedLines, MovedUnits: result.MovedUnits}
	return resp, nil
}
