package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// ErrNoCredential marks a resolution where no bearer credential was presented.
var ErrNoCredential = errors.New("no credential presented")

type tokenVerifier interface {
	VerifyUserID(token string) (uuid.UUID, error)
}

// Resolution is the outcome of resolving a caller to a cart owner.
type Resolution struct {
	Owner Owner
	// Minted is set when a new guest id was issued and must be returned to the caller.
	Minted bool
	// CredentialErr explains why no user identity was derived. Nil for user owners.
	CredentialErr error
}

// Authenticated reports whether the owner came from a valid credential.
func (r Resolution) Authenticated() bool {
	return r.Owner.IsUser() && r.CredentialErr == nil
}

// Resolver turns request credentials into exactly one cart owner.
type Resolver struct {
	verifier tokenVerifier
	newID    func() string
	logg     *logger.Logger
}

// NewResolver builds a resolver around the access token verifier.
func NewResolver(verifier tokenVerifier, logg *logger.Logger) (*Resolver, error) {
	if verifier == nil {
		return nil, fmt.Errorf("token verifier required")
	}
	return &Resolver{
		verifier: verifier,
		newID:    uuid.NewString,
		logg:     logg,
	}, nil
}

// Resolve applies the precedence: valid credential, then presented guest id,
// then a freshly minted guest id. An invalid credential never fails the call.
func (r *Resolver) Resolve(ctx context.Context, credential, guestID string) Resolution {
	credErr := ErrNoCredential
	if token := strings.TrimSpace(credential); token != "" {
		userID, err := r.verifier.VerifyUserID(token)
		if err == nil {
			return Resolution{Owner: User(userID)}
		}
		credErr = err
		if r.logg != nil {
			r.logg.Debug(r.logg.WithField(ctx, "reason", err.Error()), "credential rejected, falling back to guest")
		}
	}

	if id := strings.TrimSpace(guestID); id != "" {
		return Resolution{Owner: Guest(id), CredentialErr: credErr}
	}

	return Resolution{
		Owner:         Guest(r.newID()),
		Minted:        true,
		CredentialErr: credErr,
	}
}
