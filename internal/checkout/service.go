package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/internal/orders"
	"github.com/angelmondragon/storefront-cart/internal/pricing"
	pkgcheckout "github.com/angelmondragon/storefront-cart/pkg/checkout"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
	"github.com/angelmondragon/storefront-cart/pkg/outbox/payloads"
)

const (
	defaultClearAttempts = 3
	defaultClearBackoff  = 50 * time.Millisecond
	clearTimeout         = 5 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartReader interface {
	GetCart(ctx context.Context, owner identity.Owner) (*cart.Cart, error)
}

type cartClearer interface {
	ClearByOwner(ctx context.Context, owner identity.Owner) error
}

type pricer interface {
	Price(ctx context.Context, c *cart.Cart) (*pricing.PricedCart, error)
}

// Input is the delivery contact submitted with a checkout.
type Input = pkgcheckout.ContactInput

// Service turns the owner's cart into an order.
type Service interface {
	Checkout(ctx context.Context, owner identity.Owner, input Input) (*orders.Order, error)
}

// Params wires the checkout collaborators.
type Params struct {
	Tx           txRunner
	Carts        cartReader
	Clearer      cartClearer
	Locker       cart.Locker
	Pricer       pricer
	Orders       orders.Repository
	Events       outbox.Emitter
	Metrics      *metrics.CartMetrics
	Logger       *logger.Logger
	ClearRetries int
	ClearBackoff time.Duration
}

type service struct {
	tx            txRunner
	carts         cartReader
	clearer       cartClearer
	locker        cart.Locker
	pricer        pricer
	orders        orders.Repository
	events        outbox.Emitter
	metrics       *metrics.CartMetrics
	logg          *logger.Logger
	clearAttempts int
	clearBackoff  time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewService builds the checkout coordinator.
func NewService(p Params) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if p.Clearer == nil {
		return nil, fmt.Errorf("cart clearer required")
	}
	if p.Locker == nil {
		return nil, fmt.Errorf("cart locker required")
	}
	if p.Pricer == nil {
		return nil, fmt.Errorf("pricer required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	attempts := p.ClearRetries
	if attempts <= 0 {
		attempts = defaultClearAttempts
	}
	backoff := p.ClearBackoff
	if backoff <= 0 {
		backoff = defaultClearBackoff
	}
	return &service{
		tx:            p.Tx,
		carts:         p.Carts,
		clearer:       p.Clearer,
		locker:        p.Locker,
		pricer:        p.Pricer,
		orders:        p.Orders,
		events:        p.Events,
		metrics:       p.Metrics,
		logg:          p.Logger,
		clearAttempts: attempts,
		clearBackoff:  backoff,
		now:           time.Now,
		sleep:         sleepCtx,
	}, nil
}

// Checkout validates the contact, prices the cart under the owner's lock and
// commits the order with its order_placed event in one transaction. The cart
// is cleared only after the commit; a failed clear is logged and left to the
// reconciliation job.
func (s *service) Checkout(ctx context.Context, owner identity.Owner, input Input) (*orders.Order, error) {
	contact, err := pkgcheckout.ValidateContact(input)
	if err != nil {
		s.metrics.IncCheckout(metrics.OutcomeInvalid)
		return nil, err
	}
	if err := owner.Validate(); err != nil {
		s.metrics.IncCheckout(metrics.OutcomeInvalid)
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart owner")
	}
	if s.logg != nil {
		ctx = s.logg.WithOwner(ctx, string(owner.Type), owner.ID)
	}

	lease, err := s.locker.Lock(ctx, owner.Key())
	if err != nil {
		s.metrics.IncCheckout(metrics.OutcomeFailure)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart is busy, retry shortly")
	}
	defer lease.Release()

	current, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		s.metrics.IncCheckout(metrics.OutcomeFailure)
		return nil, err
	}
	priced, err := s.pricer.Price(ctx, current)
	if err != nil {
		s.metrics.IncCheckout(metrics.OutcomeFailure)
		return nil, err
	}
	if priced.PricedCount == 0 {
		s.metrics.IncCheckout(metrics.OutcomeEmpty)
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no purchasable items")
	}

	order := s.buildOrder(owner, contact, priced)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := s.events.Emit(ctx, tx, orderPlacedEvent(owner, order)); err != nil {
			return fmt.Errorf("queue order_placed: %w", err)
		}
		if !lease.Held() {
			return cart.ErrLockLost
		}
		return nil
	})
	if errors.Is(err, cart.ErrLockLost) {
		s.metrics.IncCheckout(metrics.OutcomeFailure)
		if s.logg != nil {
			s.logg.Warn(ctx, "cart lock lost before order commit")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart changed during checkout, retry")
	}
	if err != nil {
		s.metrics.IncCheckout(metrics.OutcomeFailure)
		if s.logg != nil {
			s.logg.Error(ctx, "checkout commit failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "place order")
	}

	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(ctx, "order placed")
	}
	s.clearAfterOrder(ctx, owner, lease)
	s.metrics.IncCheckout(metrics.OutcomeSuccess)
	return orders.FromModel(order), nil
}

func (s *service) buildOrder(owner identity.Owner, contact pkgcheckout.Contact, priced *pricing.PricedCart) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		OwnerType:       owner.Type,
		OwnerID:         owner.ID,
		ContactName:     contact.Name,
		ContactPhone:    contact.Phone,
		ShippingAddress: contact.ShippingAddress,
		City:            contact.City,
		Total:           priced.Total,
		TotalCount:      priced.PricedUnits(),
		Status:          enums.OrderStatusPlaced,
		CreatedAt:       s.now().UTC(),
	}
	if userID, ok := owner.UserID(); ok {
		order.UserID = &userID
	}
	for i, line := range priced.PricedLines() {
		order.Items = append(order.Items, models.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			UnitPrice:    *line.UnitPrice,
			LineSubtotal: *line.LineSubtotal,
			Position:     i + 1,
		})
	}
	return order
}

func orderPlacedEvent(owner identity.Owner, order *models.Order) outbox.DomainEvent {
	items := make([]payloads.OrderPlacedItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, payloads.OrderPlacedItem{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineSubtotal: line.LineSubtotal,
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor: &outbox.Actor{
			OwnerType: owner.Type,
			OwnerID:   owner.ID,
			UserID:    order.UserID,
		},
		Data: payloads.OrderPlacedEvent{
			OrderID:    order.ID,
			OwnerType:  order.OwnerType,
			OwnerID:    order.OwnerID,
			UserID:     order.UserID,
			City:       order.City,
			Total:      order.Total,
			TotalCount: order.TotalCount,
			Items:      items,
			PlacedAt:   order.CreatedAt,
		},
		OccurredAt: order.CreatedAt,
	}
}

// clearAfterOrder empties the cart with bounded retries. It runs detached
// from the request so a disconnecting client does not skip the clear. Once
// the lease is lost another request may have added lines, so the clear is
// abandoned and the reconciliation job decides under its own lock.
func (s *service) clearAfterOrder(ctx context.Context, owner identity.Owner, lease cart.Lease) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	defer cancel()

	backoff := s.clearBackoff
	var err error
	for attempt := 1; attempt <= s.clearAttempts; attempt++ {
		if !lease.Held() {
			s.metrics.IncClearRetry()
			if s.logg != nil {
				s.logg.Warn(clearCtx, "cart lock lost after order, leaving clear to reconciliation")
			}
			return
		}
		if err = s.clearer.ClearByOwner(clearCtx, owner); err == nil {
			return
		}
		if attempt == s.clearAttempts {
			break
		}
		s.metrics.IncClearRetry()
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(clearCtx, "attempt", attempt), "cart clear after order failed, retrying")
		}
		if sleepErr := s.sleep(clearCtx, backoff); sleepErr != nil {
			err = sleepErr
			break
		}
		backoff *= 2
	}
	if s.logg != nil {
		s.logg.Error(clearCtx, "cart clear after order gave up, reconciliation will retry", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
