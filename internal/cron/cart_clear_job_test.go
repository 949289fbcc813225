package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

type fakeUnclearedRepo struct {
	owners   []identity.Owner
	pending  map[string]bool
	clearErr map[string]error
	cleared  []string
}

func (f *fakeUnclearedRepo) ListUnclearedAfterOrder(context.Context, int) ([]identity.Owner, error) {
	return f.owners, nil
}

func (f *fakeUnclearedRepo) HasUnclearedOrder(_ context.Context, owner identity.Owner) (bool, error) {
	return f.pending[owner.Key()], nil
}

func (f *fakeUnclearedRepo) ClearByOwner(_ context.Context, owner identity.Owner) error {
	if err := f.clearErr[owner.Key()]; err != nil {
		return err
	}
	f.cleared = append(f.cleared, owner.Key())
	return nil
}

func newCartClearJob(t *testing.T, repo unclearedCartRepo) Job {
	t.Helper()
	job, err := NewCartClearJob(CartClearJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Locker:     cart.NewKeyedMutex(nil),
	})
	if err != nil {
		t.Fatalf("NewCartClearJob: %v", err)
	}
	return job
}

func TestCartClearJobClearsOnlyStillPendingOwners(t *testing.T) {
	stale := identity.Guest("guest-a")
	refilled := identity.Guest("guest-b")
	repo := &fakeUnclearedRepo{
		owners:  []identity.Owner{stale, refilled},
		pending: map[string]bool{stale.Key(): true},
	}

	if err := newCartClearJob(t, repo).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.cleared) != 1 || repo.cleared[0] != stale.Key() {
		t.Fatalf("expected only %s cleared, got %v", stale.Key(), repo.cleared)
	}
}

func TestCartClearJobContinuesPastFailures(t *testing.T) {
	broken := identity.Guest("guest-a")
	healthy := identity.Guest("guest-b")
	repo := &fakeUnclearedRepo{
		owners:   []identity.Owner{broken, healthy},
		pending:  map[string]bool{broken.Key(): true, healthy.Key(): true},
		clearErr: map[string]error{broken.Key(): errors.New("db down")},
	}

	err := newCartClearJob(t, repo).Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(repo.cleared) != 1 || repo.cleared[0] != healthy.Key() {
		t.Fatalf("expected healthy owner cleared, got %v", repo.cleared)
	}
}

func TestNewCartClearJobRequiresLocker(t *testing.T) {
	_, err := NewCartClearJob(CartClearJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: &fakeUnclearedRepo{},
	})
	if err == nil {
		t.Fatal("expected error without locker")
	}
}
