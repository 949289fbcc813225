package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

const maxDLQErrorLen = 1024

// DLQRepository parks order and cart events that will never be published.
type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: time.Now}
}

// InsertTx writes the dead letter in the publisher's batch transaction. A
// second insert for the same event is ignored.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.EventID == uuid.Nil {
		return errors.New("dead letter needs the outbox event id")
	}
	if !entry.ErrorReason.IsValid() {
		return fmt.Errorf("unknown dead letter reason %q", entry.ErrorReason)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = r.now().UTC()
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxDLQErrorLen {
		clipped := (*entry.ErrorMessage)[:maxDLQErrorLen]
		entry.ErrorMessage = &clipped
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&entry).Error
}

// FindByEventID returns nil when the event never reached the DLQ.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
