package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertIgnoreDuplicate inserts the subscription unless a row with
	// the same subscription_id already exists. Reports whether a row
	// was written.
	InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, sub *Subscription) (bool, error)

	// UpdateStatus sets the status for the provider subscription id.
	// Unknown ids are a no-op, not an error, because cancellation
	// events may arrive before activation.
	UpdateStatus(ctx context.Context, db *gorm.DB, subscriptionID string, status Status) error

	// RecordPayment stamps the last payment date and resets the status
	// to active.
	RecordPayment(ctx context.Context, db *gorm.DB, subscriptionID string, paidAt time.Time) error

	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*Subscription, error)
	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]Subscription, error)
}
