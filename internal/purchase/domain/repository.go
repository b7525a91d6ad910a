package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIgnoreDuplicate inserts the purchase unless a row with the
	// same payment_id already exists. Reports whether a row was written.
	InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, purchase *Purchase) (bool, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Purchase, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*Purchase, error)

	// MarkDelivered flips accounts_delivered only while it is still
	// false and returns the affected row count. A zero count means a
	// concurrent delivery won.
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)

	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]Purchase, error)
}
