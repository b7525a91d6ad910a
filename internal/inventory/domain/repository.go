package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *GameAccount) error
	BulkInsert(ctx context.Context, db *gorm.DB, accounts []GameAccount) error

	// SelectUnclaimedIDs returns up to limit unclaimed account ids of the
	// given package size, oldest first.
	SelectUnclaimedIDs(ctx context.Context, db *gorm.DB, packageSize, limit int) ([]snowflake.ID, error)

	// Claim conditionally marks the given accounts as claimed and returns
	// the number of rows actually claimed. Rows already claimed by a
	// concurrent caller are left untouched, so callers must compare the
	// returned count against len(ids).
	Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, claimedBy *snowflake.ID, claimedAt time.Time) (int64, error)

	ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]GameAccount, error)

	// List returns up to limit accounts with id greater than afterID,
	// id ascending. Pass afterID 0 to start from the beginning.
	List(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]GameAccount, error)
	StockCounts(ctx context.Context, db *gorm.DB) ([]StockCount, error)
	CountUnclaimed(ctx context.Context, db *gorm.DB, packageSize int) (int64, error)

	// DeleteUnclaimed removes an account only while it is unclaimed and
	// returns the affected row count; claimed rows must not be deleted
	// because delivery records reference them.
	DeleteUnclaimed(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*GameAccount, error)
}
