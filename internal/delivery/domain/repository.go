package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	BulkInsert(ctx context.Context, db *gorm.DB, deliveries []AccountDelivery) error
	ListAccountIDs(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) ([]snowflake.ID, error)
}
