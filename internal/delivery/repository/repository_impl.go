package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	deliverydomain "github.com/smallbiznis/vendora/internal/delivery/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() deliverydomain.Repository {
	return &repo{}
}

func (r *repo) BulkInsert(ctx context.Context, db *gorm.DB, deliveries []deliverydomain.AccountDelivery) error {
	for i := range deliveries {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO account_deliveries (id, purchase_id, account_id, created_at)
			 VALUES (?, ?, ?, ?)`,
			deliveries[i].ID,
			deliveries[i].PurchaseID,
			deliveries[i].AccountID,
			deliveries[i].CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListAccountIDs(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT account_id FROM account_deliveries
		 WHERE purchase_id = ?
		 ORDER BY created_at ASC, id ASC`,
		purchaseID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
