package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	purchasedomain "github.com/smallbiznis/vendora/internal/purchase/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() purchasedomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, purchase *purchasedomain.Purchase) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO purchases (
			id, payment_id, payment_type, package_size, amount, currency, status,
			customer_email, access_key, accounts_delivered, customer_id, provider_data, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_id) DO NOTHING`,
		purchase.ID,
		purchase.PaymentID,
		purchase.PaymentType,
		purchase.PackageSize,
		purchase.Amount,
		purchase.Currency,
		purchase.Status,
		strings.ToLower(strings.TrimSpace(purchase.CustomerEmail)),
		purchase.AccessKey,
		purchase.AccountsDelivered,
		purchase.CustomerID,
		purchase.ProviderData,
		purchase.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*purchasedomain.Purchase, error) {
	var purchase purchasedomain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, payment_type, package_size, amount, currency, status,
			customer_email, access_key, accounts_delivered, customer_id, provider_data, created_at
		 FROM purchases WHERE id = ?`,
		id,
	).Scan(&purchase).Error
	if err != nil {
		return nil, err
	}
	if purchase.ID == 0 {
		return nil, nil
	}
	return &purchase, nil
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*purchasedomain.Purchase, error) {
	var purchase purchasedomain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, payment_type, package_size, amount, currency, status,
			customer_email, access_key, accounts_delivered, customer_id, provider_data, created_at
		 FROM purchases WHERE payment_id = ?`,
		paymentID,
	).Scan(&purchase).Error
	if err != nil {
		return nil, err
	}
	if purchase.ID == 0 {
		return nil, nil
	}
	return &purchase, nil
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE purchases SET accounts_delivered = TRUE
		 WHERE id = ? AND accounts_delivered = FALSE`,
		id,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]purchasedomain.Purchase, error) {
	if limit <= 0 {
		limit = 100
	}

	var purchases []purchasedomain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, payment_type, package_size, amount, currency, status,
			customer_email, access_key, accounts_delivered, customer_id, provider_data, created_at
		 FROM purchases
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}
