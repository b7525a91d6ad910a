package repository

import (
	"context"
	"strings"
	"time"

	subscriptiondomain "github.com/smallbiznis/vendora/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, subscription_id, plan_id, status, customer_email, access_key,
			next_billing_date, last_payment_date, customer_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subscription_id) DO NOTHING`,
		sub.ID,
		sub.SubscriptionID,
		sub.PlanID,
		sub.Status,
		strings.ToLower(strings.TrimSpace(sub.CustomerEmail)),
		sub.AccessKey,
		sub.NextBillingDate,
		sub.LastPaymentDate,
		sub.CustomerID,
		sub.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, subscriptionID string, status subscriptiondomain.Status) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ? WHERE subscription_id = ?`,
		status,
		subscriptionID,
	).Error
}

func (r *repo) RecordPayment(ctx context.Context, db *gorm.DB, subscriptionID string, paidAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET last_payment_date = ?, status = ?
		 WHERE subscription_id = ?`,
		paidAt,
		subscriptiondomain.StatusActive,
		subscriptionID,
	).Error
}

func (r *repo) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, plan_id, status, customer_email, access_key,
			next_billing_date, last_payment_date, customer_id, created_at
		 FROM subscriptions WHERE subscription_id = ?`,
		subscriptionID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}

	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, plan_id, status, customer_email, access_key,
			next_billing_date, last_payment_date, customer_id, created_at
		 FROM subscriptions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
