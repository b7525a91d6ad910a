// Package domain contains the subscription ledger models.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusSuspended Status = "suspended"
)

// Subscription mirrors the provider's billing agreement. SubscriptionID
// is the provider's id and carries the dedup constraint.
type Subscription struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	SubscriptionID  string        `json:"subscription_id" gorm:"uniqueIndex;not null"`
	PlanID          string        `json:"plan_id" gorm:"type:text"`
	Status          Status        `json:"status" gorm:"type:text;not null;default:active"`
	CustomerEmail   string        `json:"customer_email" gorm:"type:text"`
	AccessKey       string        `json:"access_key" gorm:"type:text"`
	NextBillingDate *time.Time    `json:"next_billing_date,omitempty"`
	LastPaymentDate *time.Time    `json:"last_payment_date,omitempty"`
	CustomerID      *snowflake.ID `json:"customer_id,omitempty" gorm:"index"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

var (
	ErrNotFound = errors.New("subscription_not_found")
)
