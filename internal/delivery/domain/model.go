// Package domain contains the account delivery models.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountDelivery links one claimed account to the purchase it was
// delivered for. The (purchase_id, account_id) pair is unique so a
// delivery can never hand the same account to a purchase twice.
type AccountDelivery struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	PurchaseID snowflake.ID `json:"purchase_id" gorm:"not null;index;uniqueIndex:ux_account_deliveries_purchase_account"`
	AccountID  snowflake.ID `json:"account_id" gorm:"not null;uniqueIndex:ux_account_deliveries_purchase_account"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AccountDelivery) TableName() string { return "account_deliveries" }

// Credential is the customer-facing view of one delivered account.
type Credential struct {
	ID       snowflake.ID `json:"id"`
	Username string       `json:"username"`
	Password string       `json:"password"`
}

var (
	ErrPurchaseNotFound  = errors.New("purchase_not_found")
	ErrAlreadyDelivered  = errors.New("accounts_already_delivered")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrInvalidPurchase   = errors.New("invalid_purchase")
)
