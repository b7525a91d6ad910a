// Package domain contains the purchase ledger models.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentType string

const (
	PaymentTypeOneTime      PaymentType = "onetime"
	PaymentTypeSubscription PaymentType = "subscription"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusSuspended Status = "suspended"
)

// Purchase is one paid order. PaymentID is the provider's capture or
// order id and carries the dedup constraint, so replayed webhooks for
// the same payment collapse into a single row.
type Purchase struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	PaymentID         string         `json:"payment_id" gorm:"uniqueIndex;not null"`
	PaymentType       PaymentType    `json:"payment_type" gorm:"type:text;not null;default:onetime"`
	PackageSize       int            `json:"package_size" gorm:"not null;default:0"`
	Amount            float64        `json:"amount" gorm:"type:numeric(12,2);not null;default:0"`
	Currency          string         `json:"currency" gorm:"type:text;not null;default:USD"`
	Status            Status         `json:"status" gorm:"type:text;not null;default:completed"`
	CustomerEmail     string         `json:"customer_email" gorm:"type:text"`
	AccessKey         string         `json:"access_key" gorm:"type:text"`
	AccountsDelivered bool           `json:"accounts_delivered" gorm:"not null;default:false"`
	CustomerID        *snowflake.ID  `json:"customer_id,omitempty" gorm:"index"`
	ProviderData      datatypes.JSON `json:"provider_data,omitempty"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Purchase) TableName() string { return "purchases" }

var (
	ErrNotFound = errors.New("purchase_not_found")
)
