// Package domain contains the buyer directory models.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role gates access to the admin surface. A role column replaces any
// hardcoded operator identity.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Customer is a registered buyer. Guest checkout is allowed, so most
// ledger rows reference customers only when an email matches.
type Customer struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Email     string       `json:"email" gorm:"type:text;not null;uniqueIndex"`
	Role      Role         `json:"role" gorm:"type:text;not null;default:member"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Customer) TableName() string { return "customers" }

var ErrNotFound = errors.New("customer_not_found")
