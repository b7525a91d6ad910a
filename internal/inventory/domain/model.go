// Package domain contains the credential inventory models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// GameAccount is one sellable credential pair. Rows enter the pool
// unclaimed and are claimed exactly once at delivery time; a claimed
// row's owner and claim timestamp never change afterwards.
type GameAccount struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	Username    string        `json:"username" gorm:"type:text;not null"`
	Password    string        `json:"password" gorm:"type:text;not null"`
	PackageSize int           `json:"package_size" gorm:"not null;index:idx_game_accounts_pool"`
	IsClaimed   bool          `json:"is_claimed" gorm:"not null;default:false;index:idx_game_accounts_pool"`
	ClaimedBy   *snowflake.ID `json:"claimed_by,omitempty" gorm:"index"`
	ClaimedAt   *time.Time    `json:"claimed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (GameAccount) TableName() string { return "game_accounts" }

// StockCount is the number of unclaimed accounts for one package size.
type StockCount struct {
	PackageSize int   `json:"package_size"`
	Count       int64 `json:"count"`
}
