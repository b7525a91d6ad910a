package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent records the provider event unless a row with the same
	// (provider, provider_event_id) already exists. Reports whether a
	// row was written.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)

	// FindEvent returns the recorded event or nil when none exists.
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)

	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
