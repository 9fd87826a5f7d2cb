package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncDependency holds an envelope back until the envelope it depends on has
// left the queue.
type SyncDependency struct {
	EnvelopeID uuid.UUID `gorm:"column:envelope_id;primaryKey"`
	DependsOn  uuid.UUID `gorm:"column:depends_on;primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SyncDependency) TableName() string { return "sync_dependencies" }
