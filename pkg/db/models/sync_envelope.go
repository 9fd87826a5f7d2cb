package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/offline-pos/pkg/enums"
)

// SyncEnvelope is one durable entry of the mutation sync queue. Seq breaks
// ties between envelopes created in the same instant.
type SyncEnvelope struct {
	Seq           int64                `gorm:"column:seq;primaryKey;autoIncrement"`
	ID            uuid.UUID            `gorm:"column:id;not null;uniqueIndex"`
	Type          enums.MutationType   `gorm:"column:type;not null"`
	Action        enums.MutationAction `gorm:"column:action;not null"`
	Version       int                  `gorm:"column:version;not null;default:1"`
	ChainKey      string               `gorm:"column:chain_key;not null"`
	AggregateID   string               `gorm:"column:aggregate_id;not null"`
	Payload       datatypes.JSON       `gorm:"column:payload;not null"`
	State         enums.EnvelopeState  `gorm:"column:state;not null"`
	Attempts      int                  `gorm:"column:attempts;not null;default:0"`
	LastError     *string              `gorm:"column:last_error"`
	NextAttemptAt time.Time            `gorm:"column:next_attempt_at;not null"`
	CreatedAt     time.Time            `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (SyncEnvelope) TableName() string { return "sync_queue" }
