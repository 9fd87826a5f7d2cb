package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/offline-pos/pkg/enums"
)

// OperatorAction audits a manual retry or cancel on the sync queue.
type OperatorAction struct {
	ID            uuid.UUID                `gorm:"column:id;primaryKey"`
	EnvelopeID    uuid.UUID                `gorm:"column:envelope_id;not null"`
	TransactionID *uuid.UUID               `gorm:"column:transaction_id"`
	Action        enums.OperatorActionType `gorm:"column:action;not null"`
	Actor         string                   `gorm:"column:actor;not null"`
	Reason        string                   `gorm:"column:reason;not null;default:''"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (OperatorAction) TableName() string { return "operator_actions" }
