package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/offline-pos/pkg/enums"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// PendingTransaction is a finalized sale held locally until the ledger
// confirms it. The id doubles as the idempotency key.
type PendingTransaction struct {
	ID            uuid.UUID                           `gorm:"column:id;primaryKey"`
	SessionID     string                              `gorm:"column:session_id;not null"`
	TerminalID    string                              `gorm:"column:terminal_id;not null"`
	Items         datatypes.JSONSlice[types.LineItem] `gorm:"column:items;not null"`
	Subtotal      decimal.Decimal                     `gorm:"column:subtotal;type:text;not null"`
	TaxTotal      decimal.Decimal                     `gorm:"column:tax_total;type:text;not null"`
	DiscountTotal decimal.Decimal                     `gorm:"column:discount_total;type:text;not null"`
	Total         decimal.Decimal                     `gorm:"column:total;type:text;not null"`
	Payments      datatypes.JSONSlice[types.Payment]  `gorm:"column:payments;not null"`
	ChangeDue     decimal.Decimal                     `gorm:"column:change_due;type:text;not null"`
	CustomerID    *string                             `gorm:"column:customer_id"`
	Status        enums.TransactionStatus             `gorm:"column:status;not null"`
	SyncAttempts  int                                 `gorm:"column:sync_attempts;not null;default:0"`
	LastSyncError *string                             `gorm:"column:last_sync_error"`
	CanonicalID   *string                             `gorm:"column:canonical_id"`
	CreatedAt     time.Time                           `gorm:"column:created_at"`
	SyncedAt      *time.Time                          `gorm:"column:synced_at"`
	UpdatedAt     time.Time                           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingTransaction) TableName() string { return "pending_transactions" }
