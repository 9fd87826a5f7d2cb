package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/offline-pos/pkg/enums"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// HeldCart persists either the register's working draft or a parked cart.
type HeldCart struct {
	SessionID string                                `gorm:"column:session_id;primaryKey"`
	State     enums.HeldCartState                   `gorm:"column:state;not null"`
	Note      string                                `gorm:"column:note;not null;default:''"`
	Snapshot  datatypes.JSONType[types.CartSnapshot] `gorm:"column:snapshot;not null"`
	ItemCount int                                   `gorm:"column:item_count;not null;default:0"`
	Total     decimal.Decimal                       `gorm:"column:total;type:text;not null"`
	CreatedAt time.Time                             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                             `gorm:"column:updated_at;autoUpdateTime"`
}

func (HeldCart) TableName() string { return "held_carts" }
