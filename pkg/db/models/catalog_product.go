package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogProduct mirrors a ledger product so the till can sell offline.
type CatalogProduct struct {
	ID        string          `gorm:"column:id;primaryKey"`
	SKU       string          `gorm:"column:sku;not null"`
	Barcode   string          `gorm:"column:barcode;not null;default:''"`
	Name      string          `gorm:"column:name;not null"`
	Category  string          `gorm:"column:category;not null;default:''"`
	Price     decimal.Decimal `gorm:"column:price;type:text;not null"`
	TaxRate   decimal.Decimal `gorm:"column:tax_rate;type:text;not null"`
	IsActive  bool            `gorm:"column:is_active;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (CatalogProduct) TableName() string { return "products" }
