package models

import "time"

// Customer mirrors a ledger customer for offline lookup and attribution.
type Customer struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Phone     string    `gorm:"column:phone;not null;default:''"`
	Email     string    `gorm:"column:email;not null;default:''"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Customer) TableName() string { return "customers" }
