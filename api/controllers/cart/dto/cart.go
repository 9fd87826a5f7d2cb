package cartdto

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/offline-pos/pkg/enums"
)

// AddItemRequest rings up a catalog product. Exactly one of ProductID,
// Barcode or SKU identifies it.
type AddItemRequest struct {
	ProductID string           `json:"product_id" validate:"omitempty,max=64"`
	Barcode   string           `json:"barcode" validate:"omitempty,max=64"`
	SKU       string           `json:"sku" validate:"omitempty,max=64"`
	Quantity  int              `json:"quantity" validate:"required,min=1,max=9999"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=9999"`
}

type DiscountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

type CustomerRequest struct {
	CustomerID *string `json:"customer_id" validate:"omitempty,max=64"`
}

type HoldRequest struct {
	Note string `json:"note" validate:"max=200"`
}

type PaymentRequest struct {
	Method    enums.PaymentMethod `json:"method" validate:"required,oneof=cash card gift_card store_credit"`
	Amount    decimal.Decimal     `json:"amount" validate:"money"`
	Reference string              `json:"reference" validate:"max=120"`
}

type CheckoutRequest struct {
	Payments []PaymentRequest `json:"payments" validate:"dive"`
}
