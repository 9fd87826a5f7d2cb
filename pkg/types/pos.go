package types

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/offline-pos/pkg/enums"
)

// LineItem is one priced cart line. Amounts are already rounded to 2dp.
type LineItem struct {
	LineID    string          `json:"line_id"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

// Payment is a tender applied at checkout.
type Payment struct {
	Method    enums.PaymentMethod `json:"method"`
	Amount    decimal.Decimal     `json:"amount"`
	Reference string              `json:"reference,omitempty"`
}

// SumPayments adds up the tendered amounts.
func SumPayments(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// CartSnapshot is the persisted form of an in-progress cart.
type CartSnapshot struct {
	SessionID  string          `json:"session_id"`
	Items      []LineItem      `json:"items"`
	CustomerID *string         `json:"customer_id,omitempty"`
	Discount   decimal.Decimal `json:"discount"`
	StartedAt  time.Time       `json:"started_at"`
}

// TransactionRecord is the wire form of a finalized sale exchanged with the
// ledger.
type TransactionRecord struct {
	ClientTransactionID string          `json:"client_transaction_id"`
	SessionID           string          `json:"session_id"`
	TerminalID          string          `json:"terminal_id,omitempty"`
	Items               []LineItem      `json:"items"`
	Payments            []Payment       `json:"payments"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	TaxTotal            decimal.Decimal `json:"tax_total"`
	DiscountTotal       decimal.Decimal `json:"discount_total"`
	Total               decimal.Decimal `json:"total"`
	CustomerID          *string         `json:"customer_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Matches reports whether other describes the same sale: same id, totals,
// customer, lines and tendered amount.
func (r TransactionRecord) Matches(other TransactionRecord) bool {
	if r.ClientTransactionID != other.ClientTransactionID ||
		!r.Subtotal.Equal(other.Subtotal) ||
		!r.TaxTotal.Equal(other.TaxTotal) ||
		!r.DiscountTotal.Equal(other.DiscountTotal) ||
		!r.Total.Equal(other.Total) ||
		!SumPayments(r.Payments).Equal(SumPayments(other.Payments)) ||
		len(r.Items) != len(other.Items) {
		return false
	}
	if (r.CustomerID == nil) != (other.CustomerID == nil) ||
		(r.CustomerID != nil && *r.CustomerID != *other.CustomerID) {
		return false
	}
	for i := range r.Items {
		a, b := r.Items[i], other.Items[i]
		if a.ProductID != b.ProductID || a.VariantID != b.VariantID || a.Quantity != b.Quantity || !a.Total.Equal(b.Total) {
			return false
		}
	}
	return true
}

// CustomerRecord is the wire form of a customer.
type CustomerRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ProductRecord is the wire form of a catalog product.
type ProductRecord struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Barcode  string          `json:"barcode,omitempty"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Price    decimal.Decimal `json:"price"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	IsActive bool            `json:"is_active"`
}
