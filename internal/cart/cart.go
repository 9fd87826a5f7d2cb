package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

const moneyPlaces = 2

// ItemInput describes a product being rung up.
type ItemInput struct {
	ProductID string
	VariantID string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
}

// Cart is an in-progress sale. It is a value: every mutation returns a new
// Cart with totals recomputed, leaving the receiver untouched.
type Cart struct {
	SessionID     string           `json:"session_id"`
	Items         []types.LineItem `json:"items"`
	CustomerID    *string          `json:"customer_id,omitempty"`
	Subtotal      decimal.Decimal  `json:"subtotal"`
	TaxTotal      decimal.Decimal  `json:"tax_total"`
	DiscountTotal decimal.Decimal  `json:"discount_total"`
	Total         decimal.Decimal  `json:"total"`
	StartedAt     time.Time        `json:"started_at"`

	discount decimal.Decimal
}

// New starts an empty cart for a fresh session.
func New(sessionID string, now time.Time) Cart {
	return Cart{
		SessionID:     sessionID,
		Items:         []types.LineItem{},
		Subtotal:      decimal.Zero,
		TaxTotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		Total:         decimal.Zero,
		StartedAt:     now.UTC(),
		discount:      decimal.Zero,
	}
}

// FromSnapshot rebuilds a cart from its persisted form.
func FromSnapshot(s types.CartSnapshot) Cart {
	c := Cart{
		SessionID:  s.SessionID,
		Items:      append([]types.LineItem{}, s.Items...),
		CustomerID: copyString(s.CustomerID),
		StartedAt:  s.StartedAt,
		discount:   s.Discount,
	}
	return c.recompute()
}

// Snapshot returns the persisted form of the cart.
func (c Cart) Snapshot() types.CartSnapshot {
	return types.CartSnapshot{
		SessionID:  c.SessionID,
		Items:      append([]types.LineItem{}, c.Items...),
		CustomerID: copyString(c.CustomerID),
		Discount:   c.discount,
		StartedAt:  c.StartedAt,
	}
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount sums quantities across lines.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// AddItem merges into an existing line for the same product and variant or
// appends a new line.
func (c Cart) AddItem(in ItemInput) (Cart, error) {
	if err := validateItem(in); err != nil {
		return c, err
	}

	next := c.clone()
	for i, line := range next.Items {
		if line.ProductID == in.ProductID && line.VariantID == in.VariantID {
			next.Items[i].Quantity += in.Quantity
			return next.recompute(), nil
		}
	}

	next.Items = append(next.Items, types.LineItem{
		LineID:    uuid.NewString(),
		ProductID: in.ProductID,
		VariantID: in.VariantID,
		SKU:       in.SKU,
		Name:      strings.TrimSpace(in.Name),
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice.Round(moneyPlaces),
		TaxRate:   in.TaxRate,
	})
	return next.recompute(), nil
}

// UpdateQuantity sets a line's quantity. Zero or less removes the line.
func (c Cart) UpdateQuantity(lineID string, qty int) (Cart, error) {
	idx := c.lineIndex(lineID)
	if idx < 0 {
		return c, lineNotFound(lineID)
	}
	if qty <= 0 {
		return c.RemoveItem(lineID)
	}
	next := c.clone()
	next.Items[idx].Quantity = qty
	return next.recompute(), nil
}

func (c Cart) RemoveItem(lineID string) (Cart, error) {
	idx := c.lineIndex(lineID)
	if idx < 0 {
		return c, lineNotFound(lineID)
	}
	next := c.clone()
	next.Items = append(next.Items[:idx], next.Items[idx+1:]...)
	return next.recompute(), nil
}

// ApplyDiscount sets a cart-level discount. The applied amount never exceeds
// subtotal plus tax, so the total cannot go negative.
func (c Cart) ApplyDiscount(amount decimal.Decimal) (Cart, error) {
	if amount.IsNegative() {
		return c, pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}
	next := c.clone()
	next.discount = amount.Round(moneyPlaces)
	return next.recompute(), nil
}

// RequestedDiscount is the discount asked for before clamping.
func (c Cart) RequestedDiscount() decimal.Decimal {
	return c.discount
}

// SetCustomer attaches or, with nil, detaches a customer.
func (c Cart) SetCustomer(customerID *string) Cart {
	next := c.clone()
	if customerID != nil && strings.TrimSpace(*customerID) == "" {
		customerID = nil
	}
	next.CustomerID = copyString(customerID)
	return next.recompute()
}

// Clear drops every line, the discount and the customer but keeps the session.
func (c Cart) Clear() Cart {
	return New(c.SessionID, c.StartedAt)
}

// Line returns the line with id.
func (c Cart) Line(lineID string) (types.LineItem, bool) {
	idx := c.lineIndex(lineID)
	if idx < 0 {
		return types.LineItem{}, false
	}
	return c.Items[idx], true
}

func (c Cart) recompute() Cart {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for i := range c.Items {
		line := &c.Items[i]
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(moneyPlaces)
		line.Tax = line.Subtotal.Mul(line.TaxRate).Round(moneyPlaces)
		line.Total = line.Subtotal.Add(line.Tax)
		subtotal = subtotal.Add(line.Subtotal)
		tax = tax.Add(line.Tax)
	}

	gross := subtotal.Add(tax)
	discount := c.discount
	if discount.GreaterThan(gross) {
		discount = gross
	}

	c.Subtotal = subtotal
	c.TaxTotal = tax
	c.DiscountTotal = discount
	c.Total = gross.Sub(discount)
	if c.Items == nil {
		c.Items = []types.LineItem{}
	}
	return c
}

func (c Cart) clone() Cart {
	next := c
	next.Items = append(make([]types.LineItem, 0, len(c.Items)+1), c.Items...)
	next.CustomerID = copyString(c.CustomerID)
	return next
}

func (c Cart) lineIndex(lineID string) int {
	for i, line := range c.Items {
		if line.LineID == lineID {
			return i
		}
	}
	return -1
}

func validateItem(in ItemInput) error {
	switch {
	case strings.TrimSpace(in.ProductID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	case in.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	case in.UnitPrice.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	case in.TaxRate.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "tax rate cannot be negative")
	}
	return nil
}

func lineNotFound(lineID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("cart line %s not found", lineID))
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
