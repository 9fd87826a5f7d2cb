package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// PaymentViolationDetail describes one rejected tender.
type PaymentViolationDetail struct {
	Index  int    `json:"index"`
	Method string `json:"method"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// ValidatePayments checks every tender and that together they cover total.
// It returns the change owed to the customer. A zero total needs no tender.
func ValidatePayments(total decimal.Decimal, payments []types.Payment) (decimal.Decimal, error) {
	if len(payments) == 0 {
		if total.IsZero() {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "at least one payment is required")
	}

	var violations []PaymentViolationDetail
	for i, p := range payments {
		reason := ""
		switch {
		case !p.Method.IsValid():
			reason = "unknown payment method"
		case !p.Amount.IsPositive():
			reason = "amount must be positive"
		case !p.Amount.Equal(p.Amount.Round(2)):
			reason = "amount has more than 2 decimal places"
		}
		if reason == "" {
			continue
		}
		violations = append(violations, PaymentViolationDetail{
			Index:  i,
			Method: string(p.Method),
			Amount: p.Amount.String(),
			Reason: reason,
		})
	}
	if len(violations) > 0 {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment(s): %d", len(violations))).WithDetails(map[string]any{
			"violations": violations,
		})
	}

	tendered := types.SumPayments(payments)
	if tendered.LessThan(total) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInsufficientPayment, "payments do not cover the total").WithDetails(map[string]any{
			"total":     total.StringFixed(2),
			"tendered":  tendered.StringFixed(2),
			"remaining": total.Sub(tendered).StringFixed(2),
		})
	}
	return tendered.Sub(total), nil
}
