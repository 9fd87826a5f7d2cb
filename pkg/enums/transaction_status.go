package enums

import "fmt"

// TransactionStatus tracks a finalized sale through reconciliation.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSynced   TransactionStatus = "synced"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusCanceled TransactionStatus = "canceled"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusSynced,
	TransactionStatusFailed,
	TransactionStatusCanceled,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further sync transition is expected.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSynced || s == TransactionStatusCanceled
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
