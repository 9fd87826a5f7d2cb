package enums

import "fmt"

// OperatorActionType is an audited manual intervention on the sync queue.
type OperatorActionType string

const (
	OperatorActionRetry  OperatorActionType = "retry"
	OperatorActionCancel OperatorActionType = "cancel"
)

var validOperatorActions = []OperatorActionType{
	OperatorActionRetry,
	OperatorActionCancel,
}

// IsValid reports whether the value is a known OperatorActionType.
func (a OperatorActionType) IsValid() bool {
	for _, candidate := range validOperatorActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOperatorActionType converts raw input into an OperatorActionType.
func ParseOperatorActionType(value string) (OperatorActionType, error) {
	for _, candidate := range validOperatorActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator action %q", value)
}
