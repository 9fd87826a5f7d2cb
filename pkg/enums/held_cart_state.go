package enums

import "fmt"

// HeldCartState distinguishes the register's working draft from parked carts.
type HeldCartState string

const (
	HeldCartStateActive HeldCartState = "active"
	HeldCartStateHeld   HeldCartState = "held"
)

var validHeldCartStates = []HeldCartState{
	HeldCartStateActive,
	HeldCartStateHeld,
}

// IsValid reports whether the value is a known HeldCartState.
func (s HeldCartState) IsValid() bool {
	for _, candidate := range validHeldCartStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseHeldCartState converts raw input into a HeldCartState.
func ParseHeldCartState(value string) (HeldCartState, error) {
	for _, candidate := range validHeldCartStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid held cart state %q", value)
}
