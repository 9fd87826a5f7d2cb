package enums

import "fmt"

// EnvelopeState is the sync queue state of a pending mutation.
type EnvelopeState string

const (
	EnvelopeStateQueued     EnvelopeState = "queued"
	EnvelopeStateAttempting EnvelopeState = "attempting"
	EnvelopeStateFailed     EnvelopeState = "failed"
)

var validEnvelopeStates = []EnvelopeState{
	EnvelopeStateQueued,
	EnvelopeStateAttempting,
	EnvelopeStateFailed,
}

func (s EnvelopeState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EnvelopeState.
func (s EnvelopeState) IsValid() bool {
	for _, candidate := range validEnvelopeStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEnvelopeState converts raw input into an EnvelopeState.
func ParseEnvelopeState(value string) (EnvelopeState, error) {
	for _, candidate := range validEnvelopeStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid envelope state %q", value)
}

// MutationType names the aggregate a queued mutation targets.
type MutationType string

const (
	MutationTransaction MutationType = "transaction"
	MutationCustomer    MutationType = "customer"
	MutationProduct     MutationType = "product"
)

var validMutationTypes = []MutationType{
	MutationTransaction,
	MutationCustomer,
	MutationProduct,
}

func (m MutationType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MutationType.
func (m MutationType) IsValid() bool {
	for _, candidate := range validMutationTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMutationType converts raw input into a MutationType.
func ParseMutationType(value string) (MutationType, error) {
	for _, candidate := range validMutationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mutation type %q", value)
}

// MutationAction is the write verb carried by a queued mutation.
type MutationAction string

const (
	ActionCreate MutationAction = "create"
	ActionUpdate MutationAction = "update"
	ActionDelete MutationAction = "delete"
)

var validMutationActions = []MutationAction{
	ActionCreate,
	ActionUpdate,
	ActionDelete,
}

func (a MutationAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known MutationAction.
func (a MutationAction) IsValid() bool {
	for _, candidate := range validMutationActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseMutationAction converts raw input into a MutationAction.
func ParseMutationAction(value string) (MutationAction, error) {
	for _, candidate := range validMutationActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mutation action %q", value)
}
