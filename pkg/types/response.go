package types

// SuccessEnvelope wraps every successful terminal API body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the error body the register UI renders. Retryable tells the
// UI whether offering "try again" makes sense.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
