package syncqueue

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable JSON structure stored in sync_queue.payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	MutationID string          `json:"mutationId"`
	OccurredAt time.Time       `json:"occurredAt"`
	TerminalID string          `json:"terminalId,omitempty"`
	Data       json.RawMessage `json:"data"`
}
