package ledger

import (
	"context"

	"github.com/angelmondragon/offline-pos/pkg/enums"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// SubmitOutcome tells a first-time write apart from a replay the ledger
// already holds.
type SubmitOutcome string

const (
	OutcomeCreated   SubmitOutcome = "created"
	OutcomeDuplicate SubmitOutcome = "duplicate"
)

// TransactionResult is the ledger's answer to a sale submission. Record is
// the ledger's canonical copy, which for a duplicate may differ from what
// was sent.
type TransactionResult struct {
	Outcome     SubmitOutcome
	CanonicalID string
	Record      types.TransactionRecord
}

// Client is the reconciliation contract with the central ledger. Every
// write carries an idempotency key; resubmitting the same key must not
// create a second record.
type Client interface {
	SubmitTransaction(ctx context.Context, idempotencyKey string, rec types.TransactionRecord) (*TransactionResult, error)
	SubmitCustomer(ctx context.Context, idempotencyKey string, action enums.MutationAction, rec types.CustomerRecord) (SubmitOutcome, error)
	SubmitProduct(ctx context.Context, idempotencyKey string, action enums.MutationAction, rec types.ProductRecord) (SubmitOutcome, error)
	FetchProducts(ctx context.Context) ([]types.ProductRecord, error)
	FetchCustomers(ctx context.Context) ([]types.CustomerRecord, error)
	Ping(ctx context.Context) error
}
