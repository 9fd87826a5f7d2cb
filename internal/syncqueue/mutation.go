package syncqueue

import (
	"fmt"

	"github.com/angelmondragon/offline-pos/pkg/enums"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// PayloadVersion is the version written for new envelopes.
const PayloadVersion = 1

// Mutation is a queued write against the ledger. Implementations are the
// closed set of variants below.
type Mutation interface {
	Kind() enums.MutationType
	Action() enums.MutationAction
	AggregateID() string
	// ChainKey groups mutations that must reach the ledger in order.
	ChainKey() string
	// DependsOn names aggregates whose queued writes must reach the ledger
	// first.
	DependsOn() []Ref
}

// Ref identifies an aggregate by mutation type and id.
type Ref struct {
	Type        enums.MutationType
	AggregateID string
}

// TransactionMutation submits a finalized sale.
type TransactionMutation struct {
	types.TransactionRecord
}

func (m TransactionMutation) Kind() enums.MutationType     { return enums.MutationTransaction }
func (m TransactionMutation) Action() enums.MutationAction { return enums.ActionCreate }
func (m TransactionMutation) AggregateID() string          { return m.ClientTransactionID }

// ChainKey gives every sale its own chain. Sales never wait on each other.
func (m TransactionMutation) ChainKey() string {
	return fmt.Sprintf("transaction:%s", m.ClientTransactionID)
}

// DependsOn is the sale's customer followed by each distinct product it rings
// up.
func (m TransactionMutation) DependsOn() []Ref {
	var refs []Ref
	if m.CustomerID != nil && *m.CustomerID != "" {
		refs = append(refs, Ref{Type: enums.MutationCustomer, AggregateID: *m.CustomerID})
	}
	seen := make(map[string]struct{}, len(m.Items))
	for _, item := range m.Items {
		if item.ProductID == "" {
			continue
		}
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		refs = append(refs, Ref{Type: enums.MutationProduct, AggregateID: item.ProductID})
	}
	return refs
}

// CustomerMutation creates, updates or deletes a customer.
type CustomerMutation struct {
	Op       enums.MutationAction `json:"action"`
	Customer types.CustomerRecord `json:"customer"`
}

func (m CustomerMutation) Kind() enums.MutationType     { return enums.MutationCustomer }
func (m CustomerMutation) Action() enums.MutationAction { return m.Op }
func (m CustomerMutation) AggregateID() string          { return m.Customer.ID }
func (m CustomerMutation) ChainKey() string             { return CustomerChain(m.Customer.ID) }
func (m CustomerMutation) DependsOn() []Ref             { return nil }

// ProductMutation creates, updates or deletes a catalog product.
type ProductMutation struct {
	Op      enums.MutationAction `json:"action"`
	Product types.ProductRecord  `json:"product"`
}

func (m ProductMutation) Kind() enums.MutationType     { return enums.MutationProduct }
func (m ProductMutation) Action() enums.MutationAction { return m.Op }
func (m ProductMutation) AggregateID() string          { return m.Product.ID }
func (m ProductMutation) ChainKey() string             { return fmt.Sprintf("product:%s", m.Product.ID) }
func (m ProductMutation) DependsOn() []Ref             { return nil }

func CustomerChain(customerID string) string {
	return fmt.Sprintf("customer:%s", customerID)
}
