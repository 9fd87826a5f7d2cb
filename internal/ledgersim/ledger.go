package ledgersim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// StoredTransaction is a sale the ledger has accepted.
type StoredTransaction struct {
	CanonicalID string                  `json:"canonical_id"`
	Transaction types.TransactionRecord `json:"transaction"`
	RecordedAt  time.Time               `json:"recorded_at"`
}

// Ledger is the simulator's system of record.
type Ledger struct {
	mu           sync.RWMutex
	transactions map[string]StoredTransaction
	byClientID   map[string]string
	customers    map[string]types.CustomerRecord
	products     map[string]types.ProductRecord
	clock        func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		transactions: map[string]StoredTransaction{},
		byClientID:   map[string]string{},
		customers:    map[string]types.CustomerRecord{},
		products:     map[string]types.ProductRecord{},
		clock:        time.Now,
	}
}

// Seed loads catalog data for terminals to refresh from.
func (l *Ledger) Seed(products []types.ProductRecord, customers []types.CustomerRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range products {
		l.products[p.ID] = p
	}
	for _, c := range customers {
		l.customers[c.ID] = c
	}
}

// RecordTransaction stores rec under a new canonical id. A sale already
// held under the same client id is returned as is with created false. Once
// the catalog holds products, lines naming any other product are rejected.
func (l *Ledger) RecordTransaction(rec types.TransactionRecord) (StoredTransaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if canonical, ok := l.byClientID[rec.ClientTransactionID]; ok {
		return l.transactions[canonical], false, nil
	}
	if err := validateTransaction(rec, l.products); err != nil {
		return StoredTransaction{}, false, err
	}
	stored := StoredTransaction{
		CanonicalID: "txn_" + uuid.NewString(),
		Transaction: rec,
		RecordedAt:  l.clock().UTC(),
	}
	l.transactions[stored.CanonicalID] = stored
	l.byClientID[rec.ClientTransactionID] = stored.CanonicalID
	return stored, true, nil
}

// Transactions lists accepted sales oldest first.
func (l *Ledger) Transactions() []StoredTransaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]StoredTransaction, 0, len(l.transactions))
	for _, t := range l.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out
}

func (l *Ledger) PutCustomer(rec types.CustomerRecord) error {
	if rec.ID == "" || rec.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id and name are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.customers[rec.ID] = rec
	return nil
}

// DeleteCustomer reports false when the customer is unknown.
func (l *Ledger) DeleteCustomer(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.customers[id]; !ok {
		return false
	}
	delete(l.customers, id)
	return true
}

func (l *Ledger) PutProduct(rec types.ProductRecord) error {
	if rec.ID == "" || rec.Name == "" || rec.SKU == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id, sku and name are required")
	}
	if rec.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "product price must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products[rec.ID] = rec
	return nil
}

func (l *Ledger) DeleteProduct(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.products[id]; !ok {
		return false
	}
	delete(l.products, id)
	return true
}

func (l *Ledger) Customers() []types.CustomerRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.CustomerRecord, 0, len(l.customers))
	for _, c := range l.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) Products() []types.ProductRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.ProductRecord, 0, len(l.products))
	for _, p := range l.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func validateTransaction(rec types.TransactionRecord, catalog map[string]types.ProductRecord) error {
	var problems []string
	if _, err := uuid.Parse(rec.ClientTransactionID); err != nil {
		problems = append(problems, "client_transaction_id must be a uuid")
	}
	if len(rec.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	if len(catalog) > 0 {
		for _, item := range rec.Items {
			if _, ok := catalog[item.ProductID]; !ok {
				problems = append(problems, fmt.Sprintf("unknown product %q", item.ProductID))
			}
		}
	}
	expected := rec.Subtotal.Add(rec.TaxTotal).Sub(rec.DiscountTotal)
	if !expected.Equal(rec.Total) {
		problems = append(problems, fmt.Sprintf("total %s does not equal subtotal + tax - discount (%s)", rec.Total.StringFixed(2), expected.StringFixed(2)))
	}
	if types.SumPayments(rec.Payments).LessThan(rec.Total) {
		problems = append(problems, "payments do not cover the total")
	}
	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction rejected").WithDetails(map[string]any{"problems": problems})
	}
	return nil
}
