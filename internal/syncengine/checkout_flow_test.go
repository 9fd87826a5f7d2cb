package syncengine

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/internal/checkout"
	"github.com/angelmondragon/offline-pos/internal/ledgersim"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

type till struct {
	register *cart.Register
	service  *checkout.Service
}

func newTill(t *testing.T, h *harness) *till {
	t.Helper()
	drafts := cart.NewDraftRepository(h.store)
	register, err := cart.NewRegister(drafts, h.store, nil)
	require.NoError(t, err)
	_, err = register.Restore(context.Background())
	require.NoError(t, err)
	service, err := checkout.NewService(h.store, h.queue, drafts, "till-1", nil)
	require.NoError(t, err)
	return &till{register: register, service: service}
}

func (tl *till) ring(t *testing.T, items ...cart.ItemInput) *checkout.Receipt {
	t.Helper()
	ctx := context.Background()
	for _, in := range items {
		_, err := tl.register.AddItem(ctx, in)
		require.NoError(t, err)
	}
	total := tl.register.Current().Total
	receipt, _, err := checkout.Checkout(ctx, tl.register, tl.service, []types.Payment{{Method: enums.PaymentMethodCash, Amount: total}})
	require.NoError(t, err)
	return receipt
}

var (
	tenRate = decimal.RequireFromString("0.10")
	notepad = cart.ItemInput{ProductID: "p-notepad", SKU: "NTP", Name: "Notepad", Quantity: 1,
		UnitPrice: decimal.RequireFromString("10.00"), TaxRate: tenRate}
	pens = cart.ItemInput{ProductID: "p-pen", SKU: "PEN", Name: "Pen", Quantity: 2,
		UnitPrice: decimal.RequireFromString("5.00"), TaxRate: tenRate}
)

func stationery() []types.ProductRecord {
	return []types.ProductRecord{
		{ID: "p-notepad", SKU: "NTP", Name: "Notepad", Price: decimal.RequireFromString("10.00"), TaxRate: tenRate, IsActive: true},
		{ID: "p-pen", SKU: "PEN", Name: "Pen", Price: decimal.RequireFromString("5.00"), TaxRate: tenRate, IsActive: true},
	}
}

func TestCheckoutOfflineThenReconnectSyncs(t *testing.T) {
	h, _, book := newSimHarness(t)
	book.Seed(stationery(), nil)
	tl := newTill(t, h)
	ctx := context.Background()

	h.online.Store(false)
	receipt := tl.ring(t, notepad, pens)
	rec := receipt.Transaction
	assert.Equal(t, "20.00", rec.Subtotal.StringFixed(2))
	assert.Equal(t, "2.00", rec.TaxTotal.StringFixed(2))
	assert.Equal(t, "22.00", rec.Total.StringFixed(2))
	assert.Equal(t, enums.TransactionStatusPending, receipt.Status)
	assert.True(t, receipt.Queued)

	counts, err := h.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Queued)
	env := h.envelope(t, rec.ClientTransactionID)
	require.NotNil(t, env)
	assert.Equal(t, enums.MutationTransaction, env.Type)
	assert.Equal(t, enums.ActionCreate, env.Action)

	res, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Empty(t, book.Transactions())

	h.online.Store(true)
	res, err = h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	stored := book.Transactions()
	require.Len(t, stored, 1)
	assert.Equal(t, "22.00", stored[0].Transaction.Total.StringFixed(2))
	row := h.transaction(t, rec.ClientTransactionID)
	assert.Equal(t, enums.TransactionStatusSynced, row.Status)
	require.NotNil(t, row.CanonicalID)
	assert.Equal(t, stored[0].CanonicalID, *row.CanonicalID)
	assert.Nil(t, h.envelope(t, rec.ClientTransactionID))
}

func TestCheckoutTimedOutSubmissionIsRecordedOnce(t *testing.T) {
	h, sim, book := newSimHarness(t, func(p *Params) { p.Config.SubmitTimeout = 100 * time.Millisecond })
	tl := newTill(t, h)
	ctx := context.Background()

	receipt := tl.ring(t, notepad)
	rec := receipt.Transaction
	sim.InjectFault(ledgersim.Fault{Status: http.StatusGatewayTimeout, AfterCommit: true, Delay: 500 * time.Millisecond})

	res, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried, "a timed out submission is retried")
	require.Len(t, book.Transactions(), 1, "the ledger committed before the terminal gave up")

	env := h.envelope(t, rec.ClientTransactionID)
	require.NotNil(t, env)
	assert.Equal(t, enums.EnvelopeStateQueued, env.State)
	assert.Equal(t, 1, env.Attempts)
	assert.Equal(t, enums.TransactionStatusPending, h.transaction(t, rec.ClientTransactionID).Status)

	h.offset = time.Minute
	h.engine.cfg.SubmitTimeout = time.Second
	res, err = h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	stored := book.Transactions()
	require.Len(t, stored, 1, "exactly one canonical sale")
	row := h.transaction(t, rec.ClientTransactionID)
	assert.Equal(t, enums.TransactionStatusSynced, row.Status)
	require.NotNil(t, row.CanonicalID)
	assert.Equal(t, stored[0].CanonicalID, *row.CanonicalID)
	assert.Equal(t, 2, row.SyncAttempts)
}

func TestCheckoutForUnknownProductFailsWithoutRetry(t *testing.T) {
	h, _, book := newSimHarness(t)
	book.Seed(stationery()[1:], nil)
	tl := newTill(t, h)
	ctx := context.Background()

	receipt := tl.ring(t, notepad)
	rec := receipt.Transaction

	res, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	env := h.envelope(t, rec.ClientTransactionID)
	require.NotNil(t, env)
	assert.Equal(t, enums.EnvelopeStateFailed, env.State)
	assert.Equal(t, 1, env.Attempts)
	require.NotNil(t, env.LastError)
	assert.Contains(t, *env.LastError, "422")
	assert.Contains(t, *env.LastError, "unknown product")

	h.offset = time.Hour
	_, err = h.engine.Drain(ctx)
	require.NoError(t, err)
	env = h.envelope(t, rec.ClientTransactionID)
	require.NotNil(t, env)
	assert.Equal(t, 1, env.Attempts, "rejected sales are not resubmitted")
	assert.Equal(t, enums.TransactionStatusFailed, h.transaction(t, rec.ClientTransactionID).Status)
	assert.Empty(t, book.Transactions())
}
