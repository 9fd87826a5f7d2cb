package checkout

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/internal/ledger"
	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

type harness struct {
	store    *localstore.Store
	queue    *syncqueue.Queue
	drafts   cart.DraftRepository
	register *cart.Register
	service  *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := localstore.Open(context.Background(), config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "pos.db"),
		BusyTimeout: time.Second,
		WAL:         true,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{store: store, drafts: cart.NewDraftRepository(store)}
	h.queue = syncqueue.New(store.DB(), nil, "till-1", nil)
	h.register, err = cart.NewRegister(h.drafts, store, nil)
	require.NoError(t, err)
	_, err = h.register.Restore(context.Background())
	require.NoError(t, err)

	h.service, err = NewService(store, h.queue, h.drafts, "till-1", nil)
	require.NoError(t, err)
	return h
}

func coffee(qty int) cart.ItemInput {
	return cart.ItemInput{ProductID: "p-coffee", SKU: "COF", Name: "Coffee", Quantity: qty,
		UnitPrice: decimal.RequireFromString("3.25"), TaxRate: decimal.RequireFromString("0.08")}
}

func cash(amount string) types.Payment {
	return types.Payment{Method: enums.PaymentMethodCash, Amount: decimal.RequireFromString(amount)}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, "", nil)
	require.Error(t, err)
}

func TestCheckoutPersistsSaleAndQueuesIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := "c-9"
	_, err := h.register.AddItem(ctx, coffee(2))
	require.NoError(t, err)
	_, err = h.register.SetCustomer(ctx, &customer)
	require.NoError(t, err)
	before := h.register.Current()
	require.True(t, before.Total.Equal(decimal.RequireFromString("7.02")))

	receipt, next, err := Checkout(ctx, h.register, h.service, []types.Payment{cash("10.00")})
	require.NoError(t, err)

	assert.True(t, receipt.Queued)
	assert.Equal(t, enums.TransactionStatusPending, receipt.Status)
	assert.True(t, receipt.ChangeDue.Equal(decimal.RequireFromString("2.98")))
	assert.Equal(t, before.SessionID, receipt.Transaction.SessionID)
	assert.NotEqual(t, before.SessionID, next.SessionID)
	assert.True(t, next.IsEmpty())

	txID := receipt.Transaction.ClientTransactionID
	row, err := h.store.Transactions().Get(ctx, txID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.TransactionStatusPending, row.Status)
	assert.Zero(t, row.SyncAttempts)
	assert.Equal(t, "till-1", row.TerminalID)
	assert.True(t, row.Total.Equal(row.Subtotal.Add(row.TaxTotal).Sub(row.DiscountTotal)))
	assert.True(t, row.ChangeDue.Equal(decimal.RequireFromString("2.98")))
	require.NotNil(t, row.CustomerID)
	assert.Equal(t, customer, *row.CustomerID)

	env, err := h.queue.Get(ctx, uuid.MustParse(txID))
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, enums.MutationTransaction, env.Type)
	assert.Equal(t, "transaction:"+txID, env.ChainKey)

	draft, err := h.drafts.Get(ctx, before.SessionID)
	require.NoError(t, err)
	assert.Nil(t, draft, "committed draft is removed")
}

func TestFinalizeRejectsWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := Checkout(ctx, h.register, h.service, []types.Payment{cash("1.00")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "empty cart")

	_, err = h.register.AddItem(ctx, coffee(1))
	require.NoError(t, err)
	session := h.register.Current().SessionID

	_, _, err = Checkout(ctx, h.register, h.service, []types.Payment{cash("3.00")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientPayment))

	_, _, err = Checkout(ctx, h.register, h.service, []types.Payment{cash("0")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, session, h.register.Current().SessionID, "cart kept for another attempt")
	assert.False(t, h.register.Current().IsEmpty())

	n, err := h.store.Transactions().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	counts, err := h.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Pending())
}

func TestFullyDiscountedCartChecksOutWithoutTender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.register.AddItem(ctx, coffee(1))
	require.NoError(t, err)
	_, err = h.register.ApplyDiscount(ctx, decimal.RequireFromString("100"))
	require.NoError(t, err)
	require.True(t, h.register.Current().Total.IsZero())

	receipt, _, err := Checkout(ctx, h.register, h.service, nil)
	require.NoError(t, err)
	assert.Empty(t, receipt.Transaction.Payments)
	assert.True(t, receipt.ChangeDue.IsZero())
	assert.Equal(t, enums.TransactionStatusPending, receipt.Status)

	row, err := h.store.Transactions().Get(ctx, receipt.Transaction.ClientTransactionID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.Total.IsZero())
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, *gorm.DB, syncqueue.Mutation) (*models.SyncEnvelope, error) {
	return nil, pkgerrors.New(pkgerrors.CodeStorageUnavailable, "disk full")
}

func TestFinalizeIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	svc, err := NewService(h.store, failingQueue{}, h.drafts, "till-1", nil)
	require.NoError(t, err)

	_, err = h.register.AddItem(ctx, coffee(1))
	require.NoError(t, err)
	session := h.register.Current().SessionID

	_, _, err = Checkout(ctx, h.register, svc, []types.Payment{cash("5.00")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorageUnavailable))

	n, err := h.store.Transactions().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "transaction insert rolled back")

	draft, err := h.drafts.Get(ctx, session)
	require.NoError(t, err)
	assert.NotNil(t, draft, "draft survives a failed finalize")
}

type fakeLedger struct {
	ledger.Client
	result *ledger.TransactionResult
	err    error
	got    types.TransactionRecord
}

func (f *fakeLedger) SubmitTransaction(_ context.Context, key string, rec types.TransactionRecord) (*ledger.TransactionResult, error) {
	f.got = rec
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ledger.TransactionResult{Outcome: ledger.OutcomeCreated, CanonicalID: "L-" + key, Record: rec}, nil
}

func memoryRegister(t *testing.T) *cart.Register {
	t.Helper()
	drafts := cart.NewMemoryDrafts()
	reg, err := cart.NewRegister(drafts, drafts, nil)
	require.NoError(t, err)
	_, err = reg.Restore(context.Background())
	require.NoError(t, err)
	_, err = reg.AddItem(context.Background(), coffee(1))
	require.NoError(t, err)
	return reg
}

func TestOnlineOnlySubmitsSynchronously(t *testing.T) {
	client := &fakeLedger{}
	online, err := NewOnlineOnly(client, WithTerminalID("till-2"), WithSubmitTimeout(time.Second))
	require.NoError(t, err)

	reg := memoryRegister(t)
	receipt, next, err := Checkout(context.Background(), reg, online, []types.Payment{cash("4.00")})
	require.NoError(t, err)

	assert.False(t, receipt.Queued)
	assert.Equal(t, enums.TransactionStatusSynced, receipt.Status)
	assert.Equal(t, "L-"+receipt.Transaction.ClientTransactionID, receipt.CanonicalID)
	assert.Equal(t, "till-2", client.got.TerminalID)
	assert.True(t, next.IsEmpty())
}

func TestOnlineOnlyFailures(t *testing.T) {
	_, err := NewOnlineOnly(nil)
	require.Error(t, err)

	unreachable := &fakeLedger{err: pkgerrors.New(pkgerrors.CodeTransientNetwork, "dial tcp")}
	online, err := NewOnlineOnly(unreachable)
	require.NoError(t, err)
	reg := memoryRegister(t)
	session := reg.Current().SessionID

	_, _, err = Checkout(context.Background(), reg, online, []types.Payment{cash("4.00")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, session, reg.Current().SessionID)

	rejected := &fakeLedger{err: pkgerrors.New(pkgerrors.CodeValidation, "422")}
	online, err = NewOnlineOnly(rejected)
	require.NoError(t, err)
	_, _, err = Checkout(context.Background(), reg, online, []types.Payment{cash("4.00")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	conflicting := &fakeLedger{result: &ledger.TransactionResult{
		Outcome:     ledger.OutcomeDuplicate,
		CanonicalID: "L-1",
		Record:      types.TransactionRecord{ClientTransactionID: "other"},
	}}
	online, err = NewOnlineOnly(conflicting)
	require.NoError(t, err)
	_, _, err = Checkout(context.Background(), reg, online, []types.Payment{cash("4.00")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateSubmission))
}

func TestCheckoutRequiresCollaborators(t *testing.T) {
	_, _, err := Checkout(context.Background(), nil, nil, nil)
	require.Error(t, err)
}
