package operator

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

	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/internal/syncengine"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

type fakeDrainer struct {
	triggers  int
	drains    int
	lastDrain time.Time
}

func (d *fakeDrainer) LastDrain(context.Context) (time.Time, error) { return d.lastDrain, nil }

func (d *fakeDrainer) Drain(context.Context) (syncengine.Result, error) {
	d.drains++
	return syncengine.Result{Succeeded: 1}, nil
}

func (d *fakeDrainer) Trigger() { d.triggers++ }

type online bool

func (o online) Online() bool { return bool(o) }

type fixture struct {
	store   *localstore.Store
	queue   *syncqueue.Queue
	drainer *fakeDrainer
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := localstore.Open(context.Background(), config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "pos.db"),
		BusyTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, queue: syncqueue.New(store.DB(), nil, "till-1", nil), drainer: &fakeDrainer{}}
	f.svc, err = NewService(f.queue, f.drainer, online(true), nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) enqueueCustomer(t *testing.T, id string) uuid.UUID {
	t.Helper()
	var envID uuid.UUID
	err := f.store.WithTx(context.Background(), func(tx *gorm.DB) error {
		env, err := f.queue.Enqueue(context.Background(), tx, syncqueue.CustomerMutation{
			Op:       enums.ActionUpdate,
			Customer: types.CustomerRecord{ID: id, Name: "Ada"},
		})
		if err != nil {
			return err
		}
		envID = env.ID
		return nil
	})
	require.NoError(t, err)
	return envID
}

func (f *fixture) enqueueSale(t *testing.T, customerID string) uuid.UUID {
	t.Helper()
	amount := decimal.RequireFromString("2.00")
	rec := types.TransactionRecord{
		ClientTransactionID: uuid.NewString(),
		SessionID:           "sess",
		Items:               []types.LineItem{{ProductID: "p-1", Quantity: 1, Total: amount}},
		Payments:            []types.Payment{{Method: enums.PaymentMethodCash, Amount: amount}},
		Subtotal:            amount,
		TaxTotal:            decimal.Zero,
		DiscountTotal:       decimal.Zero,
		Total:               amount,
		CustomerID:          &customerID,
	}
	err := f.store.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := f.queue.Enqueue(context.Background(), tx, syncqueue.TransactionMutation{TransactionRecord: rec})
		return err
	})
	require.NoError(t, err)
	return uuid.MustParse(rec.ClientTransactionID)
}

func TestNewServiceRequiresQueueAndDrainer(t *testing.T) {
	_, err := NewService(nil, &fakeDrainer{}, nil, nil)
	require.Error(t, err)
	_, err = NewService(&syncqueue.Queue{}, nil, nil, nil)
	require.Error(t, err)
}

func TestStatusAndFailedListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	head := f.enqueueCustomer(t, "c-1")
	f.enqueueSale(t, "c-1")
	f.enqueueCustomer(t, "c-1")
	f.enqueueCustomer(t, "c-2")
	require.NoError(t, f.queue.Fail(ctx, head, 8, "ledger rejected customer"))

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Online)
	assert.Equal(t, int64(3), status.Queued)
	assert.Equal(t, int64(1), status.Failed)
	assert.Equal(t, int64(3), status.Pending)
	assert.Nil(t, status.LastDrainAt)

	f.drainer.lastDrain = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	status, err = f.svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastDrainAt)
	assert.True(t, f.drainer.lastDrain.Equal(*status.LastDrainAt))

	failed, err := f.svc.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, head, failed[0].ID)
	assert.Equal(t, "customer:c-1", failed[0].ChainKey)
	assert.Equal(t, int64(2), failed[0].Blocked, "the later c-1 write and the sale")
	assert.Equal(t, "ledger rejected customer", failed[0].LastError)
}

func TestRetryRequiresActorAndTriggersDrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.enqueueCustomer(t, "c-1")
	require.NoError(t, f.queue.Fail(ctx, id, 8, "boom"))

	_, err := f.svc.Retry(ctx, id, " ", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	env, err := f.svc.Retry(ctx, id, "manager", "ledger fixed")
	require.NoError(t, err)
	assert.Equal(t, enums.EnvelopeStateQueued, env.State)
	assert.Equal(t, 1, f.drainer.triggers)

	history, err := f.svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "ledger fixed", history[0].Reason)
}

func TestCancelDoesNotDrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.enqueueCustomer(t, "c-1")
	require.NoError(t, f.queue.Fail(ctx, id, 8, "boom"))

	_, err := f.svc.Cancel(ctx, id, "manager", "duplicate customer")
	require.NoError(t, err)
	assert.Zero(t, f.drainer.triggers)

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Failed)
}

func TestDrainDelegates(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, f.drainer.drains)
}
