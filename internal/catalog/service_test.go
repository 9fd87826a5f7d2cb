package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

type fakeSource struct {
	products  []types.ProductRecord
	customers []types.CustomerRecord
	err       error
}

func (f *fakeSource) FetchProducts(context.Context) ([]types.ProductRecord, error) {
	return f.products, f.err
}

func (f *fakeSource) FetchCustomers(context.Context) ([]types.CustomerRecord, error) {
	return f.customers, f.err
}

type fixture struct {
	store  *localstore.Store
	queue  *syncqueue.Queue
	source *fakeSource
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := localstore.Open(context.Background(), config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "pos.db"),
		BusyTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, queue: syncqueue.New(store.DB(), nil, "till-1", nil), source: &fakeSource{}}
	f.svc, err = NewService(store, f.queue, f.source, nil)
	require.NoError(t, err)
	return f
}

func tea() types.ProductRecord {
	return types.ProductRecord{ID: "p-tea", SKU: "TEA-01", Barcode: "0001", Name: "Green Tea",
		Price: decimal.RequireFromString("2.50"), TaxRate: decimal.RequireFromString("0.08"), IsActive: true}
}

func TestRefreshReplacesSnapshotAndStampsCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	retired := tea()
	retired.ID, retired.SKU, retired.Barcode, retired.IsActive = "p-old", "OLD", "0009", false

	f.source.products = []types.ProductRecord{tea(), retired}
	f.source.customers = []types.CustomerRecord{{ID: "c-1", Name: "Ada", Phone: "555-0100"}}

	res, err := f.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Products)
	assert.Equal(t, 1, res.Customers)

	last, err := f.svc.LastRefreshed(ctx)
	require.NoError(t, err)
	assert.False(t, last.IsZero())

	p, err := f.svc.ProductByBarcode(ctx, "0001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "p-tea", p.ID)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("2.50")))

	inactive, err := f.svc.ProductByBarcode(ctx, "0009")
	require.NoError(t, err)
	assert.Nil(t, inactive, "inactive products are not sellable")

	f.source.products = []types.ProductRecord{tea()}
	_, err = f.svc.Refresh(ctx)
	require.NoError(t, err)
	gone, err := f.svc.Product(ctx, "p-old")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRefreshKeepsUnsyncedLocalEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local, err := f.svc.SaveCustomer(ctx, CustomerInput{Name: "Grace", Phone: "555-0199"})
	require.NoError(t, err)

	f.source.customers = []types.CustomerRecord{{ID: "c-1", Name: "Ada"}}
	res, err := f.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Customers)
	assert.Equal(t, 1, res.Kept)

	found, err := f.svc.CustomerByPhone(ctx, "555-0199")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, local.ID, found[0].ID)
}

func TestRefreshFailureLeavesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.source.products = []types.ProductRecord{tea()}
	_, err := f.svc.Refresh(ctx)
	require.NoError(t, err)

	f.source.err = pkgerrors.New(pkgerrors.CodeTransientNetwork, "ledger down")
	_, err = f.svc.Refresh(ctx)
	require.Error(t, err)

	p, err := f.svc.ProductBySKU(ctx, "TEA-01")
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestRefreshWithoutSource(t *testing.T) {
	f := newFixture(t)
	svc, err := NewService(f.store, f.queue, nil, nil)
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestSearchProductsAndCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	black := tea()
	black.ID, black.SKU, black.Barcode, black.Name = "p-black", "TEA-02", "0002", "Black Tea"
	coffee := tea()
	coffee.ID, coffee.SKU, coffee.Barcode, coffee.Name = "p-cof", "COF-01", "0003", "Coffee 100%"
	f.source.products = []types.ProductRecord{tea(), black, coffee}
	f.source.customers = []types.CustomerRecord{{ID: "c-1", Name: "Ada Lovelace", Email: "ada@example.com"}}
	_, err := f.svc.Refresh(ctx)
	require.NoError(t, err)

	teas, err := f.svc.SearchProducts(ctx, "tea")
	require.NoError(t, err)
	require.Len(t, teas, 2)
	assert.Equal(t, "Black Tea", teas[0].Name)

	bySKU, err := f.svc.SearchProducts(ctx, "COF")
	require.NoError(t, err)
	require.Len(t, bySKU, 1)

	literal, err := f.svc.SearchProducts(ctx, "100%")
	require.NoError(t, err)
	assert.Len(t, literal, 1)

	empty, err := f.svc.SearchProducts(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	people, err := f.svc.SearchCustomers(ctx, "LOVELACE")
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestSaveCustomerQueuesMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveCustomer(ctx, CustomerInput{Name: " "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	created, err := f.svc.SaveCustomer(ctx, CustomerInput{Name: "Ada"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	_, err = f.svc.SaveCustomer(ctx, CustomerInput{ID: created.ID, Name: "Ada L."})
	require.NoError(t, err)

	_, err = f.svc.SaveCustomer(ctx, CustomerInput{ID: "missing", Name: "Nobody"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.svc.DeleteCustomer(ctx, created.ID))
	err = f.svc.DeleteCustomer(ctx, created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	depth, err := f.queue.ChainDepth(ctx, syncqueue.CustomerChain(created.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth, "create, update and delete queue in order on one chain")

	ready, err := f.queue.Ready(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, enums.ActionCreate, ready[0].Action)
}

func TestSaveProductValidatesAndQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveProduct(ctx, ProductInput{SKU: "X", Name: "Bad", Price: decimal.NewFromInt(-1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	p, err := f.svc.SaveProduct(ctx, ProductInput{SKU: "SCN-1", Name: "Scone", Price: decimal.RequireFromString("3.499"), IsActive: true})
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("3.50")))

	pending, err := f.queue.PendingAggregates(ctx, enums.MutationProduct)
	require.NoError(t, err)
	assert.Contains(t, pending, p.ID)
}

func TestLookupsRejectBlankKeys(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProductByBarcode(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.CustomerByPhone(context.Background(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
