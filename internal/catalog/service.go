package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

const searchLimit = 25

// Source is the ledger side of the catalog.
type Source interface {
	FetchProducts(ctx context.Context) ([]types.ProductRecord, error)
	FetchCustomers(ctx context.Context) ([]types.CustomerRecord, error)
}

type pendingQueue interface {
	Enqueue(ctx context.Context, tx *gorm.DB, m syncqueue.Mutation) (*models.SyncEnvelope, error)
	PendingAggregates(ctx context.Context, kind enums.MutationType) (map[string]struct{}, error)
}

// RefreshResult reports what a refresh wrote.
type RefreshResult struct {
	Products  int       `json:"products"`
	Customers int       `json:"customers"`
	Kept      int       `json:"kept_local"`
	SyncedAt  time.Time `json:"synced_at"`
}

// Service keeps the offline catalog snapshot and records local edits for
// reconciliation.
type Service struct {
	store  *localstore.Store
	queue  pendingQueue
	source Source
	logg   *logger.Logger
	clock  func() time.Time
}

func NewService(store *localstore.Store, queue pendingQueue, source Source, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("local store is required")
	}
	if queue == nil {
		return nil, errors.New("sync queue is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{store: store, queue: queue, source: source, logg: logg, clock: time.Now}, nil
}

// Refresh replaces the local snapshot with the ledger's. Rows with local
// edits still waiting in the sync queue keep their local version.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	if s.source == nil {
		return RefreshResult{}, pkgerrors.New(pkgerrors.CodeDependency, "catalog source is not configured")
	}
	products, err := s.source.FetchProducts(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	customers, err := s.source.FetchCustomers(ctx)
	if err != nil {
		return RefreshResult{}, err
	}

	pendingProducts, err := s.queue.PendingAggregates(ctx, enums.MutationProduct)
	if err != nil {
		return RefreshResult{}, err
	}
	pendingCustomers, err := s.queue.PendingAggregates(ctx, enums.MutationCustomer)
	if err != nil {
		return RefreshResult{}, err
	}

	now := s.clock().UTC()
	res := RefreshResult{SyncedAt: now}
	err = s.store.WithTx(ctx, func(tx *gorm.DB) error {
		productRows, kept, err := mergeProducts(ctx, s.store.Products().WithTx(tx), products, pendingProducts, now)
		if err != nil {
			return err
		}
		res.Kept += kept
		customerRows, kept, err := mergeCustomers(ctx, s.store.Customers().WithTx(tx), customers, pendingCustomers, now)
		if err != nil {
			return err
		}
		res.Kept += kept

		if err := s.store.Products().WithTx(tx).ReplaceAll(ctx, productRows); err != nil {
			return err
		}
		if err := s.store.Customers().WithTx(tx).ReplaceAll(ctx, customerRows); err != nil {
			return err
		}
		res.Products = len(productRows)
		res.Customers = len(customerRows)

		stamp := now.Format(time.RFC3339Nano)
		if err := localstore.PutSettingTx(ctx, tx, localstore.SettingProductsSyncedAt, stamp); err != nil {
			return err
		}
		return localstore.PutSettingTx(ctx, tx, localstore.SettingCustomersSyncedAt, stamp)
	})
	if err != nil {
		return RefreshResult{}, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"products":   res.Products,
		"customers":  res.Customers,
		"kept_local": res.Kept,
	}), "catalog refreshed")
	return res, nil
}

// LastRefreshed is the zero time when the catalog was never refreshed.
func (s *Service) LastRefreshed(ctx context.Context) (time.Time, error) {
	return s.store.GetTimeSetting(ctx, localstore.SettingProductsSyncedAt)
}

func mergeProducts(ctx context.Context, local *localstore.Collection[models.CatalogProduct], remote []types.ProductRecord, pending map[string]struct{}, now time.Time) ([]models.CatalogProduct, int, error) {
	out := make([]models.CatalogProduct, 0, len(remote)+len(pending))
	seen := map[string]struct{}{}
	for _, rec := range remote {
		if _, ok := pending[rec.ID]; ok {
			continue
		}
		out = append(out, productRow(rec, now))
		seen[rec.ID] = struct{}{}
	}
	kept := 0
	for id := range pending {
		row, err := local.Get(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if row == nil {
			continue
		}
		if _, dup := seen[id]; !dup {
			out = append(out, *row)
			kept++
		}
	}
	return out, kept, nil
}

func mergeCustomers(ctx context.Context, local *localstore.Collection[models.Customer], remote []types.CustomerRecord, pending map[string]struct{}, now time.Time) ([]models.Customer, int, error) {
	out := make([]models.Customer, 0, len(remote)+len(pending))
	for _, rec := range remote {
		if _, ok := pending[rec.ID]; ok {
			continue
		}
		out = append(out, customerRow(rec, now))
	}
	kept := 0
	for id := range pending {
		row, err := local.Get(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if row == nil {
			continue
		}
		out = append(out, *row)
		kept++
	}
	return out, kept, nil
}

// ProductByBarcode returns nil when no active product carries code.
func (s *Service) ProductByBarcode(ctx context.Context, code string) (*models.CatalogProduct, error) {
	return s.firstActive(ctx, "barcode", strings.TrimSpace(code))
}

func (s *Service) ProductBySKU(ctx context.Context, sku string) (*models.CatalogProduct, error) {
	return s.firstActive(ctx, "sku", strings.TrimSpace(sku))
}

func (s *Service) Product(ctx context.Context, id string) (*models.CatalogProduct, error) {
	return s.store.Products().Get(ctx, id)
}

func (s *Service) firstActive(ctx context.Context, index, value string) (*models.CatalogProduct, error) {
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, index+" is required")
	}
	rows, err := s.store.Products().GetByIndex(ctx, index, value)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].IsActive {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// SearchProducts matches active products by name or sku prefix.
func (s *Service) SearchProducts(ctx context.Context, term string) ([]models.CatalogProduct, error) {
	term = strings.TrimSpace(term)
	out := []models.CatalogProduct{}
	if term == "" {
		return out, nil
	}
	like := "%" + escapeLike(strings.ToLower(term)) + "%"
	err := s.store.DB().WithContext(ctx).
		Where("is_active = ?", true).
		Where("LOWER(name) LIKE ? ESCAPE '\\' OR sku LIKE ? ESCAPE '\\'", like, escapeLike(term)+"%").
		Order("name ASC").
		Limit(searchLimit).
		Find(&out).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "search products")
	}
	return out, nil
}

func (s *Service) CustomerByPhone(ctx context.Context, phone string) ([]models.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	return s.store.Customers().GetByIndex(ctx, "phone", phone)
}

func (s *Service) SearchCustomers(ctx context.Context, term string) ([]models.Customer, error) {
	term = strings.TrimSpace(term)
	out := []models.Customer{}
	if term == "" {
		return out, nil
	}
	like := "%" + escapeLike(strings.ToLower(term)) + "%"
	err := s.store.DB().WithContext(ctx).
		Where("LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\' OR phone LIKE ? ESCAPE '\\'", like, like, like).
		Order("name ASC").
		Limit(searchLimit).
		Find(&out).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "search customers")
	}
	return out, nil
}

// CustomerInput is a customer created or edited at the till.
type CustomerInput struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

// SaveCustomer writes the customer locally and queues it for the ledger in
// one transaction. An empty id creates a new customer.
func (s *Service) SaveCustomer(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	action := enums.ActionUpdate
	if in.ID == "" {
		in.ID = uuid.NewString()
		action = enums.ActionCreate
	}
	row := models.Customer{
		ID:        in.ID,
		Name:      strings.TrimSpace(in.Name),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		UpdatedAt: s.clock().UTC(),
	}
	err := s.store.WithTx(ctx, func(tx *gorm.DB) error {
		if action == enums.ActionUpdate {
			existing, err := s.store.Customers().WithTx(tx).Get(ctx, in.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
			}
		}
		if err := s.store.Customers().WithTx(tx).Put(ctx, &row); err != nil {
			return err
		}
		_, err := s.queue.Enqueue(ctx, tx, syncqueue.CustomerMutation{Op: action, Customer: customerRecord(row)})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteCustomer removes the customer locally and queues the delete.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.store.Customers().WithTx(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		if err := s.store.Customers().WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		_, err = s.queue.Enqueue(ctx, tx, syncqueue.CustomerMutation{Op: enums.ActionDelete, Customer: customerRecord(*existing)})
		return err
	})
}

// ProductInput is a price or catalog edit made at the till.
type ProductInput struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku" validate:"required,max=64"`
	Barcode  string          `json:"barcode" validate:"omitempty,max=64"`
	Name     string          `json:"name" validate:"required,max=200"`
	Category string          `json:"category" validate:"omitempty,max=100"`
	Price    decimal.Decimal `json:"price"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	IsActive bool            `json:"is_active"`
}

func (s *Service) SaveProduct(ctx context.Context, in ProductInput) (*models.CatalogProduct, error) {
	if strings.TrimSpace(in.SKU) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product sku and name are required")
	}
	if in.Price.IsNegative() || in.TaxRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price and tax rate must not be negative")
	}
	action := enums.ActionUpdate
	if in.ID == "" {
		in.ID = uuid.NewString()
		action = enums.ActionCreate
	}
	row := models.CatalogProduct{
		ID:        in.ID,
		SKU:       strings.TrimSpace(in.SKU),
		Barcode:   strings.TrimSpace(in.Barcode),
		Name:      strings.TrimSpace(in.Name),
		Category:  strings.TrimSpace(in.Category),
		Price:     in.Price.Round(2),
		TaxRate:   in.TaxRate,
		IsActive:  in.IsActive,
		UpdatedAt: s.clock().UTC(),
	}
	err := s.store.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.store.Products().WithTx(tx).Put(ctx, &row); err != nil {
			return err
		}
		_, err := s.queue.Enqueue(ctx, tx, syncqueue.ProductMutation{Op: action, Product: productRecord(row)})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func productRow(rec types.ProductRecord, now time.Time) models.CatalogProduct {
	return models.CatalogProduct{
		ID:        rec.ID,
		SKU:       rec.SKU,
		Barcode:   rec.Barcode,
		Name:      rec.Name,
		Category:  rec.Category,
		Price:     rec.Price,
		TaxRate:   rec.TaxRate,
		IsActive:  rec.IsActive,
		UpdatedAt: now,
	}
}

func productRecord(row models.CatalogProduct) types.ProductRecord {
	return types.ProductRecord{
		ID:       row.ID,
		SKU:      row.SKU,
		Barcode:  row.Barcode,
		Name:     row.Name,
		Category: row.Category,
		Price:    row.Price,
		TaxRate:  row.TaxRate,
		IsActive: row.IsActive,
	}
}

func customerRow(rec types.CustomerRecord, now time.Time) models.Customer {
	return models.Customer{ID: rec.ID, Name: rec.Name, Phone: rec.Phone, Email: rec.Email, UpdatedAt: now}
}

func customerRecord(row models.Customer) types.CustomerRecord {
	return types.CustomerRecord{ID: row.ID, Name: row.Name, Phone: row.Phone, Email: row.Email}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
