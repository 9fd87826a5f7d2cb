package localstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/db"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/migrate"
)

// Store is the terminal's durable, versioned local database.
type Store struct {
	client  *db.Client
	logg    *logger.Logger
	version int64
}

// Open opens or creates the store at cfg.Path and upgrades it to the schema
// version compiled into this binary. Any failure is StorageUnavailable.
func Open(ctx context.Context, cfg config.StoreConfig, logg *logger.Logger) (*Store, error) {
	if logg == nil {
		logg = logger.Nop()
	}

	client, err := db.New(ctx, cfg, logg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "open local store")
	}

	sqlDB, err := client.SQL()
	if err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "open local store")
	}

	version, err := migrate.Upgrade(ctx, sqlDB, logg)
	if err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "upgrade local store schema")
	}

	return &Store{client: client, logg: logg, version: version}, nil
}

// SchemaVersion reports the schema version the store was opened at.
func (s *Store) SchemaVersion() int64 {
	return s.version
}

// DB exposes the GORM handle for repositories that need custom queries.
func (s *Store) DB() *gorm.DB {
	return s.client.DB()
}

// Ping satisfies health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return classify(err, "ping local store")
	}
	return nil
}

// Close releases the underlying file handles.
func (s *Store) Close() error {
	return s.client.Close()
}

// WithTx runs fn in a single SQLite transaction. Writes made through
// collections bound with WithTx(tx) commit or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := s.client.WithTx(ctx, fn); err != nil {
		return classify(err, "local store transaction")
	}
	return nil
}

func (s *Store) Products() *Collection[models.CatalogProduct] {
	return NewCollection[models.CatalogProduct](s.DB(), "products", "id", "sku", "barcode", "name")
}

func (s *Store) Customers() *Collection[models.Customer] {
	return NewCollection[models.Customer](s.DB(), "customers", "id", "phone", "name", "email")
}

func (s *Store) Transactions() *Collection[models.PendingTransaction] {
	return NewCollection[models.PendingTransaction](s.DB(), "pending_transactions", "id", "status", "session_id", "customer_id")
}

func (s *Store) HeldCarts() *Collection[models.HeldCart] {
	return NewCollection[models.HeldCart](s.DB(), "held_carts", "session_id", "state")
}

// classify maps driver failures onto the error taxonomy. Already typed
// errors pass through untouched.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if pkgerrors.IsStorageFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, op)
	}
	if db.IsUniqueViolation(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("%s failed", op))
}
