package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	pkgcheckout "github.com/angelmondragon/offline-pos/pkg/checkout"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

type enqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, m syncqueue.Mutation) (*models.SyncEnvelope, error)
}

// Receipt is what the till shows once a sale is finalized.
type Receipt struct {
	Transaction types.TransactionRecord `json:"transaction"`
	ChangeDue   decimal.Decimal         `json:"change_due"`
	Status      enums.TransactionStatus `json:"status"`
	// Queued is true when the sale waits in the sync queue.
	Queued      bool   `json:"queued"`
	CanonicalID string `json:"canonical_id,omitempty"`
}

// Finalizer turns a cart into a recorded sale.
type Finalizer interface {
	Finalize(ctx context.Context, c cart.Cart, payments []types.Payment) (*Receipt, error)
}

// Service finalizes sales against the local store. Nothing reaches the
// ledger here; the sync engine drains the queued envelope later.
type Service struct {
	store      *localstore.Store
	queue      enqueuer
	drafts     cart.DraftRepository
	terminalID string
	logg       *logger.Logger
	clock      func() time.Time
}

// NewService wires offline-first checkout.
func NewService(store *localstore.Store, queue enqueuer, drafts cart.DraftRepository, terminalID string, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("local store required")
	}
	if queue == nil {
		return nil, fmt.Errorf("sync queue required")
	}
	if drafts == nil {
		return nil, fmt.Errorf("draft repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		store:      store,
		queue:      queue,
		drafts:     drafts,
		terminalID: terminalID,
		logg:       logg,
		clock:      time.Now,
	}, nil
}

// Finalize validates tenders, then inserts the pending transaction, queues
// it for the ledger and drops the cart draft in one local transaction.
func (s *Service) Finalize(ctx context.Context, c cart.Cart, payments []types.Payment) (*Receipt, error) {
	rec, change, err := buildRecord(c, payments, s.terminalID, s.clock())
	if err != nil {
		return nil, err
	}

	row := pendingRow(rec, change)
	err = s.store.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.store.Transactions().WithTx(tx).Put(ctx, &row); err != nil {
			return err
		}
		if _, err := s.queue.Enqueue(ctx, tx, syncqueue.TransactionMutation{TransactionRecord: rec}); err != nil {
			return err
		}
		return s.drafts.Delete(ctx, tx, c.SessionID)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithTransactionID(ctx, rec.ClientTransactionID), map[string]any{
		"session_id": rec.SessionID,
		"total":      rec.Total.StringFixed(2),
		"items":      len(rec.Items),
	})
	s.logg.Info(logCtx, "sale finalized offline")

	return &Receipt{
		Transaction: rec,
		ChangeDue:   change,
		Status:      enums.TransactionStatusPending,
		Queued:      true,
	}, nil
}

// buildRecord freezes the cart into an immutable sale with a fresh id.
func buildRecord(c cart.Cart, payments []types.Payment, terminalID string, now time.Time) (types.TransactionRecord, decimal.Decimal, error) {
	if c.IsEmpty() {
		return types.TransactionRecord{}, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "cart has no items")
	}
	change, err := pkgcheckout.ValidatePayments(c.Total, payments)
	if err != nil {
		return types.TransactionRecord{}, decimal.Zero, err
	}

	snap := c.Snapshot()
	tendered := make([]types.Payment, len(payments))
	copy(tendered, payments)

	return types.TransactionRecord{
		ClientTransactionID: uuid.NewString(),
		SessionID:           c.SessionID,
		TerminalID:          terminalID,
		Items:               snap.Items,
		Payments:            tendered,
		Subtotal:            c.Subtotal,
		TaxTotal:            c.TaxTotal,
		DiscountTotal:       c.DiscountTotal,
		Total:               c.Total,
		CustomerID:          snap.CustomerID,
		CreatedAt:           now.UTC(),
	}, change, nil
}

func pendingRow(rec types.TransactionRecord, change decimal.Decimal) models.PendingTransaction {
	return models.PendingTransaction{
		ID:            uuid.MustParse(rec.ClientTransactionID),
		SessionID:     rec.SessionID,
		TerminalID:    rec.TerminalID,
		Items:         rec.Items,
		Subtotal:      rec.Subtotal,
		TaxTotal:      rec.TaxTotal,
		DiscountTotal: rec.DiscountTotal,
		Total:         rec.Total,
		Payments:      rec.Payments,
		ChangeDue:     change,
		CustomerID:    rec.CustomerID,
		Status:        enums.TransactionStatusPending,
		CreatedAt:     rec.CreatedAt,
	}
}
