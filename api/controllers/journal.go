package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/offline-pos/api/responses"
	"github.com/angelmondragon/offline-pos/api/validators"
	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/pagination"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// Journal is the terminal's record of finalized sales.
type Journal interface {
	ListJournal(ctx context.Context, filter localstore.JournalFilter) (localstore.JournalPage, error)
	Transaction(ctx context.Context, id uuid.UUID) (*models.PendingTransaction, error)
}

type journalEntry struct {
	ID            uuid.UUID               `json:"id"`
	SessionID     string                  `json:"session_id"`
	Items         []types.LineItem        `json:"items"`
	Payments      []types.Payment         `json:"payments"`
	Subtotal      decimal.Decimal         `json:"subtotal"`
	TaxTotal      decimal.Decimal         `json:"tax_total"`
	DiscountTotal decimal.Decimal         `json:"discount_total"`
	Total         decimal.Decimal         `json:"total"`
	ChangeDue     decimal.Decimal         `json:"change_due"`
	CustomerID    *string                 `json:"customer_id,omitempty"`
	Status        enums.TransactionStatus `json:"status"`
	SyncAttempts  int                     `json:"sync_attempts"`
	LastSyncError *string                 `json:"last_sync_error,omitempty"`
	CanonicalID   *string                 `json:"canonical_id,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	SyncedAt      *time.Time              `json:"synced_at,omitempty"`
}

func newJournalEntry(t models.PendingTransaction) journalEntry {
	return journalEntry{
		ID:            t.ID,
		SessionID:     t.SessionID,
		Items:         t.Items,
		Payments:      t.Payments,
		Subtotal:      t.Subtotal,
		TaxTotal:      t.TaxTotal,
		DiscountTotal: t.DiscountTotal,
		Total:         t.Total,
		ChangeDue:     t.ChangeDue,
		CustomerID:    t.CustomerID,
		Status:        t.Status,
		SyncAttempts:  t.SyncAttempts,
		LastSyncError: t.LastSyncError,
		CanonicalID:   t.CanonicalID,
		CreatedAt:     t.CreatedAt,
		SyncedAt:      t.SyncedAt,
	}
}

type journalPageResponse struct {
	Transactions []journalEntry `json:"transactions"`
	NextCursor   string         `json:"next_cursor,omitempty"`
}

// JournalList pages through sales newest first. Query: status, limit, cursor.
func JournalList(journal Journal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if journal == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sales journal unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter := localstore.JournalFilter{
			Params: pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseTransactionStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}

		page, err := journal.ListJournal(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := journalPageResponse{Transactions: make([]journalEntry, 0, len(page.Transactions)), NextCursor: page.NextCursor}
		for _, t := range page.Transactions {
			out.Transactions = append(out.Transactions, newJournalEntry(t))
		}
		responses.WriteSuccess(w, out)
	}
}

// JournalGet returns one sale by its client transaction id.
func JournalGet(journal Journal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if journal == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sales journal unavailable"))
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction id"))
			return
		}
		t, err := journal.Transaction(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if t == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found"))
			return
		}
		responses.WriteSuccess(w, newJournalEntry(*t))
	}
}
