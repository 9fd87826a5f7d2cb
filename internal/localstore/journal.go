package localstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/pagination"
)

// JournalFilter narrows the sales journal. A zero Status lists every sale.
type JournalFilter struct {
	Status enums.TransactionStatus
	Params pagination.Params
}

// JournalPage is one page of sales, newest first.
type JournalPage struct {
	Transactions []models.PendingTransaction
	NextCursor   string
}

// ListJournal pages through finalized sales newest first using a
// (created_at, id) keyset cursor.
func (s *Store) ListJournal(ctx context.Context, filter JournalFilter) (JournalPage, error) {
	keyset, err := pagination.NewKeyset(filter.Params)
	if err != nil {
		return JournalPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	q := s.DB().WithContext(ctx).Model(&models.PendingTransaction{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var rows []models.PendingTransaction
	if err := q.Scopes(keyset.Scope).Find(&rows).Error; err != nil {
		return JournalPage{}, classify(err, "list journal")
	}

	var page JournalPage
	page.Transactions, page.NextCursor = pagination.Trim(keyset, rows, journalKey)
	return page, nil
}

func journalKey(row models.PendingTransaction) pagination.Cursor {
	return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
}

// Transaction returns one sale, or nil when the id is unknown.
func (s *Store) Transaction(ctx context.Context, id uuid.UUID) (*models.PendingTransaction, error) {
	return s.Transactions().Get(ctx, id)
}
