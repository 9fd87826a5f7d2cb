package localstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
)

// DeleteSettledTransactionsBefore removes synced and canceled sales last
// touched before cutoff. Pending and failed sales are never purged.
func (s *Store) DeleteSettledTransactionsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := s.conn(tx).WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []enums.TransactionStatus{
			enums.TransactionStatusSynced,
			enums.TransactionStatusCanceled,
		}, cutoff.UTC()).
		Delete(&models.PendingTransaction{})
	if res.Error != nil {
		return 0, classify(res.Error, "purge settled transactions")
	}
	return res.RowsAffected, nil
}

// DeleteHeldCartsBefore removes parked carts nobody resumed. The working
// draft is left alone.
func (s *Store) DeleteHeldCartsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := s.conn(tx).WithContext(ctx).
		Where("state = ? AND updated_at < ?", enums.HeldCartStateHeld, cutoff.UTC()).
		Delete(&models.HeldCart{})
	if res.Error != nil {
		return 0, classify(res.Error, "purge held carts")
	}
	return res.RowsAffected, nil
}

func (s *Store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.DB()
}
