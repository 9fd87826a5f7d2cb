package syncqueue

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
)

// RetryNow returns a failed envelope to the queue with a fresh attempt
// budget. A sale behind it goes back to pending.
func (q *Queue) RetryNow(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error) {
	var out models.SyncEnvelope
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		env, err := q.failedEnvelope(ctx, tx, id)
		if err != nil {
			return err
		}

		now := q.now()
		res := tx.Model(&models.SyncEnvelope{}).
			Where("id = ? AND state = ?", id, enums.EnvelopeStateFailed).
			Updates(map[string]any{
				"state":           enums.EnvelopeStateQueued,
				"attempts":        0,
				"next_attempt_at": now,
				"last_error":      nil,
			})
		if res.Error != nil {
			return storageError(res.Error, "retry envelope")
		}

		if env.Type == enums.MutationTransaction {
			if err := setTransactionStatus(tx, env.AggregateID, enums.TransactionStatusPending, map[string]any{
				"sync_attempts":   0,
				"last_sync_error": nil,
			}); err != nil {
				return err
			}
		}

		if err := audit(tx, *env, enums.OperatorActionRetry, actor, reason); err != nil {
			return err
		}

		env.State = enums.EnvelopeStateQueued
		env.Attempts = 0
		env.NextAttemptAt = now
		env.LastError = nil
		out = *env
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.logg.Info(q.logg.WithFields(ctx, withActor(envelopeFields(out), actor)), "failed envelope requeued")
	return &out, nil
}

// Cancel abandons a failed envelope. A sale behind it becomes canceled; the
// rest of its chain and anything depending on it are unblocked.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a reason is required to cancel")
	}

	var out models.SyncEnvelope
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		env, err := q.failedEnvelope(ctx, tx, id)
		if err != nil {
			return err
		}

		res := tx.Where("id = ? AND state = ?", id, enums.EnvelopeStateFailed).Delete(&models.SyncEnvelope{})
		if res.Error != nil {
			return storageError(res.Error, "cancel envelope")
		}
		if err := dropEdges(ctx, tx, id); err != nil {
			return err
		}

		if env.Type == enums.MutationTransaction {
			if err := setTransactionStatus(tx, env.AggregateID, enums.TransactionStatusCanceled, nil); err != nil {
				return err
			}
		}

		if err := audit(tx, *env, enums.OperatorActionCancel, actor, reason); err != nil {
			return err
		}
		out = *env
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.logg.Warn(q.logg.WithFields(ctx, withActor(envelopeFields(out), actor)), "failed envelope canceled")
	return &out, nil
}

// Actions lists the audit trail for an envelope, oldest first.
func (q *Queue) Actions(ctx context.Context, envelopeID uuid.UUID) ([]models.OperatorAction, error) {
	rows := []models.OperatorAction{}
	err := q.db.WithContext(ctx).
		Where("envelope_id = ?", envelopeID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err, "list operator actions")
	}
	return rows, nil
}

func (q *Queue) failedEnvelope(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SyncEnvelope, error) {
	env, err := q.WithTx(tx).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, notFound(id)
	}
	if env.State != enums.EnvelopeStateFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("only failed envelopes can be changed; %s is %s", id, env.State))
	}
	return env, nil
}

func setTransactionStatus(tx *gorm.DB, transactionID string, status enums.TransactionStatus, extra map[string]any) error {
	updates := map[string]any{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	err := tx.Model(&models.PendingTransaction{}).
		Where("id = ?", transactionID).
		Updates(updates).Error
	if err != nil {
		return storageError(err, "update transaction status")
	}
	return nil
}

func audit(tx *gorm.DB, env models.SyncEnvelope, action enums.OperatorActionType, actor, reason string) error {
	if strings.TrimSpace(actor) == "" {
		actor = "unknown"
	}
	row := models.OperatorAction{
		ID:         uuid.New(),
		EnvelopeID: env.ID,
		Action:     action,
		Actor:      actor,
		Reason:     strings.TrimSpace(reason),
	}
	if env.Type == enums.MutationTransaction {
		if txID, err := uuid.Parse(env.AggregateID); err == nil {
			row.TransactionID = &txID
		}
	}
	if err := tx.Create(&row).Error; err != nil {
		return storageError(err, "audit operator action")
	}
	return nil
}

func withActor(fields map[string]any, actor string) map[string]any {
	fields["actor"] = actor
	return fields
}
