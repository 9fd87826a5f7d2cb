package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/pkg/logger"
)

const defaultSyncedRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type SyncedRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository settledTransactionRepo
	Retention  time.Duration
}

type settledTransactionRepo interface {
	DeleteSettledTransactionsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewSyncedRetentionJob purges sales the ledger already owns.
func NewSyncedRetentionJob(params SyncedRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultSyncedRetention
	}
	return &syncedRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type syncedRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      settledTransactionRepo
	retention time.Duration
	now       func() time.Time
}

func (j *syncedRetentionJob) Name() string { return "synced-retention" }

func (j *syncedRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteSettledTransactionsBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("synced retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "synced transaction cleanup complete")
	return deleted, nil
}
