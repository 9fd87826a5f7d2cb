package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/pkg/logger"
)

const defaultHeldCartTTL = 7 * 24 * time.Hour

type HeldCartCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository heldCartRepo
	TTL        time.Duration
}

type heldCartRepo interface {
	DeleteHeldCartsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func NewHeldCartCleanupJob(params HeldCartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("held cart repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultHeldCartTTL
	}
	return &heldCartCleanupJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type heldCartCleanupJob struct {
	logg *logger.Logger
	db   txRunner
	repo heldCartRepo
	ttl  time.Duration
	now  func() time.Time
}

func (j *heldCartCleanupJob) Name() string { return "held-cart-cleanup" }

func (j *heldCartCleanupJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteHeldCartsBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("held cart cleanup: %w", err)
	}
	if deleted > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "rows_deleted": deleted})
		j.logg.Info(logCtx, "abandoned held carts removed")
	}
	return deleted, nil
}
