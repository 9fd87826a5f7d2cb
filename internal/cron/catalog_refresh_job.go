package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/offline-pos/internal/catalog"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

type catalogRefresher interface {
	Refresh(ctx context.Context) (catalog.RefreshResult, error)
}

type onlineChecker interface {
	Online() bool
}

type CatalogRefreshJobParams struct {
	Logger       *logger.Logger
	Catalog      catalogRefresher
	Connectivity onlineChecker
}

// NewCatalogRefreshJob pulls products and customers from the ledger while the
// terminal is online.
func NewCatalogRefreshJob(params CatalogRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Connectivity == nil {
		return nil, fmt.Errorf("connectivity required")
	}
	return &catalogRefreshJob{
		logg:         params.Logger,
		catalog:      params.Catalog,
		connectivity: params.Connectivity,
	}, nil
}

type catalogRefreshJob struct {
	logg         *logger.Logger
	catalog      catalogRefresher
	connectivity onlineChecker
}

func (j *catalogRefreshJob) Name() string { return "catalog-refresh" }

func (j *catalogRefreshJob) Run(ctx context.Context) (int64, error) {
	if !j.connectivity.Online() {
		j.logg.Debug(ctx, "offline; catalog refresh skipped")
		return 0, nil
	}
	res, err := j.catalog.Refresh(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog refresh: %w", err)
	}
	return int64(res.Products + res.Customers), nil
}
