package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// ErrNewerSchema is returned when the database was written by a newer binary.
var ErrNewerSchema = errors.New("database schema is newer than this binary")

// Upgrade brings the database to SchemaVersion using the embedded
// migrations. Migrations only create missing tables and indexes, so running
// it against a partially upgraded file is safe.
func Upgrade(ctx context.Context, db *sql.DB, logg *logger.Logger) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("db is required")
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return 0, err
	}

	switch {
	case current == SchemaVersion:
		return current, nil
	case current > SchemaVersion:
		return current, fmt.Errorf("%w: on disk %d, supported %d", ErrNewerSchema, current, SchemaVersion)
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"from_version": current, "to_version": SchemaVersion})
		logg.Info(ctx, "upgrading local store schema")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := configure("")
	if err != nil {
		return current, err
	}
	if err := goose.UpToContext(ctx, db, dir, SchemaVersion); err != nil {
		return current, fmt.Errorf("goose up-to %d: %w", SchemaVersion, err)
	}

	if logg != nil {
		logg.Info(ctx, "local store schema upgraded")
	}
	return SchemaVersion, nil
}
