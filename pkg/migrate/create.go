package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- CREATE TABLE IF NOT EXISTS ... / CREATE INDEX IF NOT EXISTS ...
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- DROP INDEX / DROP TABLE for the objects created above
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty additive migration named
// <YYYYMMDDHHMMSS>_<slug>.sql into dir. SchemaVersion must be bumped by hand.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir string, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	newest, err := ValidateFS(os.DirFS(dir), ".")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	version := now.Format(versionLayout)
	if v, _ := strconv.ParseInt(version, 10, 64); v <= newest {
		return "", fmt.Errorf("migration version %s is not newer than existing %d", version, newest)
	}

	path := filepath.Join(dir, version+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	if _, err := f.WriteString(migrationTemplate); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write migration: %w", err)
	}
	return path, f.Close()
}
