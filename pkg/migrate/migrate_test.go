package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestEmbeddedMigrationsAreValidAndMatchSchemaVersion(t *testing.T) {
	newest, err := ValidateEmbedded()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, newest)
}

func TestUpgradeCreatesSchemaOnFreshDatabase(t *testing.T) {
	db := openTestDB(t)

	version, err := Upgrade(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	for _, table := range []string{"products", "customers", "pending_transactions", "sync_queue", "settings", "held_carts", "operator_actions", "sync_dependencies"} {
		assert.True(t, tableExists(t, db, table), "missing table %s", table)
	}

	again, err := Upgrade(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, again)
}

func TestUpgradeFromOlderVersionKeepsData(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, MigrateToVersion(ctx, db, "", "20260301000001"))
	assert.False(t, tableExists(t, db, "held_carts"))

	_, err := db.Exec(`INSERT INTO settings (key, value) VALUES ('catalog.products.synced_at', 'x')`)
	require.NoError(t, err)

	version, err := Upgrade(ctx, db, nil)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	assert.True(t, tableExists(t, db, "held_carts"))

	var value string
	require.NoError(t, db.QueryRow(`SELECT value FROM settings WHERE key = 'catalog.products.synced_at'`).Scan(&value))
	assert.Equal(t, "x", value)
}

func TestUpgradeRejectsNewerSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := Upgrade(ctx, db, nil)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO goose_db_version (version_id, is_applied) VALUES (?, 1)`, SchemaVersion+1)
	require.NoError(t, err)

	_, err = Upgrade(ctx, db, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNewerSchema))
}

func TestValidateFSRejectsDestructiveUp(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nDROP TABLE products;\n-- +goose Down\nSELECT 1;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260401000000_drop_products.sql"), []byte(body), 0o644))

	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not additive")
}

func TestValidateFSRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	require.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigrationWritesAdditiveTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "Add Loyalty Table", now)
	require.NoError(t, err)
	assert.Equal(t, "20260501093000_add_loyalty_table.sql", filepath.Base(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "-- +goose Up"))
	require.NoError(t, ValidateDir(dir))

	_, err = createSQLMigration(dir, "Add Loyalty Table", now)
	require.Error(t, err)

	_, err = createSQLMigration(dir, "older", now.Add(-time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not newer")

	_, err = createSQLMigration(dir, "!!!", now.Add(time.Hour))
	require.Error(t, err)
}
