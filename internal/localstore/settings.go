package localstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/offline-pos/pkg/db/models"
)

// Setting keys owned by the terminal.
const (
	SettingProductsSyncedAt  = "catalog.products.synced_at"
	SettingCustomersSyncedAt = "catalog.customers.synced_at"
	SettingActiveSession     = "register.active_session"
	SettingLastDrainAt       = "sync.last_drain_at"
)

// GetSetting returns the stored value and whether the key exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return getSetting(ctx, s.DB(), key)
}

// PutSetting upserts key.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	return putSetting(ctx, s.DB(), key, value)
}

// PutSettingTx upserts key inside an outer transaction.
func PutSettingTx(ctx context.Context, tx *gorm.DB, key, value string) error {
	return putSetting(ctx, tx, key, value)
}

// GetTimeSetting parses an RFC3339 timestamp setting. A missing key returns
// the zero time.
func (s *Store) GetTimeSetting(ctx context.Context, key string) (time.Time, error) {
	raw, ok, err := s.GetSetting(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, classify(err, "parse setting "+key)
	}
	return parsed, nil
}

func (s *Store) PutTimeSetting(ctx context.Context, key string, value time.Time) error {
	return s.PutSetting(ctx, key, value.UTC().Format(time.RFC3339Nano))
}

func getSetting(ctx context.Context, conn *gorm.DB, key string) (string, bool, error) {
	var row models.Setting
	err := conn.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err, "get setting")
	}
	return row.Value, true, nil
}

func putSetting(ctx context.Context, conn *gorm.DB, key, value string) error {
	row := models.Setting{Key: key, Value: value}
	err := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return classify(err, "put setting")
	}
	return nil
}
