package localstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
)

const batchSize = 200

// Collection is a typed view over one table with a primary key and a fixed
// set of queryable secondary indexes.
type Collection[T any] struct {
	db      *gorm.DB
	name    string
	key     string
	indexes map[string]struct{}
}

func NewCollection[T any](conn *gorm.DB, name, key string, indexes ...string) *Collection[T] {
	set := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		set[idx] = struct{}{}
	}
	return &Collection[T]{db: conn, name: name, key: key, indexes: set}
}

// WithTx binds the collection to an outer transaction.
func (c *Collection[T]) WithTx(tx *gorm.DB) *Collection[T] {
	if tx == nil {
		return c
	}
	return &Collection[T]{db: tx, name: c.name, key: c.key, indexes: c.indexes}
}

func (c *Collection[T]) Name() string {
	return c.name
}

// Get returns nil, nil when no record has the key.
func (c *Collection[T]) Get(ctx context.Context, key any) (*T, error) {
	var out T
	err := c.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: c.key}, Value: key}).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, c.op("get"))
	}
	return &out, nil
}

// GetByIndex returns every record whose index column equals value, ordered
// by primary key. No match yields an empty slice.
func (c *Collection[T]) GetByIndex(ctx context.Context, index string, value any) ([]T, error) {
	if _, ok := c.indexes[index]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s has no index %q", c.name, index))
	}
	out := []T{}
	err := c.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: index}, Value: value}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: c.key}}).
		Find(&out).Error
	if err != nil {
		return nil, classify(err, c.op("get by index"))
	}
	return out, nil
}

// List returns all records ordered by primary key.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	out := []T{}
	err := c.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: c.key}}).
		Find(&out).Error
	if err != nil {
		return nil, classify(err, c.op("list"))
	}
	return out, nil
}

// Put inserts or fully replaces the record with the same primary key.
func (c *Collection[T]) Put(ctx context.Context, value *T) error {
	if value == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "value is required")
	}
	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error; err != nil {
		return classify(err, c.op("put"))
	}
	return nil
}

// PutMany upserts all values atomically.
func (c *Collection[T]) PutMany(ctx context.Context, values []T) error {
	if len(values) == 0 {
		return nil
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(values, batchSize).Error
	})
	if err != nil {
		return classify(err, c.op("put many"))
	}
	return nil
}

// ReplaceAll swaps the whole table contents in one transaction. Readers see
// either the old set or the new one.
func (c *Collection[T]) ReplaceAll(ctx context.Context, values []T) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(new(T)).Error; err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		return tx.CreateInBatches(values, batchSize).Error
	})
	if err != nil {
		return classify(err, c.op("replace all"))
	}
	return nil
}

// Delete removes the record with key. Deleting a missing key is not an error.
func (c *Collection[T]) Delete(ctx context.Context, key any) error {
	err := c.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: c.key}, Value: key}).
		Delete(new(T)).Error
	if err != nil {
		return classify(err, c.op("delete"))
	}
	return nil
}

func (c *Collection[T]) Clear(ctx context.Context) error {
	if err := c.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(new(T)).Error; err != nil {
		return classify(err, c.op("clear"))
	}
	return nil
}

func (c *Collection[T]) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(new(T)).Count(&count).Error; err != nil {
		return 0, classify(err, c.op("count"))
	}
	return count, nil
}

func (c *Collection[T]) op(verb string) string {
	return c.name + " " + verb
}
