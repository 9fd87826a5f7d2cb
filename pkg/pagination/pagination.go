package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	// MaxLimit caps how many rows one page may return.
	MaxLimit = 100
)

// cursorLen is an 8 byte unix-nano timestamp followed by a 16 byte id.
const cursorLen = 8 + 16

var errCursorLength = errors.New("invalid cursor length")

// Params holds cursor pagination inputs read from a query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the (created_at, id) key of the last row on a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit applies DefaultLimit and MaxLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor renders cursor as an opaque, URL-safe token.
func EncodeCursor(cursor Cursor) string {
	var buf [cursorLen]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(cursor.CreatedAt.UnixNano()))
	copy(buf[8:], cursor.ID[:])
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// ParseCursor decodes a token from EncodeCursor. An empty token is the first
// page and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if len(raw) != cursorLen {
		return nil, errCursorLength
	}
	id, err := uuid.FromBytes(raw[8:])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{
		CreatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8]))).UTC(),
		ID:        id,
	}, nil
}

// Keyset pages rows newest first by (created_at, id). After is the last row
// already returned; the page starts strictly below it.
type Keyset struct {
	Limit int
	After *Cursor
}

func NewKeyset(p Params) (Keyset, error) {
	after, err := ParseCursor(p.Cursor)
	if err != nil {
		return Keyset{}, err
	}
	return Keyset{Limit: NormalizeLimit(p.Limit), After: after}, nil
}

// Scope orders q newest first and fetches one row past the page so Trim can
// tell whether another page follows.
func (k Keyset) Scope(q *gorm.DB) *gorm.DB {
	if k.After != nil {
		at := k.After.CreatedAt.UTC()
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", at, at, k.After.ID.String())
	}
	return q.Order("created_at DESC").Order("id DESC").Limit(NormalizeLimit(k.Limit) + 1)
}

// Trim cuts rows fetched through Scope down to one page and returns the
// cursor of the next page, or "" on the last one.
func Trim[T any](k Keyset, rows []T, key func(T) Cursor) ([]T, string) {
	limit := NormalizeLimit(k.Limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(key(rows[limit-1]))
}
