package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
}

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{
		CreatedAt: time.Date(2026, 5, 1, 12, 30, 0, 123, time.FixedZone("EST", -5*3600)),
		ID:        uuid.New(),
	}
	token := EncodeCursor(want)
	assert.NotContains(t, token, "=")
	assert.Len(t, token, 32)

	got, err := ParseCursor(token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "nanoseconds survive")
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorEdgeCases(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseCursor("%%%")
	assert.Error(t, err)

	token := EncodeCursor(Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	_, err = ParseCursor(token[:8])
	assert.ErrorIs(t, err, errCursorLength)
}

type row struct {
	at time.Time
	id uuid.UUID
}

func rowKey(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

func TestTrimKeepsOnePageAndPointsPastIt(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := []row{
		{at: base.Add(2 * time.Minute), id: uuid.New()},
		{at: base.Add(time.Minute), id: uuid.New()},
		{at: base, id: uuid.New()},
	}

	keyset, err := NewKeyset(Params{Limit: 2})
	require.NoError(t, err)
	assert.Nil(t, keyset.After)

	page, next := Trim(keyset, rows, rowKey)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)

	keyset, err = NewKeyset(Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.NotNil(t, keyset.After)
	assert.True(t, rows[1].at.Equal(keyset.After.CreatedAt))
	assert.Equal(t, rows[1].id, keyset.After.ID)

	page, next = Trim(keyset, rows[2:], rowKey)
	assert.Len(t, page, 1)
	assert.Empty(t, next, "last page")
}

func TestNewKeysetRejectsBadCursor(t *testing.T) {
	_, err := NewKeyset(Params{Cursor: "not a cursor"})
	assert.Error(t, err)
}
