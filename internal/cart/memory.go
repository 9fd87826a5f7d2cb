package cart

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
)

// MemoryDrafts keeps drafts in process memory. It backs the register when
// the local store cannot be opened; nothing survives a restart.
type MemoryDrafts struct {
	mu     sync.Mutex
	rows   map[string]models.HeldCart
	active string
}

func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{rows: map[string]models.HeldCart{}}
}

// WithTx runs fn without a database transaction.
func (m *MemoryDrafts) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (m *MemoryDrafts) Save(_ context.Context, _ *gorm.DB, c Cart, state enums.HeldCartState, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	row, ok := m.rows[c.SessionID]
	if !ok {
		row.CreatedAt = now
	}
	row.SessionID = c.SessionID
	row.State = state
	row.Note = note
	row.Snapshot = datatypes.NewJSONType(c.Snapshot())
	row.ItemCount = c.ItemCount()
	row.Total = c.Total
	row.UpdatedAt = now
	m.rows[c.SessionID] = row
	return nil
}

func (m *MemoryDrafts) Get(_ context.Context, sessionID string) (*models.HeldCart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[sessionID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *MemoryDrafts) ListHeld(context.Context) ([]models.HeldCart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.HeldCart{}
	for _, row := range m.rows {
		if row.State == enums.HeldCartStateHeld {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDrafts) Delete(_ context.Context, _ *gorm.DB, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, sessionID)
	return nil
}

func (m *MemoryDrafts) ActiveSession(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != "", nil
}

// SetActiveSession also drops the previous active draft, which the
// register has either committed or parked by the time it switches.
func (m *MemoryDrafts) SetActiveSession(_ context.Context, _ *gorm.DB, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.rows[m.active]; ok && m.active != sessionID && prev.State == enums.HeldCartStateActive {
		delete(m.rows, m.active)
	}
	m.active = sessionID
	return nil
}
