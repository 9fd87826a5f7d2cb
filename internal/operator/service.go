package operator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/offline-pos/internal/syncengine"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// Queue is the part of the sync queue the operator surface drives.
type Queue interface {
	Counts(ctx context.Context) (syncqueue.Counts, error)
	ListFailed(ctx context.Context) ([]models.SyncEnvelope, error)
	ChainDepth(ctx context.Context, chainKey string) (int64, error)
	Dependents(ctx context.Context, id uuid.UUID) (int64, error)
	RetryNow(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error)
	Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error)
	Actions(ctx context.Context, envelopeID uuid.UUID) ([]models.OperatorAction, error)
}

// Drainer runs or schedules a sync drain.
type Drainer interface {
	Drain(ctx context.Context) (syncengine.Result, error)
	Trigger()
	LastDrain(ctx context.Context) (time.Time, error)
}

type Connectivity interface {
	Online() bool
}

// Status is the sync summary shown to staff.
type Status struct {
	Online      bool       `json:"online"`
	Pending     int64      `json:"pending"`
	Queued      int64      `json:"queued"`
	Attempting  int64      `json:"attempting"`
	Failed      int64      `json:"failed"`
	LastDrainAt *time.Time `json:"last_drain_at,omitempty"`
}

// FailedEnvelope is a parked mutation awaiting a decision.
type FailedEnvelope struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	Action      string    `json:"action"`
	AggregateID string    `json:"aggregate_id"`
	ChainKey    string    `json:"chain_key"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Blocked counts envelopes held back by this one: later writes on its
	// chain plus sales that depend on it.
	Blocked int64 `json:"blocked"`
}

type Service struct {
	queue        Queue
	drainer      Drainer
	connectivity Connectivity
	logg         *logger.Logger
}

func NewService(queue Queue, drainer Drainer, connectivity Connectivity, logg *logger.Logger) (*Service, error) {
	if queue == nil {
		return nil, errors.New("sync queue is required")
	}
	if drainer == nil {
		return nil, errors.New("drainer is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{queue: queue, drainer: drainer, connectivity: connectivity, logg: logg}, nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	counts, err := s.queue.Counts(ctx)
	if err != nil {
		return Status{}, err
	}
	out := Status{
		Pending:    counts.Pending(),
		Queued:     counts.Queued,
		Attempting: counts.Attempting,
		Failed:     counts.Failed,
	}
	if s.connectivity != nil {
		out.Online = s.connectivity.Online()
	}
	last, err := s.drainer.LastDrain(ctx)
	if err != nil {
		return Status{}, err
	}
	if !last.IsZero() {
		out.LastDrainAt = &last
	}
	return out, nil
}

func (s *Service) ListFailed(ctx context.Context) ([]FailedEnvelope, error) {
	rows, err := s.queue.ListFailed(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FailedEnvelope, 0, len(rows))
	for _, row := range rows {
		depth, err := s.queue.ChainDepth(ctx, row.ChainKey)
		if err != nil {
			return nil, err
		}
		dependents, err := s.queue.Dependents(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		item := FailedEnvelope{
			ID:          row.ID,
			Type:        row.Type.String(),
			Action:      row.Action.String(),
			AggregateID: row.AggregateID,
			ChainKey:    row.ChainKey,
			Attempts:    row.Attempts,
			CreatedAt:   row.CreatedAt,
			Blocked:     max(depth-1, 0) + dependents,
		}
		if row.LastError != nil {
			item.LastError = *row.LastError
		}
		out = append(out, item)
	}
	return out, nil
}

// Retry requeues a failed envelope and asks the engine to drain.
func (s *Service) Retry(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	env, err := s.queue.RetryNow(ctx, id, actor, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}
	s.drainer.Trigger()
	return env, nil
}

// Cancel abandons a failed envelope without draining.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.queue.Cancel(ctx, id, actor, strings.TrimSpace(reason))
}

// Drain runs a drain in the caller's context.
func (s *Service) Drain(ctx context.Context) (syncengine.Result, error) {
	return s.drainer.Drain(ctx)
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]models.OperatorAction, error) {
	return s.queue.Actions(ctx, id)
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operator identity is required")
	}
	return nil
}
