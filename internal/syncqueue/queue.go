package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/offline-pos/pkg/db"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// Counts summarizes the queue for status surfaces.
type Counts struct {
	Queued     int64 `json:"queued"`
	Attempting int64 `json:"attempting"`
	Failed     int64 `json:"failed"`
}

// Pending is every envelope not yet failed.
func (c Counts) Pending() int64 {
	return c.Queued + c.Attempting
}

// Queue is the durable FIFO of mutations awaiting reconciliation.
type Queue struct {
	db         *gorm.DB
	registry   *DecoderRegistry
	logg       *logger.Logger
	terminalID string
	clock      func() time.Time
}

// New builds a queue over conn. A nil registry uses DefaultRegistry.
func New(conn *gorm.DB, registry *DecoderRegistry, terminalID string, logg *logger.Logger) *Queue {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Queue{db: conn, registry: registry, logg: logg, terminalID: terminalID, clock: time.Now}
}

// WithTx binds the queue to an outer transaction.
func (q *Queue) WithTx(tx *gorm.DB) *Queue {
	if tx == nil {
		return q
	}
	clone := *q
	clone.db = tx
	return &clone
}

func (q *Queue) now() time.Time {
	return q.clock().UTC()
}

// Enqueue appends m inside tx. Callers enqueue dependent mutations in
// dependency order; the queue never reorders a chain. Sale envelopes reuse
// the transaction id so the ledger sees one idempotency key per sale.
//
// Each aggregate named by m.DependsOn that still has an envelope queued,
// including a failed one, is recorded as a dependency. The new envelope is
// not ready until all of them have left the queue.
func (q *Queue) Enqueue(ctx context.Context, tx *gorm.DB, m Mutation) (*models.SyncEnvelope, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if err := validateMutation(m); err != nil {
		return nil, err
	}

	envelopeID := uuid.New()
	if m.Kind() == enums.MutationTransaction {
		parsed, err := uuid.Parse(m.AggregateID())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "transaction id must be a uuid")
		}
		envelopeID = parsed
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mutation")
	}
	now := q.now()
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    PayloadVersion,
		MutationID: envelopeID.String(),
		OccurredAt: now,
		TerminalID: q.terminalID,
		Data:       data,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode envelope")
	}

	row := models.SyncEnvelope{
		ID:            envelopeID,
		Type:          m.Kind(),
		Action:        m.Action(),
		Version:       PayloadVersion,
		ChainKey:      m.ChainKey(),
		AggregateID:   m.AggregateID(),
		Payload:       datatypes.JSON(payload),
		State:         enums.EnvelopeStateQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "mutation already queued")
		}
		return nil, storageError(err, "enqueue mutation")
	}

	blockers, err := q.link(ctx, tx, row.ID, m.DependsOn())
	if err != nil {
		return nil, err
	}

	fields := envelopeFields(row)
	fields["depends_on"] = len(blockers)
	q.logg.Info(q.logg.WithFields(ctx, fields), "mutation queued")
	return &row, nil
}

// link records a dependency on the newest envelope of every referenced
// aggregate. Earlier envelopes of that aggregate share its chain and leave
// the queue first.
func (q *Queue) link(ctx context.Context, tx *gorm.DB, id uuid.UUID, refs []Ref) ([]uuid.UUID, error) {
	var blockers []uuid.UUID
	for _, ref := range refs {
		var latest models.SyncEnvelope
		err := tx.WithContext(ctx).
			Select("id").
			Where("type = ? AND aggregate_id = ? AND id <> ?", ref.Type, ref.AggregateID, id).
			Order("seq DESC").
			Take(&latest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, storageError(err, "resolve dependency")
		}
		dep := models.SyncDependency{EnvelopeID: id, DependsOn: latest.ID}
		if err := tx.WithContext(ctx).Create(&dep).Error; err != nil {
			return nil, storageError(err, "record dependency")
		}
		blockers = append(blockers, latest.ID)
	}
	return blockers, nil
}

// Blockers lists the envelopes id still waits for.
func (q *Queue) Blockers(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := q.db.WithContext(ctx).Model(&models.SyncDependency{}).
		Joins("JOIN sync_queue AS p ON p.id = sync_dependencies.depends_on").
		Where("sync_dependencies.envelope_id = ?", id).
		Order("p.seq ASC").
		Pluck("sync_dependencies.depends_on", &out).Error
	if err != nil {
		return nil, storageError(err, "list blockers")
	}
	return out, nil
}

// Dependents counts envelopes waiting on id.
func (q *Queue) Dependents(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	if err := q.db.WithContext(ctx).Model(&models.SyncDependency{}).Where("depends_on = ?", id).Count(&n).Error; err != nil {
		return 0, storageError(err, "count dependents")
	}
	return n, nil
}

// Ready returns up to limit envelopes eligible for submission at now, in
// FIFO order. Only the oldest envelope of each chain is considered; if that
// head is failed, in flight or backing off, the whole chain waits. A head
// whose dependencies are still queued waits as well.
func (q *Queue) Ready(ctx context.Context, now time.Time, limit int) ([]models.SyncEnvelope, error) {
	heads, err := q.heads(ctx)
	if err != nil {
		return nil, err
	}
	ready := make([]models.SyncEnvelope, 0, len(heads))
	for _, head := range heads {
		if head.State != enums.EnvelopeStateQueued || head.NextAttemptAt.After(now) {
			continue
		}
		ready = append(ready, head)
		if limit > 0 && len(ready) == limit {
			break
		}
	}
	return ready, nil
}

// NextAttemptAt reports the earliest time a blocked chain head becomes
// eligible, or false when nothing is waiting on backoff.
func (q *Queue) NextAttemptAt(ctx context.Context) (time.Time, bool, error) {
	heads, err := q.heads(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	var earliest time.Time
	found := false
	for _, head := range heads {
		if head.State != enums.EnvelopeStateQueued {
			continue
		}
		if !found || head.NextAttemptAt.Before(earliest) {
			earliest = head.NextAttemptAt
			found = true
		}
	}
	return earliest, found, nil
}

const noOpenDependency = `NOT EXISTS (
	SELECT 1 FROM sync_dependencies AS d
	JOIN sync_queue AS p ON p.id = d.depends_on
	WHERE d.envelope_id = sync_queue.id)`

// heads returns the oldest envelope of every chain that is not waiting on a
// dependency.
func (q *Queue) heads(ctx context.Context) ([]models.SyncEnvelope, error) {
	var rows []models.SyncEnvelope
	err := q.db.WithContext(ctx).
		Where("seq IN (?)", q.db.Model(&models.SyncEnvelope{}).Select("MIN(seq)").Group("chain_key")).
		Where(noOpenDependency).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err, "load chain heads")
	}
	return rows, nil
}

// Get returns nil, nil when the envelope does not exist.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*models.SyncEnvelope, error) {
	var row models.SyncEnvelope
	err := q.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err, "get envelope")
	}
	return &row, nil
}

// Decode resolves the envelope payload to its mutation variant.
func (q *Queue) Decode(env models.SyncEnvelope) (Mutation, error) {
	var wrapper PayloadEnvelope
	if err := json.Unmarshal(env.Payload, &wrapper); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "undecodable envelope payload")
	}
	version := wrapper.Version
	if version == 0 {
		version = env.Version
	}
	m, err := q.registry.Decode(env.Type, version, wrapper.Data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "undecodable mutation")
	}
	if m.Action() != env.Action || m.AggregateID() != env.AggregateID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mutation does not match its envelope")
	}
	return m, nil
}

// MarkAttempting moves a queued envelope in flight.
func (q *Queue) MarkAttempting(ctx context.Context, id uuid.UUID) error {
	return q.transition(ctx, id, []enums.EnvelopeState{enums.EnvelopeStateQueued}, map[string]any{
		"state": enums.EnvelopeStateAttempting,
	})
}

// Complete removes a confirmed envelope and the dependency edges that
// touched it.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	res := q.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SyncEnvelope{})
	if res.Error != nil {
		return storageError(res.Error, "complete envelope")
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return dropEdges(ctx, q.db, id)
}

func dropEdges(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	err := tx.WithContext(ctx).
		Where("envelope_id = ? OR depends_on = ?", id, id).
		Delete(&models.SyncDependency{}).Error
	if err != nil {
		return storageError(err, "drop dependency edges")
	}
	return nil
}

// Backoff requeues an envelope after a transient failure.
func (q *Queue) Backoff(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, cause string) error {
	return q.transition(ctx, id, []enums.EnvelopeState{enums.EnvelopeStateAttempting, enums.EnvelopeStateQueued}, map[string]any{
		"state":           enums.EnvelopeStateQueued,
		"attempts":        attempts,
		"next_attempt_at": nextAttemptAt.UTC(),
		"last_error":      cause,
	})
}

// Fail parks an envelope for operator attention. Its chain stays blocked.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, attempts int, cause string) error {
	return q.transition(ctx, id, []enums.EnvelopeState{enums.EnvelopeStateAttempting, enums.EnvelopeStateQueued}, map[string]any{
		"state":      enums.EnvelopeStateFailed,
		"attempts":   attempts,
		"last_error": cause,
	})
}

// RecoverInFlight requeues envelopes left attempting by a crash. The ledger
// deduplicates on the idempotency key, so resubmitting is safe.
func (q *Queue) RecoverInFlight(ctx context.Context) (int64, error) {
	res := q.db.WithContext(ctx).Model(&models.SyncEnvelope{}).
		Where("state = ?", enums.EnvelopeStateAttempting).
		Updates(map[string]any{"state": enums.EnvelopeStateQueued})
	if res.Error != nil {
		return 0, storageError(res.Error, "recover in-flight envelopes")
	}
	if res.RowsAffected > 0 {
		q.logg.Warn(q.logg.WithField(ctx, "recovered", res.RowsAffected), "requeued in-flight envelopes")
	}
	return res.RowsAffected, nil
}

func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	type row struct {
		State enums.EnvelopeState
		N     int64
	}
	var rows []row
	err := q.db.WithContext(ctx).Model(&models.SyncEnvelope{}).
		Select("state, COUNT(*) AS n").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, storageError(err, "count envelopes")
	}
	var out Counts
	for _, r := range rows {
		switch r.State {
		case enums.EnvelopeStateQueued:
			out.Queued = r.N
		case enums.EnvelopeStateAttempting:
			out.Attempting = r.N
		case enums.EnvelopeStateFailed:
			out.Failed = r.N
		}
	}
	return out, nil
}

// ListFailed returns failed envelopes oldest first.
func (q *Queue) ListFailed(ctx context.Context) ([]models.SyncEnvelope, error) {
	rows := []models.SyncEnvelope{}
	err := q.db.WithContext(ctx).
		Where("state = ?", enums.EnvelopeStateFailed).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err, "list failed envelopes")
	}
	return rows, nil
}

// PendingAggregates returns the ids of kind that still have envelopes in
// the queue, failed ones included.
func (q *Queue) PendingAggregates(ctx context.Context, kind enums.MutationType) (map[string]struct{}, error) {
	var ids []string
	err := q.db.WithContext(ctx).Model(&models.SyncEnvelope{}).
		Where("type = ?", kind).
		Distinct().
		Pluck("aggregate_id", &ids).Error
	if err != nil {
		return nil, storageError(err, "list pending aggregates")
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// ChainDepth counts envelopes sharing chainKey, the failed head included.
func (q *Queue) ChainDepth(ctx context.Context, chainKey string) (int64, error) {
	var n int64
	if err := q.db.WithContext(ctx).Model(&models.SyncEnvelope{}).Where("chain_key = ?", chainKey).Count(&n).Error; err != nil {
		return 0, storageError(err, "count chain")
	}
	return n, nil
}

func (q *Queue) transition(ctx context.Context, id uuid.UUID, from []enums.EnvelopeState, updates map[string]any) error {
	res := q.db.WithContext(ctx).Model(&models.SyncEnvelope{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return storageError(res.Error, "update envelope")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	existing, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return notFound(id)
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("envelope %s is %s", id, existing.State))
}

func validateMutation(m Mutation) error {
	if m == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "mutation is required")
	}
	if !m.Kind().IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown mutation type %q", m.Kind()))
	}
	if !m.Action().IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown mutation action %q", m.Action()))
	}
	if m.AggregateID() == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "mutation aggregate id is required")
	}
	return nil
}

func notFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("envelope %s not found", id))
}

func storageError(err error, op string) error {
	if pkgerrors.IsStorageFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}

func envelopeFields(env models.SyncEnvelope) map[string]any {
	return map[string]any{
		"envelope_id":  env.ID.String(),
		"type":         env.Type,
		"action":       env.Action,
		"aggregate_id": env.AggregateID,
		"chain_key":    env.ChainKey,
		"attempts":     env.Attempts,
	}
}
