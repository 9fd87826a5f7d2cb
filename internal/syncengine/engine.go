package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/internal/ledger"
	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/metrics"
)

const (
	defaultBatchSize = 50
	jitterWindow     = 500 * time.Millisecond
	maxErrorLength   = 512
)

// Connectivity reports whether the ledger is believed reachable.
type Connectivity interface {
	Online() bool
}

// Locker guards a drain across processes sharing one store.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Params struct {
	Config       config.SyncConfig
	Logger       *logger.Logger
	Store        *localstore.Store
	Queue        *syncqueue.Queue
	Ledger       ledger.Client
	Connectivity Connectivity
	Lock         Locker
	Metrics      *metrics.SyncMetrics
	Clock        func() time.Time
}

// Result summarizes one Drain call.
type Result struct {
	Skipped   bool `json:"skipped"`
	Offline   bool `json:"offline"`
	Locked    bool `json:"locked"`
	Succeeded int  `json:"succeeded"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Conflicts int  `json:"conflicts"`
}

func (r *Result) add(o outcome) {
	switch o {
	case outcomeSucceeded:
		r.Succeeded++
	case outcomeRetry:
		r.Retried++
	case outcomeFailed:
		r.Failed++
	case outcomeConflict:
		r.Failed++
		r.Conflicts++
	}
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSucceeded
	outcomeRetry
	outcomeFailed
	outcomeConflict
)

// Engine drains the sync queue against the ledger. At most one drain runs
// at a time; triggers that arrive during a drain are coalesced.
type Engine struct {
	cfg          config.SyncConfig
	logg         *logger.Logger
	store        *localstore.Store
	queue        *syncqueue.Queue
	ledger       ledger.Client
	connectivity Connectivity
	lock         Locker
	metrics      *metrics.SyncMetrics
	limiter      *rate.Limiter
	clock        func() time.Time
	jitter       *jitter

	draining atomic.Bool
	trigger  chan struct{}
}

func New(params Params) (*Engine, error) {
	if params.Store == nil {
		return nil, errors.New("local store is required")
	}
	if params.Queue == nil {
		return nil, errors.New("sync queue is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger client is required")
	}
	if params.Connectivity == nil {
		return nil, errors.New("connectivity signal is required")
	}

	cfg := params.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	limit := rate.Inf
	if cfg.SubmitRatePerSec > 0 {
		limit = rate.Limit(cfg.SubmitRatePerSec)
	}

	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		cfg:          cfg,
		logg:         logg,
		store:        params.Store,
		queue:        params.Queue,
		ledger:       params.Ledger,
		connectivity: params.Connectivity,
		lock:         params.Lock,
		metrics:      params.Metrics,
		limiter:      rate.NewLimiter(limit, cfg.Concurrency),
		clock:        clock,
		jitter:       newJitter(jitterWindow),
		trigger:      make(chan struct{}, 1),
	}, nil
}

// Trigger asks the run loop for a drain without waiting for it.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Drain submits every eligible envelope once. It returns Skipped when
// another drain is in progress and Offline when the ledger is unreachable.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	if !e.draining.CompareAndSwap(false, true) {
		e.metrics.IncDrain(metrics.DrainSkipped)
		return Result{Skipped: true}, nil
	}
	defer e.draining.Store(false)

	if !e.connectivity.Online() {
		e.metrics.IncDrain(metrics.DrainOffline)
		return Result{Offline: true}, nil
	}

	if e.lock != nil {
		ok, err := e.lock.Acquire(ctx)
		if err != nil {
			e.metrics.IncDrain(metrics.DrainError)
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire drain lock")
		}
		if !ok {
			e.metrics.IncDrain(metrics.DrainLocked)
			return Result{Locked: true}, nil
		}
		defer func() {
			if err := e.lock.Release(context.WithoutCancel(ctx)); err != nil {
				e.logg.Error(ctx, "failed to release drain lock", err)
			}
		}()
	}

	res, err := e.drain(ctx)
	e.publishDepth(ctx)
	if err != nil {
		e.metrics.IncDrain(metrics.DrainError)
		e.logg.Error(e.logg.WithFields(ctx, resultFields(res)), "sync drain aborted", err)
		return res, err
	}
	e.metrics.IncDrain(metrics.DrainCompleted)
	if !res.Offline {
		if err := e.store.PutTimeSetting(ctx, localstore.SettingLastDrainAt, e.now()); err != nil {
			e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "failed to record drain time")
		}
	}
	if res.Succeeded+res.Retried+res.Failed > 0 {
		e.logg.Info(e.logg.WithFields(ctx, resultFields(res)), "sync drain complete")
	}
	return res, nil
}

// LastDrain is when a drain last ran to completion while online. It is the
// zero time before the first one.
func (e *Engine) LastDrain(ctx context.Context) (time.Time, error) {
	return e.store.GetTimeSetting(ctx, localstore.SettingLastDrainAt)
}

func (e *Engine) drain(ctx context.Context) (Result, error) {
	var res Result
	if _, err := e.queue.RecoverInFlight(ctx); err != nil {
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !e.connectivity.Online() {
			res.Offline = true
			return res, nil
		}

		ready, err := e.queue.Ready(ctx, e.now(), e.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		if len(ready) == 0 {
			return res, nil
		}

		pass, err := e.submitPass(ctx, ready)
		res.Succeeded += pass.Succeeded
		res.Retried += pass.Retried
		res.Failed += pass.Failed
		res.Conflicts += pass.Conflicts
		if err != nil {
			return res, err
		}
		// Nothing went through; the ledger is likely down. Let backoff and
		// the next trigger take over.
		if pass.Succeeded == 0 && (pass.Retried > 0 || pass.Failed == 0) {
			return res, nil
		}
	}
}

// submitPass sends one head per chain. Heads belong to distinct chains, so
// they may go out in parallel; order within a chain is kept because only a
// chain's head is ever ready.
func (e *Engine) submitPass(ctx context.Context, heads []models.SyncEnvelope) (Result, error) {
	var (
		mu  sync.Mutex
		res Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, env := range heads {
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}
			o, err := e.process(gctx, env)
			mu.Lock()
			res.add(o)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	return res, err
}

// process drives one envelope through attempting to its next state. The
// returned error is reserved for local storage failures.
func (e *Engine) process(ctx context.Context, env models.SyncEnvelope) (outcome, error) {
	logCtx := e.logg.WithFields(e.logg.WithEnvelopeID(ctx, env.ID.String()), map[string]any{
		"type":      env.Type,
		"action":    env.Action,
		"chain_key": env.ChainKey,
	})

	if err := e.queue.MarkAttempting(ctx, env.ID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return outcomeNone, nil
		}
		return outcomeNone, err
	}
	attempts := env.Attempts + 1

	m, err := e.queue.Decode(env)
	if err != nil {
		e.logg.Error(logCtx, "undecodable envelope parked", err)
		return outcomeFailed, e.fail(ctx, env, attempts, err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.submitTimeout())
	start := time.Now()
	canonicalID, o, submitErr := e.submit(submitCtx, env.ID, m)
	cancel()
	took := time.Since(start)

	if ctx.Err() != nil {
		// Shutting down mid-submit; the envelope is recovered on restart.
		return outcomeNone, ctx.Err()
	}

	switch {
	case submitErr == nil && o == outcomeConflict:
		e.metrics.ObserveSubmission(env.Type.String(), metrics.OutcomeConflict, took)
		conflict := pkgerrors.New(pkgerrors.CodeDuplicateSubmission, "ledger holds a different record under this idempotency key").
			WithDetails(map[string]any{"canonical_id": canonicalID})
		e.logg.Warn(e.logg.WithField(logCtx, "canonical_id", canonicalID), "duplicate submission conflict")
		return outcomeConflict, e.fail(ctx, env, attempts, conflict)

	case submitErr == nil:
		label := metrics.OutcomeSucceeded
		if o == outcomeRetry {
			label = metrics.OutcomeDuplicate
		}
		e.metrics.ObserveSubmission(env.Type.String(), label, took)
		if err := e.complete(ctx, env, attempts, canonicalID); err != nil {
			return outcomeNone, err
		}
		e.logg.Info(e.logg.WithField(logCtx, "canonical_id", canonicalID), "envelope reconciled")
		return outcomeSucceeded, nil

	case pkgerrors.IsRetryable(submitErr) && attempts < e.cfg.MaxAttempts:
		e.metrics.ObserveSubmission(env.Type.String(), metrics.OutcomeRetry, took)
		delay := Delay(attempts, e.cfg.BaseDelay, e.cfg.CapDelay)
		next := e.now().Add(delay)
		e.logg.Warn(e.logg.WithFields(logCtx, map[string]any{
			"attempts":   attempts,
			"retry_in":   delay.String(),
			"last_error": submitErr.Error(),
		}), "submission failed; backing off")
		return outcomeRetry, e.backoff(ctx, env, attempts, next, submitErr)

	default:
		e.metrics.ObserveSubmission(env.Type.String(), metrics.OutcomeFailed, took)
		e.logg.Error(e.logg.WithField(logCtx, "attempts", attempts), "envelope failed; operator action required", submitErr)
		return outcomeFailed, e.fail(ctx, env, attempts, submitErr)
	}
}

// submit dispatches the mutation. A duplicate sale is reported as
// outcomeRetry when the ledger's copy matches, or outcomeConflict when it
// does not.
func (e *Engine) submit(ctx context.Context, id uuid.UUID, m syncqueue.Mutation) (string, outcome, error) {
	key := id.String()
	switch mut := m.(type) {
	case syncqueue.TransactionMutation:
		res, err := e.ledger.SubmitTransaction(ctx, key, mut.TransactionRecord)
		if err != nil {
			return "", outcomeNone, err
		}
		if res.Outcome == ledger.OutcomeDuplicate {
			if !res.Record.Matches(mut.TransactionRecord) {
				return res.CanonicalID, outcomeConflict, nil
			}
			return res.CanonicalID, outcomeRetry, nil
		}
		return res.CanonicalID, outcomeSucceeded, nil
	case syncqueue.CustomerMutation:
		out, err := e.ledger.SubmitCustomer(ctx, key, mut.Op, mut.Customer)
		return mut.Customer.ID, fromLedgerOutcome(out), err
	case syncqueue.ProductMutation:
		out, err := e.ledger.SubmitProduct(ctx, key, mut.Op, mut.Product)
		return mut.Product.ID, fromLedgerOutcome(out), err
	default:
		return "", outcomeNone, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported mutation %T", m))
	}
}

func fromLedgerOutcome(o ledger.SubmitOutcome) outcome {
	if o == ledger.OutcomeDuplicate {
		return outcomeRetry
	}
	return outcomeSucceeded
}

func (e *Engine) complete(ctx context.Context, env models.SyncEnvelope, attempts int, canonicalID string) error {
	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		if env.Type == enums.MutationTransaction {
			now := e.now()
			if err := updateTransaction(ctx, tx, env.AggregateID, map[string]any{
				"status":          enums.TransactionStatusSynced,
				"canonical_id":    canonicalID,
				"synced_at":       now,
				"sync_attempts":   attempts,
				"last_sync_error": nil,
			}); err != nil {
				return err
			}
		}
		return e.queue.WithTx(tx).Complete(ctx, env.ID)
	})
}

func (e *Engine) backoff(ctx context.Context, env models.SyncEnvelope, attempts int, next time.Time, cause error) error {
	msg := errorMessage(cause)
	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		if env.Type == enums.MutationTransaction {
			if err := updateTransaction(ctx, tx, env.AggregateID, map[string]any{
				"sync_attempts":   attempts,
				"last_sync_error": msg,
			}); err != nil {
				return err
			}
		}
		return e.queue.WithTx(tx).Backoff(ctx, env.ID, attempts, next, msg)
	})
}

func (e *Engine) fail(ctx context.Context, env models.SyncEnvelope, attempts int, cause error) error {
	msg := errorMessage(cause)
	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		if env.Type == enums.MutationTransaction {
			if err := updateTransaction(ctx, tx, env.AggregateID, map[string]any{
				"status":          enums.TransactionStatusFailed,
				"sync_attempts":   attempts,
				"last_sync_error": msg,
			}); err != nil {
				return err
			}
		}
		return e.queue.WithTx(tx).Fail(ctx, env.ID, attempts, msg)
	})
}

func updateTransaction(ctx context.Context, tx *gorm.DB, id string, updates map[string]any) error {
	err := tx.WithContext(ctx).Model(&models.PendingTransaction{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		if pkgerrors.IsStorageFailure(err) {
			return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "update transaction sync state")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update transaction sync state")
	}
	return nil
}

func (e *Engine) publishDepth(ctx context.Context) {
	counts, err := e.queue.Counts(ctx)
	if err != nil {
		return
	}
	e.metrics.SetQueueDepth(counts.Queued, counts.Attempting, counts.Failed)
}

func (e *Engine) submitTimeout() time.Duration {
	if e.cfg.SubmitTimeout <= 0 {
		return 10 * time.Second
	}
	return e.cfg.SubmitTimeout
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func resultFields(r Result) map[string]any {
	return map[string]any{
		"succeeded": r.Succeeded,
		"retried":   r.Retried,
		"failed":    r.Failed,
		"conflicts": r.Conflicts,
	}
}
