package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// Pinger probes the ledger for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is a point-in-time view of the connectivity signal.
type Status struct {
	Online    bool      `json:"online"`
	ChangedAt time.Time `json:"changed_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Monitor tracks whether the ledger is reachable. The state changes either
// from an explicit Set (UI or OS network events) or from the liveness
// probe; the last writer wins.
type Monitor struct {
	online atomic.Bool

	mu        sync.Mutex
	changedAt time.Time
	lastErr   string
	subs      map[int]chan bool
	nextSub   int

	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logg     *logger.Logger
	clock    func() time.Time
}

// NewMonitor builds a monitor that starts offline. A nil pinger disables
// the liveness probe.
func NewMonitor(pinger Pinger, interval, timeout time.Duration, logg *logger.Logger) *Monitor {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Monitor{
		subs:     map[int]chan bool{},
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logg:     logg,
		clock:    time.Now,
	}
}

// Online reports the current signal.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Online: m.online.Load(), ChangedAt: m.changedAt, LastError: m.lastErr}
}

// Set records the signal and reports whether it changed. Subscribers see
// every change; a slow subscriber only keeps the latest value.
func (m *Monitor) Set(ctx context.Context, online bool) bool {
	return m.set(ctx, online, "")
}

func (m *Monitor) set(ctx context.Context, online bool, cause string) bool {
	m.mu.Lock()
	m.lastErr = cause
	if m.online.Load() == online && !m.changedAt.IsZero() {
		m.mu.Unlock()
		return false
	}
	m.online.Store(online)
	m.changedAt = m.clock().UTC()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	m.mu.Unlock()

	if online {
		m.logg.Info(ctx, "ledger reachable")
	} else {
		m.logg.Warn(m.logg.WithField(ctx, "cause", cause), "ledger unreachable")
	}
	return true
}

// Subscribe returns a channel of state changes and a function that
// releases it. Releasing closes the channel; calling it again is a no-op.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if ch, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}

// Probe pings the ledger once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.pinger == nil {
		return m.Online()
	}
	probeCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if err := m.pinger.Ping(probeCtx); err != nil {
		if ctx.Err() != nil {
			return m.Online()
		}
		m.set(ctx, false, err.Error())
		return false
	}
	m.set(ctx, true, "")
	return true
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if m.pinger == nil || m.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
