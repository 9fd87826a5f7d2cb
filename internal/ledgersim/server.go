package ledgersim

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/offline-pos/api/validators"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	pkgredis "github.com/angelmondragon/offline-pos/pkg/redis"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	defaultTTL        = 30 * 24 * time.Hour
)

// Fault makes the simulator misbehave for one request. With AfterCommit the
// write is applied and only the response is replaced, which is how a lost
// acknowledgement looks to the terminal.
type Fault struct {
	Status      int           `json:"status" validate:"required,min=400,max=599"`
	AfterCommit bool          `json:"after_commit"`
	Delay       time.Duration `json:"delay"`
}

// Server is the simulator's HTTP surface.
type Server struct {
	ledger *Ledger
	store  pkgredis.IdempotencyStore
	ttl    time.Duration
	logg   *logger.Logger

	// writes serializes mutating requests so a replayed key never races its
	// first submission.
	writes sync.Mutex

	faultMu sync.Mutex
	faults  []Fault

	limiter    RateLimiter
	rateLimit  int64
	rateWindow time.Duration
}

// RateLimiter counts requests in a fixed window.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type Option func(*Server)

func WithTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(s *Server) {
		if logg != nil {
			s.logg = logg
		}
	}
}

// WithRateLimit answers 429 once a caller exceeds limit writes per window.
func WithRateLimit(limiter RateLimiter, limit int64, window time.Duration) Option {
	return func(s *Server) {
		if limiter != nil && limit > 0 && window > 0 {
			s.limiter = limiter
			s.rateLimit = limit
			s.rateWindow = window
		}
	}
}

// NewServer builds a simulator over ledger. A nil store keeps idempotency
// records in memory.
func NewServer(ledger *Ledger, store pkgredis.IdempotencyStore, opts ...Option) *Server {
	if ledger == nil {
		ledger = NewLedger()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Server{ledger: ledger, store: store, ttl: defaultTTL, logg: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InjectFault queues f for the next mutating request.
func (s *Server) InjectFault(f Fault) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults = append(s.faults, f)
}

func (s *Server) nextFault() (Fault, bool) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if len(s.faults) == 0 {
		return Fault{}, false
	}
	f := s.faults[0]
	s.faults = s.faults[1:]
	return f, true
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/catalog/products", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"products": s.ledger.Products()})
	})
	r.Get("/catalog/customers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"customers": s.ledger.Customers()})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimited, s.serializeWrites, s.injectFaults, s.idempotency)
		r.Post("/transactions", s.postTransaction)
		r.Post("/customers", s.putCustomer)
		r.Put("/customers/{id}", s.putCustomer)
		r.Delete("/customers/{id}", s.deleteCustomer)
		r.Post("/products", s.putProduct)
		r.Put("/products/{id}", s.putProduct)
		r.Delete("/products/{id}", s.deleteProduct)
	})

	r.Route("/_sim", func(r chi.Router) {
		r.Get("/transactions", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"transactions": s.ledger.Transactions()})
		})
		r.Post("/faults", func(w http.ResponseWriter, r *http.Request) {
			var f Fault
			if err := validators.DecodeJSONBody(r, &f); err != nil {
				s.writeError(r.Context(), w, err)
				return
			}
			s.InjectFault(f)
			w.WriteHeader(http.StatusAccepted)
		})
	})
	return r
}

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	var rec types.TransactionRecord
	if err := validators.DecodeJSONBody(r, &rec); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	stored, created, err := s.ledger.RecordTransaction(rec)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logg.Info(s.logg.WithFields(r.Context(), map[string]any{
			"canonical_id":          stored.CanonicalID,
			"client_transaction_id": rec.ClientTransactionID,
			"total":                 rec.Total.StringFixed(2),
		}), "transaction recorded")
	}
	writeJSON(w, status, stored)
}

func (s *Server) putCustomer(w http.ResponseWriter, r *http.Request) {
	var rec types.CustomerRecord
	if err := validators.DecodeJSONBody(r, &rec); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" && id != rec.ID {
		s.writeError(r.Context(), w, pkgerrors.New(pkgerrors.CodeValidation, "customer id does not match path"))
		return
	}
	if err := s.ledger.PutCustomer(rec); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if !s.ledger.DeleteCustomer(chi.URLParam(r, "id")) {
		s.writeError(r.Context(), w, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putProduct(w http.ResponseWriter, r *http.Request) {
	var rec types.ProductRecord
	if err := validators.DecodeJSONBody(r, &rec); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" && id != rec.ID {
		s.writeError(r.Context(), w, pkgerrors.New(pkgerrors.CodeValidation, "product id does not match path"))
		return
	}
	if err := s.ledger.PutProduct(rec); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if !s.ledger.DeleteProduct(chi.URLParam(r, "id")) {
		s.writeError(r.Context(), w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, _, err := s.limiter.FixedWindowAllow(r.Context(), "ledger-sim:writes", s.rateLimit, s.rateWindow)
		if err != nil {
			s.logg.Warn(s.logg.WithField(r.Context(), "error", err.Error()), "rate limiter unavailable; allowing request")
		} else if !allowed {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serializeWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writes.Lock()
		defer s.writes.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := s.nextFault()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if f.AfterCommit {
			next.ServeHTTP(&responseCapture{ResponseWriter: discardWriter{header: http.Header{}}}, r)
		}
		if f.Delay > 0 {
			select {
			case <-time.After(f.Delay):
			case <-r.Context().Done():
				return
			}
		}
		s.logg.Warn(s.logg.WithFields(r.Context(), map[string]any{
			"status":       f.Status,
			"after_commit": f.AfterCommit,
			"path":         r.URL.Path,
		}), "injected fault")
		writeJSON(w, f.Status, types.ErrorEnvelope{Error: types.APIError{
			Code:    string(pkgerrors.CodeTransientNetwork),
			Message: "injected fault",
		}})
	})
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// idempotency replays the stored response for a key the ledger has already
// answered. Replays always return 200 so clients can tell them apart from a
// first write. Only successful responses are stored; a rejected request may
// be corrected and resent under the same key.
func (s *Server) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" {
			s.writeError(r.Context(), w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(r.Context(), w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashBody(body)
		storeKey := s.store.IdempotencyKey(r.Method+"|"+routeScope(r), key)

		stored, err := s.store.Get(r.Context(), storeKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			s.writeError(r.Context(), w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if stored != "" {
			var record idempotencyRecord
			if err := json.Unmarshal([]byte(stored), &record); err != nil {
				s.writeError(r.Context(), w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
				return
			}
			if record.RequestHash != requestHash {
				s.logg.Warn(s.logg.WithField(r.Context(), "idempotency_key", key), "idempotency key reused with a different body")
			}
			writeReplay(w, record)
			return
		}

		rec := &responseCapture{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status >= 300 {
			return
		}

		record := idempotencyRecord{
			Status:      rec.status,
			Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
			RequestHash: requestHash,
		}
		if ct := rec.Header().Get("Content-Type"); ct != "" {
			record.Headers = map[string]string{"Content-Type": ct}
		}
		payload, err := json.Marshal(record)
		if err != nil {
			s.logg.Error(r.Context(), "marshal idempotency record", err)
			return
		}
		if _, err := s.store.SetNX(r.Context(), storeKey, string(payload), s.ttl); err != nil {
			s.logg.Error(r.Context(), "persist idempotency record", err)
		}
	})
}

func routeScope(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return strings.SplitN(strings.TrimPrefix(pattern, "/"), "/", 2)[0]
		}
	}
	return strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)[0]
}

func writeReplay(w http.ResponseWriter, record idempotencyRecord) {
	for k, v := range record.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set(replayedHeader, "true")
	body, _ := base64.StdEncoding.DecodeString(record.Body)
	status := http.StatusOK
	if record.Status == http.StatusNoContent {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	if status != http.StatusNoContent {
		_, _ = w.Write(body)
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	status := http.StatusInternalServerError
	switch typed.Code() {
	case pkgerrors.CodeValidation:
		status = http.StatusUnprocessableEntity
	case pkgerrors.CodeNotFound:
		status = http.StatusNotFound
	case pkgerrors.CodeDependency:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.logg.Error(ctx, "ledger request failed", err)
	}
	writeJSON(w, status, types.ErrorEnvelope{Error: types.APIError{
		Code:    string(typed.Code()),
		Message: typed.Message(),
		Details: typed.Details(),
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseCapture) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

type discardWriter struct {
	header http.Header
}

func (d discardWriter) Header() http.Header         { return d.header }
func (d discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (d discardWriter) WriteHeader(int)             {}
