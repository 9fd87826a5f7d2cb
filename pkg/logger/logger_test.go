package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", TerminalID: "till-1", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithEnvelopeID(ctx, "env-123")
	ctx = log.WithSessionID(ctx, "sess-9")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, want := range []string{`"envelope_id":"env-123"`, `"session_id":"sess-9"`, `"terminal_id":"till-1"`, `"stack"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected %s in entry=%s", want, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled")
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected no stack when warn stack disabled")
	}
}

func TestWithFieldOnNilContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	//nolint:staticcheck // nil context is tolerated on purpose
	ctx := log.WithField(nil, "k", "v")
	log.Info(ctx, "hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"k":"v"`)) {
		t.Fatalf("expected field in entry=%s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" DEBUG "); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %v", lvl)
	}
}

func TestErrorLogsTypedCode(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Error(context.Background(), "submit failed", pkgerrors.New(pkgerrors.CodeTransientNetwork, "ledger unreachable"))

	for _, want := range []string{`"error_code":"TRANSIENT_NETWORK"`, `"retryable":true`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected %s in entry=%s", want, buf.String())
		}
	}
}

func TestRequestIDIsLoggedAndRetrievable(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	ctx := log.WithRequestID(context.Background(), "req-42")
	log.Info(ctx, "hello")

	if got := RequestIDFrom(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
	if RequestIDFrom(context.Background()) != "" {
		t.Fatalf("expected empty id without WithRequestID")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"req-42"`)) {
		t.Fatalf("expected request id in entry=%s", buf.String())
	}
}
