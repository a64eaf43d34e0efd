package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"herald/internal/config"
	"herald/internal/types"
)

// stubLedger satisfies types.MessageLedger for chassis tests. Close and
// Ping are on the concrete type, like the real stores.
type stubLedger struct {
	closed   bool
	closeErr error
	pingErr  error
}

func (s *stubLedger) Create(context.Context, *types.Message) error { return nil }

func (s *stubLedger) Finalize(context.Context, int64, types.MessageStatus, string, string) error {
	return nil
}

func (s *stubLedger) GetByID(context.Context, int64) (*types.Message, error) { return nil, nil }

func (s *stubLedger) Query(context.Context, *types.MessageFilter) ([]*types.Message, int, error) {
	return nil, 0, nil
}

func (s *stubLedger) Aggregate(context.Context) (*types.LedgerStats, error) { return nil, nil }

func (s *stubLedger) ListTerminalBefore(context.Context, time.Time, int) ([]*types.Message, error) {
	return nil, nil
}

func (s *stubLedger) DeleteByIDs(context.Context, []int64) (int64, error) { return 0, nil }

func (s *stubLedger) Close() error {
	s.closed = true
	return s.closeErr
}

func (s *stubLedger) Ping(context.Context) error { return s.pingErr }

func testConfig() *config.Config {
	return &config.Config{Environment: "local", Service: "herald", LogLevel: "info"}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(nil, &stubLedger{}, testLogger()); err == nil {
		t.Error("nil config should be rejected")
	}
	if _, err := NewServer(testConfig(), nil, testLogger()); err == nil {
		t.Error("nil ledger should be rejected")
	}
	if _, err := NewServer(testConfig(), &stubLedger{}, nil); err == nil {
		t.Error("nil logger should be rejected")
	}
	if _, err := NewServer(testConfig(), &stubLedger{}, testLogger()); err != nil {
		t.Errorf("valid dependencies rejected: %v", err)
	}
}

func TestShutdown_ClosesLedger(t *testing.T) {
	ledger := &stubLedger{}
	srv, err := NewServer(testConfig(), ledger, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !ledger.closed {
		t.Error("ledger was not closed")
	}
}

func TestShutdown_PropagatesCloseError(t *testing.T) {
	ledger := &stubLedger{closeErr: errors.New("busy")}
	srv, err := NewServer(testConfig(), ledger, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	if err := srv.Shutdown(context.Background()); err == nil {
		t.Error("close error should propagate")
	}
}
