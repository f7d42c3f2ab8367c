package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/jackzampolin/mdindex/internal/store"
)

// Logger returns a logger that writes to stderr when MDINDEX_TEST_LOG is
// set and discards output otherwise.
func Logger(tb testing.TB) *slog.Logger {
	tb.Helper()
	if os.Getenv("MDINDEX_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Store opens a migrated store backed by a private in-memory sqlite
// database.
func Store(tb testing.TB) *store.GormStore {
	tb.Helper()

	cfg := store.Config{
		Driver: store.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		Logger: Logger(tb),
	}

	s, err := store.Open(cfg)
	if err != nil {
		tb.Fatalf("failed to open test store: %v", err)
	}
	tb.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
