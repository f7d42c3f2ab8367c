package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config configures the gorm-backed store.
type Config struct {
	Driver        string // "sqlite" (default) or "postgres"
	DSN           string
	Logger        *slog.Logger
	SlowThreshold time.Duration // default: 1s
	RetryAttempts uint          // default: 5
	RetryDelay    time.Duration // default: 50ms
	CacheSize     int           // entries per id cache (default: 10000)
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
	caches *idCaches

	retryAttempts uint
	retryDelay    time.Duration

	// tx is non-nil when the store is bound to a transaction.
	tx *txState
}

// txState collects cache updates that only become visible on commit.
type txState struct {
	onCommit []func()
}

// idCaches map natural keys to row ids for rows that are looked up on
// every record.
type idCaches struct {
	publishers *lru.Cache[string, int64]
	platforms  *lru.Cache[string, int64]
	plugins    *lru.Cache[string, int64]
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*GormStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormLogger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "" || cfg.Driver == DriverSQLite {
		// sqlite allows one writer; a single connection serializes
		// transactions instead of failing them with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	caches, err := newIDCaches(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	return &GormStore{
		db:            db,
		logger:        logger,
		caches:        caches,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}, nil
}

func newIDCaches(size int) (*idCaches, error) {
	publishers, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher cache: %w", err)
	}
	platforms, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform cache: %w", err)
	}
	plugins, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin cache: %w", err)
	}
	return &idCaches{publishers: publishers, platforms: platforms, plugins: plugins}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("ping", err)
	}
	return wrap("ping", sqlDB.PingContext(ctx))
}

// WithTx runs fn in a transaction, retrying transient failures.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			state := &txState{}
			err := s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
				return fn(s.bind(txx, state))
			})
			if err != nil {
				return err
			}
			for _, apply := range state.onCommit {
				apply()
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.retryAttempts),
		retry.Delay(s.retryDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying transaction", "attempt", n+1, "error", err)
		}),
	)
	if err != nil && attempt > 1 {
		s.logger.Warn("transaction failed after retries", "attempts", attempt, "error", err)
	}
	return err
}

// bind returns a copy of the store that runs against a transaction.
func (s *GormStore) bind(txx *gorm.DB, state *txState) *GormStore {
	return &GormStore{
		db:            txx,
		logger:        s.logger,
		caches:        s.caches,
		retryAttempts: s.retryAttempts,
		retryDelay:    s.retryDelay,
		tx:            state,
	}
}

// remember applies a cache update now, or at commit inside a transaction.
func (s *GormStore) remember(apply func()) {
	if s.tx != nil {
		s.tx.onCommit = append(s.tx.onCommit, apply)
		return
	}
	apply()
}

// conn returns the gorm handle scoped to ctx.
func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

var _ Store = (*GormStore)(nil)
