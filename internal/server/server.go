package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jackzampolin/mdindex/internal/api"
	"github.com/jackzampolin/mdindex/internal/config"
	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/home"
	"github.com/jackzampolin/mdindex/internal/reindex"
	"github.com/jackzampolin/mdindex/internal/server/endpoints"
	"github.com/jackzampolin/mdindex/internal/store"
	"github.com/jackzampolin/mdindex/internal/svcctx"
)

// Watcher reports AU changes of a content system until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, fn func(content.Event)) error
}

// Server is the main mdindex HTTP server.
// It runs the reindexing scheduler for as long as it serves.
type Server struct {
	httpServer *http.Server
	store      store.Store
	scheduler  *reindex.Scheduler
	watcher    Watcher
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8480)
	Port string
	// Store is the metadata database. The caller closes it.
	Store store.Store
	// Content is the system the AUs are extracted from
	Content content.System
	// Watcher, when set, feeds AU changes to the scheduler
	Watcher Watcher
	// Settings configure the scheduler when no ConfigManager is given
	Settings reindex.Settings
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is reported by the status endpoint
	Home *home.Dir
	// Registry collects the server's metrics (default: a new registry)
	Registry *prometheus.Registry
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8480"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Content == nil {
		return nil, errors.New("content system is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	settings := cfg.Settings
	if cfg.ConfigManager != nil {
		var err error
		if settings, err = cfg.ConfigManager.Get().ToSchedulerSettings(); err != nil {
			return nil, fmt.Errorf("invalid metadata manager config: %w", err)
		}
	}

	s := &Server{
		store:   cfg.Store,
		watcher: cfg.Watcher,
		scheduler: reindex.NewScheduler(reindex.Config{
			Store:    cfg.Store,
			Content:  cfg.Content,
			Logger:   cfg.Logger,
			Metrics:  reindex.NewMetrics(cfg.Registry),
			Settings: settings,
		}),
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger.With("component", "server"),
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	s.endpointRegistry.Register(endpoints.All(endpoints.Config{Gatherer: cfg.Registry})...)

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start checks the database, starts the scheduler and serves HTTP.
// It blocks until the context is cancelled or an error occurs. On return
// every reindexing task has finished.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.store.Ping(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("database health check failed: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		s.scheduler.Run(runCtx)
	}()

	if s.watcher != nil {
		err := s.watcher.Watch(runCtx, func(ev content.Event) {
			if err := s.scheduler.HandleEvent(runCtx, ev); err != nil {
				s.logger.Error("failed to handle content event", "au", ev.AuID, "kind", ev.Kind, "error", err)
			}
		})
		if err != nil {
			cancelRun()
			<-schedDone
			s.setNotRunning()
			return fmt.Errorf("failed to watch content: %w", err)
		}
	}

	if s.configMgr != nil {
		s.configMgr.OnChange(func(c *config.Config) {
			settings, err := c.ToSchedulerSettings()
			if err != nil {
				s.logger.Warn("ignoring invalid metadata manager config", "error", err)
				return
			}
			if err := s.scheduler.ApplyConfig(runCtx, settings); err != nil {
				s.logger.Error("failed to apply config change", "error", err)
				return
			}
			s.logger.Info("scheduler settings reloaded from config")
		})
		s.configMgr.WatchConfig()
	}

	s.mu.Lock()
	s.services = &svcctx.Services{
		Store:     s.store,
		Scheduler: s.scheduler,
		Config:    s.configMgr,
		Logger:    s.logger,
		Home:      s.home,
	}
	s.mu.Unlock()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	s.shutdown(cancelRun, schedDone)
	return serveErr
}

// shutdown stops the HTTP server, then the scheduler.
func (s *Server) shutdown(cancelRun context.CancelFunc, schedDone <-chan struct{}) {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.logger.Info("stopping scheduler")
	cancelRun()
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		s.logger.Error("scheduler did not stop in time")
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Scheduler returns the reindexing scheduler.
func (s *Server) Scheduler() *reindex.Scheduler {
	return s.scheduler
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.mu.RLock()
		services := s.services
		s.mu.RUnlock()
		if services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until Start has set up the services.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcctx.SchedulerFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
