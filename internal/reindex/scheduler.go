package reindex

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/store"
)

// Settings are the runtime options of the scheduler.
type Settings struct {
	Enabled                bool
	UseExtractor           bool
	MaxTasks               int
	HistorySize            int
	PendingListSize        int
	PrioritizeNew          bool
	PriorityMap            []string
	BatchSize              int
	DisableCrawlReschedule bool
	RetryFailed            bool
	StepSize               int
	WatchdogTimeout        time.Duration
	PollInterval           time.Duration
}

// DefaultSettings returns the settings used for options left unset.
func DefaultSettings() Settings {
	return Settings{
		UseExtractor:    true,
		MaxTasks:        1,
		HistorySize:     200,
		PendingListSize: 200,
		PrioritizeNew:   true,
		BatchSize:       1000,
		RetryFailed:     true,
		StepSize:        10,
		WatchdogTimeout: 6 * time.Hour,
		PollInterval:    30 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxTasks < 0 {
		s.MaxTasks = 0
	}
	if s.HistorySize <= 0 {
		s.HistorySize = d.HistorySize
	}
	if s.PendingListSize <= 0 {
		s.PendingListSize = d.PendingListSize
	}
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.StepSize <= 0 {
		s.StepSize = d.StepSize
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	return s
}

// Config configures a Scheduler.
type Config struct {
	Store    store.Store
	Content  content.System
	Logger   *slog.Logger
	Metrics  *Metrics // nil creates unregistered collectors
	Settings Settings

	// Now defaults to time.Now.
	Now func() time.Time
}

// activeTask is a dispatched task and the bookkeeping of its run.
type activeTask struct {
	task *Task
	ref  store.AuRef
	wd   *Watchdog
	done chan struct{}

	// full is set when a full reindex was requested while the task ran,
	// so a rescheduled pass starts from scratch.
	full bool
}

// Scheduler owns the pending AU queue and the set of running reindexing
// tasks. At most one task runs per AU and at most Settings.MaxTasks run
// at once.
type Scheduler struct {
	st         store.Store
	content    content.System
	logger     *slog.Logger
	metrics    *Metrics
	normalizer *metadata.Normalizer
	now        func() time.Time
	pool       *workerPool

	// dispatchMu serializes dispatch passes; mu guards everything below.
	dispatchMu sync.Mutex
	mu         sync.Mutex
	settings   Settings
	priorities *PriorityMap
	active     map[string]*activeTask
	history    []*Task
	failed     []*Task
	scanned    bool
	stopped    bool
	counts     Counts
}

// Counts are the running totals of finished tasks.
type Counts struct {
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	Rescheduled int64 `json:"rescheduled"`
	Articles    int64 `json:"articles"`
}

// NewScheduler creates a scheduler. An invalid priority map in the
// settings is logged and replaced by an empty one.
func NewScheduler(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reindex")
	m := cfg.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	settings := cfg.Settings.withDefaults()
	prios, err := ParsePriorityMap(settings.PriorityMap)
	if err != nil {
		logger.Warn("ignoring invalid priority map", "error", err)
		prios = &PriorityMap{}
		settings.PriorityMap = nil
	}

	return &Scheduler{
		st:         cfg.Store,
		content:    cfg.Content,
		logger:     logger,
		metrics:    m,
		normalizer: metadata.NewNormalizer(metadata.NormalizerConfig{Logger: logger}),
		now:        now,
		pool:       newWorkerPool(logger),
		settings:   settings,
		priorities: prios,
		active:     make(map[string]*activeTask),
	}
}

// Run runs the initial AU scan if indexing is enabled, then dispatches
// pending AUs every poll interval until ctx is cancelled. On return every
// running task has been cancelled and has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started")

	s.mu.Lock()
	scan := s.settings.Enabled && !s.scanned
	s.scanned = s.scanned || scan
	s.mu.Unlock()
	if scan {
		if err := s.scan(ctx); err != nil {
			s.logger.Error("initial au scan failed", "error", err)
		}
	}
	s.dispatch(ctx)

	for {
		s.mu.Lock()
		interval := s.settings.PollInterval
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			s.shutdown()
			return
		case <-time.After(interval):
			s.dispatch(ctx)
		}
	}
}

// dispatch runs a dispatch pass, logging failures.
func (s *Scheduler) dispatch(ctx context.Context) {
	if _, err := s.PollAndDispatch(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("dispatch failed", "error", err)
	}
}

// shutdown stops dispatching, reschedules the running tasks and waits for
// them. Their AUs are back in the pending queue for the next start.
func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.stopped = true
	for _, at := range s.active {
		at.task.Reschedule()
	}
	s.mu.Unlock()
	s.pool.wait()
}

// Settings returns the current settings.
func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetIndexingEnabled turns indexing on or off. Disabling reschedules every
// running task. The first enable scans the content system for AUs that
// need indexing; later ones run a dispatch pass.
func (s *Scheduler) SetIndexingEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	if s.settings.Enabled == enabled {
		s.mu.Unlock()
		return nil
	}
	s.settings.Enabled = enabled
	var running []*activeTask
	if !enabled {
		for _, at := range s.active {
			running = append(running, at)
		}
	}
	scan := enabled && !s.scanned
	if scan {
		s.scanned = true
	}
	s.mu.Unlock()

	if !enabled {
		for _, at := range running {
			at.task.Reschedule()
		}
		s.logger.Info("indexing disabled", "rescheduled", len(running))
		return nil
	}

	s.logger.Info("indexing enabled", "initial_scan", scan)
	if scan {
		if err := s.scan(ctx); err != nil {
			return err
		}
	}
	_, err := s.PollAndDispatch(ctx)
	return err
}

// ApplyConfig replaces the settings of a running scheduler. An invalid
// priority map is logged and the current one kept. Running tasks of AUs
// the new map aborts are cancelled. Indexing is then enabled or disabled
// as the settings say, and a dispatch pass runs.
func (s *Scheduler) ApplyConfig(ctx context.Context, next Settings) error {
	next = next.withDefaults()
	prios, err := ParsePriorityMap(next.PriorityMap)

	s.mu.Lock()
	if err != nil {
		s.logger.Warn("ignoring invalid priority map", "error", err)
		next.PriorityMap = s.settings.PriorityMap
	} else {
		s.priorities = prios
	}
	enabled := next.Enabled
	next.Enabled = s.settings.Enabled
	s.settings = next

	var aborted []*activeTask
	for auID, at := range s.active {
		if s.priorities.Abort(auID) {
			aborted = append(aborted, at)
		}
	}
	s.mu.Unlock()

	for _, at := range aborted {
		s.logger.Info("aborting task by priority map", "au", at.task.AuID())
		at.task.Cancel()
	}

	if err := s.SetIndexingEnabled(ctx, enabled); err != nil {
		return err
	}
	_, err = s.PollAndDispatch(ctx)
	return err
}
