package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/resolve"
	"github.com/jackzampolin/mdindex/internal/store"
)

// ErrNoExtractor is returned by Task.Start when the content system has no
// extractor for the AU.
var ErrNoExtractor = errors.New("au has no metadata extractor")

// ErrCancelled is the error of a task stopped by Cancel.
var ErrCancelled = errors.New("reindexing cancelled")

// State is the lifecycle state of a task.
type State string

const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// Outcome is how a finished task ended.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeRescheduled Outcome = "rescheduled"
)

// TaskInfo is a snapshot of a task.
type TaskInfo struct {
	ID       string    `json:"id"`
	AuID     string    `json:"au_id"`
	Full     bool      `json:"full_reindex"`
	New      bool      `json:"new_au"`
	State    State     `json:"state"`
	Outcome  Outcome   `json:"outcome,omitempty"`
	Articles int       `json:"articles"`
	Skipped  int       `json:"skipped"`
	Error    string    `json:"error,omitempty"`
	Stalled  bool      `json:"stalled,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`
}

// TaskConfig configures a Task.
type TaskConfig struct {
	AU          content.AU
	FullReindex bool
	Store       store.Store
	Content     content.System
	Normalizer  *metadata.Normalizer
	Logger      *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Task reindexes one AU. The host calls Start, then Step until it reports
// done, then Finish. Cancel and Reschedule may be called from any
// goroutine and take effect at the next step boundary.
type Task struct {
	id         string
	au         content.AU
	full       bool
	st         store.Store
	content    content.System
	normalizer *metadata.Normalizer
	logger     *slog.Logger
	now        func() time.Time

	session   *resolve.Session
	extractor content.Extractor

	mu       sync.Mutex
	state    State
	outcome  Outcome
	stop     Outcome // requested by Cancel or Reschedule
	isNew    bool
	articles int
	skipped  int
	err      error
	stalled  bool
	started  time.Time
	finished time.Time
	warned   map[string]struct{}
}

// NewTask creates a task in the created state.
func NewTask(cfg TaskConfig) *Task {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = metadata.NewNormalizer(metadata.NormalizerConfig{Logger: logger})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	id := uuid.NewString()
	return &Task{
		id:         id,
		au:         cfg.AU,
		full:       cfg.FullReindex,
		st:         cfg.Store,
		content:    cfg.Content,
		normalizer: cfg.Normalizer,
		logger:     logger.With("component", "task", "task_id", id, "au", cfg.AU.ID),
		now:        cfg.Now,
		state:      StateCreated,
		warned:     make(map[string]struct{}),
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// AuID returns the id of the AU being indexed.
func (t *Task) AuID() string { return t.au.ID }

// FullReindex reports whether the task reindexes the AU from scratch.
func (t *Task) FullReindex() bool { return t.full }

// Err returns the error that failed the task.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Start opens the extractor and moves the task to running. An AU with
// metadata from an earlier run only gets the records fetched since, unless
// the task is a full reindex, which removes the AU's items first.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateCreated {
		t.mu.Unlock()
		return fmt.Errorf("task %s: start in state %s", t.id, t.state)
	}
	t.state = StateRunning
	t.started = t.now()
	t.mu.Unlock()

	md, err := t.st.FindAuMd(ctx, t.au.PluginID, t.au.AuKey)
	if err != nil {
		return err
	}
	isNew := md == nil
	since := metadata.NeverExtracted
	if md != nil && !t.full {
		since = md.ExtractTime
	}

	ex, ok, err := t.content.Extractor(ctx, t.au, since)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoExtractor
	}
	t.extractor = ex

	if t.full && !isNew {
		removed, err := t.st.RemoveAuMetadataItems(ctx, t.au.PluginID, t.au.AuKey)
		if err != nil {
			return err
		}
		t.logger.Info("removed metadata for full reindex", "items", removed)
	}

	t.session = resolve.NewSession(resolve.SessionConfig{
		Store: t.st,
		AU: resolve.AU{
			PluginID:         t.au.PluginID,
			AuKey:            t.au.AuKey,
			Platform:         t.au.Platform,
			ExtractorVersion: t.au.ExtractorVersion,
			CreationTime:     t.now().UnixMilli(),
		},
		Logger: t.logger,
		Now:    t.now,
	})

	t.mu.Lock()
	t.isNew = isNew
	t.mu.Unlock()
	t.logger.Info("reindexing started", "full", t.full, "new", isNew, "since", since)
	return nil
}

// Step records up to n records. done is true when the extractor is
// exhausted or the task was cancelled. Records rejected as malformed are
// skipped; any other error ends the task.
func (t *Task) Step(ctx context.Context, n int) (done bool, err error) {
	if t.stopRequested() != OutcomeNone {
		return true, nil
	}
	if n <= 0 {
		n = 1
	}
	for range n {
		rec, err := t.extractor.Next(ctx)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("extract: %w", err)
		}

		rec = t.normalizer.Normalize(rec)
		if err := t.session.Record(ctx, rec); err != nil {
			var me *metadata.MetadataError
			if errors.As(err, &me) {
				t.warnOnce(me)
				t.mu.Lock()
				t.skipped++
				t.mu.Unlock()
				continue
			}
			return false, err
		}

		t.mu.Lock()
		t.articles++
		t.mu.Unlock()
	}
	return false, nil
}

// warnOnce logs each distinct warning once per run. The access URL is not
// part of the text, so a problem shared by many records is logged once.
func (t *Task) warnOnce(me *metadata.MetadataError) {
	msg := me.Reason
	if me.Err != nil {
		msg += ": " + me.Err.Error()
	}
	t.mu.Lock()
	_, seen := t.warned[msg]
	t.warned[msg] = struct{}{}
	t.mu.Unlock()
	if !seen {
		t.logger.Warn("skipping record", "access_url", me.AccessURL, "error", msg)
	}
}

// Finish ends the task. runErr is the error that stopped the run, if any.
// A run stopped by Cancel fails with ErrCancelled and one stopped by
// Reschedule is rescheduled; a clean run commits the AU's extraction time and reconciles its synthetic
// publishers.
func (t *Task) Finish(ctx context.Context, runErr error) Outcome {
	if t.extractor != nil {
		if err := t.extractor.Close(); err != nil {
			t.logger.Warn("failed to close extractor", "error", err)
		}
	}

	outcome := t.stopRequested()
	if outcome == OutcomeFailed && runErr == nil {
		runErr = ErrCancelled
	}
	if outcome == OutcomeNone {
		switch {
		case runErr != nil:
			outcome = OutcomeFailed
		case t.session != nil:
			res, err := t.session.Finish(ctx)
			if err != nil {
				runErr = err
				outcome = OutcomeFailed
			} else {
				outcome = OutcomeSuccess
				if res.Changed() {
					t.logger.Info("reconciled unknown publishers", "publications", res.Publications)
				}
			}
		default:
			outcome = OutcomeSuccess
		}
	}

	t.mu.Lock()
	t.state = StateFinished
	t.outcome = outcome
	t.err = runErr
	t.finished = t.now()
	articles := t.articles
	elapsed := t.finished.Sub(t.started)
	t.mu.Unlock()

	switch {
	case errors.Is(runErr, ErrCancelled):
		t.logger.Info("reindexing cancelled", "articles", articles, "elapsed", elapsed)
	case outcome == OutcomeFailed:
		t.logger.Error("reindexing failed", "error", runErr, "articles", articles, "elapsed", elapsed)
	default:
		t.logger.Info("reindexing finished", "outcome", outcome, "articles", articles, "elapsed", elapsed)
	}
	return outcome
}

// Cancel stops the task at the next step boundary. The task fails with
// ErrCancelled.
func (t *Task) Cancel() {
	t.requestStop(OutcomeFailed)
}

// Reschedule stops the task at the next step boundary so that it runs
// again as a fresh pass.
func (t *Task) Reschedule() {
	t.requestStop(OutcomeRescheduled)
}

func (t *Task) requestStop(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateFinished {
		return
	}
	if t.stop == OutcomeNone {
		t.stop = o
	}
}

func (t *Task) stopRequested() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop
}

func (t *Task) markStalled() {
	t.mu.Lock()
	t.stalled = true
	t.mu.Unlock()
}

// Info returns a snapshot of the task.
func (t *Task) Info() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := TaskInfo{
		ID:       t.id,
		AuID:     t.au.ID,
		Full:     t.full,
		New:      t.isNew,
		State:    t.state,
		Outcome:  t.outcome,
		Articles: t.articles,
		Skipped:  t.skipped,
		Stalled:  t.stalled,
		Started:  t.started,
		Finished: t.finished,
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	return info
}

// Run drives the task to completion, poking wd between steps.
func (t *Task) Run(ctx context.Context, stepSize int, wd *Watchdog) Outcome {
	if err := t.Start(ctx); err != nil {
		return t.Finish(ctx, err)
	}
	for {
		if wd != nil {
			wd.Poke()
		}
		done, err := t.Step(ctx, stepSize)
		if err != nil {
			return t.Finish(ctx, err)
		}
		if done {
			return t.Finish(ctx, nil)
		}
	}
}
