package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/store"
)

// PollAndDispatch starts tasks for pending AUs, in queue order, while
// fewer than MaxTasks are running. Each dispatched AU leaves the pending
// queue. AUs the priority map makes ineligible are disabled; AUs without
// an extractor are dropped; AUs the content system no longer has are
// deleted. It returns the number of tasks started.
func (s *Scheduler) PollAndDispatch(ctx context.Context) (int, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	settings := s.settings
	free := settings.MaxTasks - len(s.active)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || !settings.Enabled || free <= 0 {
		return 0, nil
	}

	entries, err := s.st.EnabledPendingAus(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.Pending.Set(float64(len(entries)))
	q := newPendingQueue(settings.PrioritizeNew, entries)

	started := 0
	for started < free {
		e, ok := q.pop()
		if !ok {
			break
		}
		auID := metadata.AuID(e.PluginID, e.AuKey)
		ref := store.AuRef{PluginID: e.PluginID, AuKey: e.AuKey}

		s.mu.Lock()
		_, running := s.active[auID]
		eligible := s.priorities.Eligible(auID)
		s.mu.Unlock()
		if running {
			continue
		}

		if !eligible {
			if err := s.st.SetPendingAu(ctx, e.PluginID, e.AuKey, store.PriorityDisabled, e.FullReindex); err != nil {
				return started, err
			}
			s.logger.Info("disabled pending au", "au", auID, "reason", "priority map")
			s.metrics.Dropped.WithLabelValues("ineligible").Inc()
			continue
		}

		au, found, err := s.content.Lookup(ctx, auID)
		if err != nil {
			return started, fmt.Errorf("lookup au %s: %w", auID, err)
		}
		if !found {
			if err := s.deleteAu(ctx, ref); err != nil {
				return started, err
			}
			s.logger.Info("deleted au", "au", auID, "reason", "au no longer exists")
			s.metrics.Dropped.WithLabelValues("au_gone").Inc()
			continue
		}

		if !settings.UseExtractor || !au.HasExtractor() {
			if err := s.st.RemovePendingAu(ctx, e.PluginID, e.AuKey); err != nil {
				return started, err
			}
			s.logger.Info("removed pending au", "au", auID, "reason", "no metadata extractor")
			s.metrics.Dropped.WithLabelValues("no_extractor").Inc()
			continue
		}

		if err := s.st.RemovePendingAu(ctx, e.PluginID, e.AuKey); err != nil {
			return started, err
		}
		s.start(ctx, au, ref, e.FullReindex)
		started++
	}
	return started, nil
}

// start runs a task for au on the worker pool.
func (s *Scheduler) start(ctx context.Context, au content.AU, ref store.AuRef, full bool) {
	task := NewTask(TaskConfig{
		AU:          au,
		FullReindex: full,
		Store:       s.st,
		Content:     s.content,
		Normalizer:  s.normalizer,
		Logger:      s.logger,
		Now:         s.now,
	})

	s.mu.Lock()
	timeout := s.settings.WatchdogTimeout
	stepSize := s.settings.StepSize
	at := &activeTask{task: task, ref: ref, done: make(chan struct{})}
	at.wd = NewWatchdog(timeout, func(idle time.Duration) {
		s.logger.Error("reindexing task stalled", "au", au.ID, "task_id", task.ID(), "idle", idle)
		s.metrics.Stalls.Inc()
		task.markStalled()
	})
	s.active[au.ID] = at
	s.history = prependBounded(s.history, task, s.settings.HistorySize)
	s.metrics.Active.Set(float64(len(s.active)))
	s.mu.Unlock()

	taskCtx := context.WithoutCancel(ctx)
	s.pool.submit(task.ID(), func() {
		wdCtx, stopWatchdog := context.WithCancel(taskCtx)
		go at.wd.Run(wdCtx)
		outcome := task.Run(taskCtx, stepSize, at.wd)
		stopWatchdog()

		s.complete(taskCtx, at, outcome)
		s.dispatch(taskCtx)
	})
}

// complete applies the outcome of a finished task to the pending queue,
// the history lists and the counters.
func (s *Scheduler) complete(ctx context.Context, at *activeTask, outcome Outcome) {
	defer close(at.done)

	info := at.task.Info()
	ref := at.ref

	s.mu.Lock()
	retry := s.settings.RetryFailed
	full := at.full || at.task.FullReindex()
	s.mu.Unlock()

	switch outcome {
	case OutcomeFailed:
		switch {
		case errors.Is(at.task.Err(), ErrNoExtractor):
			s.logger.Info("removed pending au", "au", info.AuID, "reason", "no metadata extractor")
			s.metrics.Dropped.WithLabelValues("no_extractor").Inc()
		case retry:
			if err := s.st.SetPendingAu(ctx, ref.PluginID, ref.AuKey, store.PriorityFailed, full); err != nil {
				s.logger.Error("failed to requeue au", "au", info.AuID, "error", err)
			} else {
				s.logger.Info("requeued failed au", "au", info.AuID, "priority", store.PriorityFailed, "reason", info.Error)
			}
		default:
			s.logger.Warn("failed au not requeued", "au", info.AuID, "reason", info.Error, "retry", false)
		}
	case OutcomeRescheduled:
		if _, err := s.st.AddPendingAus(ctx, []store.AuRef{ref}, full); err != nil {
			s.logger.Error("failed to reschedule au", "au", info.AuID, "error", err)
		}
	}

	s.mu.Lock()
	delete(s.active, info.AuID)
	switch outcome {
	case OutcomeSuccess:
		s.counts.Succeeded++
	case OutcomeFailed:
		s.counts.Failed++
		s.failed = replaceFailed(s.failed, at.task, s.settings.HistorySize)
	case OutcomeRescheduled:
		s.counts.Rescheduled++
		s.failed = replaceFailed(s.failed, at.task, s.settings.HistorySize)
	}
	s.counts.Articles += int64(info.Articles)
	s.metrics.Active.Set(float64(len(s.active)))
	s.mu.Unlock()

	s.metrics.TaskCount.WithLabelValues(string(outcome)).Inc()
	s.metrics.TaskDuration.WithLabelValues(string(outcome)).Observe(info.Finished.Sub(info.Started).Seconds())
	s.metrics.Articles.Add(float64(info.Articles))
}

// prependBounded puts t first and drops the oldest entries past limit.
func prependBounded(list []*Task, t *Task, limit int) []*Task {
	list = append([]*Task{t}, list...)
	if limit > 0 && len(list) > limit {
		clear(list[limit:])
		list = list[:limit]
	}
	return list
}

// replaceFailed keeps only the most recent task per AU.
func replaceFailed(list []*Task, t *Task, limit int) []*Task {
	kept := list[:0]
	for _, old := range list {
		if old.AuID() != t.AuID() {
			kept = append(kept, old)
		}
	}
	return prependBounded(kept, t, limit)
}
