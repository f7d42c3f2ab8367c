package reindex

import (
	"context"
	"fmt"

	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/store"
)

// Enqueue asks for an AU to be reindexed, typically after a crawl changed
// its content. A running task of the AU is rescheduled, unless crawl
// rescheduling is disabled. Otherwise a disabled or failed entry of the AU
// is cleared and the AU is added to the pending queue, flagged for a full
// reindex if asked, and a dispatch pass runs.
func (s *Scheduler) Enqueue(ctx context.Context, auID string, fullReindex bool) error {
	pluginID, auKey, err := metadata.SplitAuID(auID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	at, running := s.active[auID]
	noReschedule := s.settings.DisableCrawlReschedule
	if running && !noReschedule && fullReindex {
		at.full = true
	}
	s.mu.Unlock()

	if running {
		if noReschedule {
			s.logger.Debug("au is being indexed, not rescheduled", "au", auID)
			return nil
		}
		at.task.Reschedule()
		s.logger.Info("rescheduled running task", "au", auID, "full", fullReindex)
		return nil
	}

	ref := store.AuRef{PluginID: pluginID, AuKey: auKey}
	err = s.st.WithTx(ctx, func(tx store.Store) error {
		if err := tx.RemoveDisabledPendingAu(ctx, pluginID, auKey); err != nil {
			return err
		}
		failed, err := tx.PendingAusWithPriority(ctx, store.PriorityFailed)
		if err != nil {
			return err
		}
		for _, f := range failed {
			if f == ref {
				if err := tx.RemovePendingAu(ctx, pluginID, auKey); err != nil {
					return err
				}
				break
			}
		}
		_, err = tx.AddPendingAus(ctx, []store.AuRef{ref}, fullReindex)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("au enqueued", "au", auID, "full", fullReindex)

	_, err = s.PollAndDispatch(ctx)
	return err
}

// Disable cancels any running task of the AU, waits for it, and marks the
// AU disabled in the pending queue, so it is not indexed until enqueued
// again.
func (s *Scheduler) Disable(ctx context.Context, auID string) error {
	pluginID, auKey, err := metadata.SplitAuID(auID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	at, running := s.active[auID]
	s.mu.Unlock()
	if running {
		at.task.Cancel()
		s.logger.Info("cancelled running task", "au", auID, "reason", "au disabled")
		// The failed task requeues itself before done is closed.
		select {
		case <-at.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.st.SetPendingAu(ctx, pluginID, auKey, store.PriorityDisabled, false); err != nil {
		return err
	}
	s.logger.Info("disabled au", "au", auID)
	return nil
}

// Cancel stops the running task of the AU at its next step boundary. The
// task fails, so the AU is requeued at failed priority unless retrying
// failed tasks is disabled. It reports whether a task was running.
func (s *Scheduler) Cancel(auID string) bool {
	s.mu.Lock()
	at, ok := s.active[auID]
	s.mu.Unlock()
	if ok {
		at.task.Cancel()
	}
	return ok
}

// Reschedule stops the running task of the AU and puts the AU back in the
// pending queue for a fresh pass. It reports whether a task was running.
func (s *Scheduler) Reschedule(auID string) bool {
	s.mu.Lock()
	at, ok := s.active[auID]
	s.mu.Unlock()
	if ok {
		at.task.Reschedule()
	}
	return ok
}

// DeleteAu removes an AU the content system no longer has: its running
// task is cancelled and waited for, then its metadata and pending entry
// are deleted.
func (s *Scheduler) DeleteAu(ctx context.Context, auID string) error {
	pluginID, auKey, err := metadata.SplitAuID(auID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	at, running := s.active[auID]
	s.mu.Unlock()
	if running {
		at.task.Cancel()
		select {
		case <-at.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.deleteAu(ctx, store.AuRef{PluginID: pluginID, AuKey: auKey}); err != nil {
		return err
	}
	s.logger.Info("deleted au", "au", auID, "reason", "au removed")
	return nil
}

func (s *Scheduler) deleteAu(ctx context.Context, ref store.AuRef) error {
	return s.st.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.DeleteAu(ctx, ref.PluginID, ref.AuKey); err != nil {
			return err
		}
		return tx.RemovePendingAu(ctx, ref.PluginID, ref.AuKey)
	})
}

// HandleEvent applies a content change: a changed AU is enqueued, a
// removed one deleted.
func (s *Scheduler) HandleEvent(ctx context.Context, ev content.Event) error {
	switch ev.Kind {
	case content.EventChanged:
		return s.Enqueue(ctx, ev.AuID, ev.Full)
	case content.EventRemoved:
		return s.DeleteAu(ctx, ev.AuID)
	default:
		return fmt.Errorf("unknown content event %q", ev.Kind)
	}
}
