package reindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/resolve"
	"github.com/jackzampolin/mdindex/internal/store"
	"github.com/jackzampolin/mdindex/internal/testutil"
)

func TestScheduler_ConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a, b, c := putAU(g.Memory, "a", 1), putAU(g.Memory, "b", 1), putAU(g.Memory, "c", 1)
	mustAddPending(t, st, a, b, c)

	settings := testSettings()
	settings.MaxTasks = 2
	s := newTestScheduler(t, st, g, settings)

	started, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, started)
	opened := []string{waitOpened(t, g), waitOpened(t, g)}
	require.ElementsMatch(t, []string{a.ID, b.ID}, opened)
	require.Equal(t, []string{a.ID, b.ID}, s.ActiveAuIDs())
	require.True(t, isPending(t, st, c))

	t.Run("full scheduler starts nothing", func(t *testing.T) {
		started, err := s.PollAndDispatch(ctx)
		require.NoError(t, err)
		require.Zero(t, started)
	})

	t.Run("finishing a task starts the next", func(t *testing.T) {
		g.release(a.ID)
		require.Equal(t, c.ID, waitOpened(t, g))
		require.False(t, isPending(t, st, c))
		require.LessOrEqual(t, len(s.ActiveAuIDs()), 2)
	})

	t.Run("all succeed", func(t *testing.T) {
		g.release(b.ID)
		g.release(c.ID)
		waitIdle(t, s)

		status := mustStatus(t, s)
		require.Equal(t, int64(3), status.Counts.Succeeded)
		require.Equal(t, int64(3), status.Counts.Articles)
		require.Len(t, status.History, 3)
		require.Empty(t, status.FailedTasks)
		require.Equal(t, c.ID, status.History[0].AuID)
	})
}

func TestScheduler_OneTaskPerAU(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a := putAU(g.Memory, "a", 2)
	mustAddPending(t, st, a)

	settings := testSettings()
	settings.MaxTasks = 3
	s := newTestScheduler(t, st, g, settings)

	started, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, started)
	waitOpened(t, g)

	mustAddPending(t, st, a)
	started, err = s.PollAndDispatch(ctx)
	require.NoError(t, err)
	require.Zero(t, started)
	require.Equal(t, []string{a.ID}, s.ActiveAuIDs())
	require.True(t, isPending(t, st, a))

	g.release(a.ID)
	waitIdle(t, s)
}

func TestScheduler_Cancel(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a := putAU(g.Memory, "a", 3)
	mustAddPending(t, st, a)

	s := newTestScheduler(t, st, g, testSettings())
	_, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	waitOpened(t, g)

	require.True(t, s.Cancel(a.ID))
	g.release(a.ID)
	waitIdle(t, s)

	status := mustStatus(t, s)
	require.Len(t, status.History, 1)
	info := status.History[0]
	require.Equal(t, StateFinished, info.State)
	require.Equal(t, OutcomeFailed, info.Outcome)
	require.Equal(t, ErrCancelled.Error(), info.Error)
	// The record in flight when the flag was set is the last one committed.
	require.Equal(t, 1, info.Articles)
	require.Equal(t, int64(1), status.Counts.Failed)
	require.Len(t, status.FailedTasks, 1)
	require.Equal(t, a.ID, status.FailedTasks[0].AuID)

	failed, err := st.PendingAusWithPriority(ctx, store.PriorityFailed)
	require.NoError(t, err)
	require.Equal(t, []store.AuRef{{PluginID: a.PluginID, AuKey: a.AuKey}}, failed)

	md, err := st.FindAuMd(ctx, a.PluginID, a.AuKey)
	require.NoError(t, err)
	require.NotNil(t, md)
	require.Zero(t, md.ExtractTime, "a cancelled run must not commit its extraction time")

	require.False(t, s.Cancel(a.ID))
}

func TestScheduler_EnqueueReschedulesRunningTask(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a := putAU(g.Memory, "a", 2)
	mustAddPending(t, st, a)

	s := newTestScheduler(t, st, g, testSettings())
	_, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	waitOpened(t, g)

	require.NoError(t, s.Enqueue(ctx, a.ID, true))
	g.release(a.ID)

	// The rescheduled pass runs again from the pending queue.
	require.Equal(t, a.ID, waitOpened(t, g))
	waitIdle(t, s)

	status := mustStatus(t, s)
	require.Equal(t, int64(1), status.Counts.Rescheduled)
	require.Equal(t, int64(1), status.Counts.Succeeded)
	require.Len(t, status.History, 2)
	require.True(t, status.History[0].Full)
	require.Equal(t, OutcomeSuccess, status.History[0].Outcome)
	require.Len(t, status.FailedTasks, 1)
	require.Equal(t, OutcomeRescheduled, status.FailedTasks[0].Outcome)
}

func TestScheduler_EnqueueWithCrawlRescheduleDisabled(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a := putAU(g.Memory, "a", 1)
	mustAddPending(t, st, a)

	settings := testSettings()
	settings.DisableCrawlReschedule = true
	s := newTestScheduler(t, st, g, settings)
	_, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	waitOpened(t, g)

	require.NoError(t, s.Enqueue(ctx, a.ID, false))
	require.False(t, isPending(t, st, a))

	g.release(a.ID)
	waitIdle(t, s)
	status := mustStatus(t, s)
	require.Zero(t, status.Counts.Rescheduled)
	require.Equal(t, int64(1), status.Counts.Succeeded)
}

func TestScheduler_FailedTaskIsRequeued(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	mem := content.NewMemory()
	a := putAU(mem, "a", 1)
	mem.Fail(a.ID, errors.New("disk gone"))
	mustAddPending(t, st, a)

	s := newTestScheduler(t, st, mem, testSettings())
	_, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	waitIdle(t, s)

	status := mustStatus(t, s)
	require.Equal(t, int64(1), status.Counts.Failed)
	require.Len(t, status.FailedTasks, 1)
	require.Contains(t, status.FailedTasks[0].Error, "disk gone")
	require.Zero(t, status.Pending)

	failed, err := st.PendingAusWithPriority(ctx, store.PriorityFailed)
	require.NoError(t, err)
	require.Equal(t, []store.AuRef{{PluginID: a.PluginID, AuKey: a.AuKey}}, failed)

	t.Run("enqueue clears the failed entry", func(t *testing.T) {
		mem.Fail(a.ID, nil)
		require.NoError(t, s.Enqueue(ctx, a.ID, false))
		waitIdle(t, s)

		status := mustStatus(t, s)
		require.Equal(t, int64(1), status.Counts.Succeeded)
		require.Len(t, status.FailedTasks, 1)
		require.False(t, isPending(t, st, a))
	})

	t.Run("retry disabled drops the au", func(t *testing.T) {
		settings := testSettings()
		settings.RetryFailed = false
		require.NoError(t, s.ApplyConfig(ctx, settings))

		mem.Fail(a.ID, errors.New("disk gone again"))
		require.NoError(t, s.Enqueue(ctx, a.ID, false))
		waitIdle(t, s)
		require.False(t, isPending(t, st, a))
		require.Equal(t, int64(2), mustStatus(t, s).Counts.Failed)
		require.Len(t, mustStatus(t, s).FailedTasks, 1)
	})
}

func TestScheduler_HousekeepingDrops(t *testing.T) {
	ctx := context.Background()

	t.Run("au without extractor", func(t *testing.T) {
		st := testutil.Store(t)
		mem := content.NewMemory()
		a := mem.Put(content.AU{PluginID: testPlugin, AuKey: "a"})
		mustAddPending(t, st, a)

		s := newTestScheduler(t, st, mem, testSettings())
		started, err := s.PollAndDispatch(ctx)
		require.NoError(t, err)
		require.Zero(t, started)
		require.False(t, isPending(t, st, a))
	})

	t.Run("extractor use disabled", func(t *testing.T) {
		st := testutil.Store(t)
		mem := content.NewMemory()
		a := putAU(mem, "a", 1)
		mustAddPending(t, st, a)

		settings := testSettings()
		settings.UseExtractor = false
		s := newTestScheduler(t, st, mem, settings)
		started, err := s.PollAndDispatch(ctx)
		require.NoError(t, err)
		require.Zero(t, started)
		require.False(t, isPending(t, st, a))
	})

	t.Run("ineligible au is disabled", func(t *testing.T) {
		st := testutil.Store(t)
		mem := content.NewMemory()
		a := putAU(mem, "skipme", 1)
		mustAddPending(t, st, a)

		settings := testSettings()
		settings.PriorityMap = []string{"skipme,-1"}
		s := newTestScheduler(t, st, mem, settings)
		started, err := s.PollAndDispatch(ctx)
		require.NoError(t, err)
		require.Zero(t, started)

		disabled, err := st.PendingAusWithPriority(ctx, store.PriorityDisabled)
		require.NoError(t, err)
		require.Equal(t, []store.AuRef{{PluginID: a.PluginID, AuKey: a.AuKey}}, disabled)
	})

	t.Run("au gone deletes its metadata", func(t *testing.T) {
		st := testutil.Store(t)
		mem := content.NewMemory()
		a := putAU(mem, "a", 2)
		mustAddPending(t, st, a)

		s := newTestScheduler(t, st, mem, testSettings())
		_, err := s.PollAndDispatch(ctx)
		require.NoError(t, err)
		waitIdle(t, s)

		md, err := st.FindAuMd(ctx, a.PluginID, a.AuKey)
		require.NoError(t, err)
		require.NotNil(t, md)

		mem.Remove(a.ID)
		mustAddPending(t, st, a)
		started, err := s.PollAndDispatch(ctx)
		require.NoError(t, err)
		require.Zero(t, started)

		md, err = st.FindAuMd(ctx, a.PluginID, a.AuKey)
		require.NoError(t, err)
		require.Nil(t, md)
		require.False(t, isPending(t, st, a))
	})
}

func TestScheduler_RemovedEventCancelsAndDeletes(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a := putAU(g.Memory, "a", 3)
	mustAddPending(t, st, a)

	s := newTestScheduler(t, st, g, testSettings())
	_, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	waitOpened(t, g)

	done := make(chan error, 1)
	go func() {
		done <- s.HandleEvent(ctx, content.Event{Kind: content.EventRemoved, AuID: a.ID})
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		at := s.active[a.ID]
		s.mu.Unlock()
		return at != nil && at.task.stopRequested() == OutcomeFailed
	}, 5*time.Second, 10*time.Millisecond)
	g.release(a.ID)
	require.NoError(t, <-done)

	require.Empty(t, s.ActiveAuIDs())
	md, err := st.FindAuMd(ctx, a.PluginID, a.AuKey)
	require.NoError(t, err)
	require.Nil(t, md)
	require.False(t, isPending(t, st, a), "the failed requeue is deleted with the au")
	require.Equal(t, OutcomeFailed, mustStatus(t, s).History[0].Outcome)
}

func TestScheduler_Disable(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	mem := content.NewMemory()
	a := putAU(mem, "a", 1)
	mustAddPending(t, st, a)

	s := newTestScheduler(t, st, mem, testSettings())
	require.NoError(t, s.Disable(ctx, a.ID))

	started, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	require.Zero(t, started)
	require.True(t, isPending(t, st, a))

	require.NoError(t, s.Enqueue(ctx, a.ID, false))
	waitIdle(t, s)
	require.False(t, isPending(t, st, a))
	require.Equal(t, int64(1), mustStatus(t, s).Counts.Succeeded)
}

func TestScheduler_DisableRunningTask(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a := putAU(g.Memory, "a", 3)
	mustAddPending(t, st, a)

	s := newTestScheduler(t, st, g, testSettings())
	_, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	waitOpened(t, g)

	done := make(chan error, 1)
	go func() { done <- s.Disable(ctx, a.ID) }()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		at := s.active[a.ID]
		s.mu.Unlock()
		return at != nil && at.task.stopRequested() == OutcomeFailed
	}, 5*time.Second, 10*time.Millisecond)
	g.release(a.ID)
	require.NoError(t, <-done)
	require.Empty(t, s.ActiveAuIDs())

	disabled, err := st.PendingAusWithPriority(ctx, store.PriorityDisabled)
	require.NoError(t, err)
	require.Equal(t, []store.AuRef{{PluginID: a.PluginID, AuKey: a.AuKey}}, disabled)
	failed, err := st.PendingAusWithPriority(ctx, store.PriorityFailed)
	require.NoError(t, err)
	require.Empty(t, failed)

	status := mustStatus(t, s)
	require.Len(t, status.FailedTasks, 1)
	require.Equal(t, ErrCancelled.Error(), status.FailedTasks[0].Error)
}

func TestScheduler_SetIndexingEnabled(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	mem := content.NewMemory()

	// b was indexed with an older extractor, c was crawled after its last
	// extraction, d is current and e cannot be extracted.
	a := putAU(mem, "a", 1)
	for _, key := range []string{"b", "c", "d"} {
		au := putAU(mem, key, 0)
		sess := resolve.NewSession(resolve.SessionConfig{
			Store: st,
			AU: resolve.AU{
				PluginID:         au.PluginID,
				AuKey:            au.AuKey,
				ExtractorVersion: 1,
			},
			Logger: testutil.Logger(t),
		})
		require.NoError(t, sess.Record(ctx, testRecord(key, 0)))
		_, err := sess.Finish(ctx)
		require.NoError(t, err)
	}
	b := mem.Put(content.AU{PluginID: testPlugin, AuKey: "b", ExtractorVersion: 2})
	c := mem.Put(content.AU{PluginID: testPlugin, AuKey: "c", ExtractorVersion: 1, LastCrawl: 1 << 62})
	mem.Put(content.AU{PluginID: testPlugin, AuKey: "e"})

	settings := testSettings()
	settings.Enabled = false
	settings.MaxTasks = 0
	s := newTestScheduler(t, st, mem, settings)

	require.NoError(t, s.SetIndexingEnabled(ctx, true))
	entries, err := st.EnabledPendingAus(ctx)
	require.NoError(t, err)

	type pending struct {
		AuKey string
		Full  bool
	}
	var got []pending
	for _, e := range entries {
		got = append(got, pending{AuKey: e.AuKey, Full: e.FullReindex})
	}
	want := []pending{{AuKey: a.AuKey}, {AuKey: c.AuKey}, {AuKey: b.AuKey, Full: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scanned aus mismatch (-want +got):\n%s", diff)
	}

	t.Run("second enable does not scan again", func(t *testing.T) {
		require.NoError(t, s.SetIndexingEnabled(ctx, false))
		require.NoError(t, st.RemovePendingAu(ctx, a.PluginID, a.AuKey))
		require.NoError(t, s.SetIndexingEnabled(ctx, true))
		require.False(t, isPending(t, st, a))
	})
}

func TestScheduler_ApplyConfig(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	g := newGatedContent()
	a := putAU(g.Memory, "a", 2)
	mustAddPending(t, st, a)

	s := newTestScheduler(t, st, g, testSettings())
	_, err := s.PollAndDispatch(ctx)
	require.NoError(t, err)
	waitOpened(t, g)

	t.Run("invalid priority map keeps the old one", func(t *testing.T) {
		settings := testSettings()
		settings.PriorityMap = []string{"([,5"}
		require.NoError(t, s.ApplyConfig(ctx, settings))
		require.Empty(t, s.Settings().PriorityMap)
		require.Equal(t, []string{a.ID}, s.ActiveAuIDs())
	})

	t.Run("abort priority cancels the running task", func(t *testing.T) {
		settings := testSettings()
		settings.PriorityMap = []string{"TestPlugin,-20001"}
		require.NoError(t, s.ApplyConfig(ctx, settings))
		g.release(a.ID)
		waitIdle(t, s)
		require.Equal(t, OutcomeFailed, mustStatus(t, s).History[0].Outcome)

		failed, err := st.PendingAusWithPriority(ctx, store.PriorityFailed)
		require.NoError(t, err)
		require.Equal(t, []store.AuRef{{PluginID: a.PluginID, AuKey: a.AuKey}}, failed)
	})
}

func TestScheduler_PendingAuIDs(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	mem := content.NewMemory()
	a, b, c := putAU(mem, "a", 1), putAU(mem, "b", 1), putAU(mem, "c", 1)
	for _, au := range []content.AU{a, b, c} {
		require.NoError(t, st.SetPendingAu(ctx, au.PluginID, au.AuKey, 5, false))
	}

	// b already has metadata.
	sess := resolve.NewSession(resolve.SessionConfig{
		Store:  st,
		AU:     resolve.AU{PluginID: b.PluginID, AuKey: b.AuKey, ExtractorVersion: 1},
		Logger: testutil.Logger(t),
	})
	require.NoError(t, sess.Record(ctx, testRecord("b", 0)))

	t.Run("new aus first among equal priorities", func(t *testing.T) {
		settings := testSettings()
		settings.Enabled = false
		s := newTestScheduler(t, st, mem, settings)

		ids, err := s.PendingAuIDs(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, []string{a.ID, c.ID, b.ID}, ids)

		ids, err = s.PendingAuIDs(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, []string{a.ID}, ids)
	})

	t.Run("queue order without new au preference", func(t *testing.T) {
		settings := testSettings()
		settings.Enabled = false
		settings.PrioritizeNew = false
		s := newTestScheduler(t, st, mem, settings)

		ids, err := s.PendingAuIDs(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, []string{a.ID, b.ID, c.ID}, ids)
	})
}
