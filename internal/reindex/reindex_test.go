package reindex

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/store"
	"github.com/jackzampolin/mdindex/internal/testutil"
)

const testPlugin = "org.example.TestPlugin"

// gatedContent holds every extraction pass at its first record until the
// AU's gate is released. The AU id is sent on opened when a pass reaches
// that point.
type gatedContent struct {
	*content.Memory

	mu       sync.Mutex
	gates    map[string]chan struct{}
	released map[string]bool
	opened   chan string
}

func newGatedContent() *gatedContent {
	return &gatedContent{
		Memory:   content.NewMemory(),
		gates:    make(map[string]chan struct{}),
		released: make(map[string]bool),
		opened:   make(chan string, 32),
	}
}

func (g *gatedContent) gate(auID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[auID]
	if !ok {
		ch = make(chan struct{})
		g.gates[auID] = ch
	}
	return ch
}

func (g *gatedContent) release(auID string) {
	ch := g.gate(auID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.released[auID] {
		g.released[auID] = true
		close(ch)
	}
}

func (g *gatedContent) releaseAll() {
	g.mu.Lock()
	ids := make([]string, 0, len(g.gates))
	for id := range g.gates {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	for _, id := range ids {
		g.release(id)
	}
}

func (g *gatedContent) Extractor(ctx context.Context, au content.AU, since int64) (content.Extractor, bool, error) {
	ex, ok, err := g.Memory.Extractor(ctx, au, since)
	if err != nil || !ok {
		return ex, ok, err
	}
	return &gatedExtractor{Extractor: ex, auID: au.ID, gate: g.gate(au.ID), opened: g.opened}, true, nil
}

type gatedExtractor struct {
	content.Extractor
	auID    string
	gate    <-chan struct{}
	opened  chan<- string
	started bool
}

func (e *gatedExtractor) Next(ctx context.Context) (metadata.Record, error) {
	if !e.started {
		e.started = true
		e.opened <- e.auID
	}
	select {
	case <-e.gate:
	case <-ctx.Done():
		return metadata.Record{}, ctx.Err()
	}
	return e.Extractor.Next(ctx)
}

func testRecord(auKey string, n int) metadata.Record {
	return metadata.Record{
		Publisher:        "ACME",
		PublicationTitle: "Journal of Tests",
		Issn:             "1234-5679",
		Volume:           "1",
		ArticleTitle:     fmt.Sprintf("Article %d", n),
		AccessURL:        fmt.Sprintf("http://example.com/%s/%d", auKey, n),
	}
}

// putAU adds an AU with records of its own to the content system.
func putAU(sys *content.Memory, auKey string, records int) content.AU {
	recs := make([]metadata.Record, records)
	for i := range recs {
		recs[i] = testRecord(auKey, i)
	}
	return sys.Put(content.AU{PluginID: testPlugin, AuKey: auKey, ExtractorVersion: 1}, recs...)
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Enabled = true
	s.StepSize = 1
	s.PollInterval = time.Hour
	s.WatchdogTimeout = 0
	return s
}

func newTestScheduler(t *testing.T, st store.Store, sys content.System, settings Settings) *Scheduler {
	t.Helper()
	s := NewScheduler(Config{
		Store:    st,
		Content:  sys,
		Logger:   testutil.Logger(t),
		Settings: settings,
	})
	t.Cleanup(func() {
		if g, ok := sys.(*gatedContent); ok {
			g.releaseAll()
		}
		s.shutdown()
	})
	return s
}

func mustAddPending(t *testing.T, st store.Store, aus ...content.AU) {
	t.Helper()
	refs := make([]store.AuRef, len(aus))
	for i, au := range aus {
		refs[i] = store.AuRef{PluginID: au.PluginID, AuKey: au.AuKey}
	}
	_, err := st.AddPendingAus(context.Background(), refs, false)
	require.NoError(t, err)
}

func waitOpened(t *testing.T, g *gatedContent) string {
	t.Helper()
	select {
	case id := <-g.opened:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an extraction to start")
		return ""
	}
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.ActiveAuIDs()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func mustStatus(t *testing.T, s *Scheduler) Status {
	t.Helper()
	st, err := s.Status(context.Background())
	require.NoError(t, err)
	return st
}

func isPending(t *testing.T, st store.Store, au content.AU) bool {
	t.Helper()
	ok, err := st.IsAuPending(context.Background(), au.PluginID, au.AuKey)
	require.NoError(t, err)
	return ok
}
