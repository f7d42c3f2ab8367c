package content

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jackzampolin/mdindex/internal/metadata"
)

// Memory is a content system held in memory. It backs tests and embedded
// use.
type Memory struct {
	mu      sync.RWMutex
	aus     map[string]AU
	records map[string][]metadata.Record
	failing map[string]error
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		aus:     make(map[string]AU),
		records: make(map[string][]metadata.Record),
		failing: make(map[string]error),
	}
}

// Put adds or replaces an AU and its records. The AU id is derived from
// the plugin id and AU key.
func (m *Memory) Put(au AU, records ...metadata.Record) AU {
	au.ID = metadata.AuID(au.PluginID, au.AuKey)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aus[au.ID] = au
	m.records[au.ID] = slices.Clone(records)
	return au
}

// Remove forgets an AU.
func (m *Memory) Remove(auID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aus, auID)
	delete(m.records, auID)
	delete(m.failing, auID)
}

// Fail makes extraction of the AU fail with err until cleared with a nil
// err.
func (m *Memory) Fail(auID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, auID)
		return
	}
	m.failing[auID] = err
}

// Lookup returns the AU with the given id.
func (m *Memory) Lookup(_ context.Context, auID string) (AU, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	au, ok := m.aus[auID]
	return au, ok, nil
}

// AUs lists the AUs in id order.
func (m *Memory) AUs(_ context.Context) ([]AU, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AU, 0, len(m.aus))
	for _, au := range m.aus {
		out = append(out, au)
	}
	slices.SortFunc(out, func(a, b AU) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Extractor replays the AU's records fetched after t. A failure set by
// Fail is returned instead.
func (m *Memory) Extractor(_ context.Context, au AU, t int64) (Extractor, bool, error) {
	if !au.HasExtractor() {
		return nil, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.failing[au.ID]; ok {
		return nil, false, fmt.Errorf("open extractor for %s: %w", au.ID, err)
	}
	return &sliceExtractor{records: since(slices.Clone(m.records[au.ID]), t)}, true, nil
}

var _ System = (*Memory)(nil)
