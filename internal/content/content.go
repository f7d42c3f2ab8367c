// Package content is the boundary to the system that holds archival units
// and extracts article metadata from them.
package content

import (
	"context"
	"errors"
	"io"

	"github.com/jackzampolin/mdindex/internal/metadata"
)

// ErrRetryable marks extraction failures that may succeed on a later run.
var ErrRetryable = errors.New("retryable extraction failure")

// AU describes an archival unit known to the content system.
type AU struct {
	ID       string `json:"id"`
	PluginID string `json:"plugin_id"`
	AuKey    string `json:"au_key"`
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`

	// ExtractorVersion is the version of the plugin's metadata extractor,
	// zero when the plugin has none.
	ExtractorVersion int `json:"extractor_version"`

	// LastCrawl is the unix ms time of the last completed crawl.
	LastCrawl int64 `json:"last_crawl,omitempty"`
}

// HasExtractor reports whether metadata can be extracted from the AU.
func (a AU) HasExtractor() bool {
	return a.ExtractorVersion > 0
}

// System is the content system contract.
type System interface {
	// Lookup returns the AU with the given id; found is false when the AU
	// is no longer configured.
	Lookup(ctx context.Context, auID string) (au AU, found bool, err error)

	// AUs lists every configured AU.
	AUs(ctx context.Context) ([]AU, error)

	// Extractor opens one pass over the AU's records fetched after since
	// (unix ms; zero for all). ok is false when the AU has no extractor.
	Extractor(ctx context.Context, au AU, since int64) (ex Extractor, ok bool, err error)
}

// Extractor yields the records of one extraction pass. Next returns io.EOF
// after the last record.
type Extractor interface {
	Next(ctx context.Context) (metadata.Record, error)
	Close() error
}

// EventKind says what happened to an AU.
type EventKind string

const (
	EventChanged EventKind = "changed"
	EventRemoved EventKind = "removed"
)

// Event reports a change of an AU detected by a watching content system.
type Event struct {
	Kind EventKind
	AuID string
	Full bool
}

// sliceExtractor serves records from memory.
type sliceExtractor struct {
	records []metadata.Record
	next    int
}

func (e *sliceExtractor) Next(ctx context.Context) (metadata.Record, error) {
	if err := ctx.Err(); err != nil {
		return metadata.Record{}, err
	}
	if e.next >= len(e.records) {
		return metadata.Record{}, io.EOF
	}
	rec := e.records[e.next]
	e.next++
	return rec, nil
}

func (e *sliceExtractor) Close() error { return nil }

// since keeps the records fetched after t. Records without a fetch time
// are always kept.
func since(records []metadata.Record, t int64) []metadata.Record {
	if t <= 0 {
		return records
	}
	out := make([]metadata.Record, 0, len(records))
	for _, rec := range records {
		if rec.FetchTime == 0 || rec.FetchTime > t {
			out = append(out, rec)
		}
	}
	return out
}
