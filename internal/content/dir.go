package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/mdindex/internal/metadata"
)

// auSchema validates one AU file of a content directory.
const auSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["plugin_id", "au_key"],
  "properties": {
    "plugin_id": {"type": "string", "minLength": 1},
    "au_key": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "platform": {"type": "string"},
    "extractor_version": {"type": "integer", "minimum": 0},
    "last_crawl": {"type": "integer", "minimum": 0},
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "authors": {"type": "array", "items": {"type": "string"}},
          "keywords": {"type": "array", "items": {"type": "string"}},
          "featured_urls": {"type": "object", "additionalProperties": {"type": "string"}},
          "fetch_time": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

// auFile is the on-disk form of an AU.
type auFile struct {
	PluginID         string            `json:"plugin_id"`
	AuKey            string            `json:"au_key"`
	Name             string            `json:"name"`
	Platform         string            `json:"platform"`
	ExtractorVersion int               `json:"extractor_version"`
	LastCrawl        int64             `json:"last_crawl"`
	Records          []metadata.Record `json:"records"`
}

// DirConfig configures a Dir.
type DirConfig struct {
	Path   string
	Logger *slog.Logger
}

// Dir is a content system backed by a directory holding one JSON file per
// AU. Files that fail schema validation are skipped.
type Dir struct {
	path   string
	logger *slog.Logger
	schema *jsonschema.Schema
	mem    *Memory

	mu    sync.Mutex
	files map[string]AU // file name -> AU
}

// NewDir creates a Dir. Call Load to read the directory.
func NewDir(cfg DirConfig) (*Dir, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("content directory path is required")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("au.json", strings.NewReader(auSchema)); err != nil {
		return nil, fmt.Errorf("failed to load au schema: %w", err)
	}
	schema, err := compiler.Compile("au.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile au schema: %w", err)
	}

	return &Dir{
		path:   cfg.Path,
		logger: logger.With("component", "content", "dir", cfg.Path),
		schema: schema,
		mem:    NewMemory(),
		files:  make(map[string]AU),
	}, nil
}

// Load reads every AU file of the directory.
func (d *Dir) Load(ctx context.Context) error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return fmt.Errorf("failed to read content directory: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !isAUFile(e.Name()) {
			continue
		}
		if _, _, err := d.loadFile(filepath.Join(d.path, e.Name())); err != nil {
			d.logger.Warn("skipping invalid AU file", "file", e.Name(), "error", err)
			continue
		}
		loaded++
	}
	d.logger.Info("content directory loaded", "aus", loaded)
	return nil
}

// loadFile parses and validates one AU file and registers it. It returns
// the AU and the AU previously loaded from the same file, if any.
func (d *Dir) loadFile(path string) (AU, *AU, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AU{}, nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return AU{}, nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return AU{}, nil, fmt.Errorf("au file does not match schema: %w", err)
	}

	var f auFile
	if err := json.Unmarshal(data, &f); err != nil {
		return AU{}, nil, fmt.Errorf("failed to decode au file: %w", err)
	}

	au := d.mem.Put(AU{
		PluginID:         f.PluginID,
		AuKey:            f.AuKey,
		Name:             f.Name,
		Platform:         f.Platform,
		ExtractorVersion: f.ExtractorVersion,
		LastCrawl:        f.LastCrawl,
	}, f.Records...)

	name := filepath.Base(path)
	d.mu.Lock()
	var prev *AU
	if old, ok := d.files[name]; ok {
		prev = &old
	}
	d.files[name] = au
	d.mu.Unlock()

	if prev != nil && prev.ID != au.ID {
		d.mem.Remove(prev.ID)
	}
	return au, prev, nil
}

// unloadFile forgets the AU loaded from a removed file.
func (d *Dir) unloadFile(path string) (AU, bool) {
	name := filepath.Base(path)
	d.mu.Lock()
	au, ok := d.files[name]
	delete(d.files, name)
	d.mu.Unlock()
	if ok {
		d.mem.Remove(au.ID)
	}
	return au, ok
}

// Watch reports AU file changes to fn until ctx is done. A rewritten file
// whose extractor version changed asks for a full reindex.
func (d *Dir) Watch(ctx context.Context, fn func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(d.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", d.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isAUFile(ev.Name) {
					continue
				}
				d.handle(ev, fn)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("content watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (d *Dir) handle(ev fsnotify.Event, fn func(Event)) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if au, ok := d.unloadFile(ev.Name); ok {
			d.logger.Info("AU file removed", "au", au.ID)
			fn(Event{Kind: EventRemoved, AuID: au.ID})
		}

	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		au, prev, err := d.loadFile(ev.Name)
		if err != nil {
			// Editors write in several steps; the final write is valid.
			d.logger.Debug("ignoring unreadable AU file", "file", ev.Name, "error", err)
			return
		}
		full := prev != nil && prev.ExtractorVersion != au.ExtractorVersion
		fn(Event{Kind: EventChanged, AuID: au.ID, Full: full})
		if prev != nil && prev.ID != au.ID {
			fn(Event{Kind: EventRemoved, AuID: prev.ID})
		}
	}
}

func isAUFile(name string) bool {
	return strings.HasSuffix(name, ".json")
}

// Lookup returns the AU loaded from the directory with the given id.
func (d *Dir) Lookup(ctx context.Context, auID string) (AU, bool, error) {
	return d.mem.Lookup(ctx, auID)
}

// AUs lists the AUs loaded from the directory.
func (d *Dir) AUs(ctx context.Context) ([]AU, error) {
	return d.mem.AUs(ctx)
}

// Extractor replays the records of the AU's file fetched after since.
func (d *Dir) Extractor(ctx context.Context, au AU, since int64) (Extractor, bool, error) {
	return d.mem.Extractor(ctx, au, since)
}

var _ System = (*Dir)(nil)
