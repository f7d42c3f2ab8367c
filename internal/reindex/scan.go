package reindex

import (
	"context"

	"github.com/jackzampolin/mdindex/internal/store"
)

// scan adds to the pending queue every AU that needs indexing: AUs never
// indexed, AUs crawled since their last extraction, and, for a full
// reindex, AUs indexed with an older extractor version.
func (s *Scheduler) scan(ctx context.Context) error {
	s.mu.Lock()
	settings := s.settings
	prios := s.priorities
	s.mu.Unlock()

	if !settings.UseExtractor {
		s.logger.Info("skipping initial au scan", "reason", "metadata extractor disabled")
		return nil
	}

	aus, err := s.content.AUs(ctx)
	if err != nil {
		return err
	}

	incremental := NewPendingBatch(s.st, settings.BatchSize, false)
	full := NewPendingBatch(s.st, settings.BatchSize, true)
	for _, au := range aus {
		if !au.HasExtractor() || !prios.Eligible(au.ID) {
			continue
		}
		ref := store.AuRef{PluginID: au.PluginID, AuKey: au.AuKey}

		md, err := s.st.FindAuMd(ctx, au.PluginID, au.AuKey)
		if err != nil {
			return err
		}
		switch {
		case md == nil:
			err = incremental.Add(ctx, ref)
		case md.MdVersion < au.ExtractorVersion:
			err = full.Add(ctx, ref)
		case au.LastCrawl > md.ExtractTime:
			err = incremental.Add(ctx, ref)
		}
		if err != nil {
			return err
		}
	}

	if err := incremental.Flush(ctx); err != nil {
		return err
	}
	if err := full.Flush(ctx); err != nil {
		return err
	}
	s.logger.Info("initial au scan finished", "aus", len(aus), "added", incremental.Added(), "full_reindex", full.Added())
	return nil
}
