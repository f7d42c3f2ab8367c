// Package reconcile repairs metadata that was filed under synthetic
// identities once the real identity is known. Synthetic titles are replaced
// in place; publications of a synthetic publisher are merged into the
// publication the AU resolves to now.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/store"
)

// Config configures an Engine.
type Config struct {
	Logger *slog.Logger
}

// Engine runs reconciliation against a transactional store handle passed
// to each call. It holds no per-AU state.
type Engine struct {
	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "reconcile")}
}

// Target is where data of synthetic publishers is merged to: the
// publisher, publication and publication root item the AU resolved to.
type Target struct {
	PluginID      string
	AuKey         string
	PublisherID   int64
	PublicationID int64
	MdItemID      int64
}

// Result counts the changes made by FixUnknownPublishers.
type Result struct {
	Publishers   int
	Publications int
	MergedItems  int
	MovedItems   int
	Aggregates   int
}

// Changed reports whether anything was merged or deleted.
func (r Result) Changed() bool {
	return r != Result{}
}

// ReplaceUnknownTitle reconciles the primary name of a publication root
// item with the title a record resolved to. A genuine title replaces a
// synthesized primary name and drops the non-primary copy of the title.
// When the title itself is synthesized and the stored primary name is
// genuine, the synthesized alternate names are purged and the stored name
// is returned as the title to use.
func (e *Engine) ReplaceUnknownTitle(ctx context.Context, st store.Store, mdItemID int64, root, title string) (string, error) {
	names, err := st.MdItemNames(ctx, mdItemID)
	if err != nil {
		return title, err
	}

	for _, n := range names {
		if !n.Primary {
			continue
		}

		if metadata.IsUnknownTitle(title, root) {
			if metadata.IsUnknownTitle(n.Name, root) {
				return title, nil
			}
			for _, other := range names {
				if !other.Primary && metadata.IsUnknownTitle(other.Name, root) {
					if err := st.DeleteMdItemName(ctx, mdItemID, other.Name); err != nil {
						return title, err
					}
				}
			}
			return n.Name, nil
		}

		if metadata.IsUnknownTitle(n.Name, root) {
			e.logger.Info("replacing synthesized title", "md_item", mdItemID, "from", n.Name, "to", title)
			if err := st.UpdatePrimaryName(ctx, mdItemID, title); err != nil {
				return title, err
			}
		}
		return title, nil
	}
	return title, nil
}

// FixUnknownPublishers merges the data of every synthetic publisher named
// in problems into target, then deletes the synthetic publishers and
// clears the problems. Problems that do not name a synthetic publisher are
// left alone.
func (e *Engine) FixUnknownPublishers(ctx context.Context, st store.Store, target Target, problems []string) (Result, error) {
	var res Result
	for _, problem := range problems {
		if !metadata.IsUnknownPublisher(problem) {
			continue
		}
		if err := e.fixUnknownPublisher(ctx, st, target, problem, &res); err != nil {
			return res, fmt.Errorf("failed to merge %s: %w", problem, err)
		}
	}
	if res.Changed() {
		e.logger.Info("merged unknown publisher data",
			"au", metadata.AuID(target.PluginID, target.AuKey),
			"publishers", res.Publishers,
			"publications", res.Publications,
			"merged_items", res.MergedItems,
			"moved_items", res.MovedItems)
	}
	return res, nil
}

func (e *Engine) fixUnknownPublisher(ctx context.Context, st store.Store, target Target, name string, res *Result) error {
	unknownID, found, err := st.FindPublisher(ctx, name)
	if err != nil {
		return err
	}

	if found && unknownID != target.PublisherID {
		publications, err := st.PublisherPublications(ctx, unknownID)
		if err != nil {
			return err
		}

		byName, err := e.childrenByName(ctx, st, target.MdItemID)
		if err != nil {
			return err
		}

		for _, pubID := range publications {
			if pubID == target.PublicationID {
				continue
			}
			if err := e.mergePublication(ctx, st, target, pubID, byName, res); err != nil {
				return err
			}
		}

		remaining, err := st.PublisherPublications(ctx, unknownID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := st.DeletePublisher(ctx, unknownID); err != nil {
				return err
			}
			res.Publishers++
		} else {
			e.logger.Warn("unknown publisher still owns publications", "publisher", name, "publications", len(remaining))
		}
	}

	return st.RemoveAuProblem(ctx, target.PluginID, target.AuKey, name)
}

// childrenByName maps every name of the children of an item to the child.
func (e *Engine) childrenByName(ctx context.Context, st store.Store, parentID int64) (map[string]int64, error) {
	children, err := st.ChildMdItems(ctx, parentID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64)
	for _, child := range children {
		names, err := st.MdItemNames(ctx, child)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			byName[n.Name] = child
		}
	}
	return byName, nil
}

// mergePublication moves one publication of a synthetic publisher into the
// target publication and deletes it.
func (e *Engine) mergePublication(ctx context.Context, st store.Store, target Target, pubID int64, byName map[string]int64, res *Result) error {
	rootID, err := st.PublicationMdItem(ctx, pubID)
	if err != nil {
		return err
	}

	children, err := st.ChildMdItems(ctx, rootID)
	if err != nil {
		return err
	}
	for _, child := range children {
		names, err := st.MdItemNames(ctx, child)
		if err != nil {
			return err
		}

		merged := false
		for _, n := range names {
			match, ok := byName[n.Name]
			if !ok {
				continue
			}
			if err := mergeChild(ctx, st, child, match); err != nil {
				return err
			}
			merged = true
			res.MergedItems++
			break
		}
		if merged {
			continue
		}

		if err := st.SetMdItemParent(ctx, child, target.MdItemID); err != nil {
			return err
		}
		for _, n := range names {
			byName[n.Name] = child
		}
		res.MovedItems++
	}

	if err := mergeParent(ctx, st, rootID, target.MdItemID); err != nil {
		return err
	}

	n, err := st.MergeRequestAggregates(ctx, pubID, target.PublicationID)
	if err != nil {
		return err
	}
	res.Aggregates += n

	// The root item goes together with the children that were merged
	// above; moved children hang off the target by now.
	if err := st.DeleteMdItem(ctx, rootID); err != nil {
		return err
	}
	if err := st.DeletePublication(ctx, pubID); err != nil {
		return err
	}
	res.Publications++
	return nil
}

// mergeChild adds the names, authors, keywords and URLs of one leaf item
// to another.
func mergeChild(ctx context.Context, st store.Store, sourceID, targetID int64) error {
	if sourceID == targetID {
		return nil
	}
	if err := mergeNames(ctx, st, sourceID, targetID); err != nil {
		return err
	}

	authors, err := st.Authors(ctx, sourceID)
	if err != nil {
		return err
	}
	if _, err := st.AddAuthors(ctx, targetID, authors); err != nil {
		return err
	}

	keywords, err := st.Keywords(ctx, sourceID)
	if err != nil {
		return err
	}
	if _, err := st.AddKeywords(ctx, targetID, keywords); err != nil {
		return err
	}

	urls, err := st.URLs(ctx, sourceID)
	if err != nil {
		return err
	}
	_, err = st.AddURLs(ctx, targetID, urls)
	return err
}

// mergeParent adds the names and identifiers of one publication root item
// to another.
func mergeParent(ctx context.Context, st store.Store, sourceID, targetID int64) error {
	if sourceID == targetID {
		return nil
	}
	if err := mergeNames(ctx, st, sourceID, targetID); err != nil {
		return err
	}

	issns, err := st.Issns(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, id := range issns {
		if _, err := st.AddIssn(ctx, targetID, id.Value, id.Type); err != nil {
			return err
		}
	}

	isbns, err := st.Isbns(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, id := range isbns {
		if _, err := st.AddIsbn(ctx, targetID, id.Value, id.Type); err != nil {
			return err
		}
	}

	proprietary, err := st.ProprietaryIDs(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, v := range proprietary {
		if _, err := st.AddProprietaryID(ctx, targetID, v); err != nil {
			return err
		}
	}
	return nil
}

// mergeNames adds every name of source to target as a non-primary name.
// Synthesized titles are not carried over.
func mergeNames(ctx context.Context, st store.Store, sourceID, targetID int64) error {
	names, err := st.MdItemNames(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, n := range names {
		if strings.HasPrefix(n.Name, metadata.UnknownTitlePrefix) || strings.HasPrefix(n.Name, metadata.UnknownSeriesPrefix) {
			continue
		}
		if _, err := st.AddMdItemName(ctx, targetID, n.Name, false); err != nil {
			return err
		}
	}
	return nil
}
