// Package resolve maps normalized records onto the publisher, publication
// and metadata item hierarchy of the index.
package resolve

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/store"
)

// PublicationRef carries the publication-level fields of a record.
type PublicationRef struct {
	Type                metadata.PublicationType
	Title               string
	SeriesTitle         string
	ProprietaryID       string
	ProprietarySeriesID string
	PIssn               string
	EIssn               string
	PIsbn               string
	EIsbn               string
}

// Identity holds the keys a publication is looked up by.
type Identity struct {
	Title string
	PIssn string
	EIssn string
	PIsbn string
	EIsbn string
}

func (id Identity) hasIssns() bool { return id.PIssn != "" || id.EIssn != "" }
func (id Identity) hasIsbns() bool { return id.PIsbn != "" || id.EIsbn != "" }
func (id Identity) hasName() bool  { return id.Title != "" }

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Logger *slog.Logger
}

// Resolver finds or creates publications. It is stateless; every call runs
// against the store handle it is given, normally a transaction.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With("component", "resolver")}
}

// FindOrCreatePublication returns the publication a record belongs to,
// creating it and its root item when no existing publication matches. A
// book in a series is attached below its series, which is found or
// created first.
func (r *Resolver) FindOrCreatePublication(ctx context.Context, st store.Store, publisherID int64, ref PublicationRef) (int64, error) {
	switch ref.Type {
	case metadata.PublicationBookSeries:
		seriesID, err := r.findOrCreate(ctx, st, publisherID, nil, metadata.ItemTypeBookSeries,
			Identity{Title: ref.SeriesTitle, PIssn: ref.PIssn, EIssn: ref.EIssn}, ref.ProprietarySeriesID)
		if err != nil {
			return 0, err
		}
		seriesRoot, err := st.PublicationMdItem(ctx, seriesID)
		if err != nil {
			return 0, err
		}
		return r.findOrCreate(ctx, st, publisherID, &seriesRoot, metadata.ItemTypeBook,
			Identity{Title: ref.Title, PIsbn: ref.PIsbn, EIsbn: ref.EIsbn}, ref.ProprietaryID)

	case metadata.PublicationBook:
		return r.findOrCreate(ctx, st, publisherID, nil, metadata.ItemTypeBook,
			Identity{Title: ref.Title, PIsbn: ref.PIsbn, EIsbn: ref.EIsbn}, ref.ProprietaryID)

	default:
		id := Identity{Title: ref.Title, PIssn: ref.PIssn, EIssn: ref.EIssn}
		if !id.hasName() && !id.hasIssns() {
			return 0, &metadata.MetadataError{Reason: "journal has no title or ISSN", Err: metadata.ErrNoTitle}
		}
		return r.findOrCreate(ctx, st, publisherID, nil, metadata.ItemTypeJournal, id, ref.ProprietaryID)
	}
}

func (r *Resolver) findOrCreate(ctx context.Context, st store.Store, publisherID int64, parentID *int64, itemType string, id Identity, proprietaryID string) (int64, error) {
	pubID, found, err := r.FindPublication(ctx, st, publisherID, id, itemType)
	if err != nil {
		return 0, err
	}

	var rootID int64
	if found {
		rootID, err = st.PublicationMdItem(ctx, pubID)
		if err != nil {
			return 0, err
		}
		if id.Title != "" {
			if _, err := st.AddMdItemName(ctx, rootID, id.Title, false); err != nil {
				return 0, err
			}
		}
	} else {
		rootID, err = st.AddMdItem(ctx, &store.MdItem{Type: itemType, ParentID: parentID})
		if err != nil {
			return 0, err
		}
		if id.Title != "" {
			if _, err := st.AddMdItemName(ctx, rootID, id.Title, true); err != nil {
				return 0, err
			}
		}
		pubID, err = st.AddPublication(ctx, publisherID, rootID)
		if err != nil {
			return 0, err
		}
		r.logger.Debug("created publication", "publication", pubID, "type", itemType, "title", id.Title)
	}

	if err := addIdentifiers(ctx, st, rootID, id, proprietaryID); err != nil {
		return 0, err
	}
	return pubID, nil
}

// addIdentifiers adds the identifiers the root item does not carry yet.
func addIdentifiers(ctx context.Context, st store.Store, rootID int64, id Identity, proprietaryID string) error {
	typed := []struct {
		value, kind string
		add         func(context.Context, int64, string, string) (bool, error)
	}{
		{id.PIssn, store.IdentifierPrint, st.AddIssn},
		{id.EIssn, store.IdentifierElectronic, st.AddIssn},
		{id.PIsbn, store.IdentifierPrint, st.AddIsbn},
		{id.EIsbn, store.IdentifierElectronic, st.AddIsbn},
	}
	for _, t := range typed {
		if t.value == "" {
			continue
		}
		if _, err := t.add(ctx, rootID, t.value, t.kind); err != nil {
			return err
		}
	}
	if proprietaryID != "" {
		if _, err := st.AddProprietaryID(ctx, rootID, proprietaryID); err != nil {
			return err
		}
	}
	return nil
}

// FindPublication looks a publication up by the most specific combination
// of keys available. Identifier matches win over name matches; a name
// match is only accepted when it would not merge numeric identities.
func (r *Resolver) FindPublication(ctx context.Context, st store.Store, publisherID int64, id Identity, itemType string) (int64, bool, error) {
	switch {
	case id.hasIssns() && id.hasIsbns() && id.hasName():
		pubID, found, err := st.FindPublicationByIssns(ctx, publisherID, id.PIssn, id.EIssn, itemType)
		if err != nil || found {
			return pubID, found, err
		}
		return r.findByIsbnsOrName(ctx, st, publisherID, id, itemType)

	case id.hasIssns() && id.hasName():
		pubID, found, err := st.FindPublicationByIssns(ctx, publisherID, id.PIssn, id.EIssn, itemType)
		if err != nil || found {
			return pubID, found, err
		}
		return r.findByName(ctx, st, publisherID, id, itemType, func(c candidate) bool { return c.hasIssns })

	case id.hasIsbns() && id.hasName():
		return r.findByIsbnsOrName(ctx, st, publisherID, id, itemType)

	case id.hasIssns():
		return st.FindPublicationByIssns(ctx, publisherID, id.PIssn, id.EIssn, itemType)

	case id.hasIsbns():
		return st.FindPublicationByIsbns(ctx, publisherID, id.PIsbn, id.EIsbn, itemType)

	case id.hasName():
		return r.findByName(ctx, st, publisherID, id, itemType, func(c candidate) bool {
			return c.hasIssns || c.hasIsbns
		})
	}
	return 0, false, nil
}

func (r *Resolver) findByIsbnsOrName(ctx context.Context, st store.Store, publisherID int64, id Identity, itemType string) (int64, bool, error) {
	pubID, found, err := st.FindPublicationByIsbns(ctx, publisherID, id.PIsbn, id.EIsbn, itemType)
	if err != nil || found {
		return pubID, found, err
	}
	newHasIssns := id.hasIssns()
	return r.findByName(ctx, st, publisherID, id, itemType, func(c candidate) bool {
		return c.hasIsbns || (newHasIssns && c.hasIssns)
	})
}

// candidate describes the numeric identity of a publication matched by name.
type candidate struct {
	hasIssns bool
	hasIsbns bool
}

// findByName returns the oldest publication matching the name that is not
// disqualified.
func (r *Resolver) findByName(ctx context.Context, st store.Store, publisherID int64, id Identity, itemType string, disqualified func(candidate) bool) (int64, bool, error) {
	ids, err := st.FindPublicationsByName(ctx, publisherID, id.Title, itemType)
	if err != nil {
		return 0, false, err
	}
	for _, pubID := range ids {
		c, err := describe(ctx, st, pubID)
		if err != nil {
			return 0, false, err
		}
		if disqualified(c) {
			r.logger.Debug("name match disqualified", "publication", pubID, "title", id.Title,
				"has_issns", c.hasIssns, "has_isbns", c.hasIsbns)
			continue
		}
		return pubID, true, nil
	}
	return 0, false, nil
}

func describe(ctx context.Context, st store.Store, pubID int64) (candidate, error) {
	rootID, err := st.PublicationMdItem(ctx, pubID)
	if err != nil {
		return candidate{}, err
	}
	issns, err := st.Issns(ctx, rootID)
	if err != nil {
		return candidate{}, err
	}
	isbns, err := st.Isbns(ctx, rootID)
	if err != nil {
		return candidate{}, err
	}
	return candidate{hasIssns: len(issns) > 0, hasIsbns: len(isbns) > 0}, nil
}
