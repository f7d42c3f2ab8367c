package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/reconcile"
	"github.com/jackzampolin/mdindex/internal/store"
)

// AU describes the archival unit a session records metadata for.
type AU struct {
	PluginID         string
	AuKey            string
	Platform         string
	ExtractorVersion int
	CreationTime     int64
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Store      store.Store
	Resolver   *Resolver
	Reconciler *reconcile.Engine
	AU         AU
	Logger     *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Session records the normalized records of one AU run. Each record is
// committed in its own transaction. Ids resolved for one record are reused
// for the next while its publisher and publication fields stay the same.
type Session struct {
	store      store.Store
	resolver   *Resolver
	reconciler *reconcile.Engine
	au         AU
	logger     *slog.Logger
	now        func() time.Time

	cur      cursor
	recorded int
}

// cursor caches the ids resolved for the previous record.
type cursor struct {
	rawPublisher  string
	publisherID   int64
	publisherName string

	pubKey        publicationKey
	pubType       metadata.PublicationType
	publicationID int64
	parentID      int64

	pluginSeq int64
	auSeq     int64
	auMdID    int64
}

// publicationKey is the set of raw record fields that select a publication.
type publicationKey struct {
	title             string
	seriesTitle       string
	proprietaryID     string
	proprietarySeries string
	isbn              string
	eisbn             string
	issn              string
	eissn             string
	volume            string
}

func keyOf(rec metadata.Record) publicationKey {
	return publicationKey{
		title:             rec.PublicationTitle,
		seriesTitle:       rec.SeriesTitle,
		proprietaryID:     rec.ProprietaryID,
		proprietarySeries: rec.ProprietarySeriesID,
		isbn:              rec.Isbn,
		eisbn:             rec.Eisbn,
		issn:              rec.Issn,
		eissn:             rec.Eissn,
		volume:            rec.Volume,
	}
}

// NewSession creates a Session.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NewResolver(ResolverConfig{Logger: logger})
	}
	if cfg.Reconciler == nil {
		cfg.Reconciler = reconcile.New(reconcile.Config{Logger: logger})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		store:      cfg.Store,
		resolver:   cfg.Resolver,
		reconciler: cfg.Reconciler,
		au:         cfg.AU,
		logger:     logger.With("component", "recorder", "au", metadata.AuID(cfg.AU.PluginID, cfg.AU.AuKey)),
		now:        cfg.Now,
	}
}

// Recorded returns the number of records committed so far.
func (s *Session) Recorded() int {
	return s.recorded
}

// Record resolves and commits one normalized record. A *metadata.MetadataError
// means only this record was skipped; any other error is a store failure.
func (s *Session) Record(ctx context.Context, rec metadata.Record) error {
	saved := s.cur
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		s.cur = saved
		return s.record(ctx, tx, rec)
	})
	if err != nil {
		s.cur = saved
		return err
	}
	s.recorded++
	return nil
}

func (s *Session) record(ctx context.Context, tx store.Store, rec metadata.Record) error {
	if rec.AccessURL == "" {
		return metadata.NewMetadataError(rec, "cannot identify item", metadata.ErrNoAccessURL)
	}

	if s.cur.publisherID == 0 || rec.Publisher != s.cur.rawPublisher {
		if err := s.resolvePublisher(ctx, tx, rec); err != nil {
			return err
		}
		s.cur.publicationID = 0
	}

	if s.cur.publicationID == 0 || keyOf(rec) != s.cur.pubKey {
		if err := s.resolvePublication(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := s.resolveAu(ctx, tx, rec); err != nil {
		return err
	}
	return s.updateOrCreateItem(ctx, tx, rec)
}

// resolvePublisher finds the record's publisher. Records without one use
// the publisher of the AU's existing items, then a synthetic publisher
// already recorded as a problem of the AU, then a new synthetic publisher.
func (s *Session) resolvePublisher(ctx context.Context, tx store.Store, rec metadata.Record) error {
	s.cur.rawPublisher = rec.Publisher

	if rec.Publisher != "" {
		id, err := tx.FindOrCreatePublisher(ctx, rec.Publisher)
		if err != nil {
			return err
		}
		s.cur.publisherID, s.cur.publisherName = id, rec.Publisher
		return nil
	}

	id, found, err := tx.FindAuPublisher(ctx, s.au.PluginID, s.au.AuKey)
	if err != nil {
		return err
	}
	if found {
		name, ok, err := tx.PublisherName(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewMetadataError(rec, fmt.Sprintf("publisher %d of AU has no name", id), metadata.ErrNoPublisher)
		}
		s.cur.publisherID, s.cur.publisherName = id, name
		return nil
	}

	problems, err := tx.AuProblems(ctx, s.au.PluginID, s.au.AuKey)
	if err != nil {
		return err
	}
	for _, problem := range problems {
		if !metadata.IsUnknownPublisher(problem) {
			continue
		}
		id, found, err := tx.FindPublisher(ctx, problem)
		if err != nil {
			return err
		}
		if found {
			s.cur.publisherID, s.cur.publisherName = id, problem
			return nil
		}
		s.logger.Info("removing stale unknown publisher problem", "problem", problem)
		if err := tx.RemoveAuProblem(ctx, s.au.PluginID, s.au.AuKey, problem); err != nil {
			return err
		}
	}

	name := metadata.UnknownPublisherPrefix + strconv.FormatInt(s.now().UnixMilli(), 10)
	id, err = tx.FindOrCreatePublisher(ctx, name)
	if err != nil {
		return err
	}
	// The problem is recorded with the publisher so that a run stopped
	// before Finish still leaves it to be merged later.
	if err := tx.AddAuProblem(ctx, s.au.PluginID, s.au.AuKey, name); err != nil {
		return err
	}
	s.logger.Warn("record has no publisher, using synthetic publisher", "publisher", name)
	s.cur.publisherID, s.cur.publisherName = id, name
	return nil
}

func (s *Session) resolvePublication(ctx context.Context, tx store.Store, rec metadata.Record) error {
	pubType := metadata.Classify(rec)

	title := rec.PublicationTitle
	if title == "" {
		title = SynthesizeTitle(rec, strconv.FormatInt(s.now().UnixMilli(), 10))
	}
	var seriesTitle string
	if pubType == metadata.PublicationBookSeries {
		seriesTitle = rec.SeriesTitle
		if seriesTitle == "" {
			seriesTitle = SynthesizeSeriesTitle(rec, title)
		}
	}

	pubID, err := s.resolver.FindOrCreatePublication(ctx, tx, s.cur.publisherID, PublicationRef{
		Type:                pubType,
		Title:               title,
		SeriesTitle:         seriesTitle,
		ProprietaryID:       rec.ProprietaryID,
		ProprietarySeriesID: rec.ProprietarySeriesID,
		PIssn:               rec.Issn,
		EIssn:               rec.Eissn,
		PIsbn:               rec.Isbn,
		EIsbn:               rec.Eisbn,
	})
	if err != nil {
		var me *metadata.MetadataError
		if errors.As(err, &me) && me.AccessURL == "" {
			me.AccessURL = rec.AccessURL
		}
		return err
	}

	parentID, err := tx.PublicationMdItem(ctx, pubID)
	if err != nil {
		return err
	}
	if _, err := s.reconciler.ReplaceUnknownTitle(ctx, tx, parentID, metadata.UnknownTitlePrefix, title); err != nil {
		return err
	}

	if pubType == metadata.PublicationBookSeries {
		seriesID, found, err := s.resolver.FindPublication(ctx, tx, s.cur.publisherID,
			Identity{Title: seriesTitle, PIssn: rec.Issn, EIssn: rec.Eissn}, metadata.ItemTypeBookSeries)
		if err != nil {
			return err
		}
		if found {
			seriesRoot, err := tx.PublicationMdItem(ctx, seriesID)
			if err != nil {
				return err
			}
			if _, err := s.reconciler.ReplaceUnknownTitle(ctx, tx, seriesRoot, metadata.UnknownSeriesPrefix, seriesTitle); err != nil {
				return err
			}
		}
	}

	s.cur.pubKey = keyOf(rec)
	s.cur.pubType = pubType
	s.cur.publicationID = pubID
	s.cur.parentID = parentID
	return nil
}

// resolveAu finds or creates the plugin, AU and AU metadata rows once per
// session.
func (s *Session) resolveAu(ctx context.Context, tx store.Store, rec metadata.Record) error {
	if s.cur.pluginSeq == 0 {
		platform := s.au.Platform
		if platform == "" {
			platform = metadata.NoPlatform
		}
		platformID, err := tx.FindOrCreatePlatform(ctx, platform)
		if err != nil {
			return err
		}
		s.cur.pluginSeq, err = tx.FindOrCreatePlugin(ctx, s.au.PluginID, platformID)
		if err != nil {
			return err
		}
	}

	if s.cur.auSeq == 0 {
		auSeq, err := tx.FindOrCreateAu(ctx, s.cur.pluginSeq, s.au.AuKey)
		if err != nil {
			return err
		}
		s.cur.auSeq = auSeq
	}

	if s.cur.auMdID != 0 {
		return nil
	}

	md, err := tx.FindAuMd(ctx, s.au.PluginID, s.au.AuKey)
	if err != nil {
		return err
	}
	if md != nil {
		if md.MdVersion != s.au.ExtractorVersion {
			if err := tx.UpdateAuMdVersion(ctx, md.ID, s.au.ExtractorVersion); err != nil {
				return err
			}
		}
		s.cur.auMdID = md.ID
		return nil
	}

	provider := rec.Provider
	if provider == "" {
		provider = s.cur.publisherName
	}
	providerID, err := tx.FindOrCreateProvider(ctx, provider)
	if err != nil {
		return err
	}
	s.cur.auMdID, err = tx.AddAuMd(ctx, &store.AuMd{
		AuID:         s.cur.auSeq,
		MdVersion:    s.au.ExtractorVersion,
		ExtractTime:  metadata.NeverExtracted,
		CreationTime: s.au.CreationTime,
		ProviderID:   &providerID,
	})
	return err
}

func (s *Session) updateOrCreateItem(ctx context.Context, tx store.Store, rec metadata.Record) error {
	itemType := metadata.ItemType(rec, s.cur.pubType)
	if itemType == "" {
		return metadata.NewMetadataError(rec, "cannot type item", metadata.ErrNoArticleType)
	}

	itemID, found, err := tx.FindMdItem(ctx, itemType, s.cur.auMdID, rec.AccessURL)
	if err != nil {
		return err
	}
	if !found {
		parentID, auMdID := s.cur.parentID, s.cur.auMdID
		itemID, err = tx.AddMdItem(ctx, &store.MdItem{
			ParentID:  &parentID,
			Type:      itemType,
			AuMdID:    &auMdID,
			Date:      rec.PubDate,
			Coverage:  rec.Coverage,
			FetchTime: rec.FetchTime,
		})
		if err != nil {
			return err
		}
		if rec.ArticleTitle != "" {
			if _, err := tx.AddMdItemName(ctx, itemID, rec.ArticleTitle, true); err != nil {
				return err
			}
		}
	}

	bib := store.BibItem{
		MdItemID:   itemID,
		Volume:     rec.Volume,
		Issue:      rec.Issue,
		StartPage:  rec.StartPage,
		EndPage:    rec.EndPage,
		ItemNumber: rec.ItemNumber,
	}
	if bib != (store.BibItem{MdItemID: itemID}) {
		if err := tx.UpsertBibItem(ctx, &bib); err != nil {
			return err
		}
	}

	if _, err := tx.AddURLs(ctx, itemID, rec.URLs()); err != nil {
		return err
	}
	if _, err := tx.AddAuthors(ctx, itemID, rec.Authors); err != nil {
		return err
	}
	if _, err := tx.AddKeywords(ctx, itemID, rec.Keywords); err != nil {
		return err
	}
	if rec.Doi != "" {
		if err := tx.AddDoi(ctx, itemID, rec.Doi); err != nil {
			return err
		}
	}
	return nil
}

// Finish completes a successful run: it stamps the AU's extraction time and
// either makes sure the synthetic publisher used is a problem of the AU or
// merges the data of earlier synthetic publishers into the current
// publication.
func (s *Session) Finish(ctx context.Context) (reconcile.Result, error) {
	var res reconcile.Result
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		res = reconcile.Result{}

		auMdID := s.cur.auMdID
		if auMdID == 0 {
			md, err := tx.FindAuMd(ctx, s.au.PluginID, s.au.AuKey)
			if err != nil {
				return err
			}
			if md != nil {
				auMdID = md.ID
			}
		}
		if auMdID != 0 {
			if err := tx.UpdateAuExtractTime(ctx, auMdID, s.now().UnixMilli()); err != nil {
				return err
			}
		} else {
			s.logger.Warn("no AU metadata recorded")
		}

		if s.cur.publisherName == "" {
			return nil
		}

		problems, err := tx.AuProblems(ctx, s.au.PluginID, s.au.AuKey)
		if err != nil {
			return err
		}

		if metadata.IsUnknownPublisher(s.cur.publisherName) {
			if !slices.Contains(problems, s.cur.publisherName) {
				return tx.AddAuProblem(ctx, s.au.PluginID, s.au.AuKey, s.cur.publisherName)
			}
			return nil
		}

		if len(problems) == 0 || s.cur.publicationID == 0 {
			return nil
		}
		res, err = s.reconciler.FixUnknownPublishers(ctx, tx, reconcile.Target{
			PluginID:      s.au.PluginID,
			AuKey:         s.au.AuKey,
			PublisherID:   s.cur.publisherID,
			PublicationID: s.cur.publicationID,
			MdItemID:      s.cur.parentID,
		}, problems)
		return err
	})
	return res, err
}
