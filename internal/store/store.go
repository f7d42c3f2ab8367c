// Package store persists the metadata index: publishers, publications,
// metadata items and their identifiers, AU bookkeeping, the pending AU
// queue and AU problem markers.
package store

import "context"

// Identifier types for ISSNs and ISBNs.
const (
	IdentifierPrint      = "p"
	IdentifierElectronic = "e"
)

// AccessFeature is the URL feature of an item's access URL.
const AccessFeature = "Access"

// Pending AU priority sentinels. Enabled entries have priority >= 0.
const (
	PriorityFailed   int64 = -1000
	PriorityDisabled int64 = -10000
)

// ItemName is one of the names of a metadata item.
type ItemName struct {
	Name    string
	Primary bool
}

// Identifier is a typed ISSN or ISBN value.
type Identifier struct {
	Value string
	Type  string
}

// AuRef identifies an AU by plugin id and AU key.
type AuRef struct {
	PluginID string
	AuKey    string
}

// PendingEntry is an enabled row of the pending AU queue. IsNew is true
// when no AU metadata exists yet for the AU.
type PendingEntry struct {
	PluginID    string
	AuKey       string
	Priority    int64
	FullReindex bool
	IsNew       bool
}

// Store is the operation contract the resolver, the reconciliation engine
// and the scheduler need from persistence. Finds return a found flag
// instead of a not-found error. Every failure is a *StoreError.
type Store interface {
	// WithTx runs fn inside a transaction. Transient failures roll back and
	// rerun fn. Calling WithTx on a transactional Store joins the
	// surrounding transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error

	FindOrCreatePlatform(ctx context.Context, name string) (int64, error)
	FindOrCreatePlugin(ctx context.Context, pluginID string, platformID int64) (int64, error)
	FindAu(ctx context.Context, pluginID, auKey string) (int64, bool, error)
	FindOrCreateAu(ctx context.Context, pluginSeq int64, auKey string) (int64, error)
	FindAuMd(ctx context.Context, pluginID, auKey string) (*AuMd, error)
	AddAuMd(ctx context.Context, md *AuMd) (int64, error)
	UpdateAuMdVersion(ctx context.Context, auMdID int64, version int) error
	UpdateAuExtractTime(ctx context.Context, auMdID int64, extractTime int64) error
	FindOrCreateProvider(ctx context.Context, name string) (int64, error)
	FindAuPublisher(ctx context.Context, pluginID, auKey string) (int64, bool, error)
	RemoveAuMetadataItems(ctx context.Context, pluginID, auKey string) (int64, error)
	DeleteAu(ctx context.Context, pluginID, auKey string) (int64, error)

	FindPublisher(ctx context.Context, name string) (int64, bool, error)
	PublisherName(ctx context.Context, publisherID int64) (string, bool, error)
	FindOrCreatePublisher(ctx context.Context, name string) (int64, error)
	DeletePublisher(ctx context.Context, publisherID int64) error
	PublisherPublications(ctx context.Context, publisherID int64) ([]int64, error)

	FindPublicationByIssns(ctx context.Context, publisherID int64, pIssn, eIssn, itemType string) (int64, bool, error)
	FindPublicationByIsbns(ctx context.Context, publisherID int64, pIsbn, eIsbn, itemType string) (int64, bool, error)
	FindPublicationsByName(ctx context.Context, publisherID int64, name, itemType string) ([]int64, error)
	AddPublication(ctx context.Context, publisherID, mdItemID int64) (int64, error)
	PublicationMdItem(ctx context.Context, publicationID int64) (int64, error)
	DeletePublication(ctx context.Context, publicationID int64) error

	AddMdItem(ctx context.Context, item *MdItem) (int64, error)
	FindMdItem(ctx context.Context, itemType string, auMdID int64, accessURL string) (int64, bool, error)
	MdItemType(ctx context.Context, mdItemID int64) (string, error)
	ChildMdItems(ctx context.Context, parentID int64) ([]int64, error)
	SetMdItemParent(ctx context.Context, mdItemID, parentID int64) error
	DeleteMdItem(ctx context.Context, mdItemID int64) error

	MdItemNames(ctx context.Context, mdItemID int64) ([]ItemName, error)
	AddMdItemName(ctx context.Context, mdItemID int64, name string, primary bool) (bool, error)
	UpdatePrimaryName(ctx context.Context, mdItemID int64, name string) error
	DeleteMdItemName(ctx context.Context, mdItemID int64, name string) error
	Issns(ctx context.Context, mdItemID int64) ([]Identifier, error)
	AddIssn(ctx context.Context, mdItemID int64, issn, issnType string) (bool, error)
	Isbns(ctx context.Context, mdItemID int64) ([]Identifier, error)
	AddIsbn(ctx context.Context, mdItemID int64, isbn, isbnType string) (bool, error)
	ProprietaryIDs(ctx context.Context, mdItemID int64) ([]string, error)
	AddProprietaryID(ctx context.Context, mdItemID int64, value string) (bool, error)
	Authors(ctx context.Context, mdItemID int64) ([]string, error)
	AddAuthors(ctx context.Context, mdItemID int64, names []string) (int, error)
	Keywords(ctx context.Context, mdItemID int64) ([]string, error)
	AddKeywords(ctx context.Context, mdItemID int64, keywords []string) (int, error)
	URLs(ctx context.Context, mdItemID int64) (map[string]string, error)
	AddURLs(ctx context.Context, mdItemID int64, urls map[string]string) (int, error)
	Doi(ctx context.Context, mdItemID int64) (string, bool, error)
	AddDoi(ctx context.Context, mdItemID int64, doi string) error
	BibItem(ctx context.Context, mdItemID int64) (*BibItem, error)
	UpsertBibItem(ctx context.Context, bib *BibItem) error

	MergeRequestAggregates(ctx context.Context, fromPublicationID, toPublicationID int64) (int, error)

	EnabledPendingAus(ctx context.Context) ([]PendingEntry, error)
	IsAuPending(ctx context.Context, pluginID, auKey string) (bool, error)
	AddPendingAus(ctx context.Context, aus []AuRef, fullReindex bool) (int, error)
	SetPendingAu(ctx context.Context, pluginID, auKey string, priority int64, fullReindex bool) error
	RemovePendingAu(ctx context.Context, pluginID, auKey string) error
	RemoveDisabledPendingAu(ctx context.Context, pluginID, auKey string) error
	PendingAusWithPriority(ctx context.Context, priority int64) ([]AuRef, error)
	EnabledPendingCount(ctx context.Context) (int64, error)

	AuProblems(ctx context.Context, pluginID, auKey string) ([]string, error)
	AddAuProblem(ctx context.Context, pluginID, auKey, problem string) error
	RemoveAuProblem(ctx context.Context, pluginID, auKey, problem string) error
}
