package metadata

import "strings"

// PublicationType is the kind of publication a record belongs to.
type PublicationType string

const (
	PublicationJournal    PublicationType = "journal"
	PublicationBook       PublicationType = "book"
	PublicationBookSeries PublicationType = "book_series"
)

// Metadata item types. Publication roots use the PublicationType values.
const (
	ItemTypeJournal        = string(PublicationJournal)
	ItemTypeBook           = string(PublicationBook)
	ItemTypeBookSeries     = string(PublicationBookSeries)
	ItemTypeJournalArticle = "journal_article"
	ItemTypeBookChapter    = "book_chapter"
	ItemTypeBookVolume     = "book_volume"
)

// Reserved names for synthetic identities.
const (
	UnknownPublisherPrefix = "UNKNOWN_PUBLISHER_"
	UnknownTitlePrefix     = "UNKNOWN_TITLE"
	UnknownSeriesPrefix    = "UNKNOWN_SERIES"
	NoPlatform             = "NO_PLATFORM"
)

const (
	// AccessURLFeature is the URL feature reserved for the access URL.
	AccessURLFeature = "Access"

	// DefaultCoverage is applied to records that do not state a coverage.
	DefaultCoverage = "fulltext"

	// NeverExtracted is the extraction time of an AU with no completed run.
	NeverExtracted int64 = 0
)

// IsUnknownPublisher reports whether name is a synthetic publisher name.
func IsUnknownPublisher(name string) bool {
	return strings.HasPrefix(name, UnknownPublisherPrefix)
}

// IsUnknownTitle reports whether name was synthesized with the given root.
func IsUnknownTitle(name, root string) bool {
	return strings.HasPrefix(name, root)
}
