package metadata

// Classify determines the publication type of a normalized record:
// an ISBN together with a series title, volume or ISSN is a book in a
// series, an ISBN alone is a book, and anything else is a journal.
func Classify(rec Record) PublicationType {
	if !rec.HasIsbn() {
		return PublicationJournal
	}
	if rec.SeriesTitle != "" || rec.Volume != "" || rec.HasIssn() {
		return PublicationBookSeries
	}
	return PublicationBook
}

// ItemType returns the metadata item type of the record's leaf item. An
// explicit article type wins; otherwise it is inferred from the
// publication type.
func ItemType(rec Record, pubType PublicationType) string {
	if rec.ArticleType != "" {
		return rec.ArticleType
	}
	switch pubType {
	case PublicationJournal:
		return ItemTypeJournalArticle
	case PublicationBook, PublicationBookSeries:
		if rec.ArticleTitle != "" || rec.StartPage != "" {
			return ItemTypeBookChapter
		}
		return ItemTypeBookVolume
	}
	return ""
}
