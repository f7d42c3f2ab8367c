package resolve

import "github.com/jackzampolin/mdindex/internal/metadata"

// SynthesizeTitle names a publication whose records carry no title after
// its most specific identifier, falling back to defaultID.
func SynthesizeTitle(rec metadata.Record, defaultID string) string {
	switch {
	case rec.Isbn != "":
		return metadata.UnknownTitlePrefix + "/isbn=" + rec.Isbn
	case rec.Eisbn != "":
		return metadata.UnknownTitlePrefix + "/eisbn=" + rec.Eisbn
	case rec.Issn != "":
		return metadata.UnknownTitlePrefix + "/issn=" + rec.Issn
	case rec.Eissn != "":
		return metadata.UnknownTitlePrefix + "/eissn=" + rec.Eissn
	case rec.ProprietaryID != "":
		return metadata.UnknownTitlePrefix + "/journalId=" + rec.ProprietaryID
	default:
		return metadata.UnknownTitlePrefix + "/id=" + defaultID
	}
}

// SynthesizeSeriesTitle names a book series whose records carry no series
// title.
func SynthesizeSeriesTitle(rec metadata.Record, defaultID string) string {
	switch {
	case rec.Issn != "":
		return metadata.UnknownSeriesPrefix + "/issn=" + rec.Issn
	case rec.Eissn != "":
		return metadata.UnknownSeriesPrefix + "/eissn=" + rec.Eissn
	case rec.ProprietarySeriesID != "":
		return metadata.UnknownSeriesPrefix + "/seriesId=" + rec.ProprietarySeriesID
	default:
		return metadata.UnknownSeriesPrefix + "/id=" + defaultID
	}
}
