package metadata

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits are the maximum stored lengths, in characters, of record fields.
type Limits struct {
	URL           int
	Doi           int
	Date          int
	Coordinate    int // volume, issue, pages, item number
	Name          int // titles, publisher, provider, article title
	Author        int
	Keyword       int
	Feature       int
	Coverage      int
	ProprietaryID int
	TypeName      int
}

// DefaultLimits returns the column sizes of the metadata schema.
func DefaultLimits() Limits {
	return Limits{
		URL:           4096,
		Doi:           256,
		Date:          16,
		Coordinate:    16,
		Name:          512,
		Author:        128,
		Keyword:       64,
		Feature:       32,
		Coverage:      16,
		ProprietaryID: 32,
		TypeName:      32,
	}
}

// NormalizerConfig configures a Normalizer.
type NormalizerConfig struct {
	Limits Limits
	Logger *slog.Logger
}

// Normalizer trims, truncates and canonicalizes records before they are
// stored. Normalizing an already normalized record returns it unchanged.
type Normalizer struct {
	limits Limits
	logger *slog.Logger
}

// NewNormalizer creates a normalizer. Zero limits take the schema defaults.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limits := cfg.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Normalizer{
		limits: limits,
		logger: logger.With("component", "normalizer"),
	}
}

// Normalize returns the normalized form of rec. The input is not modified.
func (n *Normalizer) Normalize(rec Record) Record {
	out := rec
	l := n.limits

	out.AccessURL = n.field(rec, "access_url", rec.AccessURL, l.URL)

	out.Isbn = n.identifier(rec, "isbn", rec.Isbn, FormatIsbn)
	out.Eisbn = n.identifier(rec, "eisbn", rec.Eisbn, FormatIsbn)
	out.Issn = n.identifier(rec, "issn", rec.Issn, FormatIssn)
	out.Eissn = n.identifier(rec, "eissn", rec.Eissn, FormatIssn)

	out.Doi = n.field(rec, "doi", stripDoiPrefix(rec.Doi), l.Doi)
	out.PubDate = n.field(rec, "pub_date", rec.PubDate, l.Date)
	out.Volume = n.field(rec, "volume", rec.Volume, l.Coordinate)
	out.Issue = n.field(rec, "issue", rec.Issue, l.Coordinate)
	out.StartPage = n.field(rec, "start_page", rec.StartPage, l.Coordinate)
	out.EndPage = n.field(rec, "end_page", rec.EndPage, l.Coordinate)
	out.ItemNumber = n.field(rec, "item_number", rec.ItemNumber, l.Coordinate)

	out.ArticleTitle = n.field(rec, "article_title", rec.ArticleTitle, l.Name)
	out.ArticleType = n.field(rec, "article_type", rec.ArticleType, l.TypeName)
	out.Publisher = n.field(rec, "publisher", rec.Publisher, l.Name)
	out.Provider = n.field(rec, "provider", rec.Provider, l.Name)
	out.SeriesTitle = n.field(rec, "series_title", rec.SeriesTitle, l.Name)
	out.PublicationTitle = n.field(rec, "publication_title", rec.PublicationTitle, l.Name)
	out.ProprietaryID = n.field(rec, "proprietary_id", rec.ProprietaryID, l.ProprietaryID)
	out.ProprietarySeriesID = n.field(rec, "proprietary_series_id", rec.ProprietarySeriesID, l.ProprietaryID)

	out.Authors = n.list(rec, "author", rec.Authors, l.Author)
	out.Keywords = n.list(rec, "keyword", rec.Keywords, l.Keyword)

	if rec.FeaturedURLs != nil {
		out.FeaturedURLs = make(map[string]string, len(rec.FeaturedURLs))
		for feature, u := range rec.FeaturedURLs {
			f := n.field(rec, "feature", feature, l.Feature)
			v := n.field(rec, "featured_url", u, l.URL)
			if f == "" || v == "" {
				continue
			}
			out.FeaturedURLs[f] = v
		}
	}

	out.Coverage = n.field(rec, "coverage", rec.Coverage, l.Coverage)
	if out.Coverage == "" {
		out.Coverage = DefaultCoverage
	}
	return out
}

// field trims value and truncates it to max characters.
func (n *Normalizer) field(rec Record, name, value string, max int) string {
	v := strings.TrimSpace(value)
	if max <= 0 || utf8.RuneCountInString(v) <= max {
		return v
	}
	n.logger.Warn("field too long, truncating",
		"field", name,
		"length", utf8.RuneCountInString(v),
		"max", max,
		"publication_title", rec.PublicationTitle,
		"publisher", rec.Publisher)
	return Truncate(v, max)
}

func (n *Normalizer) list(rec Record, name string, values []string, max int) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = n.field(rec, name, v, max); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (n *Normalizer) identifier(rec Record, name, value string, format func(string) string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	f := format(v)
	if f == "" {
		n.logger.Warn("dropping malformed identifier",
			"field", name,
			"value", v,
			"publication_title", rec.PublicationTitle)
	}
	return f
}

// Truncate shortens s to at most max characters and removes any whitespace
// the cut leaves at the end.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
}

func stripDoiPrefix(doi string) string {
	d := strings.TrimSpace(doi)
	for len(d) >= 4 && strings.EqualFold(d[:4], "doi:") {
		d = strings.TrimSpace(d[4:])
	}
	return d
}
