// Package metadata holds the bibliographic record model shared by the
// resolver, the reconciliation engine and the reindexing tasks, along with
// the normalizer that prepares extracted records for storage.
package metadata

// Record is one article-level metadata record as emitted by an extractor.
// All identifier fields are optional; empty means absent.
type Record struct {
	// Publication-level attribution.
	Publisher           string `json:"publisher,omitempty"`
	Provider            string `json:"provider,omitempty"`
	PublicationTitle    string `json:"publication_title,omitempty"`
	SeriesTitle         string `json:"series_title,omitempty"`
	ProprietaryID       string `json:"proprietary_id,omitempty"`
	ProprietarySeriesID string `json:"proprietary_series_id,omitempty"`
	Isbn                string `json:"isbn,omitempty"`
	Eisbn               string `json:"eisbn,omitempty"`
	Issn                string `json:"issn,omitempty"`
	Eissn               string `json:"eissn,omitempty"`

	// Bibliographic coordinates of the item.
	Volume     string `json:"volume,omitempty"`
	Issue      string `json:"issue,omitempty"`
	StartPage  string `json:"start_page,omitempty"`
	EndPage    string `json:"end_page,omitempty"`
	ItemNumber string `json:"item_number,omitempty"`
	PubDate    string `json:"pub_date,omitempty"`

	// Item-level facts.
	ArticleTitle string            `json:"article_title,omitempty"`
	ArticleType  string            `json:"article_type,omitempty"`
	AccessURL    string            `json:"access_url,omitempty"`
	FeaturedURLs map[string]string `json:"featured_urls,omitempty"`
	Doi          string            `json:"doi,omitempty"`
	Authors      []string          `json:"authors,omitempty"`
	Keywords     []string          `json:"keywords,omitempty"`
	Coverage     string            `json:"coverage,omitempty"`

	// FetchTime is the earliest fetch time (unix ms) of the item's URLs.
	FetchTime int64 `json:"fetch_time,omitempty"`
}

// HasIsbn reports whether the record carries a print or electronic ISBN.
func (r Record) HasIsbn() bool {
	return r.Isbn != "" || r.Eisbn != ""
}

// HasIssn reports whether the record carries a print or electronic ISSN.
func (r Record) HasIssn() bool {
	return r.Issn != "" || r.Eissn != ""
}

// URLs returns the featured URL map with the access URL added under the
// reserved access feature.
func (r Record) URLs() map[string]string {
	out := make(map[string]string, len(r.FeaturedURLs)+1)
	for feature, u := range r.FeaturedURLs {
		if feature != "" && u != "" {
			out[feature] = u
		}
	}
	if r.AccessURL != "" {
		out[AccessURLFeature] = r.AccessURL
	}
	return out
}
