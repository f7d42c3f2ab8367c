package store

// Table models of the metadata index. Every table has a surrogate integer
// key; natural keys carry unique indexes so concurrent find-or-create
// races surface as duplicate-key errors and are retried.

type Publisher struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"column:publisher_name;size:512;not null;uniqueIndex"`
}

func (Publisher) TableName() string { return "publisher" }

type Provider struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"column:provider_name;size:512;not null;uniqueIndex"`
}

func (Provider) TableName() string { return "provider" }

type Platform struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"column:platform_name;size:64;not null;uniqueIndex"`
}

func (Platform) TableName() string { return "platform" }

type Plugin struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	PluginID   string `gorm:"column:plugin_id;size:256;not null;uniqueIndex"`
	PlatformID *int64 `gorm:"column:platform_seq;index"`
}

func (Plugin) TableName() string { return "plugin" }

type Au struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	PluginID int64  `gorm:"column:plugin_seq;not null;uniqueIndex:idx_au_plugin_key"`
	AuKey    string `gorm:"column:au_key;size:512;not null;uniqueIndex:idx_au_plugin_key"`
}

func (Au) TableName() string { return "au" }

type AuMd struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	AuID         int64  `gorm:"column:au_seq;not null;uniqueIndex"`
	MdVersion    int    `gorm:"column:md_version;not null"`
	ExtractTime  int64  `gorm:"column:extract_time;not null;default:0"`
	CreationTime int64  `gorm:"column:creation_time;not null"`
	ProviderID   *int64 `gorm:"column:provider_seq;index"`
}

func (AuMd) TableName() string { return "au_md" }

type MdItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	ParentID  *int64 `gorm:"column:parent_seq;index"`
	Type      string `gorm:"column:md_item_type;size:32;not null;index"`
	AuMdID    *int64 `gorm:"column:au_md_seq;index"`
	Date      string `gorm:"column:date;size:16"`
	Coverage  string `gorm:"column:coverage;size:16"`
	FetchTime int64  `gorm:"column:fetch_time"`
}

func (MdItem) TableName() string { return "md_item" }

type MdItemName struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	MdItemID int64  `gorm:"column:md_item_seq;not null;uniqueIndex:idx_md_item_name"`
	Name     string `gorm:"column:name;size:512;not null;uniqueIndex:idx_md_item_name;index"`
	NameType string `gorm:"column:name_type;size:16;not null"`
}

func (MdItemName) TableName() string { return "md_item_name" }

const (
	namePrimary    = "primary"
	nameNotPrimary = "not_primary"
)

type Issn struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	MdItemID int64  `gorm:"column:md_item_seq;not null;uniqueIndex:idx_issn"`
	Issn     string `gorm:"column:issn;size:8;not null;uniqueIndex:idx_issn;index"`
	Type     string `gorm:"column:issn_type;size:16;not null;uniqueIndex:idx_issn"`
}

func (Issn) TableName() string { return "issn" }

type Isbn struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	MdItemID int64  `gorm:"column:md_item_seq;not null;uniqueIndex:idx_isbn"`
	Isbn     string `gorm:"column:isbn;size:13;not null;uniqueIndex:idx_isbn;index"`
	Type     string `gorm:"column:isbn_type;size:16;not null;uniqueIndex:idx_isbn"`
}

func (Isbn) TableName() string { return "isbn" }

type Publication struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	MdItemID    int64 `gorm:"column:md_item_seq;not null;uniqueIndex"`
	PublisherID int64 `gorm:"column:publisher_seq;not null;index"`
}

func (Publication) TableName() string { return "publication" }

type BibItem struct {
	MdItemID   int64  `gorm:"column:md_item_seq;primaryKey;autoIncrement:false"`
	Volume     string `gorm:"column:volume;size:16"`
	Issue      string `gorm:"column:issue;size:16"`
	StartPage  string `gorm:"column:start_page;size:16"`
	EndPage    string `gorm:"column:end_page;size:16"`
	ItemNumber string `gorm:"column:item_no;size:16"`
}

func (BibItem) TableName() string { return "bib_item" }

type URL struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	MdItemID int64  `gorm:"column:md_item_seq;not null;uniqueIndex:idx_url_feature"`
	Feature  string `gorm:"column:feature;size:32;not null;uniqueIndex:idx_url_feature"`
	URL      string `gorm:"column:url;size:4096;not null"`
}

func (URL) TableName() string { return "url" }

type Doi struct {
	MdItemID int64  `gorm:"column:md_item_seq;primaryKey;autoIncrement:false"`
	Doi      string `gorm:"column:doi;size:256;not null;index"`
}

func (Doi) TableName() string { return "doi" }

type Author struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	MdItemID int64  `gorm:"column:md_item_seq;not null;uniqueIndex:idx_author"`
	Name     string `gorm:"column:author_name;size:128;not null;uniqueIndex:idx_author"`
	Seq      int    `gorm:"column:author_idx;not null"`
}

func (Author) TableName() string { return "author" }

type Keyword struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	MdItemID int64  `gorm:"column:md_item_seq;not null;uniqueIndex:idx_keyword"`
	Keyword  string `gorm:"column:keyword;size:64;not null;uniqueIndex:idx_keyword"`
}

func (Keyword) TableName() string { return "keyword" }

type ProprietaryID struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	MdItemID int64  `gorm:"column:md_item_seq;not null;uniqueIndex:idx_proprietary_id"`
	Value    string `gorm:"column:proprietary_id;size:32;not null;uniqueIndex:idx_proprietary_id"`
}

func (ProprietaryID) TableName() string { return "proprietary_id" }

type PendingAu struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	PluginID    string `gorm:"column:plugin_id;size:256;not null;uniqueIndex:idx_pending_au"`
	AuKey       string `gorm:"column:au_key;size:512;not null;uniqueIndex:idx_pending_au"`
	Priority    int64  `gorm:"column:priority;not null;index"`
	FullReindex bool   `gorm:"column:fully_reindex;not null;default:false"`
}

func (PendingAu) TableName() string { return "pending_au" }

type AuProblem struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	PluginID string `gorm:"column:plugin_id;size:256;not null;uniqueIndex:idx_au_problem"`
	AuKey    string `gorm:"column:au_key;size:512;not null;uniqueIndex:idx_au_problem"`
	Problem  string `gorm:"column:problem;size:512;not null;uniqueIndex:idx_au_problem"`
}

func (AuProblem) TableName() string { return "au_problem" }

// RequestAggregate holds usage counters of a publication for one period.
type RequestAggregate struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	PublicationID     int64  `gorm:"column:publication_seq;not null;index"`
	Kind              string `gorm:"column:kind;size:32;not null"`
	Year              int    `gorm:"column:request_year;not null"`
	Month             int    `gorm:"column:request_month;not null"`
	PublicationYear   int    `gorm:"column:publication_year;not null;default:0"`
	PublisherInvolved bool   `gorm:"column:is_publisher_involved;not null;default:false"`
	Requests          int64  `gorm:"column:total_requests;not null;default:0"`
	HTMLRequests      int64  `gorm:"column:html_requests;not null;default:0"`
	PDFRequests       int64  `gorm:"column:pdf_requests;not null;default:0"`
	SectionRequests   int64  `gorm:"column:section_requests;not null;default:0"`
}

func (RequestAggregate) TableName() string { return "request_aggregate" }

// Request aggregate kinds.
const (
	AggregateBookType       = "book_type"
	AggregateJournalType    = "journal_type"
	AggregateJournalPubYear = "journal_pubyear"
)

func allModels() []any {
	return []any{
		&Publisher{}, &Provider{}, &Platform{}, &Plugin{}, &Au{}, &AuMd{},
		&MdItem{}, &MdItemName{}, &Issn{}, &Isbn{}, &Publication{}, &BibItem{},
		&URL{}, &Doi{}, &Author{}, &Keyword{}, &ProprietaryID{},
		&PendingAu{}, &AuProblem{}, &RequestAggregate{},
	}
}
