package model

import "time"

// Source is a configured RSS feed to ingest from.
type Source struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	URL                  string     `json:"url"`
	Type                 string     `json:"type"`
	Region               string     `json:"region"`
	Country              string     `json:"country"`
	Language             string     `json:"language"`
	Enabled              bool       `json:"enabled"`
	FetchIntervalMinutes int        `json:"fetch_interval_minutes"`
	LastFetchedAt        *time.Time `json:"last_fetched_at,omitempty"`
}

// RawItem is a normalized feed entry. It lives only within one fetch cycle.
type RawItem struct {
	Title       string
	Content     string
	Link        string
	PublishedAt time.Time
	Summary     string
}

// IndicatorType enumerates the IOC kinds the extractor recognizes.
type IndicatorType string

const (
	IndicatorIP     IndicatorType = "ip"
	IndicatorDomain IndicatorType = "domain"
	IndicatorURL    IndicatorType = "url"
	IndicatorMD5    IndicatorType = "hash_md5"
	IndicatorSHA1   IndicatorType = "hash_sha1"
	IndicatorSHA256 IndicatorType = "hash_sha256"
	IndicatorCVE    IndicatorType = "cve"
	IndicatorEmail  IndicatorType = "email"
)

// Indicator is a typed IOC extracted from an article's raw text.
// Indicators belong to exactly one article and are never mutated.
type Indicator struct {
	ID              string        `json:"id"`
	ArticleID       string        `json:"article_id"`
	Type            IndicatorType `json:"type"`
	Value           string        `json:"value"`
	NormalizedValue string        `json:"normalized_value"`
	Context         string        `json:"context"`
	Confidence      float64       `json:"confidence"`
}

// Article is the persisted result of ingesting one feed item. Immutable
// after creation except IndexedAt, set once search indexing succeeds.
type Article struct {
	ID                    string     `json:"id"`
	SourceID              string     `json:"source_id"`
	TitleRaw              string     `json:"title_raw"`
	BodyRaw               string     `json:"body_raw"`
	SummaryRaw            string     `json:"summary_raw"`
	SourceURL             string     `json:"source_url"`
	PublishedAt           time.Time  `json:"published_at"`
	LanguageDetected      string     `json:"language_detected"`
	TitleES               string     `json:"title_es"`
	BodyES                string     `json:"body_es"`
	SummaryES             string     `json:"summary_es"`
	Translated            bool       `json:"translated"`
	ConfidenceTranslation float64    `json:"confidence_translation"`
	Fingerprint           string     `json:"fingerprint"`
	Truncated             bool       `json:"truncated"`
	Tags                  []string   `json:"tags"`
	HasIOCs               bool       `json:"has_iocs"`
	IOCCount              int        `json:"ioc_count"`
	IndexedAt             *time.Time `json:"indexed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// ArticleDocument is the search-index representation of an article.
type ArticleDocument struct {
	ID          string   `json:"id"`
	TitleES     string   `json:"title_es"`
	BodyES      string   `json:"body_es"`
	SummaryES   string   `json:"summary_es"`
	Tags        []string `json:"tags"`
	IOCs        []string `json:"iocs"`
	PublishedAt string   `json:"published_at"`
	SourceName  string   `json:"source_name"`
	SourceType  string   `json:"source_type"`
	Translated  bool     `json:"translated"`
	HasIOCs     bool     `json:"has_iocs"`
}

// NewArticleEvent is broadcast to live subscribers when an article lands.
type NewArticleEvent struct {
	Event       string   `json:"event"`
	ArticleID   string   `json:"article_id"`
	TitleES     string   `json:"title_es"`
	SummaryES   string   `json:"summary_es"`
	Tags        []string `json:"tags"`
	IOCsPreview []string `json:"iocs_preview"`
	PublishedAt string   `json:"published_at"`
	SourceName  string   `json:"source_name"`
	Translated  bool     `json:"translated"`
	Confidence  float64  `json:"confidence"`
}
