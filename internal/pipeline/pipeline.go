// Package pipeline orchestrates enrichment and persistence of fetched feed
// items.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"threatfeed/internal/fingerprint"
	"threatfeed/internal/ioc"
	"threatfeed/internal/language"
	"threatfeed/internal/model"
	"threatfeed/internal/storage"
	"threatfeed/internal/translate"
)

// Status is the terminal state of one item's run through the pipeline.
type Status string

const (
	StatusStored  Status = "stored"
	StatusSkipped Status = "skipped"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	FingerprintExists(ctx context.Context, fp string) (bool, error)
	CreateArticle(ctx context.Context, article *model.Article, indicators []model.Indicator) error
	MarkIndexed(ctx context.Context, articleID string, at time.Time) error
}

// Translator converts a batch of fields to the target language.
type Translator interface {
	TranslateBatch(ctx context.Context, texts []string, lang string) []translate.Result
}

// Indexer pushes stored articles into the search engine.
type Indexer interface {
	IndexArticle(ctx context.Context, doc model.ArticleDocument) error
}

// Broadcaster notifies live subscribers of a stored article.
type Broadcaster interface {
	Publish(ctx context.Context, event model.NewArticleEvent) error
}

// Deps wires the pipeline's collaborators. Translator, Indexer, and
// Broadcaster may be nil; missing collaborators degrade the item, never
// fail it.
type Deps struct {
	Store        Store
	Translator   Translator
	Indexer      Indexer
	Broadcaster  Broadcaster
	TargetLang   string
	BodyMaxChars int
}

// Pipeline runs one item at a time through fingerprint, enrichment,
// persistence, and side effects.
type Pipeline struct {
	store        Store
	translator   Translator
	indexer      Indexer
	broadcaster  Broadcaster
	targetLang   string
	bodyMaxChars int
}

func New(deps Deps) *Pipeline {
	targetLang := deps.TargetLang
	if targetLang == "" {
		targetLang = "es"
	}
	maxChars := deps.BodyMaxChars
	if maxChars <= 0 {
		maxChars = 1_000_000
	}
	return &Pipeline{
		store:        deps.Store,
		translator:   deps.Translator,
		indexer:      deps.Indexer,
		broadcaster:  deps.Broadcaster,
		targetLang:   targetLang,
		bodyMaxChars: maxChars,
	}
}

// ProcessBatch runs every item of one fetch cycle sequentially. An error in
// one item is logged and the batch continues; a single malformed article
// never aborts the rest of the feed.
func (p *Pipeline) ProcessBatch(ctx context.Context, source model.Source, items []model.RawItem) (stored, skipped, failed int) {
	for _, item := range items {
		status, err := p.ProcessItem(ctx, source, item)
		if err != nil {
			failed++
			slog.Error("item processing failed, continuing batch",
				"source", source.Name, "link", item.Link, "err", err)
			continue
		}
		switch status {
		case StatusStored:
			stored++
		case StatusSkipped:
			skipped++
		}
	}
	slog.Info("batch complete", "source", source.Name,
		"stored", stored, "skipped", skipped, "failed", failed)
	return stored, skipped, failed
}

// ProcessItem runs the per-item state machine. A fingerprint hit is a
// silent skip, the system's idempotence guarantee.
func (p *Pipeline) ProcessItem(ctx context.Context, source model.Source, item model.RawItem) (Status, error) {
	fp := fingerprint.New(item.Title, item.PublishedAt, fingerprint.Hostname(source.URL))

	exists, err := p.store.FingerprintExists(ctx, fp)
	if err != nil {
		return "", fmt.Errorf("fingerprint lookup: %w", err)
	}
	if exists {
		return StatusSkipped, nil
	}

	detectedLang := language.Detect(item.Title + " " + item.Content)

	// The ceiling counts characters, not bytes, so a non-ASCII body is
	// never cut short or split mid-rune.
	bodyRaw := item.Content
	truncated := false
	if utf8.RuneCountInString(bodyRaw) > p.bodyMaxChars {
		bodyRaw = string([]rune(bodyRaw)[:p.bodyMaxChars])
		truncated = true
		slog.Warn("article body truncated", "fingerprint", fp, "max_chars", p.bodyMaxChars)
	}

	titleES := item.Title
	bodyES := bodyRaw
	summaryES := item.Summary
	translatedFlag := false
	confidence := 1.0

	// Each field translates independently; a failed field keeps its raw
	// text while the others may still succeed.
	if detectedLang != p.targetLang && p.translator != nil {
		results := p.translator.TranslateBatch(ctx, []string{item.Title, bodyRaw, item.Summary}, detectedLang)
		if results[0].Success {
			titleES = results[0].Text
			translatedFlag = true
			confidence = results[0].Confidence
		}
		if results[1].Success {
			bodyES = results[1].Text
		}
		if results[2].Success {
			summaryES = results[2].Text
		}
	}

	// Indicators come from the pre-translation text so translation can
	// never corrupt what gets extracted.
	matches := ioc.Extract(bodyRaw + " " + item.Title)
	hasIOCs := len(matches) > 0

	article := &model.Article{
		SourceID:              source.ID,
		TitleRaw:              item.Title,
		BodyRaw:               bodyRaw,
		SummaryRaw:            item.Summary,
		SourceURL:             item.Link,
		PublishedAt:           item.PublishedAt,
		LanguageDetected:      detectedLang,
		TitleES:               titleES,
		BodyES:                bodyES,
		SummaryES:             summaryES,
		Translated:            translatedFlag,
		ConfidenceTranslation: confidence,
		Fingerprint:           fp,
		Truncated:             truncated,
		Tags:                  deriveTags(source, hasIOCs),
		HasIOCs:               hasIOCs,
		IOCCount:              len(matches),
	}

	indicators := make([]model.Indicator, 0, len(matches))
	for _, m := range matches {
		indicators = append(indicators, model.Indicator{
			Type:            m.Type,
			Value:           m.Value,
			NormalizedValue: m.NormalizedValue,
			Context:         m.Context,
			Confidence:      m.Confidence,
		})
	}

	if err := p.store.CreateArticle(ctx, article, indicators); err != nil {
		// A concurrent ingest of the same item landed first; not an error.
		if errors.Is(err, storage.ErrDuplicate) {
			return StatusSkipped, nil
		}
		return "", fmt.Errorf("persist article: %w", err)
	}

	p.indexArticle(ctx, source, article, matches)
	p.broadcastArticle(ctx, source, article, matches)

	return StatusStored, nil
}

// indexArticle is best-effort: on failure the article persists without an
// indexed timestamp.
func (p *Pipeline) indexArticle(ctx context.Context, source model.Source, article *model.Article, matches []ioc.Match) {
	if p.indexer == nil {
		return
	}
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, m.Value)
	}
	doc := model.ArticleDocument{
		ID:          article.ID,
		TitleES:     article.TitleES,
		BodyES:      article.BodyES,
		SummaryES:   article.SummaryES,
		Tags:        article.Tags,
		IOCs:        values,
		PublishedAt: article.PublishedAt.UTC().Format(time.RFC3339),
		SourceName:  source.Name,
		SourceType:  source.Type,
		Translated:  article.Translated,
		HasIOCs:     article.HasIOCs,
	}
	if err := p.indexer.IndexArticle(ctx, doc); err != nil {
		slog.Error("indexing failed, article stored unindexed", "article_id", article.ID, "err", err)
		return
	}
	now := time.Now()
	article.IndexedAt = &now
	if err := p.store.MarkIndexed(ctx, article.ID, now); err != nil {
		slog.Error("recording index timestamp failed", "article_id", article.ID, "err", err)
	}
}

// broadcastArticle is best-effort: transport failure never affects
// persistence.
func (p *Pipeline) broadcastArticle(ctx context.Context, source model.Source, article *model.Article, matches []ioc.Match) {
	if p.broadcaster == nil {
		return
	}
	preview := make([]string, 0, 3)
	for _, m := range matches {
		if len(preview) == 3 {
			break
		}
		preview = append(preview, m.Value)
	}
	event := model.NewArticleEvent{
		ArticleID:   article.ID,
		TitleES:     article.TitleES,
		SummaryES:   truncateRunes(article.SummaryES, 200),
		Tags:        article.Tags,
		IOCsPreview: preview,
		PublishedAt: article.PublishedAt.UTC().Format(time.RFC3339),
		SourceName:  source.Name,
		Translated:  article.Translated,
		Confidence:  article.ConfidenceTranslation,
	}
	if err := p.broadcaster.Publish(ctx, event); err != nil {
		slog.Error("broadcast failed", "article_id", article.ID, "err", err)
	}
}

// deriveTags builds the article's label set: source type, then region, then
// the iocs marker. Nothing else is synthesized.
func deriveTags(source model.Source, hasIOCs bool) []string {
	tags := []string{}
	if source.Type != "" {
		tags = append(tags, source.Type)
	}
	if source.Region != "" {
		tags = append(tags, source.Region)
	}
	if hasIOCs {
		tags = append(tags, "iocs")
	}
	return tags
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
