// Package feed retrieves RSS/Atom feeds and normalizes their items.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"threatfeed/internal/model"
)

// DefaultMaxItems bounds per-cycle work for a single feed.
const DefaultMaxItems = 50

// FetchError marks a network or parse failure retrieving a feed. It is the
// only error class the scheduler's retry logic acts on.
type FetchError struct {
	SourceName string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s: %v", e.SourceName, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	iframeRe = regexp.MustCompile(`(?is)<iframe\b.*?</iframe>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Fetcher retrieves a source's feed and yields normalized raw items.
type Fetcher struct {
	parser   *gofeed.Parser
	maxItems int
	now      func() time.Time
}

// NewFetcher constructs a fetcher. maxItems <= 0 falls back to the default.
func NewFetcher(maxItems int) *Fetcher {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Fetcher{
		parser:   gofeed.NewParser(),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Fetch downloads and parses the feed at source.URL. Items missing a title
// or link are dropped silently; output is capped at maxItems.
func (f *Fetcher) Fetch(ctx context.Context, source model.Source) ([]model.RawItem, error) {
	parsed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, &FetchError{SourceName: source.Name, Err: err}
	}
	items := f.Normalize(parsed)
	slog.Info("fetched feed", "source", source.Name, "items", len(items))
	return items, nil
}

// Normalize converts parsed feed entries into bounded raw items.
func (f *Fetcher) Normalize(parsed *gofeed.Feed) []model.RawItem {
	items := make([]model.RawItem, 0, min(len(parsed.Items), f.maxItems))
	for _, it := range parsed.Items {
		if len(items) >= f.maxItems {
			break
		}
		if it.Title == "" || it.Link == "" {
			continue
		}

		// Prefer the full content body over the short description.
		content := it.Content
		if content == "" {
			content = it.Description
		}

		pub := f.now()
		if it.PublishedParsed != nil {
			pub = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			pub = *it.UpdatedParsed
		}

		items = append(items, model.RawItem{
			Title:       it.Title,
			Content:     StripHTML(content),
			Link:        it.Link,
			PublishedAt: pub,
			Summary:     StripHTML(it.Description),
		})
	}
	return items
}

// StripHTML removes script and iframe blocks wholesale, then all remaining
// tags, and collapses whitespace.
func StripHTML(html string) string {
	s := scriptRe.ReplaceAllString(html, "")
	s = iframeRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
