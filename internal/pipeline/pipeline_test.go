package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"threatfeed/internal/model"
	"threatfeed/internal/storage"
	"threatfeed/internal/translate"
)

type fakeStore struct {
	articles    map[string]*model.Article // by fingerprint
	indicators  map[string][]model.Indicator
	indexed     map[string]time.Time
	failTitle   string // CreateArticle fails for this title
	blindLookup bool   // FingerprintExists lies, forcing the insert-time duplicate path
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles:   map[string]*model.Article{},
		indicators: map[string][]model.Indicator{},
		indexed:    map[string]time.Time{},
	}
}

func (f *fakeStore) FingerprintExists(_ context.Context, fp string) (bool, error) {
	if f.blindLookup {
		return false, nil
	}
	_, ok := f.articles[fp]
	return ok, nil
}

func (f *fakeStore) CreateArticle(_ context.Context, a *model.Article, inds []model.Indicator) error {
	if a.TitleRaw == f.failTitle {
		return errors.New("storage exploded")
	}
	if _, ok := f.articles[a.Fingerprint]; ok {
		return storage.ErrDuplicate
	}
	if a.ID == "" {
		a.ID = "art-" + a.Fingerprint[:8]
	}
	f.articles[a.Fingerprint] = a
	f.indicators[a.ID] = inds
	return nil
}

func (f *fakeStore) MarkIndexed(_ context.Context, id string, at time.Time) error {
	f.indexed[id] = at
	return nil
}

type fakeIndexer struct {
	docs []model.ArticleDocument
	err  error
}

func (f *fakeIndexer) IndexArticle(_ context.Context, doc model.ArticleDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

type fakeBroadcaster struct {
	events []model.NewArticleEvent
	err    error
}

func (f *fakeBroadcaster) Publish(_ context.Context, ev model.NewArticleEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

// fakeTranslator marks every field so tests can tell translated output from
// raw passthrough.
type fakeTranslator struct{ fail bool }

func (f *fakeTranslator) TranslateBatch(_ context.Context, texts []string, _ string) []translate.Result {
	out := make([]translate.Result, 0, len(texts))
	for _, s := range texts {
		if f.fail {
			out = append(out, translate.Result{Text: s, Confidence: 0, Success: false})
			continue
		}
		out = append(out, translate.Result{Text: "es: " + s, Confidence: 0.85, Success: true})
	}
	return out
}

func englishItem(title string) model.RawItem {
	return model.RawItem{
		Title:       title,
		Content:     "The threat actor used this infrastructure during the campaign last month.",
		Link:        "https://feeds.example.net/" + title,
		PublishedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Summary:     "Short summary of the campaign.",
	}
}

func testSource() model.Source {
	return model.Source{
		ID:                   "src-1",
		Name:                 "Example Intel",
		URL:                  "https://feeds.example.net/rss.xml",
		Type:                 "threat_intel",
		Region:               "emea",
		Enabled:              true,
		FetchIntervalMinutes: 30,
	}
}

func TestIdempotence(t *testing.T) {
	store := newFakeStore()
	p := New(Deps{Store: store})
	src := testSource()
	item := englishItem("repeat")

	status, err := p.ProcessItem(context.Background(), src, item)
	if err != nil || status != StatusStored {
		t.Fatalf("first run: status=%v err=%v", status, err)
	}
	status, err = p.ProcessItem(context.Background(), src, item)
	if err != nil || status != StatusSkipped {
		t.Fatalf("second run: status=%v err=%v, want silent skip", status, err)
	}
	if len(store.articles) != 1 {
		t.Errorf("expected exactly one stored article, got %d", len(store.articles))
	}
}

func TestConcurrentDuplicateLosesQuietly(t *testing.T) {
	store := newFakeStore()
	p := New(Deps{Store: store})
	src := testSource()
	item := englishItem("race")

	if _, err := p.ProcessItem(context.Background(), src, item); err != nil {
		t.Fatal(err)
	}
	// Simulate a concurrent writer landing between the lookup and the
	// insert: the lookup misses but the unique constraint still fires.
	store.blindLookup = true
	status, err := p.ProcessItem(context.Background(), src, item)
	if err != nil || status != StatusSkipped {
		t.Fatalf("duplicate insert should skip, got status=%v err=%v", status, err)
	}
}

func TestTruncationBoundary(t *testing.T) {
	store := newFakeStore()
	p := New(Deps{Store: store, BodyMaxChars: 1_000_000})
	src := testSource()

	over := englishItem("over")
	over.Content = strings.Repeat("a", 1_000_001)
	if _, err := p.ProcessItem(context.Background(), src, over); err != nil {
		t.Fatal(err)
	}

	exact := englishItem("exact")
	exact.Content = strings.Repeat("b", 1_000_000)
	if _, err := p.ProcessItem(context.Background(), src, exact); err != nil {
		t.Fatal(err)
	}

	for _, a := range store.articles {
		switch a.TitleRaw {
		case "over":
			if len(a.BodyRaw) != 1_000_000 || !a.Truncated {
				t.Errorf("over-limit body: len=%d truncated=%v, want 1000000/true", len(a.BodyRaw), a.Truncated)
			}
		case "exact":
			if len(a.BodyRaw) != 1_000_000 || a.Truncated {
				t.Errorf("at-limit body: len=%d truncated=%v, want 1000000/false", len(a.BodyRaw), a.Truncated)
			}
		}
	}
}

func TestTruncationCountsCharacters(t *testing.T) {
	store := newFakeStore()
	p := New(Deps{Store: store, BodyMaxChars: 10})
	src := testSource()

	over := englishItem("over")
	over.Content = strings.Repeat("ñ", 11)
	if _, err := p.ProcessItem(context.Background(), src, over); err != nil {
		t.Fatal(err)
	}

	// 20 bytes but only 10 characters: inside the limit.
	exact := englishItem("exact")
	exact.Content = strings.Repeat("ñ", 10)
	if _, err := p.ProcessItem(context.Background(), src, exact); err != nil {
		t.Fatal(err)
	}

	for _, a := range store.articles {
		if !utf8.ValidString(a.BodyRaw) {
			t.Errorf("%s body is not valid UTF-8 after truncation", a.TitleRaw)
		}
		switch a.TitleRaw {
		case "over":
			if utf8.RuneCountInString(a.BodyRaw) != 10 || !a.Truncated {
				t.Errorf("over-limit body: %d chars truncated=%v, want 10/true",
					utf8.RuneCountInString(a.BodyRaw), a.Truncated)
			}
		case "exact":
			if a.Truncated {
				t.Errorf("10-character body must not be truncated by a 10-character limit")
			}
		}
	}
}

func TestBatchIsolation(t *testing.T) {
	store := newFakeStore()
	store.failTitle = "item-3"
	p := New(Deps{Store: store})
	src := testSource()

	items := []model.RawItem{
		englishItem("item-1"), englishItem("item-2"), englishItem("item-3"),
		englishItem("item-4"), englishItem("item-5"),
	}
	stored, _, failed := p.ProcessBatch(context.Background(), src, items)
	if stored != 4 || failed != 1 {
		t.Fatalf("stored=%d failed=%d, want 4/1", stored, failed)
	}
	if len(store.articles) != 4 {
		t.Errorf("expected items 1,2,4,5 stored, got %d articles", len(store.articles))
	}
}

func TestIndexFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	idx := &fakeIndexer{err: errors.New("search down")}
	p := New(Deps{Store: store, Indexer: idx})

	status, err := p.ProcessItem(context.Background(), testSource(), englishItem("x"))
	if err != nil || status != StatusStored {
		t.Fatalf("index failure must not fail the item: status=%v err=%v", status, err)
	}
	if len(store.indexed) != 0 {
		t.Errorf("indexedAt must stay unset when indexing fails")
	}
}

func TestIndexSuccessSetsTimestamp(t *testing.T) {
	store := newFakeStore()
	idx := &fakeIndexer{}
	p := New(Deps{Store: store, Indexer: idx})

	if _, err := p.ProcessItem(context.Background(), testSource(), englishItem("x")); err != nil {
		t.Fatal(err)
	}
	if len(idx.docs) != 1 {
		t.Fatalf("expected one indexed document, got %d", len(idx.docs))
	}
	if len(store.indexed) != 1 {
		t.Errorf("expected indexedAt recorded once")
	}
}

func TestBroadcastPreviewBounds(t *testing.T) {
	store := newFakeStore()
	bc := &fakeBroadcaster{}
	p := New(Deps{Store: store, Broadcaster: bc})
	src := testSource()

	item := englishItem("many-iocs")
	item.Content = "c2 hosts 198.51.100.1 198.51.100.2 198.51.100.3 198.51.100.4 and 198.51.100.5"
	item.Summary = strings.Repeat("s", 500)
	if _, err := p.ProcessItem(context.Background(), src, item); err != nil {
		t.Fatal(err)
	}

	if len(bc.events) != 1 {
		t.Fatalf("expected one event, got %d", len(bc.events))
	}
	ev := bc.events[0]
	if len(ev.IOCsPreview) != 3 {
		t.Errorf("preview = %d values, want 3", len(ev.IOCsPreview))
	}
	if len(ev.SummaryES) != 200 {
		t.Errorf("summary = %d chars, want capped at 200", len(ev.SummaryES))
	}
}

func TestBroadcastFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	bc := &fakeBroadcaster{err: errors.New("transport down")}
	p := New(Deps{Store: store, Broadcaster: bc})

	status, err := p.ProcessItem(context.Background(), testSource(), englishItem("x"))
	if err != nil || status != StatusStored {
		t.Fatalf("broadcast failure must not fail the item: status=%v err=%v", status, err)
	}
}

func TestTranslationAppliedPerField(t *testing.T) {
	store := newFakeStore()
	p := New(Deps{Store: store, Translator: &fakeTranslator{}, TargetLang: "es"})

	item := englishItem("translated")
	if _, err := p.ProcessItem(context.Background(), testSource(), item); err != nil {
		t.Fatal(err)
	}
	var a *model.Article
	for _, stored := range store.articles {
		a = stored
	}
	if !a.Translated || a.ConfidenceTranslation != 0.85 {
		t.Fatalf("translated=%v confidence=%v, want true/0.85", a.Translated, a.ConfidenceTranslation)
	}
	if !strings.HasPrefix(a.TitleES, "es: ") || !strings.HasPrefix(a.BodyES, "es: ") {
		t.Errorf("translated fields not applied: %q / %q", a.TitleES, a.BodyES)
	}
	if a.TitleRaw != item.Title {
		t.Errorf("raw title must stay untouched")
	}
}

func TestTranslationFailureFallsBack(t *testing.T) {
	store := newFakeStore()
	p := New(Deps{Store: store, Translator: &fakeTranslator{fail: true}, TargetLang: "es"})

	item := englishItem("fallback")
	if _, err := p.ProcessItem(context.Background(), testSource(), item); err != nil {
		t.Fatal(err)
	}
	for _, a := range store.articles {
		if a.Translated {
			t.Errorf("failed translation must leave translated=false")
		}
		if a.TitleES != item.Title || a.BodyES != item.Content {
			t.Errorf("failed translation must keep raw text in the es fields")
		}
	}
}

func TestIndicatorsExtractedBeforeTranslation(t *testing.T) {
	store := newFakeStore()
	p := New(Deps{Store: store, Translator: &fakeTranslator{}, TargetLang: "es"})
	src := testSource()

	item := englishItem("with-iocs")
	item.Content = "The sample beacons to 203.0.113.77 exploiting CVE-2024-30040 in the wild."
	if _, err := p.ProcessItem(context.Background(), src, item); err != nil {
		t.Fatal(err)
	}

	for id, inds := range store.indicators {
		if len(inds) != 2 {
			t.Fatalf("expected 2 indicators for %s, got %+v", id, inds)
		}
		for _, ind := range inds {
			if strings.HasPrefix(ind.Value, "es: ") {
				t.Errorf("indicator extracted from translated text: %+v", ind)
			}
		}
	}
	for _, a := range store.articles {
		if !a.HasIOCs || a.IOCCount != 2 {
			t.Errorf("hasIocs=%v iocCount=%d, want true/2", a.HasIOCs, a.IOCCount)
		}
	}
}

func TestTagOrder(t *testing.T) {
	cases := []struct {
		name    string
		source  model.Source
		hasIOCs bool
		want    []string
	}{
		{"all present", model.Source{Type: "threat_intel", Region: "latam"}, true, []string{"threat_intel", "latam", "iocs"}},
		{"no region", model.Source{Type: "vendor"}, false, []string{"vendor"}},
		{"iocs only", model.Source{}, true, []string{"iocs"}},
		{"empty", model.Source{}, false, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveTags(tc.source, tc.hasIOCs)
			if len(got) != len(tc.want) {
				t.Fatalf("deriveTags = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("deriveTags = %v, want %v", got, tc.want)
				}
			}
		})
	}
}
