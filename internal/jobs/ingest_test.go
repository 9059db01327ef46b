package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"threatfeed/internal/model"
	"threatfeed/internal/pipeline"
)

type fakeSourceStore struct {
	source      *model.Source
	lastFetched []string
}

func (f *fakeSourceStore) GetSource(context.Context, string) (*model.Source, error) {
	if f.source == nil {
		return nil, errors.New("source not found")
	}
	return f.source, nil
}

func (f *fakeSourceStore) UpdateLastFetched(_ context.Context, id string, _ time.Time) error {
	f.lastFetched = append(f.lastFetched, id)
	return nil
}

type fakeFetcher struct {
	items  []model.RawItem
	err    error
	called int
}

func (f *fakeFetcher) Fetch(context.Context, model.Source) ([]model.RawItem, error) {
	f.called++
	return f.items, f.err
}

// nullStore satisfies the pipeline's persistence surface without storing
// anything.
type nullStore struct{ created int }

func (n *nullStore) FingerprintExists(context.Context, string) (bool, error) { return false, nil }
func (n *nullStore) CreateArticle(context.Context, *model.Article, []model.Indicator) error {
	n.created++
	return nil
}
func (n *nullStore) MarkIndexed(context.Context, string, time.Time) error { return nil }

func newIngestor(store *fakeSourceStore, fetcher *fakeFetcher, articles *nullStore) *Ingestor {
	return &Ingestor{
		Store:    store,
		Fetcher:  fetcher,
		Pipeline: pipeline.New(pipeline.Deps{Store: articles}),
	}
}

func TestIngestDisabledSource(t *testing.T) {
	store := &fakeSourceStore{source: &model.Source{ID: "s1", Name: "off", Enabled: false}}
	fetcher := &fakeFetcher{}

	err := newIngestor(store, fetcher, &nullStore{}).IngestSource(context.Background(), "s1")
	if err != nil {
		t.Fatalf("disabled source must be a clean no-op, got %v", err)
	}
	if fetcher.called != 0 {
		t.Errorf("disabled source must not be fetched")
	}
	if len(store.lastFetched) != 0 {
		t.Errorf("disabled source must not record a fetch cycle")
	}
}

func TestIngestFetchErrorPropagates(t *testing.T) {
	store := &fakeSourceStore{source: &model.Source{ID: "s1", Name: "flaky", Enabled: true}}
	fetcher := &fakeFetcher{err: errors.New("HTTP 503")}

	err := newIngestor(store, fetcher, &nullStore{}).IngestSource(context.Background(), "s1")
	if err == nil {
		t.Fatal("fetch failure must reach the caller for retry")
	}
	if len(store.lastFetched) != 0 {
		t.Errorf("failed cycle must not advance last_fetched_at")
	}
}

func TestIngestSuccessfulCycle(t *testing.T) {
	store := &fakeSourceStore{source: &model.Source{ID: "s1", Name: "ok", Enabled: true}}
	fetcher := &fakeFetcher{items: []model.RawItem{
		{Title: "one", Content: "body one", Link: "https://a.example/1", PublishedAt: time.Now()},
		{Title: "two", Content: "body two", Link: "https://a.example/2", PublishedAt: time.Now()},
	}}
	articles := &nullStore{}

	if err := newIngestor(store, fetcher, articles).IngestSource(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if articles.created != 2 {
		t.Errorf("processed %d articles, want 2", articles.created)
	}
	if len(store.lastFetched) != 1 || store.lastFetched[0] != "s1" {
		t.Errorf("completed cycle must record last_fetched_at once, got %v", store.lastFetched)
	}
}

func TestIngestUnknownSource(t *testing.T) {
	err := newIngestor(&fakeSourceStore{}, &fakeFetcher{}, &nullStore{}).IngestSource(context.Background(), "missing")
	if err == nil {
		t.Fatal("unknown source id must fail the job")
	}
}
