package cmd

import (
	"context"
	"log/slog"
	"time"

	"threatfeed/internal/broadcast"
	"threatfeed/internal/config"
	"threatfeed/internal/feed"
	"threatfeed/internal/jobs"
	"threatfeed/internal/pipeline"
	"threatfeed/internal/redisclient"
	"threatfeed/internal/search"
	"threatfeed/internal/storage"
	"threatfeed/internal/translate"
)

// buildIngestor wires the full fetch-and-enrich path for one-shot
// commands. The returned cleanup closes the store and redis connections.
func buildIngestor(ctx context.Context, cfg config.Config) (*jobs.Ingestor, *storage.Store, func(), error) {
	store, err := storage.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	rdb := redisclient.New(cfg.Redis)
	cleanup := func() {
		rdb.Close()
		store.Close()
	}

	delay, err := time.ParseDuration(cfg.Ingest.TranslateDelay)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	var indexer pipeline.Indexer
	if sc, err := search.NewClient(search.Config{
		Addresses: cfg.Search.Addresses,
		Index:     cfg.Search.Index,
		Username:  cfg.Search.Username,
		Password:  cfg.Search.Password,
	}); err != nil {
		slog.Error("search client unavailable, articles will not be indexed", "err", err)
	} else {
		if err := sc.EnsureIndex(ctx); err != nil {
			slog.Error("ensure search index failed", "err", err)
		}
		indexer = sc
	}

	var translator pipeline.Translator
	if cfg.OpenAI.APIKey != "" {
		backend := translate.NewOpenAIBackend(translate.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		})
		translator = translate.New(backend, cfg.Ingest.TargetLanguage, cfg.Ingest.TranslateMaxChars, delay)
	}

	pipe := pipeline.New(pipeline.Deps{
		Store:        store,
		Translator:   translator,
		Indexer:      indexer,
		Broadcaster:  broadcast.NewPublisher(rdb, cfg.Ingest.BroadcastChannel),
		TargetLang:   cfg.Ingest.TargetLanguage,
		BodyMaxChars: cfg.Ingest.BodyMaxChars,
	})

	ingestor := &jobs.Ingestor{
		Store:    store,
		Fetcher:  feed.NewFetcher(cfg.Ingest.MaxItemsPerFeed),
		Pipeline: pipe,
	}
	return ingestor, store, cleanup, nil
}
