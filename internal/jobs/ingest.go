// Package jobs carries the fetch-source unit of work and its queue
// plumbing.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"threatfeed/internal/model"
	"threatfeed/internal/pipeline"
)

// SourceStore is the persistence surface an ingestion run needs.
type SourceStore interface {
	GetSource(ctx context.Context, id string) (*model.Source, error)
	UpdateLastFetched(ctx context.Context, id string, at time.Time) error
}

// Fetcher retrieves and normalizes a source's feed.
type Fetcher interface {
	Fetch(ctx context.Context, source model.Source) ([]model.RawItem, error)
}

// Ingestor performs one full fetch cycle for a source. Fetch failures
// propagate to the caller's retry logic; per-item failures stay isolated
// inside the batch.
type Ingestor struct {
	Store    SourceStore
	Fetcher  Fetcher
	Pipeline *pipeline.Pipeline
}

// IngestSource fetches the source's feed, runs every item through the
// pipeline, and records the completed cycle.
func (in *Ingestor) IngestSource(ctx context.Context, sourceID string) error {
	source, err := in.Store.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}
	if !source.Enabled {
		slog.Warn("source disabled, skipping ingest", "source", source.Name)
		return nil
	}

	items, err := in.Fetcher.Fetch(ctx, *source)
	if err != nil {
		return err
	}

	in.Pipeline.ProcessBatch(ctx, *source, items)

	if err := in.Store.UpdateLastFetched(ctx, source.ID, time.Now()); err != nil {
		return fmt.Errorf("record fetch cycle: %w", err)
	}
	return nil
}
