package scheduler

import (
	"context"
	"log/slog"

	"threatfeed/internal/model"
)

// DirectDispatcher runs ingestion in-process when no job backend is
// configured. It fires the run without awaiting completion and swallows
// errors, so the scheduling loop never blocks on ingestion work. This
// trades the queue's retry guarantees for deployability.
type DirectDispatcher struct {
	Run      func(ctx context.Context, sourceID string) error
	InFlight *InFlight
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, source model.Source) error {
	run := context.WithoutCancel(ctx)
	go func() {
		defer d.InFlight.Release(source.ID)
		if err := d.Run(run, source.ID); err != nil {
			slog.Error("direct ingest failed", "source", source.Name, "err", err)
		}
	}()
	return nil
}

// InlineDispatcher runs ingestion synchronously. One-shot commands use it
// so a triggered fetch completes, and reports its failure, before the
// process exits.
type InlineDispatcher struct {
	Run      func(ctx context.Context, sourceID string) error
	InFlight *InFlight
	Failures int
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, source model.Source) error {
	defer d.InFlight.Release(source.ID)
	if err := d.Run(ctx, source.ID); err != nil {
		d.Failures++
		return err
	}
	return nil
}
