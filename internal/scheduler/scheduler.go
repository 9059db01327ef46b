// Package scheduler decides, per source, whether a fetch is due and
// dispatches fetch jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"threatfeed/internal/model"
)

// SourceLister supplies the enabled sources to evaluate each tick.
type SourceLister interface {
	ListEnabledSources(ctx context.Context) ([]model.Source, error)
}

// Dispatcher hands a due source off for ingestion. Dispatch must not
// block on the ingestion work itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, source model.Source) error
}

// Scheduler re-evaluates all sources on a fixed tick plus on start. Its
// clock is injected so due-ness is testable.
type Scheduler struct {
	store      SourceLister
	dispatcher Dispatcher
	tick       time.Duration
	now        func() time.Time
	inflight   *InFlight
}

func New(store SourceLister, dispatcher Dispatcher, tick time.Duration, inflight *InFlight) *Scheduler {
	if tick <= 0 {
		tick = 5 * time.Minute
	}
	if inflight == nil {
		inflight = NewInFlight()
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		tick:       tick,
		now:        time.Now,
		inflight:   inflight,
	}
}

// Start runs the scheduling loop until the context is cancelled. Errors
// inside a pass are logged, never propagated; the loop must not die.
func (s *Scheduler) Start(ctx context.Context) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	// initial pass
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every enabled source sequentially and dispatches the
// due ones.
func (s *Scheduler) RunOnce(ctx context.Context) {
	sources, err := s.store.ListEnabledSources(ctx)
	if err != nil {
		slog.Error("scheduler: listing sources failed", "err", err)
		return
	}
	slog.Info("scheduler pass", "sources", len(sources))

	for _, src := range sources {
		if !s.isDue(src) {
			continue
		}
		s.dispatch(ctx, src)
	}
}

// Trigger dispatches a source immediately, bypassing the due-check. A run
// already in flight for the source still suppresses the dispatch.
func (s *Scheduler) Trigger(ctx context.Context, source model.Source) {
	s.dispatch(ctx, source)
}

func (s *Scheduler) dispatch(ctx context.Context, src model.Source) {
	if !s.inflight.Acquire(src.ID) {
		slog.Debug("scheduler: source still in flight, skipping", "source", src.Name)
		return
	}
	if err := s.dispatcher.Dispatch(ctx, src); err != nil {
		s.inflight.Release(src.ID)
		slog.Error("scheduler: dispatch failed", "source", src.Name, "err", err)
		return
	}
	slog.Info("scheduler: dispatched fetch", "source", src.Name)
}

// isDue reports whether the source's fetch interval has elapsed. Sources
// never fetched are always due.
func (s *Scheduler) isDue(src model.Source) bool {
	if src.LastFetchedAt == nil {
		return true
	}
	interval := time.Duration(src.FetchIntervalMinutes) * time.Minute
	return s.now().Sub(*src.LastFetchedAt) >= interval
}
