package scheduler

import "sync"

// InFlight tracks which sources are currently being ingested, so a slow
// fetch cannot be dispatched a second time by the next tick. The marker is
// acquired before dispatch and released by whoever finishes the run.
type InFlight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{ids: map[string]struct{}{}}
}

// Acquire marks a source as running. It returns false if the source is
// already in flight.
func (f *InFlight) Acquire(sourceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, running := f.ids[sourceID]; running {
		return false
	}
	f.ids[sourceID] = struct{}{}
	return true
}

// Release clears the marker for a source. Releasing a source that is not
// marked is a no-op.
func (f *InFlight) Release(sourceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, sourceID)
}
