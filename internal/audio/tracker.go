package audio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ErrTrackerDrained is returned when registering with a drained tracker
var ErrTrackerDrained = errors.New("resource tracker already drained")

// Tracker owns every backend process and scratch resource started by the
// application, so that shutdown can reclaim what a crashed session left behind.
// Create one per process lifecycle and Drain it on exit.
type Tracker struct {
	logger *zap.Logger

	mu      sync.Mutex
	next    uint64
	entries map[uint64]trackedEntry
	drained bool
}

type trackedEntry struct {
	name    string
	cleanup func() error
}

// NewTracker returns an empty tracker
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger:  logger,
		entries: make(map[uint64]trackedEntry),
	}
}

// Track registers cleanup under name. The returned release func removes the
// entry without running cleanup; it is safe to call more than once.
func (t *Tracker) Track(name string, cleanup func() error) (release func(), err error) {
	if t == nil {
		return func() {}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drained {
		return nil, fmt.Errorf("%w: %s", ErrTrackerDrained, name)
	}
	t.next++
	id := t.next
	t.entries[id] = trackedEntry{name: name, cleanup: cleanup}

	return func() {
		t.mu.Lock()
		delete(t.entries, id)
		t.mu.Unlock()
	}, nil
}

// Len returns the number of live entries
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Drain runs every outstanding cleanup and refuses new entries.
// Cleanups run in registration order until ctx is done.
func (t *Tracker) Drain(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	t.drained = true
	ids := make([]uint64, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	entries := t.entries
	t.entries = make(map[uint64]trackedEntry)
	t.mu.Unlock()

	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("drain interrupted: %w", err))
			break
		}
		e := entries[id]
		t.logger.Info("reclaiming resource", zap.String("resource", e.name))
		if err := e.cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("failed to clean up %s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

