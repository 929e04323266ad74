package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is a concurrency-safe in-memory Store. Jobs are kept in a map
// keyed by ID with a separate slice maintaining insertion order for
// deterministic pagination.
type MemStore struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	orderIDs []string
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		jobs:     make(map[string]*Job),
		orderIDs: make([]string, 0),
	}
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

// Create stores a new job.
func (s *MemStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q: %w", job.ID, ErrAlreadyExists)
	}
	s.jobs[job.ID] = clone(&job)
	s.orderIDs = append(s.orderIDs, job.ID)
	return nil
}

// Get returns a deep copy of the job with the given ID.
func (s *MemStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	return clone(j), nil
}

// Update applies fn to a working copy of the job under the write lock and
// commits it only when fn succeeds. It returns a copy of the committed job.
func (s *MemStore) Update(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	work := clone(j)
	if err := fn(work); err != nil {
		return nil, err
	}
	s.jobs[id] = work
	return clone(work), nil
}

// List returns jobs matching filter in insertion order.
func (s *MemStore) List(_ context.Context, filter ListFilter) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startIdx := 0
	if filter.PageToken != "" {
		found := false
		for i, id := range s.orderIDs {
			if id == filter.PageToken {
				startIdx = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w %q", ErrInvalidPageToken, filter.PageToken)
		}
	}

	total := 0
	matched := []Job{}
	for i, id := range s.orderIDs {
		j := s.jobs[id]
		if !matchesFilter(j, filter) {
			continue
		}
		total++
		if i >= startIdx {
			matched = append(matched, *clone(j))
		}
	}

	var next string
	if filter.PageSize > 0 && len(matched) > filter.PageSize {
		next = matched[filter.PageSize-1].ID
		matched = matched[:filter.PageSize]
	}

	return &ListResult{Jobs: matched, TotalSize: total, NextPageToken: next}, nil
}

// Prune removes terminal jobs completed before cutoff.
func (s *MemStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.orderIDs[:0]
	removed := 0
	for _, id := range s.orderIDs {
		j := s.jobs[id]
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.orderIDs = kept
	return removed, nil
}
