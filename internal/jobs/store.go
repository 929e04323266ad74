// Package jobs holds the merge job entity and its state stores.
package jobs

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when no job has the requested ID.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyExists is returned by Create for a duplicate ID.
	ErrAlreadyExists = errors.New("job already exists")

	// ErrInvalidPageToken is returned by List for a token that names no job.
	ErrInvalidPageToken = errors.New("invalid page token")
)

// Store persists jobs. Readers receive copies; all mutation goes through
// Update, whose callback runs while the job is exclusively held. A non-nil
// error from the callback discards its changes.
//
// Implementations: MemStore (in-process), SQLStore (gorm).
type Store interface {
	io.Closer

	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)

	// Prune deletes terminal jobs completed before cutoff and returns how
	// many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
