// Package orchestrator drives merge jobs: it loads the data grid once,
// renders each row against the template, asks an ArtifactProducer to
// materialize it and records every step in the job store.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/tabular"
)

var (
	// ErrJobRunning is returned when a run is already executing for the job.
	ErrJobRunning = errors.New("orchestrator: job is already running")

	// ErrJobNotPending is returned when Run is called for a job that has
	// already left the pending state. Jobs are never resumed in place.
	ErrJobNotPending = errors.New("orchestrator: job is not pending")

	// ErrJobFinished is returned when cancelling a terminal job.
	ErrJobFinished = errors.New("orchestrator: job already finished")

	// ErrInvalidRequest wraps request validation failures from Submit and
	// Fields.
	ErrInvalidRequest = errors.New("orchestrator: invalid request")
)

// TemplateSource fetches template content. Implementations return
// *merge.TemplateUnavailableError for upstream failures and
// *merge.AuthExpiredError for rejected credentials.
type TemplateSource interface {
	FetchTemplate(ctx context.Context, templateID string) (merge.Template, error)
}

// GridSource returns the cells of a data source within rng, row 0 being the
// header row.
type GridSource interface {
	FetchGrid(ctx context.Context, sourceID string, rng tabular.Range) (tabular.Grid, error)
}

// ArtifactProducer materializes one rendered row. seq is the 1-based row
// sequence number and row is the data it was rendered from. Producers must
// tolerate a retried seq without leaking unbounded copies.
type ArtifactProducer interface {
	Produce(ctx context.Context, tmpl merge.Template, rendered string, seq int, row merge.DataRow) (merge.ArtifactRef, error)
}

// ProgressSink receives progress percentages in [0,100]. Values never
// decrease and 100 is delivered exactly once, when the job completes.
type ProgressSink func(percent int)

// Observer receives job events. Emit must not block.
type Observer interface {
	Emit(ProgressEvent)
}

// Recorder stores provenance for a job once it reaches a terminal state.
type Recorder interface {
	RecordJob(ctx context.Context, tmpl merge.Template, job jobs.Job) error
}

// EventKind distinguishes lifecycle transitions from progress ticks.
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
)

// ProgressEvent is published to observers as a job advances.
type ProgressEvent struct {
	JobID     string      `json:"jobId"`
	Kind      EventKind   `json:"kind"`
	Status    jobs.Status `json:"status"`
	Percent   int         `json:"percent"`
	Processed int         `json:"processedRecords"`
	Total     int         `json:"totalRecords"`

	// Sequence is set on progress events caused by a finished row.
	Sequence int `json:"sequence,omitempty"`

	// Message carries the row error or the job-level failure.
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Terminal reports whether the event announces the end of its job.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventStatus && e.Status.IsTerminal()
}

// Request describes a job to create.
type Request struct {
	TemplateID   string `json:"templateId"`
	DataSourceID string `json:"dataSourceId"`
	Range        string `json:"range,omitempty"`
}
