package jobs

import (
	"time"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/google/uuid"
)

// Status represents the lifecycle state of a merge job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// pending -> processing -> {completed, failed}; pending may also fail
// directly when cancelled before it starts.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Job is one batch merge run.
type Job struct {
	ID           string `json:"id"`
	TemplateID   string `json:"templateId"`
	DataSourceID string `json:"dataSourceId"`
	Range        string `json:"range,omitempty"`

	Status           Status `json:"status"`
	TotalRecords     int    `json:"totalRecords"`
	ProcessedRecords int    `json:"processedRecords"`
	FailedRecords    int    `json:"failedRecords"`
	Progress         int    `json:"progress"`

	// Artifacts is the manifest, ordered by Sequence.
	Artifacts []Artifact `json:"artifacts"`
	RowErrors []RowError `json:"rowErrors,omitempty"`

	ErrorMessage string          `json:"errorMessage,omitempty"`
	ErrorKind    merge.ErrorKind `json:"errorKind,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Artifact is a produced document tied to its 1-based row sequence number.
type Artifact struct {
	Sequence int    `json:"sequence"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// RowError records why one row produced no artifact.
type RowError struct {
	Sequence int    `json:"sequence"`
	Message  string `json:"message"`
}

// NewID returns a random job identifier.
func NewID() string {
	return uuid.NewString()
}

// New returns a pending job for the given template and data source.
func New(templateID, dataSourceID, rng string) Job {
	return Job{
		ID:           NewID(),
		TemplateID:   templateID,
		DataSourceID: dataSourceID,
		Range:        rng,
		Status:       StatusPending,
		Artifacts:    []Artifact{},
		CreatedAt:    time.Now().UTC(),
	}
}

// ListFilter selects jobs for List.
//
// PageToken is the ID of the last job from the previous page; PageSize <= 0
// returns every match.
type ListFilter struct {
	Status     Status `json:"status,omitempty"`
	TemplateID string `json:"templateId,omitempty"`
	PageSize   int    `json:"pageSize,omitempty"`
	PageToken  string `json:"pageToken,omitempty"`
}

// ListResult is one page of jobs in creation order.
type ListResult struct {
	Jobs          []Job  `json:"jobs"`
	TotalSize     int    `json:"totalSize"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func matchesFilter(j *Job, f ListFilter) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.TemplateID != "" && j.TemplateID != f.TemplateID {
		return false
	}
	return true
}

// clone returns a deep copy of j.
func clone(j *Job) *Job {
	dst := *j
	if j.Artifacts != nil {
		dst.Artifacts = make([]Artifact, len(j.Artifacts))
		copy(dst.Artifacts, j.Artifacts)
	}
	if j.RowErrors != nil {
		dst.RowErrors = make([]RowError, len(j.RowErrors))
		copy(dst.RowErrors, j.RowErrors)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		dst.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		dst.CompletedAt = &t
	}
	return &dst
}
