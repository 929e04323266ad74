// Package export renders jobs and lineage for people and other tools.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
)

// JobManifest is the JSON export of one job and its artifacts.
type JobManifest struct {
	JobID        string `json:"jobId"`
	TemplateID   string `json:"templateId"`
	DataSourceID string `json:"dataSourceId"`
	Range        string `json:"range,omitempty"`
	Status       string `json:"status"`
	ExportedAt   string `json:"exportedAt"`
	CompletedAt  string `json:"completedAt,omitempty"`

	TotalRecords     int `json:"totalRecords"`
	ProcessedRecords int `json:"processedRecords"`
	FailedRecords    int `json:"failedRecords"`

	Artifacts []ArtifactExport `json:"artifacts"`
	RowErrors []RowErrorExport `json:"rowErrors,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ArtifactExport is one manifest line.
type ArtifactExport struct {
	Sequence int    `json:"sequence"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// RowErrorExport names a row that produced no artifact.
type RowErrorExport struct {
	Sequence int    `json:"sequence"`
	Message  string `json:"message"`
}

// ExportJob builds a manifest from a job snapshot. exportedAt is recorded
// in UTC.
func ExportJob(job jobs.Job, exportedAt time.Time) *JobManifest {
	m := &JobManifest{
		JobID:            job.ID,
		TemplateID:       job.TemplateID,
		DataSourceID:     job.DataSourceID,
		Range:            job.Range,
		Status:           string(job.Status),
		ExportedAt:       exportedAt.UTC().Format(time.RFC3339),
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		FailedRecords:    job.FailedRecords,
		Artifacts:        make([]ArtifactExport, 0, len(job.Artifacts)),
		Error:            job.ErrorMessage,
	}
	if job.CompletedAt != nil {
		m.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	for _, a := range job.Artifacts {
		m.Artifacts = append(m.Artifacts, ArtifactExport{Sequence: a.Sequence, Name: a.Name, URL: a.URL})
	}
	for _, e := range job.RowErrors {
		m.RowErrors = append(m.RowErrors, RowErrorExport{Sequence: e.Sequence, Message: e.Message})
	}
	return m
}

// WriteJSON writes m as indented JSON followed by a newline.
func WriteJSON(w io.Writer, m *JobManifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("export: encode manifest: %w", err)
	}
	return nil
}
