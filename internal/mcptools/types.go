package mcptools

import (
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
)

// --- MCP Tool Input Types ---
// The MCP Go SDK generates JSON schemas from these struct tags.

// StartMergeInput is the input for the start_merge tool.
type StartMergeInput struct {
	TemplateID   string `json:"templateId" jsonschema:"ID of the template document"`
	DataSourceID string `json:"dataSourceId" jsonschema:"ID of the spreadsheet or CSV data source"`
	Range        string `json:"range,omitempty" jsonschema:"A1 cell range to read (default A:Z)"`
	Wait         bool   `json:"wait,omitempty" jsonschema:"block until the job reaches a terminal state"`
}

// JobIDInput names one job.
type JobIDInput struct {
	JobID string `json:"jobId" jsonschema:"the job ID returned by start_merge"`
}

// ListJobsInput is the input for the list_jobs tool.
type ListJobsInput struct {
	Status     string `json:"status,omitempty" jsonschema:"filter by status: pending, processing, completed, failed"`
	TemplateID string `json:"templateId,omitempty" jsonschema:"filter by template ID"`
	PageSize   int    `json:"pageSize,omitempty" jsonschema:"maximum jobs per page (default: all)"`
	PageToken  string `json:"pageToken,omitempty" jsonschema:"nextPageToken from a previous call"`
}

// ListFieldsInput is the input for the list_fields tool.
type ListFieldsInput struct {
	TemplateID   string `json:"templateId" jsonschema:"ID of the template document"`
	DataSourceID string `json:"dataSourceId" jsonschema:"ID of the spreadsheet or CSV data source"`
	Range        string `json:"range,omitempty" jsonschema:"A1 cell range to read (default A:Z)"`
}

// TemplateLineageInput is the input for the template_lineage tool.
type TemplateLineageInput struct {
	TemplateID string `json:"templateId" jsonschema:"ID of the template document"`
}

// --- MCP Tool Output Types ---

// ArtifactView is one produced document.
type ArtifactView struct {
	Sequence int    `json:"sequence"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// JobView is a job snapshot with timestamps as RFC 3339 strings.
type JobView struct {
	ID               string         `json:"id"`
	TemplateID       string         `json:"templateId"`
	DataSourceID     string         `json:"dataSourceId"`
	Status           string         `json:"status"`
	Progress         int            `json:"progress"`
	TotalRecords     int            `json:"totalRecords"`
	ProcessedRecords int            `json:"processedRecords"`
	FailedRecords    int            `json:"failedRecords"`
	Artifacts        []ArtifactView `json:"artifacts"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	ErrorKind        string         `json:"errorKind,omitempty"`
	CreatedAt        string         `json:"createdAt"`
	CompletedAt      string         `json:"completedAt,omitempty"`
}

// JobOutput wraps a single job.
type JobOutput struct {
	Job JobView `json:"job"`
}

// ListJobsOutput is one page of jobs.
type ListJobsOutput struct {
	Jobs          []JobView `json:"jobs"`
	TotalSize     int       `json:"totalSize"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// ListFieldsOutput compares template tokens with data source headers.
type ListFieldsOutput struct {
	TemplateName  string   `json:"templateName"`
	Headers       []string `json:"headers"`
	Rows          int      `json:"rows"`
	Tokens        []string `json:"tokens"`
	Matched       []string `json:"matched"`
	Unmatched     []string `json:"unmatched"`
	UnusedHeaders []string `json:"unusedHeaders"`
}

// LineageJobView is one job recorded against a template.
type LineageJobView struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	CompletedAt string         `json:"completedAt,omitempty"`
	Artifacts   []ArtifactView `json:"artifacts"`
}

// TemplateLineageOutput lists every job and artifact produced from a template.
type TemplateLineageOutput struct {
	TemplateID string           `json:"templateId"`
	Jobs       []LineageJobView `json:"jobs"`
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toJobView(j *jobs.Job) JobView {
	v := JobView{
		ID:               j.ID,
		TemplateID:       j.TemplateID,
		DataSourceID:     j.DataSourceID,
		Status:           string(j.Status),
		Progress:         j.Progress,
		TotalRecords:     j.TotalRecords,
		ProcessedRecords: j.ProcessedRecords,
		FailedRecords:    j.FailedRecords,
		Artifacts:        make([]ArtifactView, 0, len(j.Artifacts)),
		ErrorMessage:     j.ErrorMessage,
		ErrorKind:        string(j.ErrorKind),
		CreatedAt:        formatTime(&j.CreatedAt),
		CompletedAt:      formatTime(j.CompletedAt),
	}
	for _, a := range j.Artifacts {
		v.Artifacts = append(v.Artifacts, ArtifactView{Sequence: a.Sequence, Name: a.Name, URL: a.URL})
	}
	return v
}
