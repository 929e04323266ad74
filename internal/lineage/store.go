// Package lineage records which template produced which jobs and which
// artifacts each job delivered.
//
// The graph has three node kinds and two edge kinds:
//
//	(Template)-[:MERGED_BY]->(Job)-[:PRODUCED]->(Artifact)
//
// Implementations: KuzuStore (cgo builds) and MemStore.
package lineage

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/merge"
)

// Store is the provenance backend. RecordJob must be idempotent: recording
// the same job twice leaves one Job node and one edge per artifact.
type Store interface {
	io.Closer

	// InitSchema is called once before any data is recorded.
	InitSchema(ctx context.Context) error

	RecordJob(ctx context.Context, tmpl merge.Template, job jobs.Job) error

	Templates(ctx context.Context) ([]TemplateNode, error)
	JobsForTemplate(ctx context.Context, templateID string) ([]JobNode, error)
	ArtifactsForTemplate(ctx context.Context, templateID string) ([]ArtifactNode, error)

	// Snapshot returns the whole graph, or only the subgraph rooted at
	// templateID when it is non-empty.
	Snapshot(ctx context.Context, templateID string) (*Graph, error)
}

// TemplateNode is a template that has been merged at least once.
type TemplateNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JobNode is the terminal state of one merge job.
type JobNode struct {
	ID            string    `json:"id"`
	TemplateID    string    `json:"templateId"`
	DataSourceID  string    `json:"dataSourceId"`
	Status        string    `json:"status"`
	TotalRecords  int       `json:"totalRecords"`
	FailedRecords int       `json:"failedRecords"`
	CompletedAt   time.Time `json:"completedAt"`
}

// ArtifactNode is one delivered document.
type ArtifactNode struct {
	ID       string `json:"id"`
	JobID    string `json:"jobId"`
	Sequence int    `json:"sequence"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// EdgeKind names a relationship table.
type EdgeKind string

const (
	EdgeMergedBy EdgeKind = "MERGED_BY"
	EdgeProduced EdgeKind = "PRODUCED"
)

// Edge connects two node IDs.
type Edge struct {
	Kind     EdgeKind `json:"kind"`
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
}

// Graph is a dump of the lineage store, ordered for stable rendering.
type Graph struct {
	Templates []TemplateNode `json:"templates"`
	Jobs      []JobNode      `json:"jobs"`
	Artifacts []ArtifactNode `json:"artifacts"`
	Edges     []Edge         `json:"edges"`
}

// artifactID is "jobID#sequence".
func artifactID(jobID string, seq int) string {
	return jobID + "#" + strconv.Itoa(seq)
}

// nodesFor derives the nodes recorded for a terminal job. A job that failed
// before its template loaded only knows the template ID.
func nodesFor(tmpl merge.Template, job jobs.Job) (TemplateNode, JobNode, []ArtifactNode) {
	t := TemplateNode{ID: tmpl.ID, Name: tmpl.DisplayName}
	if t.ID == "" {
		t.ID = job.TemplateID
	}
	if t.Name == "" {
		t.Name = t.ID
	}

	j := JobNode{
		ID:            job.ID,
		TemplateID:    t.ID,
		DataSourceID:  job.DataSourceID,
		Status:        string(job.Status),
		TotalRecords:  job.TotalRecords,
		FailedRecords: job.FailedRecords,
	}
	if job.CompletedAt != nil {
		j.CompletedAt = job.CompletedAt.UTC()
	}

	arts := make([]ArtifactNode, 0, len(job.Artifacts))
	for _, a := range job.Artifacts {
		arts = append(arts, ArtifactNode{
			ID:       artifactID(job.ID, a.Sequence),
			JobID:    job.ID,
			Sequence: a.Sequence,
			Name:     a.Name,
			URL:      a.URL,
		})
	}
	return t, j, arts
}
