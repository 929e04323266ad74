package lineage

import (
	"context"
	"sort"
	"sync"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/merge"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu        sync.RWMutex
	templates map[string]TemplateNode
	jobs      map[string]JobNode
	artifacts map[string]ArtifactNode
	order     []string // job IDs in first-recorded order
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		templates: make(map[string]TemplateNode),
		jobs:      make(map[string]JobNode),
		artifacts: make(map[string]ArtifactNode),
	}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

// RecordJob upserts the template, job and artifact nodes.
func (m *MemStore) RecordJob(_ context.Context, tmpl merge.Template, job jobs.Job) error {
	t, j, arts := nodesFor(tmpl, job)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	if _, seen := m.jobs[j.ID]; !seen {
		m.order = append(m.order, j.ID)
	}
	m.jobs[j.ID] = j
	for _, a := range arts {
		m.artifacts[a.ID] = a
	}
	return nil
}

// Templates returns every recorded template sorted by ID.
func (m *MemStore) Templates(_ context.Context) ([]TemplateNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TemplateNode, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// JobsForTemplate returns the jobs merged from templateID in recorded order.
func (m *MemStore) JobsForTemplate(_ context.Context, templateID string) ([]JobNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobsFor(templateID), nil
}

func (m *MemStore) jobsFor(templateID string) []JobNode {
	var out []JobNode
	for _, id := range m.order {
		if j := m.jobs[id]; templateID == "" || j.TemplateID == templateID {
			out = append(out, j)
		}
	}
	return out
}

// ArtifactsForTemplate returns every artifact produced from templateID,
// grouped by job in recorded order and by sequence within a job.
func (m *MemStore) ArtifactsForTemplate(_ context.Context, templateID string) ([]ArtifactNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifactsFor(m.jobsFor(templateID)), nil
}

func (m *MemStore) artifactsFor(js []JobNode) []ArtifactNode {
	rank := make(map[string]int, len(js))
	for i, j := range js {
		rank[j.ID] = i
	}
	var out []ArtifactNode
	for _, a := range m.artifacts {
		if _, ok := rank[a.JobID]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if ri, rk := rank[out[i].JobID], rank[out[k].JobID]; ri != rk {
			return ri < rk
		}
		return out[i].Sequence < out[k].Sequence
	})
	return out
}

// Snapshot dumps the graph, optionally limited to one template.
func (m *MemStore) Snapshot(_ context.Context, templateID string) (*Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	js := m.jobsFor(templateID)
	g := &Graph{Jobs: js, Artifacts: m.artifactsFor(js)}
	for _, t := range m.templates {
		if templateID == "" || t.ID == templateID {
			g.Templates = append(g.Templates, t)
		}
	}
	sort.Slice(g.Templates, func(i, k int) bool { return g.Templates[i].ID < g.Templates[k].ID })
	g.Edges = edgesFor(g)
	return g, nil
}

// edgesFor rebuilds the edge list from node references, templates first.
func edgesFor(g *Graph) []Edge {
	edges := make([]Edge, 0, len(g.Jobs)+len(g.Artifacts))
	for _, j := range g.Jobs {
		edges = append(edges, Edge{Kind: EdgeMergedBy, SourceID: j.TemplateID, TargetID: j.ID})
	}
	for _, a := range g.Artifacts {
		edges = append(edges, Edge{Kind: EdgeProduced, SourceID: a.JobID, TargetID: a.ID})
	}
	return edges
}
