package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/tabular"
)

// fakeTemplates implements TemplateSource with a fixed result.
type fakeTemplates struct {
	tmpl merge.Template
	err  error
}

func (f *fakeTemplates) FetchTemplate(_ context.Context, id string) (merge.Template, error) {
	if f.err != nil {
		return merge.Template{}, f.err
	}
	t := f.tmpl
	if t.ID == "" {
		t.ID = id
	}
	return t, nil
}

// fakeGrid implements GridSource with a fixed grid.
type fakeGrid struct {
	grid tabular.Grid
	err  error
}

func (f *fakeGrid) FetchGrid(_ context.Context, _ string, _ tabular.Range) (tabular.Grid, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.grid, nil
}

// fakeProducer records every call and delegates to fn when set.
type fakeProducer struct {
	mu       sync.Mutex
	calls    []int
	rendered map[int]string
	fn       func(ctx context.Context, seq int) (merge.ArtifactRef, error)
}

func (f *fakeProducer) Produce(ctx context.Context, _ merge.Template, rendered string, seq int, _ merge.DataRow) (merge.ArtifactRef, error) {
	f.mu.Lock()
	f.calls = append(f.calls, seq)
	if f.rendered == nil {
		f.rendered = make(map[int]string)
	}
	f.rendered[seq] = rendered
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(ctx, seq)
	}
	return okRef(seq), nil
}

func (f *fakeProducer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func okRef(seq int) merge.ArtifactRef {
	name := merge.ArtifactFileName(seq, "pdf")
	return merge.ArtifactRef{Name: name, URL: "https://files.example/" + name}
}

// progressLog collects sink values.
type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) sink(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressLog) snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.values))
	copy(out, p.values)
	return out
}

// eventLog is an Observer that keeps every event.
type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (e *eventLog) Emit(ev ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) snapshot() []ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ProgressEvent, len(e.events))
	copy(out, e.events)
	return out
}

// fakeRecorder captures lineage calls.
type fakeRecorder struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (f *fakeRecorder) RecordJob(_ context.Context, _ merge.Template, job jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

// peopleGrid returns a header row plus n data rows.
func peopleGrid(n int) tabular.Grid {
	g := tabular.Grid{{"name", "city"}}
	for i := 1; i <= n; i++ {
		g = append(g, []string{fmt.Sprintf("person-%d", i), fmt.Sprintf("city-%d", i)})
	}
	return g
}
