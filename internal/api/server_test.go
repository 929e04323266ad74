package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dusk-indust/mailmerge/internal/export"
	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/lineage"
	"github.com/dusk-indust/mailmerge/internal/localfs"
	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test helper
// ---------------------------------------------------------------------------

// gateProducer delegates to a DirProducer, optionally holding every row
// until release is closed or the row's context ends.
type gateProducer struct {
	next    *localfs.DirProducer
	release chan struct{}
	started chan int
}

func (g *gateProducer) Produce(ctx context.Context, tmpl merge.Template, rendered string, seq int, row merge.DataRow) (merge.ArtifactRef, error) {
	if g.release != nil {
		select {
		case g.started <- seq:
		default:
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return merge.ArtifactRef{}, ctx.Err()
		}
	}
	return g.next.Produce(ctx, tmpl, rendered, seq, row)
}

type testEnv struct {
	server   *Server
	runner   *orchestrator.Runner
	lineage  *lineage.MemStore
	producer *gateProducer
	outDir   string
}

func newTestEnv(t *testing.T, gated bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	tplDir := filepath.Join(root, "templates")
	dataDir := filepath.Join(root, "data")
	outDir := filepath.Join(root, "output")
	require.NoError(t, os.MkdirAll(tplDir, 0o755))
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "welcome.txt"), []byte("Dear {{Name}}, welcome to {{City}}."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "people.csv"), []byte("Name,City\nAda,London\nGrace,Arlington\n"), 0o644))

	prod := &gateProducer{next: localfs.NewDirProducer(outDir, "/downloads", "txt")}
	if gated {
		prod.release = make(chan struct{})
		prod.started = make(chan int, 8)
	}
	events := orchestrator.NewBroadcaster()
	lin := lineage.NewMemStore()
	runner := orchestrator.NewRunner(jobs.NewMemStore(),
		localfs.NewTemplateDir(tplDir), localfs.NewCSVSource(dataDir), prod,
		orchestrator.WithObserver(events),
		orchestrator.WithRecorder(lin),
		orchestrator.WithConfig(orchestrator.Config{MaxAttempts: 1}),
	)
	t.Cleanup(func() { _ = runner.Close() })

	srv := NewServer(runner, events,
		WithLineage(lin),
		WithDownloads(outDir),
		WithHeartbeat(50*time.Millisecond),
	)
	return &testEnv{server: srv, runner: runner, lineage: lin, producer: prod, outDir: outDir}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func (e *testEnv) waitTerminal(t *testing.T, id string) *jobs.Job {
	t.Helper()
	var job *jobs.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = e.runner.Store().Get(context.Background(), id)
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	// Lineage is recorded after the terminal write.
	e.runner.Wait()
	return job
}

var peopleReq = orchestrator.Request{TemplateID: "welcome.txt", DataSourceID: "people.csv"}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateJob_RunsToCompletion(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.request(t, http.MethodPost, "/api/v1/jobs", peopleReq)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	created := decode[jobs.Job](t, w)
	assert.Equal(t, jobs.StatusPending, created.Status)
	assert.Equal(t, "/api/v1/jobs/"+created.ID, w.Header().Get("Location"))

	job := env.waitTerminal(t, created.ID)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	w = env.request(t, http.MethodGet, "/api/v1/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[jobs.Job](t, w)
	require.Len(t, got.Artifacts, 2)
	assert.Equal(t, "/downloads/"+created.ID+"/merged_document_1.txt", got.Artifacts[0].URL)

	w = env.request(t, http.MethodGet, got.Artifacts[1].URL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dear Grace, welcome to Arlington.", w.Body.String())
}

func TestCreateJob_Validation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body any
	}{
		{"missing data source", map[string]string{"templateId": "welcome.txt"}},
		{"missing template", map[string]string{"dataSourceId": "people.csv"}},
		{"bad range", orchestrator.Request{TemplateID: "welcome.txt", DataSourceID: "people.csv", Range: "Z:A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ErrorCodeValidation, decode[APIError](t, w).Code)
		})
	}
}

// createFailingStore rejects every Create with err.
type createFailingStore struct {
	*jobs.MemStore
	err error
}

func (s createFailingStore) Create(context.Context, jobs.Job) error { return s.err }

func TestCreateJob_StoreFailuresAreNotValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"duplicate id", jobs.ErrAlreadyExists, http.StatusConflict, ErrorCodeConflict},
		{"database down", errors.New("sql: database is closed"), http.StatusInternalServerError, ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := createFailingStore{MemStore: jobs.NewMemStore(), err: tt.err}
			runner := orchestrator.NewRunner(store, localfs.NewTemplateDir(t.TempDir()), localfs.NewCSVSource(t.TempDir()), &gateProducer{})
			t.Cleanup(func() { _ = runner.Close() })
			env := &testEnv{server: NewServer(runner, orchestrator.NewBroadcaster()), runner: runner}

			w := env.request(t, http.MethodPost, "/api/v1/jobs", peopleReq)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[APIError](t, w).Code)
		})
	}
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.request(t, http.MethodGet, "/api/v1/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrorCodeNotFound, decode[APIError](t, w).Code)
}

func TestCreateJob_MissingTemplateFails(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.request(t, http.MethodPost, "/api/v1/jobs", orchestrator.Request{TemplateID: "missing.txt", DataSourceID: "people.csv"})
	require.Equal(t, http.StatusAccepted, w.Code)
	job := env.waitTerminal(t, decode[jobs.Job](t, w).ID)

	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, merge.KindFatal, job.ErrorKind)
	assert.Empty(t, job.Artifacts)
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t, false)
	for i := 0; i < 3; i++ {
		w := env.request(t, http.MethodPost, "/api/v1/jobs", peopleReq)
		require.Equal(t, http.StatusAccepted, w.Code)
		env.waitTerminal(t, decode[jobs.Job](t, w).ID)
	}

	w := env.request(t, http.MethodGet, "/api/v1/jobs?pageSize=2&status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[jobs.ListResult](t, w)
	assert.Len(t, page.Jobs, 2)
	assert.Equal(t, 3, page.TotalSize)
	assert.NotEmpty(t, page.NextPageToken)

	for _, path := range []string{
		"/api/v1/jobs?status=done",
		"/api/v1/jobs?pageSize=-1",
		"/api/v1/jobs?pageToken=bogus",
	} {
		w := env.request(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.request(t, http.MethodPost, "/api/v1/jobs", peopleReq)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[jobs.Job](t, w).ID

	select {
	case <-env.producer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first row never started")
	}

	w = env.request(t, http.MethodPost, "/api/v1/jobs/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	job := env.waitTerminal(t, id)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, merge.KindCanceled, job.ErrorKind)

	w = env.request(t, http.MethodPost, "/api/v1/jobs/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrorCodeConflict, decode[APIError](t, w).Code)

	w = env.request(t, http.MethodPost, "/api/v1/jobs/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobEvents_StreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t, true)
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)
	client := NewClient(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := client.Submit(ctx, peopleReq)
	require.NoError(t, err)

	stream, err := client.Events(ctx, job.ID)
	require.NoError(t, err)
	close(env.producer.release)

	var got []orchestrator.ProgressEvent
	for se := range stream {
		require.NoError(t, se.Err)
		got = append(got, se.Event)
	}
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, jobs.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
	// got[0] is the snapshot taken after subscribing.
	for i := 2; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Percent, got[i-1].Percent, "progress moved backward: %v", got)
	}
}

func TestJobEvents_TerminalJobSendsSnapshotOnly(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.request(t, http.MethodPost, "/api/v1/jobs", peopleReq)
	id := decode[jobs.Job](t, w).ID
	env.waitTerminal(t, id)

	w = env.request(t, http.MethodGet, "/api/v1/jobs/"+id+"/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, 1, strings.Count(w.Body.String(), "data: "))
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
}

func TestManifest(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.request(t, http.MethodPost, "/api/v1/jobs", peopleReq)
	id := decode[jobs.Job](t, w).ID
	env.waitTerminal(t, id)

	w = env.request(t, http.MethodGet, "/api/v1/jobs/"+id+"/manifest?download=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "manifest-"+id+".json")
	m := decode[export.JobManifest](t, w)
	assert.Equal(t, "completed", m.Status)
	require.Len(t, m.Artifacts, 2)
	assert.Equal(t, "merged_document_2.txt", m.Artifacts[1].Name)
}

func TestFields(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.request(t, http.MethodPost, "/api/v1/fields", peopleReq)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[orchestrator.FieldReport](t, w)
	assert.Equal(t, []string{"Name", "City"}, rep.Coverage.Matched)
	assert.Equal(t, 2, rep.Rows)

	w = env.request(t, http.MethodPost, "/api/v1/fields", orchestrator.Request{TemplateID: "missing.txt", DataSourceID: "people.csv"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodPost, "/api/v1/fields", orchestrator.Request{TemplateID: "welcome.txt", DataSourceID: "people.csv", Range: "Z:A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrorCodeValidation, decode[APIError](t, w).Code)
}

func TestLineage(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.request(t, http.MethodPost, "/api/v1/jobs", peopleReq)
	id := decode[jobs.Job](t, w).ID
	env.waitTerminal(t, id)

	w = env.request(t, http.MethodGet, "/api/v1/templates/welcome.txt/lineage", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	g := decode[lineage.Graph](t, w)
	require.Len(t, g.Jobs, 1)
	assert.Equal(t, id, g.Jobs[0].ID)
	assert.Len(t, g.Artifacts, 2)

	w = env.request(t, http.MethodGet, "/api/v1/templates/welcome.txt/lineage?format=mermaid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph LR\n"))

	w = env.request(t, http.MethodGet, "/api/v1/templates/unknown/lineage", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLineage_Disabled(t *testing.T) {
	env := newTestEnv(t, false)
	srv := NewServer(env.runner, orchestrator.NewBroadcaster())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/x/lineage", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
