package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/mailmerge/internal/api"
	"github.com/dusk-indust/mailmerge/internal/config"
	"github.com/dusk-indust/mailmerge/internal/export"
	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// project writes the starter project into a temp dir.
func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := execute(t, "init", dir, "--no-mcp")
	require.NoError(t, err)
	return dir
}

// ---------------------------------------------------------------------------
// Local commands
// ---------------------------------------------------------------------------

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestInit_WritesProject(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "created mailmerge.yml")
	assert.Contains(t, out, "created .mcp.json")
	assert.FileExists(t, filepath.Join(dir, "templates", "welcome.txt"))

	out, err = execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped mailmerge.yml")
}

func TestRun_LocalProducesOneDocumentPerRow(t *testing.T) {
	dir := project(t)

	out, err := execute(t, "--dir", dir, "run", "welcome.txt", "people.csv")
	require.NoError(t, err, out)
	assert.Contains(t, out, "complete (3/3 rows)")
	assert.Contains(t, out, "merged_document_3")

	files, err := filepath.Glob(filepath.Join(dir, "output", "*", "merged_document_*.txt"))
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestRun_LocalManifest(t *testing.T) {
	dir := project(t)

	out, err := execute(t, "--dir", dir, "run", "welcome.txt", "people.csv", "--range", "A1:D3", "--manifest")
	require.NoError(t, err)

	var m export.JobManifest
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	assert.Equal(t, "completed", m.Status)
	assert.Len(t, m.Artifacts, 2)
}

func TestRun_MissingTemplateFails(t *testing.T) {
	dir := project(t)

	out, err := execute(t, "--dir", dir, "run", "nope.txt", "people.csv")
	require.Error(t, err)
	assert.Contains(t, out, "failed")
}

func TestFields_Local(t *testing.T) {
	dir := project(t)

	out, err := execute(t, "--dir", dir, "fields", "welcome.txt", "people.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "FirstName, LastName, Email, StartDate")
	assert.Contains(t, out, "3 rows")
	assert.NotContains(t, out, "unmatched")
}

func TestLineage_EmptyMemoryStore(t *testing.T) {
	out, err := execute(t, "--dir", t.TempDir(), "lineage")
	require.NoError(t, err)
	assert.Equal(t, "graph LR\n", out)
}

// ---------------------------------------------------------------------------
// Remote commands
// ---------------------------------------------------------------------------

// remoteServer serves the starter project over the job API.
func remoteServer(t *testing.T) string {
	t.Helper()
	dir := project(t)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	cfg.ResolvePaths(dir)
	cfg.Store = config.StoreConfig{Driver: "memory"}

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ts := httptest.NewServer(api.NewServer(a.runner, a.events, api.WithLineage(a.lineage)).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRun_RemoteFollowsEvents(t *testing.T) {
	url := remoteServer(t)

	out, err := execute(t, "--dir", t.TempDir(), "--server", url, "run", "--remote", "welcome.txt", "people.csv")
	require.NoError(t, err, out)
	assert.Contains(t, out, "status:    completed")

	out, err = execute(t, "--dir", t.TempDir(), "--server", url, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "welcome.txt")

	out, err = execute(t, "--dir", t.TempDir(), "--server", url, "lineage", "--remote", "welcome.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
}

func TestJobs_GetUnknown(t *testing.T) {
	url := remoteServer(t)

	_, err := execute(t, "--dir", t.TempDir(), "--server", url, "jobs", "get", "missing")
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, api.ErrorCodeNotFound, se.Code)
}

func TestJobsList_RejectsUnknownStatus(t *testing.T) {
	_, err := execute(t, "--dir", t.TempDir(), "jobs", "list", "--status", "paused")
	assert.ErrorContains(t, err, "unknown status")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestAddrURL(t *testing.T) {
	tests := map[string]string{
		":8080":          "http://127.0.0.1:8080",
		"0.0.0.0:9000":   "http://127.0.0.1:9000",
		"localhost:8080": "http://localhost:8080",
		"[::1]:8080":     "http://[::1]:8080",
	}
	for in, want := range tests {
		assert.Equal(t, want, addrURL(in), in)
	}
}

func TestStyleEvent_KeepsProgressText(t *testing.T) {
	ev := orchestrator.ProgressEvent{JobID: "j1", Kind: orchestrator.EventStatus, Status: jobs.StatusCompleted, Processed: 2, Total: 2}
	assert.Contains(t, styleEvent(ev), orchestrator.FormatProgress(ev))
}
