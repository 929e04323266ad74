package api

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter_WritesFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)
	w.Init()

	require.NoError(t, w.WriteEvent(orchestrator.ProgressEvent{JobID: "j1", Kind: orchestrator.EventStatus, Status: jobs.StatusProcessing}))
	require.NoError(t, w.WriteEvent(orchestrator.ProgressEvent{JobID: "j1", Kind: orchestrator.EventProgress, Percent: 42}))
	require.NoError(t, w.Ping())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 3)
	assert.True(t, strings.HasPrefix(frames[0], "event: status\ndata: {"), frames[0])
	assert.True(t, strings.HasPrefix(frames[1], "event: progress\ndata: {"), frames[1])
	assert.Equal(t, ": ping", frames[2])
}

func TestReadEvents_ParsesEvents(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		fmt.Fprint(pw, "event: status\ndata: {\"jobId\":\"j1\",\"kind\":\"status\",\"status\":\"processing\"}\n\n")
		fmt.Fprint(pw, ": ping\n\n")
		fmt.Fprint(pw, "data:{\"jobId\":\"j1\",\"kind\":\"progress\",\n")
		fmt.Fprint(pw, "data: \"percent\":60}\n\n")
	}()

	ch := ReadEvents(context.Background(), pr)

	ev1 := <-ch
	require.NoError(t, ev1.Err)
	assert.Equal(t, jobs.StatusProcessing, ev1.Event.Status)

	ev2 := <-ch
	require.NoError(t, ev2.Err)
	assert.Equal(t, orchestrator.EventProgress, ev2.Event.Kind)
	assert.Equal(t, 60, ev2.Event.Percent)

	_, open := <-ch
	assert.False(t, open, "channel should be closed after body is exhausted")
}

func TestReadEvents_MalformedContinues(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		fmt.Fprint(pw, "data: {not json}\n\n")
		fmt.Fprint(pw, "data: {\"jobId\":\"ok\"}")
	}()

	ch := ReadEvents(context.Background(), pr)
	ev1 := <-ch
	assert.ErrorContains(t, ev1.Err, "unmarshal")
	ev2 := <-ch
	require.NoError(t, ev2.Err)
	assert.Equal(t, "ok", ev2.Event.JobID, "trailing event without blank line is delivered")
}

func TestReadEvents_ContextCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := ReadEvents(ctx, pr)
	cancel()
	// Unblock the pending read so the goroutine observes ctx.
	go fmt.Fprint(pw, ": wake\n")

	select {
	case _, open := <-ch:
		assert.False(t, open, "channel should be closed after context cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel to close after context cancellation")
	}
}

func TestSSE_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)
	w.Init()
	sent := orchestrator.ProgressEvent{
		JobID: "rt", Kind: orchestrator.EventProgress, Status: jobs.StatusProcessing,
		Percent: 77, Processed: 3, Total: 4, Sequence: 3, Message: "row 3: quota",
		Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, w.WriteEvent(sent))

	ch := ReadEvents(context.Background(), io.NopCloser(strings.NewReader(rec.Body.String())))
	got := <-ch
	require.NoError(t, got.Err)
	assert.Equal(t, sent, got.Event)
}
