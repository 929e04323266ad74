package orchestrator

import (
	"testing"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowPercent(t *testing.T) {
	assert.Equal(t, 25, rowPercent(0, 10))
	assert.Equal(t, 60, rowPercent(5, 10))
	assert.Equal(t, 95, rowPercent(10, 10))
	assert.Equal(t, 25, rowPercent(0, 0))
}

func TestProgressTracker_NeverDecreasesAndCapsBelowDone(t *testing.T) {
	var log progressLog
	tr := newProgressTracker(log.sink)

	tr.report(30)
	tr.report(20)
	tr.report(150)
	tr.complete()
	tr.complete()
	tr.report(50)

	assert.Equal(t, []int{30, 30, 99, 100}, log.snapshot())
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name   string
		event  ProgressEvent
		expect string
	}{
		{
			name:   "pending",
			event:  ProgressEvent{JobID: "j1", Kind: EventStatus, Status: jobs.StatusPending},
			expect: "  ○ job j1 (pending)",
		},
		{
			name:   "processing",
			event:  ProgressEvent{JobID: "j1", Kind: EventStatus, Status: jobs.StatusProcessing},
			expect: "  ● job j1 processing...",
		},
		{
			name:   "completed",
			event:  ProgressEvent{JobID: "j1", Kind: EventStatus, Status: jobs.StatusCompleted, Processed: 4, Total: 4},
			expect: "  ✓ job j1 complete (4/4 rows)",
		},
		{
			name:   "failed",
			event:  ProgressEvent{JobID: "j1", Kind: EventStatus, Status: jobs.StatusFailed, Message: "canceled"},
			expect: "  ✗ job j1 failed: canceled",
		},
		{
			name:   "row",
			event:  ProgressEvent{Kind: EventProgress, Percent: 60, Sequence: 2, Total: 4},
			expect: "  [ 60%] row 2 of 4",
		},
		{
			name:   "row failure",
			event:  ProgressEvent{Kind: EventProgress, Percent: 60, Sequence: 2, Message: "quota"},
			expect: "  [ 60%] row 2 failed: quota",
		},
		{
			name:   "milestone",
			event:  ProgressEvent{Kind: EventProgress, Percent: 5},
			expect: "  [  5%]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, FormatProgress(tt.event))
		})
	}
}

func TestBroadcaster_DeliversAndClosesOnTerminal(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe("job-1")
	defer unsubscribe()
	other, unsubscribeOther := b.Subscribe("job-2")
	defer unsubscribeOther()

	b.Emit(ProgressEvent{JobID: "job-1", Kind: EventProgress, Percent: 50})
	b.Emit(ProgressEvent{JobID: "job-1", Kind: EventStatus, Status: jobs.StatusCompleted})

	var got []ProgressEvent
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.True(t, got[1].Terminal())

	select {
	case ev := <-other:
		t.Fatalf("unexpected event for other job: %+v", ev)
	default:
	}
}

func TestBroadcaster_UnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster()
	_, unsubscribe := b.Subscribe("job-1")
	unsubscribe()
	unsubscribe()
	b.Emit(ProgressEvent{JobID: "job-1", Kind: EventStatus, Status: jobs.StatusFailed})
}
