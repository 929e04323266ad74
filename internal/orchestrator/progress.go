package orchestrator

import (
	"fmt"
	"sync"

	"github.com/dusk-indust/mailmerge/internal/jobs"
)

// Progress milestones. Loading takes the first quarter of the scale and the
// row loop fills the range up to rowsEnd; 100 is reserved for completion.
const (
	progressStarted        = 5
	progressDataLoaded     = 15
	progressTemplateLoaded = 25
	progressRowsEnd        = 95
	progressDone           = 100
)

// rowPercent maps processed/total into the row phase of the scale.
func rowPercent(processed, total int) int {
	if total <= 0 {
		return progressTemplateLoaded
	}
	span := progressRowsEnd - progressTemplateLoaded
	return progressTemplateLoaded + span*processed/total
}

// progressTracker turns milestone values into a non-decreasing sequence and
// guarantees a single 100.
type progressTracker struct {
	mu   sync.Mutex
	last int
	done bool
	sink ProgressSink
}

func newProgressTracker(sink ProgressSink) *progressTracker {
	return &progressTracker{sink: sink}
}

// report delivers p, raised to the last delivered value and capped below 100.
// It returns the value delivered.
func (t *progressTracker) report(p int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return t.last
	}
	if p >= progressDone {
		p = progressDone - 1
	}
	if p < t.last {
		p = t.last
	}
	t.last = p
	if t.sink != nil {
		t.sink(p)
	}
	return p
}

// complete delivers 100 once. Later calls are no-ops.
func (t *progressTracker) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	t.done = true
	t.last = progressDone
	if t.sink != nil {
		t.sink(progressDone)
	}
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	if event.Kind == EventStatus {
		switch event.Status {
		case jobs.StatusPending:
			return fmt.Sprintf("  \u25cb job %s (pending)", event.JobID)
		case jobs.StatusProcessing:
			return fmt.Sprintf("  \u25cf job %s processing...", event.JobID)
		case jobs.StatusCompleted:
			return fmt.Sprintf("  \u2713 job %s complete (%d/%d rows)", event.JobID, event.Processed, event.Total)
		case jobs.StatusFailed:
			return fmt.Sprintf("  \u2717 job %s failed: %s", event.JobID, event.Message)
		default:
			return fmt.Sprintf("  ? job %s (unknown status)", event.JobID)
		}
	}
	if event.Sequence > 0 && event.Message != "" {
		return fmt.Sprintf("  [%3d%%] row %d failed: %s", event.Percent, event.Sequence, event.Message)
	}
	if event.Sequence > 0 {
		return fmt.Sprintf("  [%3d%%] row %d of %d", event.Percent, event.Sequence, event.Total)
	}
	return fmt.Sprintf("  [%3d%%]", event.Percent)
}

// Broadcaster fans job events out to per-job subscribers. Subscriptions are
// closed after their job's terminal event.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan ProgressEvent]struct{}
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan ProgressEvent]struct{})}
}

// Subscribe registers for events of jobID. The returned func unsubscribes
// and is safe to call after the channel has been closed.
func (b *Broadcaster) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 64)

	b.mu.Lock()
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[chan ProgressEvent]struct{})
		b.subs[jobID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[jobID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(b.subs, jobID)
				}
			}
		}
	}
}

// Emit delivers ev to the job's subscribers without blocking; a full
// subscriber misses the event.
func (b *Broadcaster) Emit(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[ev.JobID]
	for ch := range set {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Terminal() {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, ev.JobID)
	}
}
