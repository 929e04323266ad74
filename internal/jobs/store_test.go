package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Store conformance, run against every implementation
// ---------------------------------------------------------------------------

type storeFactory func(t *testing.T) Store

func storeImpls() map[string]storeFactory {
	return map[string]storeFactory{
		"mem": func(t *testing.T) Store { return NewMemStore() },
		"sql": func(t *testing.T) Store {
			s, err := OpenSQL("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, mk := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t))
		})
	}
}

func newTestJob(id, templateID string) Job {
	j := New(templateID, "sheet-1", "")
	j.ID = id
	return j
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		job := newTestJob("job-1", "tmpl-1")
		job.Range = "Sheet1!A:C"
		require.NoError(t, s.Create(ctx, job))

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, "tmpl-1", got.TemplateID)
		assert.Equal(t, "sheet-1", got.DataSourceID)
		assert.Equal(t, "Sheet1!A:C", got.Range)
		assert.Equal(t, StatusPending, got.Status)
		assert.NotNil(t, got.Artifacts)
		assert.Empty(t, got.Artifacts)
	})
}

func TestStore_DuplicateCreateReturnsError(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, newTestJob("dup", "t")))
		err := s.Create(ctx, newTestJob("dup", "t"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		got, err := s.Get(context.Background(), "nope")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_UpdatePersistsArtifacts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, newTestJob("job-1", "t")))

		now := time.Now().UTC()
		updated, err := s.Update(ctx, "job-1", func(j *Job) error {
			j.Status = StatusProcessing
			j.StartedAt = &now
			j.TotalRecords = 2
			j.ProcessedRecords = 2
			j.FailedRecords = 1
			j.Artifacts = append(j.Artifacts, Artifact{Sequence: 1, Name: "a.pdf", URL: "https://x/a"})
			j.RowErrors = append(j.RowErrors, RowError{Sequence: 2, Message: "boom"})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, updated.Status)

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.TotalRecords)
		assert.Equal(t, 1, got.FailedRecords)
		require.Len(t, got.Artifacts, 1)
		assert.Equal(t, "a.pdf", got.Artifacts[0].Name)
		require.Len(t, got.RowErrors, 1)
		assert.Equal(t, 2, got.RowErrors[0].Sequence)
		require.NotNil(t, got.StartedAt)
	})
}

func TestStore_UpdateCallbackErrorDiscardsChanges(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, newTestJob("job-1", "t")))

		sentinel := errors.New("reject")
		_, err := s.Update(ctx, "job-1", func(j *Job) error {
			j.Status = StatusFailed
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})
}

func TestStore_UpdateMissingReturnsNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.Update(context.Background(), "nope", func(*Job) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ListFilterAndPagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 1; i <= 5; i++ {
			tmpl := "even"
			if i%2 == 1 {
				tmpl = "odd"
			}
			require.NoError(t, s.Create(ctx, newTestJob(fmt.Sprintf("job-%d", i), tmpl)))
		}

		all, err := s.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, all.Jobs, 5)
		assert.Equal(t, 5, all.TotalSize)
		assert.Equal(t, "job-1", all.Jobs[0].ID)
		assert.Equal(t, "job-5", all.Jobs[4].ID)
		assert.Empty(t, all.NextPageToken)

		odd, err := s.List(ctx, ListFilter{TemplateID: "odd"})
		require.NoError(t, err)
		assert.Equal(t, 3, odd.TotalSize)

		page1, err := s.List(ctx, ListFilter{PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page1.Jobs, 2)
		assert.Equal(t, "job-2", page1.NextPageToken)

		page2, err := s.List(ctx, ListFilter{PageSize: 2, PageToken: page1.NextPageToken})
		require.NoError(t, err)
		require.Len(t, page2.Jobs, 2)
		assert.Equal(t, "job-3", page2.Jobs[0].ID)
		assert.Equal(t, "job-4", page2.NextPageToken)

		page3, err := s.List(ctx, ListFilter{PageSize: 2, PageToken: page2.NextPageToken})
		require.NoError(t, err)
		require.Len(t, page3.Jobs, 1)
		assert.Empty(t, page3.NextPageToken)

		_, err = s.List(ctx, ListFilter{PageToken: "bogus"})
		assert.ErrorIs(t, err, ErrInvalidPageToken)
	})
}

func TestStore_PruneRemovesOldTerminalJobs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		old := time.Now().UTC().Add(-48 * time.Hour)
		recent := time.Now().UTC()

		require.NoError(t, s.Create(ctx, newTestJob("old-done", "t")))
		require.NoError(t, s.Create(ctx, newTestJob("new-done", "t")))
		require.NoError(t, s.Create(ctx, newTestJob("running", "t")))

		_, err := s.Update(ctx, "old-done", func(j *Job) error {
			j.Status = StatusCompleted
			j.CompletedAt = &old
			return nil
		})
		require.NoError(t, err)
		_, err = s.Update(ctx, "new-done", func(j *Job) error {
			j.Status = StatusFailed
			j.CompletedAt = &recent
			return nil
		})
		require.NoError(t, err)

		n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.Get(ctx, "old-done")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "new-done")
		assert.NoError(t, err)
		_, err = s.Get(ctx, "running")
		assert.NoError(t, err)
	})
}

// ---------------------------------------------------------------------------
// MemStore specifics
// ---------------------------------------------------------------------------

func TestMemStore_GetReturnsDeepCopy(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	job := newTestJob("job-1", "t")
	job.Artifacts = []Artifact{{Sequence: 1, Name: "orig"}}
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	got.Artifacts[0].Name = "mutated"

	again, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "orig", again.Artifacts[0].Name)
}

func TestMemStore_ConcurrentUpdates(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestJob("job-1", "t")))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "job-1", func(j *Job) error {
				j.ProcessedRecords++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, n, got.ProcessedRecords)
}

// ---------------------------------------------------------------------------
// Status lifecycle
// ---------------------------------------------------------------------------

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, Status("bogus").Valid())
}
