//go:build cgo

package lineage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a fresh in-memory KuzuStore with an initialized schema.
func newTestStore(t *testing.T) *KuzuStore {
	t.Helper()
	s, err := NewKuzuStore()
	require.NoError(t, err, "NewKuzuStore should not fail")
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(context.Background()), "InitSchema should not fail")
	return s
}

func TestKuzuStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return newTestStore(t) })
}

func TestKuzuStore_InitSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InitSchema(context.Background()))
}

func TestKuzuStore_FilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lineage", "db")

	s, err := Open("kuzu", path)
	require.NoError(t, err)
	require.NoError(t, s.RecordJob(ctx, template("tpl-1", "Welcome"), completedJob("job-1", "tpl-1", 1, 1)))
	require.NoError(t, s.Close())

	s, err = Open("kuzu", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	arts, err := s.ArtifactsForTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "job-1#1", arts[0].ID)
}
