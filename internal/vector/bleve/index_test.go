package bleve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/reflectra/internal/vector"
	"github.com/thebtf/reflectra/pkg/models"
)

func seed(t *testing.T, idx *Index) *vector.Sync {
	t.Helper()
	sync := vector.NewSync(idx)
	ctx := context.Background()
	sessions := []*models.Session{
		{ID: 1, URL: "https://go.dev/doc/effective_go", Title: "Effective Go", Duration: 600_000, Timestamp: 1_000, CategoryName: models.CategoryLearning},
		{ID: 2, URL: "https://www.tiktok.com/foo", Title: "Cat videos", Duration: 120_000, Timestamp: 2_000, CategoryName: models.CategoryMindlessScroll},
		{ID: 3, URL: "https://pkg.go.dev/context", Title: "context package Go", Duration: 60_000, Timestamp: 3_000},
	}
	for _, s := range sessions {
		require.NoError(t, sync.SyncSession(ctx, s))
	}
	return sync
}

func TestIndex_QueryAndDelete(t *testing.T) {
	idx, err := NewMemory()
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()
	sync := seed(t, idx)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	matches, err := sync.Similar(ctx, "go", 10, 0)
	require.NoError(t, err)
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []int64{1, 3}, ids)

	recent, err := sync.Similar(ctx, "go", 10, 2_500)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(3), recent[0].ID)
	assert.Equal(t, models.CategoryUncategorized, recent[0].Category)
	assert.Equal(t, int64(60_000), recent[0].Duration)

	sync.OnSessionsDeleted(ctx, []int64{3})
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIndex_UpsertReplaces(t *testing.T) {
	idx, err := NewMemory()
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()
	sync := seed(t, idx)

	sync.OnSessionUpdate(ctx, &models.Session{ID: 2, URL: "https://www.tiktok.com/foo", Title: "Cat videos", Duration: 900_000, Timestamp: 2_000}, true)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	matches, err := sync.Similar(ctx, "cat", 5, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(900_000), matches[0].Duration)
}

func TestOpen_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.bleve")

	idx, err := Open(path)
	require.NoError(t, err)
	seed(t, idx)
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
