package gorm

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/reflectra/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 1,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Ping())

	var journalMode string
	require.NoError(t, store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	for _, table := range []string{"categories", "sessions", "wellness_scores", "reflections", "migrations"} {
		assert.True(t, store.DB.Migrator().HasTable(table), "table %q does not exist", table)
	}
}

func TestNewStore_SeedsCategoriesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.db")
	cfg := Config{Path: path, MaxConns: 1, LogLevel: logger.Silent}

	store, err := NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening re-asserts seeds without duplicating them.
	store, err = NewStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	cats, err := NewCategoryStore(store).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, len(models.SeedCategories))
}

func TestSessionStore_InsertFindUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sessions := NewSessionStore(store)

	var deleted []int64
	sessions.SetDeleteFunc(func(_ context.Context, ids []int64) {
		deleted = append(deleted, ids...)
	})

	a, err := sessions.Insert(ctx, &models.Session{URL: "https://Example.com/a?x=1", Title: "A", Duration: 1000, Timestamp: 10_000})
	require.NoError(t, err)
	b, err := sessions.Insert(ctx, &models.Session{URL: "https://example.com/a#frag", Title: "A", Duration: 2000, Timestamp: 20_000})
	require.NoError(t, err)
	_, err = sessions.Insert(ctx, &models.Session{URL: "https://example.com/b", Title: "B", Duration: 500, Timestamp: 15_000})
	require.NoError(t, err)

	found, err := sessions.Find(ctx, models.SessionFilter{NormalizedURL: "https://example.com/a"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a.ID, found[0].ID)
	assert.Equal(t, b.ID, found[1].ID)

	found, err = sessions.Find(ctx, models.SessionFilter{NormalizedURL: "https://example.com/a", From: 15_000, To: 25_000})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, b.ID, found[0].ID)

	dur := int64(9000)
	updated, err := sessions.Update(ctx, a.ID, models.SessionUpdate{Duration: &dur})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, int64(9000), updated.Duration)
	assert.Equal(t, int64(10_000), updated.Timestamp)

	missing, err := sessions.Update(ctx, 9999, models.SessionUpdate{Duration: &dur})
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := sessions.Delete(ctx, []int64{b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []int64{b.ID}, deleted)

	got, err := sessions.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := sessions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSessionStore_Claims(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sessions := NewSessionStore(store)
	categories := NewCategoryStore(store)

	s, err := sessions.Insert(ctx, &models.Session{URL: "https://example.com", Duration: 1, Timestamp: 1})
	require.NoError(t, err)

	ok, err := sessions.Claim(ctx, s.ID, "first", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sessions.Claim(ctx, s.ID, "second", 0)
	require.NoError(t, err)
	assert.False(t, ok, "live claim must not be taken over")

	pending, err := sessions.FindUncategorized(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	cat, err := categories.FindByName(ctx, models.CategoryLearning)
	require.NoError(t, err)
	require.NotNil(t, cat)

	ok, err = sessions.CompleteClaim(ctx, s.ID, "second", cat.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = sessions.CompleteClaim(ctx, s.ID, "first", cat.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, cat.ID, *got.CategoryID)
	assert.Equal(t, models.CategoryLearning, got.CategoryName)
}

func TestSessionStore_FindUncategorizedNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sessions := NewSessionStore(store)

	for _, ts := range []int64{100, 300, 200} {
		_, err := sessions.Insert(ctx, &models.Session{URL: "https://example.com", Timestamp: ts})
		require.NoError(t, err)
	}

	pending, err := sessions.FindUncategorized(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(300), pending[0].Timestamp)
	assert.Equal(t, int64(200), pending[1].Timestamp)
}

func TestCategoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	categories := NewCategoryStore(store)
	sessions := NewSessionStore(store)

	created, err := categories.Create(ctx, &models.Category{Name: "Gaming", Color: "#ff00ff", WellnessType: models.WellnessRest})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = categories.Create(ctx, &models.Category{Name: "Gaming"})
	assert.ErrorIs(t, err, models.ErrDuplicateCategory)

	desc := "Games and streams"
	updated, err := categories.Update(ctx, created.ID, models.CategoryUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, "#ff00ff", updated.Color)

	_, err = categories.Update(ctx, 9999, models.CategoryUpdate{Description: &desc})
	assert.ErrorIs(t, err, models.ErrCategoryNotFound)

	s, err := sessions.Insert(ctx, &models.Session{URL: "https://store.steampowered.com", Timestamp: 1, CategoryID: &created.ID})
	require.NoError(t, err)

	require.NoError(t, categories.Delete(ctx, created.ID))

	got, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID, "deleted category must orphan its sessions")

	assert.ErrorIs(t, categories.Delete(ctx, created.ID), models.ErrCategoryNotFound)

	fallback, err := categories.FindByName(ctx, models.CategoryUncategorized)
	require.NoError(t, err)
	require.NotNil(t, fallback)
	assert.ErrorIs(t, categories.Delete(ctx, fallback.ID), models.ErrProtectedCategory)
}

func TestCategoryStore_FallbackKeepsName(t *testing.T) {
	ctx := context.Background()
	categories := NewCategoryStore(newTestStore(t))

	fallback, err := categories.FindByName(ctx, models.CategoryUncategorized)
	require.NoError(t, err)
	require.NotNil(t, fallback)

	other := "Other"
	_, err = categories.Update(ctx, fallback.ID, models.CategoryUpdate{Name: &other})
	assert.ErrorIs(t, err, models.ErrProtectedCategory)

	// Non-name edits and a no-op rename are still allowed.
	color := "#000000"
	same := models.CategoryUncategorized
	updated, err := categories.Update(ctx, fallback.ID, models.CategoryUpdate{Name: &same, Color: &color})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryUncategorized, updated.Name)
	assert.Equal(t, color, updated.Color)

	got, err := categories.FindByName(ctx, models.CategoryUncategorized)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fallback.ID, got.ID)
}

func TestConfigureSQLite_ClosedHandle(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = configureSQLite(sqlDB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set WAL mode")
}

func TestWellnessStore_Upsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wellness := NewWellnessStore(store)

	require.NoError(t, wellness.Upsert(ctx, &models.WellnessScore{Date: "2026-01-01", Score: 40}))
	require.NoError(t, wellness.Upsert(ctx, &models.WellnessScore{Date: "2026-01-02", Score: 60}))
	require.NoError(t, wellness.Upsert(ctx, &models.WellnessScore{Date: "2026-01-01", Score: 75, FocusTime: 1000}))

	history, err := wellness.History(ctx, 7)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-01-02", history[0].Date)
	assert.Equal(t, 75, history[1].Score)
	assert.Equal(t, int64(1000), history[1].FocusTime)
}

func TestReflectionStore_CreateListGet(t *testing.T) {
	ctx := context.Background()
	reflections := NewReflectionStore(newTestStore(t))

	first, err := reflections.Create(ctx, &models.Reflection{
		Query:     "How focused was I?",
		Response:  "Mostly focused.",
		TimeRange: models.TimeRangeToday,
		Timestamp: 1000,
		Context: []*models.ReflectionSession{
			{URL: "https://go.dev/doc", Title: "Docs", Duration: 60000, Timestamp: 900, Category: models.CategoryLearning},
		},
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	second, err := reflections.Create(ctx, &models.Reflection{Query: "And yesterday?", Response: "Less so.", Timestamp: 2000})
	require.NoError(t, err)

	list, err := reflections.List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Empty(t, list[1].Context, "history omits context")
	assert.Equal(t, models.TimeRangeToday, list[1].TimeRange)

	list, err = reflections.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := reflections.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Mostly focused.", got.Response)
	require.Len(t, got.Context, 1)
	assert.Equal(t, "https://go.dev/doc", got.Context[0].URL)
	assert.Equal(t, models.CategoryLearning, got.Context[0].Category)

	missing, err := reflections.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
