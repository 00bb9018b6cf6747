package worker

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/reflectra/internal/categorize"
	"github.com/thebtf/reflectra/internal/classifier"
	"github.com/thebtf/reflectra/pkg/models"
)

type cannedModel struct {
	answer string
	users  []string
}

func (m *cannedModel) Classify(context.Context, categorize.Prompt) (string, error) {
	return models.CategoryResearch, nil
}

func (m *cannedModel) Complete(_ context.Context, req classifier.Completion) (string, error) {
	m.users = append(m.users, req.User)
	return m.answer, nil
}

func withModel(svc *Service, m classifier.Backend) {
	svc.model = m
	svc.buildReflector()
}

func TestHandleAskReflection(t *testing.T) {
	svc := testService(t)
	model := &cannedModel{answer: "Mostly reading docs."}
	withModel(svc, model)

	insertRaw(t, svc, &models.Session{
		URL: "https://go.dev/doc?token=abc", Title: "Go docs",
		Duration: 600000, Timestamp: time.Now().Add(-time.Minute).UnixMilli(),
	})

	rec := do(t, svc, http.MethodPost, "/api/reflection/ask", map[string]any{
		"query": "What did I read?", "timeRange": "week",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[models.Reflection](t, rec)
	assert.NotZero(t, res.ID)
	assert.Equal(t, "Mostly reading docs.", res.Response)
	assert.Equal(t, models.TimeRangeWeek, res.TimeRange)
	require.Len(t, res.Context, 1)
	assert.Equal(t, "https://go.dev/doc?token=REDACTED", res.Context[0].URL)
	require.Len(t, model.users, 1)
	assert.True(t, strings.Contains(model.users[0], "Go docs"))

	rec = do(t, svc, http.MethodGet, "/api/reflection/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.Reflection](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, res.ID, history[0].ID)
	assert.Empty(t, history[0].Context, "history omits stored context")

	rec = do(t, svc, http.MethodGet, "/api/reflection/"+strconv.FormatInt(res.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Reflection](t, rec)
	assert.Equal(t, "What did I read?", got.Query)
	assert.Len(t, got.Context, 1)

	rec = do(t, svc, http.MethodGet, "/api/reflection/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAskReflection_Errors(t *testing.T) {
	svc := testService(t)

	rec := do(t, svc, http.MethodPost, "/api/reflection/ask", map[string]any{"query": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no model configured")

	rec = do(t, svc, http.MethodGet, "/api/reflection/weekly-summary", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	withModel(svc, &cannedModel{answer: "ok"})
	rec = do(t, svc, http.MethodPost, "/api/reflection/ask", map[string]any{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, svc, http.MethodGet, "/api/reflection/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWeeklySummary(t *testing.T) {
	svc := testService(t)
	withModel(svc, &cannedModel{answer: "  A balanced week.  "})

	rec := do(t, svc, http.MethodGet, "/api/reflection/weekly-summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"summary": "A balanced week."}, decode[map[string]string](t, rec))

	rec = do(t, svc, http.MethodGet, "/api/reflection/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Reflection](t, rec), "summaries are not stored")
}
