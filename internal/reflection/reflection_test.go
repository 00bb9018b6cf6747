package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/reflectra/internal/classifier"
	"github.com/thebtf/reflectra/internal/vector"
	"github.com/thebtf/reflectra/pkg/models"
)

type fakeSessions struct {
	rows    []*models.Session
	filters []models.SessionFilter
	err     error
}

func (f *fakeSessions) Find(_ context.Context, filter models.SessionFilter) ([]*models.Session, error) {
	f.filters = append(f.filters, filter)
	return f.rows, f.err
}

type fakeStore struct {
	saved []*models.Reflection
	err   error
}

func (f *fakeStore) Create(_ context.Context, r *models.Reflection) (*models.Reflection, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := *r
	out.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, &out)
	return &out, nil
}

type fakeModel struct {
	answer string
	err    error
	reqs   []classifier.Completion
}

func (f *fakeModel) Complete(_ context.Context, req classifier.Completion) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.answer, f.err
}

type fakeRetriever struct {
	matches []vector.SimilarSession
	err     error
}

func (f *fakeRetriever) Similar(context.Context, string, int, int64) ([]vector.SimilarSession, error) {
	return f.matches, f.err
}

type ReflectionSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	sessions *fakeSessions
	store    *fakeStore
	model    *fakeModel
}

func TestReflectionSuite(t *testing.T) {
	suite.Run(t, new(ReflectionSuite))
}

func (s *ReflectionSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	s.sessions = &fakeSessions{rows: []*models.Session{
		{ID: 3, URL: "https://go.dev/doc?token=abc", Title: "Go docs", Duration: 600000, Timestamp: 3, CategoryName: models.CategoryLearning},
		{ID: 2, URL: "https://www.tiktok.com/@cats", Title: "", Duration: 120000, Timestamp: 2, CategoryName: models.CategoryMindlessScroll},
		{ID: 1, URL: "https://go.dev/blog", Title: "Go blog", Duration: 300000, Timestamp: 1, CategoryName: models.CategoryLearning},
	}}
	s.store = &fakeStore{}
	s.model = &fakeModel{answer: "  You learned a lot today.\n"}
}

func (s *ReflectionSuite) service(opts Options) *Service {
	opts.Now = func() time.Time { return s.now }
	return New(s.sessions, s.store, s.model, opts)
}

func (s *ReflectionSuite) TestAsk() {
	svc := s.service(Options{})

	r, err := svc.Ask(s.ctx, "  What did I focus on?  ", "today")
	s.Require().NoError(err)
	s.Equal(int64(1), r.ID)
	s.Equal("What did I focus on?", r.Query)
	s.Equal("You learned a lot today.", r.Response)
	s.Equal(models.TimeRangeToday, r.TimeRange)
	s.Equal(s.now.UnixMilli(), r.Timestamp)
	s.Require().Len(r.Context, 3)
	s.Equal("https://go.dev/doc?token=REDACTED", r.Context[0].URL)
	s.Len(s.store.saved, 1)

	s.Require().Len(s.sessions.filters, 1)
	f := s.sessions.filters[0]
	s.True(f.Newest)
	s.Equal(DefaultContextLimit, f.Limit)
	s.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC).UnixMilli(), f.From)

	s.Require().Len(s.model.reqs, 1)
	req := s.model.reqs[0]
	s.Equal(SystemPrompt, req.System)
	s.Equal(Temperature, req.Temperature)
	s.Equal(MaxTokens, req.MaxTokens)
	s.Equal(DefaultTimeout, req.Timeout)
	s.True(strings.HasPrefix(req.User, "Based on this browsing data:\n\nTotal sessions: 3\n"))
	s.True(strings.HasSuffix(req.User, "\nUser question: What did I focus on?"))
	s.NotContains(req.User, "token=abc")
}

func (s *ReflectionSuite) TestAsk_IncludesRelatedSessions() {
	svc := s.service(Options{Retriever: &fakeRetriever{matches: []vector.SimilarSession{
		{ID: 3, Title: "Go docs", URL: "https://go.dev/doc", Duration: 600000, Category: models.CategoryLearning},
	}}})

	_, err := svc.Ask(s.ctx, "go", "week")
	s.Require().NoError(err)
	s.Contains(s.model.reqs[0].User, "Sessions related to the question:\n- Go docs (Learning, 10m)\n")
}

func (s *ReflectionSuite) TestAsk_RetrieverFailureIgnored() {
	svc := s.service(Options{Retriever: &fakeRetriever{err: errors.New("index closed")}})

	_, err := svc.Ask(s.ctx, "go", "week")
	s.Require().NoError(err)
	s.NotContains(s.model.reqs[0].User, "related")
}

func (s *ReflectionSuite) TestAsk_Errors() {
	svc := s.service(Options{})
	_, err := svc.Ask(s.ctx, "   ", "today")
	s.ErrorIs(err, ErrEmptyQuery)

	unavailable := New(s.sessions, s.store, nil, Options{})
	s.False(unavailable.Available())
	_, err = unavailable.Ask(s.ctx, "q", "today")
	s.ErrorIs(err, ErrUnavailable)

	s.model.err = errors.New("rate limited")
	_, err = svc.Ask(s.ctx, "q", "today")
	s.Error(err)
	s.Empty(s.store.saved, "failed answers are not stored")

	s.model.err = nil
	s.store.err = errors.New("disk full")
	_, err = svc.Ask(s.ctx, "q", "today")
	s.Error(err)

	s.store.err = nil
	s.sessions.err = errors.New("db closed")
	_, err = svc.Ask(s.ctx, "q", "today")
	s.Error(err)
}

func (s *ReflectionSuite) TestWeeklySummary() {
	svc := s.service(Options{})
	summary, err := svc.WeeklySummary(s.ctx)
	s.Require().NoError(err)
	s.Equal("You learned a lot today.", summary)
	s.Equal(SummaryMaxTokens, s.model.reqs[0].MaxTokens)
	s.Equal(s.now.Add(-7*24*time.Hour).UnixMilli(), s.sessions.filters[0].From)
	s.Empty(s.store.saved)
}

func TestRangeStart(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		in    string
		label string
		start time.Time
	}{
		{"today", models.TimeRangeToday, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"", models.TimeRangeToday, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"WEEK", models.TimeRangeWeek, now.Add(-7 * 24 * time.Hour)},
		{"month", models.TimeRangeMonth, now.Add(-30 * 24 * time.Hour)},
		{"year", models.TimeRangeDay, now.Add(-24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			label, start := RangeStart(tt.in, now)
			assert.Equal(t, tt.label, label)
			assert.Equal(t, tt.start.UnixMilli(), start)
		})
	}
}

func TestBuildContext(t *testing.T) {
	assert.Equal(t, "No browsing activity found for this time period.\n", BuildContext(nil))

	sessions := []*models.Session{
		{URL: "https://go.dev/doc", Title: "Go docs", Duration: 600000, CategoryName: models.CategoryLearning},
		{URL: "https://www.tiktok.com/@cats", Duration: 90000},
		{URL: "https://go.dev/blog", Title: "Go blog", Duration: 300000, CategoryName: models.CategoryLearning},
	}
	want := "Total sessions: 3\n\n" +
		"Time by category:\n" +
		"- Learning: 15 minutes (2 sessions)\n" +
		"  Top sites:\n" +
		"    - Go docs (10m)\n" +
		"    - Go blog (5m)\n" +
		"- Uncategorized: 2 minutes (1 sessions)\n" +
		"  Top sites:\n" +
		"    - https://www.tiktok.com/@cats (2m)\n"
	assert.Equal(t, want, BuildContext(sessions))
}

func TestBuildContext_LimitsSitesPerCategory(t *testing.T) {
	var sessions []*models.Session
	for i := 0; i < 8; i++ {
		sessions = append(sessions, &models.Session{URL: "https://a.test/", Title: "A", Duration: 60000, CategoryName: "Research"})
	}
	out := BuildContext(sessions)
	require.Contains(t, out, "- Research: 8 minutes (8 sessions)")
	assert.Equal(t, sitesPerCategory, strings.Count(out, "    - A (1m)"))
}
