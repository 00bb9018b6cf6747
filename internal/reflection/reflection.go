// Package reflection answers free-form questions about browsing behavior from
// recent session history, and keeps the answers.
package reflection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/reflectra/internal/classifier"
	"github.com/thebtf/reflectra/internal/privacy"
	"github.com/thebtf/reflectra/internal/vector"
	"github.com/thebtf/reflectra/pkg/models"
)

// Request parameters for reflection answers.
const (
	Temperature      float32 = 0.7
	MaxTokens                = 500
	SummaryMaxTokens         = 600

	DefaultContextLimit = 200
	DefaultSimilarLimit = 5
	DefaultHistoryLimit = 20
	DefaultTimeout      = 60 * time.Second

	// sitesPerCategory bounds the sites listed under each category.
	sitesPerCategory = 5
)

var (
	// ErrEmptyQuery is returned when a question is blank.
	ErrEmptyQuery = errors.New("query is required")
	// ErrUnavailable is returned when no language model is configured.
	ErrUnavailable = errors.New("reflection model unavailable")
)

// SystemPrompt frames every reflection request.
const SystemPrompt = `You are a thoughtful digital wellness coach helping someone reflect on their browsing.

Use the browsing data to answer their question. Build awareness rather than productivity pressure, point out patterns worth noticing, and never judge.

Keep the tone conversational and focused on well-being.`

const summaryInstructions = `Write a weekly summary of this browsing activity covering:
1. Overall patterns and trends
2. Digital wellness insights
3. Suggestions for balance, if any are warranted
4. Positive observations

Keep it encouraging.`

// Completer produces free-text answers.
type Completer interface {
	Complete(ctx context.Context, req classifier.Completion) (string, error)
}

// SessionSource reads session history.
type SessionSource interface {
	Find(ctx context.Context, filter models.SessionFilter) ([]*models.Session, error)
}

// Retriever finds sessions related to a question. Optional.
type Retriever interface {
	Similar(ctx context.Context, query string, limit int, since int64) ([]vector.SimilarSession, error)
}

// Store persists answered reflections.
type Store interface {
	Create(ctx context.Context, r *models.Reflection) (*models.Reflection, error)
}

// Options configures a Service.
type Options struct {
	Retriever    Retriever
	ContextLimit int
	SimilarLimit int
	Timeout      time.Duration
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Service answers reflection questions.
type Service struct {
	sessions SessionSource
	store    Store
	model    Completer
	opts     Options

	questions metric.Int64Counter
}

// New creates a Service. A nil model makes every question fail with ErrUnavailable.
func New(sessions SessionSource, store Store, model Completer, opts Options) *Service {
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = DefaultContextLimit
	}
	if opts.SimilarLimit <= 0 {
		opts.SimilarLimit = DefaultSimilarLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Service{sessions: sessions, store: store, model: model, opts: opts}
	s.questions, _ = otel.Meter("github.com/thebtf/reflectra/internal/reflection").
		Int64Counter("reflectra.reflection.questions",
			metric.WithDescription("Reflection questions answered"))
	return s
}

// Available reports whether a model is configured.
func (s *Service) Available() bool {
	return s.model != nil
}

// RangeStart returns the epoch millisecond a time range begins at. "today" starts
// at local midnight; unknown ranges cover the trailing 24 hours.
func RangeStart(timeRange string, now time.Time) (string, int64) {
	switch strings.ToLower(strings.TrimSpace(timeRange)) {
	case models.TimeRangeToday, "":
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return models.TimeRangeToday, midnight.UnixMilli()
	case models.TimeRangeWeek:
		return models.TimeRangeWeek, now.Add(-7 * 24 * time.Hour).UnixMilli()
	case models.TimeRangeMonth:
		return models.TimeRangeMonth, now.Add(-30 * 24 * time.Hour).UnixMilli()
	default:
		return models.TimeRangeDay, now.Add(-24 * time.Hour).UnixMilli()
	}
}

// Ask answers query from the sessions in timeRange and stores the result.
func (s *Service) Ask(ctx context.Context, query, timeRange string) (*models.Reflection, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if s.model == nil {
		return nil, ErrUnavailable
	}

	now := s.opts.Now()
	label, start := RangeStart(timeRange, now)
	sessions, err := s.recent(ctx, start)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("Based on this browsing data:\n\n")
	b.WriteString(BuildContext(sessions))
	if related := s.related(ctx, query, start); related != "" {
		b.WriteString("\n")
		b.WriteString(related)
	}
	b.WriteString("\nUser question: ")
	b.WriteString(query)

	answer, err := s.model.Complete(ctx, classifier.Completion{
		System:      SystemPrompt,
		User:        b.String(),
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		Timeout:     s.opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("generate reflection: %w", err)
	}
	s.questions.Add(ctx, 1)

	stored, err := s.store.Create(ctx, &models.Reflection{
		Query:     query,
		Response:  strings.TrimSpace(answer),
		TimeRange: label,
		Context:   contextSessions(sessions),
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("save reflection: %w", err)
	}

	log.Info().
		Int64("id", stored.ID).
		Str("range", label).
		Int("sessions", len(sessions)).
		Msg("Reflection answered")
	return stored, nil
}

// WeeklySummary writes a summary of the last seven days. It is not stored.
func (s *Service) WeeklySummary(ctx context.Context) (string, error) {
	if s.model == nil {
		return "", ErrUnavailable
	}
	_, start := RangeStart(models.TimeRangeWeek, s.opts.Now())
	sessions, err := s.recent(ctx, start)
	if err != nil {
		return "", err
	}

	answer, err := s.model.Complete(ctx, classifier.Completion{
		System:      SystemPrompt,
		User:        summaryInstructions + "\n\n" + BuildContext(sessions),
		Temperature: Temperature,
		MaxTokens:   SummaryMaxTokens,
		Timeout:     s.opts.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("generate weekly summary: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (s *Service) recent(ctx context.Context, start int64) ([]*models.Session, error) {
	sessions, err := s.sessions.Find(ctx, models.SessionFilter{
		From:   start,
		Newest: true,
		Limit:  s.opts.ContextLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return sessions, nil
}

// related lists indexed sessions matching the question. Failures are logged.
func (s *Service) related(ctx context.Context, query string, since int64) string {
	if s.opts.Retriever == nil {
		return ""
	}
	matches, err := s.opts.Retriever.Similar(ctx, query, s.opts.SimilarLimit, since)
	if err != nil {
		log.Warn().Err(err).Msg("Related session lookup failed")
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Sessions related to the question:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s (%s, %dm)\n", siteLabel(m.Title, m.URL), m.Category, minutes(m.Duration))
	}
	return b.String()
}

type categoryStats struct {
	name  string
	count int
	time  int64
	sites []*models.Session
}

// BuildContext renders per-category totals with up to five sites each, in the
// order categories first appear in sessions.
func BuildContext(sessions []*models.Session) string {
	if len(sessions) == 0 {
		return "No browsing activity found for this time period.\n"
	}

	var order []*categoryStats
	byName := make(map[string]*categoryStats)
	for _, s := range sessions {
		name := categoryName(s)
		st, ok := byName[name]
		if !ok {
			st = &categoryStats{name: name}
			byName[name] = st
			order = append(order, st)
		}
		st.count++
		st.time += s.Duration
		if len(st.sites) < sitesPerCategory {
			st.sites = append(st.sites, s)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total sessions: %d\n\nTime by category:\n", len(sessions))
	for _, st := range order {
		fmt.Fprintf(&b, "- %s: %d minutes (%d sessions)\n", st.name, minutes(st.time), st.count)
		b.WriteString("  Top sites:\n")
		for _, site := range st.sites {
			fmt.Fprintf(&b, "    - %s (%dm)\n", siteLabel(site.Title, site.URL), minutes(site.Duration))
		}
	}
	return b.String()
}

func contextSessions(sessions []*models.Session) []*models.ReflectionSession {
	out := make([]*models.ReflectionSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, &models.ReflectionSession{
			URL:       privacy.CleanURL(s.URL),
			Title:     privacy.Clean(s.Title),
			Duration:  s.Duration,
			Timestamp: s.Timestamp,
			Category:  categoryName(s),
		})
	}
	return out
}

func categoryName(s *models.Session) string {
	if s.CategoryName == "" {
		return models.CategoryUncategorized
	}
	return s.CategoryName
}

// siteLabel prefers the title and falls back to the scrubbed URL.
func siteLabel(title, url string) string {
	if t := privacy.Clean(title); t != "" {
		return t
	}
	return privacy.CleanURL(url)
}

func minutes(ms int64) int64 {
	return int64(math.Round(float64(ms) / 60000))
}
