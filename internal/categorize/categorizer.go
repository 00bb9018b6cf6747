// Package categorize assigns wellness categories to sessions: deterministic URL
// rules first, an external classifier second, a fixed fallback last.
package categorize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/reflectra/pkg/models"
)

// Sweep defaults.
const (
	DefaultSweepLimit = 50
	DefaultSweepDelay = 100 * time.Millisecond
	DefaultClaimTTL   = 10 * time.Minute
)

// ErrNoFallback is returned when even the fallback category cannot be resolved.
var ErrNoFallback = errors.New("fallback category unavailable")

// Classifier answers with a category name for a browsing context.
// Implementations are expected to bound their own latency.
type Classifier interface {
	Classify(ctx context.Context, prompt Prompt) (string, error)
}

// CategoryLookup resolves categories by name or id. Not-found is (nil, nil).
type CategoryLookup interface {
	FindByName(ctx context.Context, name string) (*models.Category, error)
	GetByID(ctx context.Context, id int64) (*models.Category, error)
}

// SweepStore is the session persistence used by bulk categorization.
type SweepStore interface {
	FindUncategorized(ctx context.Context, limit int, staleBefore int64) ([]*models.Session, error)
	Claim(ctx context.Context, id int64, token string, staleBefore int64) (bool, error)
	CompleteClaim(ctx context.Context, id int64, token string, categoryID int64) (bool, error)
	ReleaseClaim(ctx context.Context, id int64, token string) error
	SetCategory(ctx context.Context, id int64, categoryID *int64) (bool, error)
}

// CategorizedHook is called after a sweep persists a category on a session.
type CategorizedHook func(ctx context.Context, sessionID, categoryID int64)

// Options configures a Categorizer.
type Options struct {
	Rules      *Registry
	Classifier Classifier // nil disables tier 2
	SweepLimit int
	SweepDelay time.Duration
	ClaimTTL   time.Duration

	OnCategorized CategorizedHook
}

// Categorizer maps (url, title) pairs to category ids.
type Categorizer struct {
	rules      *Registry
	classifier Classifier
	categories CategoryLookup
	sessions   SweepStore

	sweepLimit int
	sweepDelay time.Duration
	claimTTL   time.Duration

	onCategorized CategorizedHook

	group singleflight.Group

	mu    sync.RWMutex
	names map[string]int64

	patternHits metric.Int64Counter
	calls       metric.Int64Counter
	fallbacks   metric.Int64Counter
}

// New creates a Categorizer.
func New(categories CategoryLookup, sessions SweepStore, opts Options) *Categorizer {
	if opts.Rules == nil {
		opts.Rules, _ = NewRegistry("")
	}
	if opts.SweepLimit <= 0 {
		opts.SweepLimit = DefaultSweepLimit
	}
	if opts.SweepDelay < 0 {
		opts.SweepDelay = 0
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = DefaultClaimTTL
	}

	meter := otel.Meter("github.com/thebtf/reflectra/internal/categorize")
	c := &Categorizer{
		rules:      opts.Rules,
		classifier: opts.Classifier,
		categories: categories,
		sessions:   sessions,
		sweepLimit: opts.SweepLimit,
		sweepDelay: opts.SweepDelay,
		claimTTL:   opts.ClaimTTL,
		names:      make(map[string]int64),

		onCategorized: opts.OnCategorized,
	}
	c.patternHits, _ = meter.Int64Counter("reflectra.categorize.pattern_hits",
		metric.WithDescription("Sessions categorized by URL rules"))
	c.calls, _ = meter.Int64Counter("reflectra.categorize.classifier_calls",
		metric.WithDescription("Tier-2 classifier invocations"))
	c.fallbacks, _ = meter.Int64Counter("reflectra.categorize.fallbacks",
		metric.WithDescription("Sessions assigned the fallback category"))
	return c
}

// Rules returns the rule registry in use.
func (c *Categorizer) Rules() *Registry {
	return c.rules
}

// InvalidateCache drops cached name to id mappings. Call after category edits.
func (c *Categorizer) InvalidateCache() {
	c.mu.Lock()
	c.names = make(map[string]int64)
	c.mu.Unlock()
}

// Categorize returns the category id for url and title. Classifier failures and
// unknown answers resolve to the fallback category; an error means the fallback
// itself could not be resolved.
func (c *Categorizer) Categorize(ctx context.Context, url, title string) (int64, error) {
	id, _, err := c.resolve(ctx, url, title)
	return id, err
}

// resolve also reports whether the classifier was consulted.
func (c *Categorizer) resolve(ctx context.Context, url, title string) (int64, bool, error) {
	if name, ok := c.rules.Table().Match(url); ok {
		if id, found := c.lookup(ctx, name); found {
			c.patternHits.Add(ctx, 1, metric.WithAttributes(attribute.String("category", name)))
			return id, false, nil
		}
		log.Warn().Str("category", name).Msg("Rule category missing from store, asking classifier")
	}

	if c.classifier == nil {
		id, err := c.fallback(ctx, "no classifier")
		return id, false, err
	}

	name, err := c.classify(ctx, url, title)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Classifier failed")
		id, err := c.fallback(ctx, "classifier error")
		return id, true, err
	}
	if id, found := c.lookup(ctx, name); found {
		return id, true, nil
	}
	log.Debug().Str("answer", name).Str("url", url).Msg("Classifier answer is not a category")
	id, err := c.fallback(ctx, "unknown answer")
	return id, true, err
}

// classify collapses concurrent identical questions into one upstream call.
func (c *Categorizer) classify(ctx context.Context, url, title string) (string, error) {
	v, err, _ := c.group.Do(url+"\x00"+title, func() (any, error) {
		c.calls.Add(ctx, 1)
		answer, err := c.classifier.Classify(ctx, BuildPrompt(PromptContext{URL: url, Title: title}))
		if err != nil {
			return "", err
		}
		return NormalizeAnswer(answer), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Categorizer) lookup(ctx context.Context, name string) (int64, bool) {
	c.mu.RLock()
	id, ok := c.names[name]
	c.mu.RUnlock()
	if ok {
		return id, true
	}

	cat, err := c.categories.FindByName(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("category", name).Msg("Category lookup failed")
		return 0, false
	}
	if cat == nil {
		return 0, false
	}

	c.mu.Lock()
	c.names[name] = cat.ID
	c.mu.Unlock()
	return cat.ID, true
}

func (c *Categorizer) fallback(ctx context.Context, reason string) (int64, error) {
	c.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	id, ok := c.lookup(ctx, models.CategoryUncategorized)
	if !ok {
		return 0, ErrNoFallback
	}
	return id, nil
}

// CategorizeUnclassified classifies up to limit uncategorized sessions, newest
// first. Each record is claimed before classification so concurrent sweeps skip
// it. Classifier calls run one at a time with the configured delay between them.
func (c *Categorizer) CategorizeUnclassified(ctx context.Context, limit int) (*models.SweepResult, error) {
	if limit <= 0 {
		limit = c.sweepLimit
	}
	staleBefore := time.Now().Add(-c.claimTTL).UnixMilli()

	pending, err := c.sessions.FindUncategorized(ctx, limit, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("find uncategorized: %w", err)
	}

	result := &models.SweepResult{Total: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	token := uuid.NewString()
	for i, s := range pending {
		if ctx.Err() != nil {
			break
		}

		claimed, err := c.sessions.Claim(ctx, s.ID, token, staleBefore)
		if err != nil {
			log.Warn().Err(err).Int64("id", s.ID).Msg("Claim failed, skipping")
			continue
		}
		if !claimed {
			continue
		}

		id, usedClassifier, err := c.resolve(ctx, s.URL, s.Title)
		if err != nil {
			log.Error().Err(err).Int64("id", s.ID).Msg("Categorization unresolved")
			if err := c.sessions.ReleaseClaim(ctx, s.ID, token); err != nil {
				log.Warn().Err(err).Int64("id", s.ID).Msg("Release claim failed")
			}
		} else {
			ok, err := c.sessions.CompleteClaim(ctx, s.ID, token, id)
			if err != nil {
				log.Warn().Err(err).Int64("id", s.ID).Msg("Persist category failed")
			} else if ok {
				result.Categorized++
				if c.onCategorized != nil {
					c.onCategorized(ctx, s.ID, id)
				}
			}
		}

		if usedClassifier && i < len(pending)-1 {
			if !sleep(ctx, c.sweepDelay) {
				break
			}
		}
	}

	log.Info().
		Int("categorized", result.Categorized).
		Int("total", result.Total).
		Msg("Categorization sweep complete")
	return result, nil
}

// Recategorize sets a session's category explicitly. A nil categoryID clears it.
// Returns false when the session does not exist.
func (c *Categorizer) Recategorize(ctx context.Context, sessionID int64, categoryID *int64) (bool, error) {
	if categoryID != nil {
		cat, err := c.categories.GetByID(ctx, *categoryID)
		if err != nil {
			return false, fmt.Errorf("get category: %w", err)
		}
		if cat == nil {
			return false, models.ErrCategoryNotFound
		}
	}
	return c.sessions.SetCategory(ctx, sessionID, categoryID)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
