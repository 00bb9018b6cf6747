// Package worker provides the HTTP service for reflectra: session intake,
// categorization, reconciliation, stats and the live event stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/thebtf/reflectra/internal/categorize"
	"github.com/thebtf/reflectra/internal/classifier"
	"github.com/thebtf/reflectra/internal/config"
	gormdb "github.com/thebtf/reflectra/internal/db/gorm"
	"github.com/thebtf/reflectra/internal/lock"
	"github.com/thebtf/reflectra/internal/reconcile"
	"github.com/thebtf/reflectra/internal/reflection"
	"github.com/thebtf/reflectra/internal/vector"
	bleveindex "github.com/thebtf/reflectra/internal/vector/bleve"
	"github.com/thebtf/reflectra/internal/watcher"
	"github.com/thebtf/reflectra/internal/worker/sse"
	"github.com/thebtf/reflectra/pkg/models"
)

// Service wires the stores and domain services behind the HTTP API.
type Service struct {
	version string
	config  *config.Config

	store           *gormdb.Store
	sessionStore    *gormdb.SessionStore
	categoryStore   *gormdb.CategoryStore
	wellnessStore   *gormdb.WellnessStore
	reflectionStore *gormdb.ReflectionStore

	model       classifier.Backend
	categorizer *categorize.Categorizer
	reconciler  *reconcile.Reconciler
	reflector   *reflection.Service

	index      vector.Index
	similarity *vector.Sync

	redisLock      *lock.Redis
	rulesWatcher   *watcher.Watcher
	sseBroadcaster *sse.Broadcaster

	router    *chi.Mux
	startTime time.Time
	ready     atomic.Bool
}

// NewService opens storage and builds every component from cfg.
func NewService(version string, cfg *config.Config) (*Service, error) {
	store, err := gormdb.NewStore(gormdb.Config{
		Path:     cfg.DBPath,
		DSN:      cfg.DSN,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rules, err := categorize.NewRegistry(cfg.RulesPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.RulesPath).Msg("Rules file invalid, using built-in rules")
		rules, _ = categorize.NewRegistry("")
	}

	model, err := classifier.New(classifierConfig(cfg))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	svc := newService(version, cfg, store, rules, model)

	if cfg.IndexPath != "" {
		idx, err := bleveindex.Open(cfg.IndexPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.IndexPath).Msg("Similarity index unavailable")
		} else {
			svc.attachIndex(idx)
		}
	}

	if err := svc.configureLocker(); err != nil {
		svc.Close()
		return nil, err
	}

	if rules.Path() != "" {
		w, err := watcher.New(rules.Path(), svc.reloadRules)
		if err != nil {
			log.Warn().Err(err).Msg("Rules watcher unavailable")
		} else {
			svc.rulesWatcher = w
		}
	}

	return svc, nil
}

// newService assembles a Service over an open store. Index, locker and watcher
// are attached separately.
func newService(version string, cfg *config.Config, store *gormdb.Store, rules *categorize.Registry, model classifier.Backend) *Service {
	svc := &Service{
		version:         version,
		config:          cfg,
		store:           store,
		sessionStore:    gormdb.NewSessionStore(store),
		categoryStore:   gormdb.NewCategoryStore(store),
		wellnessStore:   gormdb.NewWellnessStore(store),
		reflectionStore: gormdb.NewReflectionStore(store),
		model:           model,
		sseBroadcaster:  sse.NewBroadcaster(),
		router:          chi.NewRouter(),
		startTime:       time.Now(),
	}

	svc.categorizer = categorize.New(svc.categoryStore, svc.sessionStore, categorize.Options{
		Rules:      rules,
		Classifier: model,
		SweepLimit: cfg.SweepLimit,
		SweepDelay: cfg.SweepDelay,

		OnCategorized: svc.onSessionCategorized,
	})
	svc.buildReconciler(nil)
	svc.buildReflector()
	svc.sessionStore.SetDeleteFunc(svc.onSessionsDeleted)
	svc.setupRoutes()
	return svc
}

func (s *Service) buildReconciler(locker reconcile.Locker) {
	s.reconciler = reconcile.New(s.sessionStore, reconcile.Options{
		Lookback:      s.config.LookbackMs,
		MaxGap:        s.config.MaxGapMs,
		CleanupWindow: s.config.CleanupWindowMs,
		Categorizer:   s.categorizer,
		Locker:        locker,
		OnUpdate:      s.onSessionUpdate,
	})
}

// buildReflector rebuilds the reflection service so it picks up the current
// model and similarity index.
func (s *Service) buildReflector() {
	opts := reflection.Options{Timeout: s.config.ReflectionTimeout}
	if s.similarity != nil {
		opts.Retriever = s.similarity
	}
	s.reflector = reflection.New(s.sessionStore, s.reflectionStore, s.model, opts)
}

func classifierConfig(cfg *config.Config) classifier.Config {
	c := classifier.Config{
		Provider: cfg.ClassifierProvider,
		Model:    cfg.ClassifierModel,
		BaseURL:  cfg.ClassifierBaseURL,
		Timeout:  cfg.ClassifierTimeout,
	}
	switch cfg.ClassifierProvider {
	case classifier.ProviderOpenAI:
		c.APIKey = cfg.OpenAIAPIKey
	case classifier.ProviderAnthropic:
		c.APIKey = cfg.AnthropicAPIKey
	}
	return c
}

func (s *Service) attachIndex(idx vector.Index) {
	s.index = idx
	s.similarity = vector.NewSync(idx)
	s.buildReflector()
}

func (s *Service) configureLocker() error {
	switch s.config.URLLock {
	case "", config.LockNone:
		return nil
	case config.LockLocal:
		s.buildReconciler(lock.NewLocal())
	case config.LockRedis:
		if s.config.RedisAddr == "" {
			return errors.New("redis url lock requires REFLECTRA_REDIS_ADDR")
		}
		s.redisLock = lock.NewRedis(lock.NewRedisPool(s.config.RedisAddr), 0)
		s.buildReconciler(s.redisLock)
	default:
		return fmt.Errorf("unknown url lock mode %q", s.config.URLLock)
	}
	log.Info().Str("mode", s.config.URLLock).Msg("Per-URL locking enabled")
	return nil
}

// Reconciler exposes the session reconciler.
func (s *Service) Reconciler() *reconcile.Reconciler { return s.reconciler }

// Categorizer exposes the categorizer.
func (s *Service) Categorizer() *categorize.Categorizer { return s.categorizer }

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler { return s.router }

func (s *Service) onSessionUpdate(ctx context.Context, sess *models.Session, merged bool) {
	event := sse.EventSessionRecorded
	if merged {
		event = sse.EventSessionMerged
	}
	s.sseBroadcaster.Publish(event, sess)

	if s.similarity == nil {
		return
	}
	// Re-read so the indexed document carries the category name.
	full, err := s.sessionStore.GetByID(ctx, sess.ID)
	if err != nil || full == nil {
		full = sess
	}
	s.similarity.OnSessionUpdate(ctx, full, merged)
}

// onSessionCategorized refreshes the indexed document after a sweep assignment.
func (s *Service) onSessionCategorized(ctx context.Context, sessionID, _ int64) {
	s.reindexSession(ctx, sessionID)
}

func (s *Service) reindexSession(ctx context.Context, id int64) {
	if s.similarity == nil {
		return
	}
	sess, err := s.sessionStore.GetByID(ctx, id)
	if err != nil || sess == nil {
		log.Debug().Err(err).Int64("id", id).Msg("Session not reindexed")
		return
	}
	s.similarity.OnSessionUpdate(ctx, sess, false)
}

func (s *Service) onSessionsDeleted(ctx context.Context, ids []int64) {
	if s.similarity != nil {
		s.similarity.OnSessionsDeleted(ctx, ids)
	}
}

func (s *Service) reloadRules() {
	if err := s.categorizer.Rules().Reload(); err != nil {
		log.Error().Err(err).Msg("Rules reload failed, keeping previous table")
		return
	}
	s.categorizer.InvalidateCache()
	log.Info().Int("rules", s.categorizer.Rules().Table().Len()).Msg("Rules reloaded")
	s.sseBroadcaster.Publish(sse.EventRulesReloaded, map[string]int{"rules": s.categorizer.Rules().Table().Len()})
}

// Sweep runs one categorization sweep and publishes the result.
func (s *Service) Sweep(ctx context.Context, limit int) (*models.SweepResult, error) {
	res, err := s.categorizer.CategorizeUnclassified(ctx, limit)
	if err != nil {
		return nil, err
	}
	if res.Categorized > 0 {
		s.sseBroadcaster.Publish(sse.EventSessionsCategorized, res)
	}
	return res, nil
}

// Reconcile runs a storage cleanup pass and publishes the result.
func (s *Service) Reconcile(ctx context.Context) (*models.ReconcileResult, error) {
	res, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		return res, err
	}
	if res.Merged > 0 {
		s.sseBroadcaster.Publish(sse.EventSessionsReconciled, res)
	}
	return res, nil
}

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/api/events", s.sseBroadcaster.HandleSSE)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleRecordSession)
		r.Get("/", s.handleListSessions)
		r.Get("/similar", s.handleSimilarSessions)
		r.Post("/categorize", s.handleCategorizeSessions)
		r.Post("/reconcile", s.handleReconcileSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Patch("/{id}/category", s.handleSetSessionCategory)
	})

	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", s.handleListCategories)
		r.Post("/", s.handleCreateCategory)
		r.Patch("/{id}", s.handleUpdateCategory)
		r.Delete("/{id}", s.handleDeleteCategory)
	})

	r.Route("/api/reflection", func(r chi.Router) {
		r.Post("/ask", s.handleAskReflection)
		r.Get("/history", s.handleReflectionHistory)
		r.Get("/weekly-summary", s.handleWeeklySummary)
		r.Get("/{id}", s.handleGetReflection)
	})

	r.Get("/api/rules", s.handleGetRules)
	r.Post("/api/rules/reload", s.handleReloadRules)

	r.Get("/api/stats", s.handleStats)
	r.Get("/api/stats/today", s.handleStatsToday)
	r.Get("/api/stats/wellness-history", s.handleWellnessHistory)
}

// Start serves HTTP and runs the periodic sweep until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.WorkerHost, strconv.Itoa(s.config.WorkerPort))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.rulesWatcher != nil {
		if err := s.rulesWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Rules watcher not started")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker listening")
		s.ready.Store(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.runScheduler(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.Close()
	return err
}

// Close releases every resource the service holds.
func (s *Service) Close() {
	if s.rulesWatcher != nil {
		_ = s.rulesWatcher.Stop()
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			log.Warn().Err(err).Msg("Close similarity index")
		}
	}
	if s.redisLock != nil {
		_ = s.redisLock.Close()
	}
	if err := s.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Close store")
	}
}
