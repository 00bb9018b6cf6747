package worker

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/thebtf/reflectra/internal/db/gorm"
	"github.com/thebtf/reflectra/internal/reconcile"
	"github.com/thebtf/reflectra/internal/wellness"
	"github.com/thebtf/reflectra/internal/worker/sse"
	"github.com/thebtf/reflectra/pkg/models"
)

const (
	// DefaultSessionLimit caps session listings without an explicit limit.
	DefaultSessionLimit = 500
	// DefaultSimilarLimit caps similarity results.
	DefaultSimilarLimit = 10
	// DefaultHistoryDays is the wellness history length.
	DefaultHistoryDays = 7

	maxBodyBytes = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/api/events" {
			return
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"ready":      s.ready.Load(),
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"similarity": s.similarity != nil,
		"sseClients": s.sseBroadcaster.ClientCount(),
	})
}

// recordRequest is the body of POST /api/sessions.
type recordRequest struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Duration   int64  `json:"duration"`
	Timestamp  int64  `json:"timestamp"`
	CategoryID *int64 `json:"category_id,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
}

func (s *Service) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli() - req.Duration
	}

	res, err := s.reconciler.RecordSession(r.Context(), &models.Session{
		URL:        req.URL,
		Title:      req.Title,
		Duration:   req.Duration,
		Timestamp:  req.Timestamp,
		CategoryID: req.CategoryID,
		OwnerID:    req.OwnerID,
	})
	if errors.Is(err, models.ErrInvalidSession) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("Record session failed")
		writeError(w, http.StatusInternalServerError, "failed to record session")
		return
	}

	status := http.StatusCreated
	if res.Merged {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func queryInt64(r *http.Request, name string) int64 {
	return gormdb.ParseInt64Param(r, name)
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := models.SessionFilter{
		From:          queryInt64(r, "startDate"),
		To:            queryInt64(r, "endDate"),
		Uncategorized: queryBool(r, "uncategorized"),
		OwnerID:       r.URL.Query().Get("ownerId"),
		Newest:        true,
		Limit:         gormdb.ParseLimitParam(r, DefaultSessionLimit),
	}
	if id := queryInt64(r, "categoryId"); id > 0 {
		filter.CategoryID = &id
	}

	sessions, err := s.sessionStore.Find(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("List sessions failed")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if queryBool(r, "merged") {
		sessions = reconcile.MergeForDisplay(sessions, s.config.DisplayWindowMs)
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sess, err := s.sessionStore.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Service) handleSetSessionCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// Both spellings are accepted; an absent or null id clears the category.
	var body struct {
		CategoryID      *int64 `json:"category_id"`
		CategoryIDCamel *int64 `json:"categoryId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	categoryID := body.CategoryID
	if categoryID == nil {
		categoryID = body.CategoryIDCamel
	}

	found, err := s.categorizer.Recategorize(r.Context(), id, categoryID)
	switch {
	case errors.Is(err, models.ErrCategoryNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to set category")
		return
	case !found:
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, err := s.sessionStore.GetByID(r.Context(), id)
	if err != nil || sess == nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if s.similarity != nil {
		s.similarity.OnSessionUpdate(r.Context(), sess, false)
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Service) handleCategorizeSessions(w http.ResponseWriter, r *http.Request) {
	limit := gormdb.ParseLimitParam(r, s.config.SweepLimit)
	res, err := s.Sweep(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Sweep failed")
		writeError(w, http.StatusInternalServerError, "categorization failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleReconcileSessions(w http.ResponseWriter, r *http.Request) {
	res, err := s.Reconcile(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Reconcile failed")
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleSimilarSessions(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	if s.similarity == nil {
		writeError(w, http.StatusServiceUnavailable, "similarity index disabled")
		return
	}
	matches, err := s.similarity.Similar(r.Context(), q, gormdb.ParseLimitParam(r, DefaultSimilarLimit), queryInt64(r, "since"))
	if err != nil {
		log.Error().Err(err).Str("query", q).Msg("Similarity query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Service) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categoryStore.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func categoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrCategoryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrDuplicateCategory):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrProtectedCategory):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrInvalidWellnessType):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Category operation failed")
		writeError(w, http.StatusInternalServerError, "category operation failed")
	}
}

func (s *Service) categoriesChanged() {
	s.categorizer.InvalidateCache()
	s.sseBroadcaster.Publish(sse.EventCategoriesChanged, nil)
}

func (s *Service) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c models.Category
	if !decodeBody(w, r, &c) {
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if c.WellnessType == "" {
		c.WellnessType = models.WellnessUnknown
	}

	created, err := s.categoryStore.Create(r.Context(), &c)
	if err != nil {
		categoryError(w, err)
		return
	}
	s.categoriesChanged()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var upd models.CategoryUpdate
	if !decodeBody(w, r, &upd) {
		return
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}

	cat, err := s.categoryStore.Update(r.Context(), id, upd)
	if err != nil {
		categoryError(w, err)
		return
	}
	s.categoriesChanged()
	writeJSON(w, http.StatusOK, cat)
}

func (s *Service) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.categoryStore.Delete(r.Context(), id); err != nil {
		categoryError(w, err)
		return
	}
	s.categoriesChanged()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleGetRules(w http.ResponseWriter, _ *http.Request) {
	table := s.categorizer.Rules().Table()
	writeJSON(w, http.StatusOK, map[string]any{
		"path":       s.categorizer.Rules().Path(),
		"categories": table.Categories(),
		"rules":      table.Len(),
	})
}

func (s *Service) handleReloadRules(w http.ResponseWriter, _ *http.Request) {
	if err := s.categorizer.Rules().Reload(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.categorizer.InvalidateCache()
	s.sseBroadcaster.Publish(sse.EventRulesReloaded, nil)
	writeJSON(w, http.StatusOK, map[string]int{"rules": s.categorizer.Rules().Table().Len()})
}

// stats aggregates display-merged sessions in [from, to].
func (s *Service) stats(r *http.Request, from, to int64) (*wellness.Stats, error) {
	sessions, err := s.sessionStore.Find(r.Context(), models.SessionFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	cats, err := s.categoryStore.List(r.Context())
	if err != nil {
		return nil, err
	}
	merged := reconcile.MergeForDisplay(sessions, s.config.DisplayWindowMs)
	return wellness.Summarize(merged, cats), nil
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats(r, queryInt64(r, "startDate"), queryInt64(r, "endDate"))
	if err != nil {
		log.Error().Err(err).Msg("Stats failed")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleStatsToday(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	st, err := s.stats(r, start.UnixMilli(), now.UnixMilli())
	if err != nil {
		log.Error().Err(err).Msg("Today stats failed")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	if st.WellnessScore != nil {
		score := wellness.Breakdown(start.Format("2006-01-02"), *st.WellnessScore, st.Categories)
		if err := s.wellnessStore.Upsert(r.Context(), score); err != nil {
			log.Warn().Err(err).Str("date", score.Date).Msg("Failed to save wellness score")
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleWellnessHistory(w http.ResponseWriter, r *http.Request) {
	days := DefaultHistoryDays
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 {
		days = v
	}
	history, err := s.wellnessStore.History(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}
