package worker

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	gormdb "github.com/thebtf/reflectra/internal/db/gorm"
	"github.com/thebtf/reflectra/internal/reflection"
	"github.com/thebtf/reflectra/internal/worker/sse"
)

func reflectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reflection.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reflection.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("Reflection failed")
		writeError(w, http.StatusInternalServerError, "failed to generate reflection")
	}
}

func (s *Service) handleAskReflection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query     string `json:"query"`
		TimeRange string `json:"timeRange"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	res, err := s.reflector.Ask(r.Context(), body.Query, body.TimeRange)
	if err != nil {
		reflectionError(w, err)
		return
	}
	s.sseBroadcaster.Publish(sse.EventReflectionCreated, map[string]int64{"id": res.ID})
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleReflectionHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.reflectionStore.List(r.Context(), gormdb.ParseLimitParam(r, reflection.DefaultHistoryLimit))
	if err != nil {
		log.Error().Err(err).Msg("List reflections failed")
		writeError(w, http.StatusInternalServerError, "failed to list reflections")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleGetReflection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.reflectionStore.GetByID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Load reflection failed")
		writeError(w, http.StatusInternalServerError, "failed to load reflection")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "reflection not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reflector.WeeklySummary(r.Context())
	if err != nil {
		reflectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}
