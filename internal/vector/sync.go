package vector

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/reflectra/pkg/models"
)

// DocTypeSession marks documents built from browsing sessions.
const DocTypeSession = "browser_session"

// DocID returns the index document ID for a session.
func DocID(sessionID int64) string {
	return "session_" + strconv.FormatInt(sessionID, 10)
}

// SessionSummary renders the indexed text for a session. Lines without a value
// are omitted.
func SessionSummary(s *models.Session) string {
	lines := []string{"Browsing session"}
	if s.Title != "" {
		lines = append(lines, "Title: "+s.Title)
	}
	if s.URL != "" {
		lines = append(lines, "URL: "+s.URL)
	}
	lines = append(lines, fmt.Sprintf("DurationMinutes: %d", int64(math.Round(float64(s.Duration)/60000))))
	if s.CategoryName != "" {
		lines = append(lines, "Category: "+s.CategoryName)
	}
	if s.Timestamp > 0 {
		lines = append(lines, "Timestamp: "+time.UnixMilli(s.Timestamp).UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	return strings.Join(lines, "\n")
}

// SessionDocument builds the index document for a session.
func SessionDocument(s *models.Session) Document {
	title := s.Title
	if title == "" {
		title = "Untitled session"
	}
	category := s.CategoryName
	if category == "" {
		category = models.CategoryUncategorized
	}
	return Document{
		ID:      DocID(s.ID),
		Content: SessionSummary(s),
		Metadata: map[string]any{
			"session_id": s.ID,
			"doc_type":   DocTypeSession,
			"title":      title,
			"url":        s.URL,
			"timestamp":  s.Timestamp,
			"duration":   s.Duration,
			"category":   category,
		},
	}
}

// SimilarSession is a query match resolved to session fields.
type SimilarSession struct {
	ID        int64   `json:"id"`
	Score     float64 `json:"score"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Timestamp int64   `json:"timestamp"`
	Duration  int64   `json:"duration"`
	Category  string  `json:"category"`
}

// Sync keeps the index in step with the session store.
type Sync struct {
	index Index
}

// NewSync creates a sync service over index.
func NewSync(index Index) *Sync {
	return &Sync{index: index}
}

// SyncSession indexes a single session.
func (s *Sync) SyncSession(ctx context.Context, sess *models.Session) error {
	if err := s.index.AddDocuments(ctx, []Document{SessionDocument(sess)}); err != nil {
		return fmt.Errorf("add session doc: %w", err)
	}
	log.Debug().Int64("sessionId", sess.ID).Msg("Synced session to index")
	return nil
}

// OnSessionUpdate indexes sess and logs failures. Its signature matches the
// reconciler's update hook.
func (s *Sync) OnSessionUpdate(ctx context.Context, sess *models.Session, _ bool) {
	if err := s.SyncSession(ctx, sess); err != nil {
		log.Warn().Err(err).Int64("sessionId", sess.ID).Msg("Similarity index update failed")
	}
}

// OnSessionsDeleted removes deleted sessions from the index and logs failures.
func (s *Sync) OnSessionsDeleted(ctx context.Context, ids []int64) {
	docIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		docIDs = append(docIDs, DocID(id))
	}
	if err := s.index.DeleteDocuments(ctx, docIDs); err != nil {
		log.Warn().Err(err).Int("count", len(ids)).Msg("Similarity index delete failed")
	}
}

// Similar queries the index and resolves matches to session fields.
func (s *Sync) Similar(ctx context.Context, query string, limit int, since int64) ([]SimilarSession, error) {
	results, err := s.index.Query(ctx, query, limit, since)
	if err != nil {
		return nil, err
	}
	out := make([]SimilarSession, 0, len(results))
	for _, r := range results {
		id, ok := r.Metadata["session_id"].(float64)
		if !ok {
			continue
		}
		m := SimilarSession{ID: int64(id), Score: r.Score}
		m.Title, _ = r.Metadata["title"].(string)
		m.URL, _ = r.Metadata["url"].(string)
		m.Category, _ = r.Metadata["category"].(string)
		if v, ok := r.Metadata["timestamp"].(float64); ok {
			m.Timestamp = int64(v)
		}
		if v, ok := r.Metadata["duration"].(float64); ok {
			m.Duration = int64(v)
		}
		out = append(out, m)
	}
	return out, nil
}
