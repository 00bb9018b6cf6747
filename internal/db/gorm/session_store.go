// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/reflectra/pkg/models"
	"github.com/thebtf/reflectra/pkg/urlnorm"
)

// DeleteFunc is a callback for when sessions are deleted.
// Receives the IDs of deleted sessions for downstream cleanup (e.g., similarity index).
type DeleteFunc func(ctx context.Context, deletedIDs []int64)

// SessionStore provides session-related database operations using GORM.
type SessionStore struct {
	db         *gorm.DB
	deleteFunc DeleteFunc
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{db: store.DB}
}

// SetDeleteFunc sets the callback invoked after sessions are deleted.
func (s *SessionStore) SetDeleteFunc(fn DeleteFunc) {
	s.deleteFunc = fn
}

// filterScope applies a SessionFilter to a query.
func filterScope(f models.SessionFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.NormalizedURL != "" {
			db = db.Where("normalized_url = ?", f.NormalizedURL)
		}
		if f.From > 0 {
			db = db.Where("timestamp >= ?", f.From)
		}
		if f.To > 0 {
			db = db.Where("timestamp <= ?", f.To)
		}
		if f.Uncategorized {
			db = db.Where("category_id IS NULL")
		}
		if f.CategoryID != nil {
			db = db.Where("category_id = ?", *f.CategoryID)
		}
		if f.OwnerID != "" {
			db = db.Where("owner_id = ?", f.OwnerID)
		}
		if f.Newest {
			db = db.Order("timestamp DESC, id DESC")
		} else {
			db = db.Order("timestamp ASC, id ASC")
		}
		if f.Limit > 0 {
			db = db.Limit(f.Limit)
		}
		return db
	}
}

// Find returns sessions matching the filter, with category name and color joined.
func (s *SessionStore) Find(ctx context.Context, filter models.SessionFilter) ([]*models.Session, error) {
	var rows []Session
	err := s.db.WithContext(ctx).
		Preload("Category").
		Scopes(filterScope(filter)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelSessions(rows), nil
}

// GetByID retrieves a session by its ID. Returns nil, nil when absent.
func (s *SessionStore) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	var row Session
	err := s.db.WithContext(ctx).Preload("Category").First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelSession(&row), nil
}

// Insert stores a new session and returns it with its assigned ID.
func (s *SessionStore) Insert(ctx context.Context, sess *models.Session) (*models.Session, error) {
	row := &Session{
		URL:           sess.URL,
		NormalizedURL: urlnorm.Normalize(sess.URL),
		Title:         sess.Title,
		Duration:      sess.Duration,
		Timestamp:     sess.Timestamp,
		CategoryID:    nullInt64(sess.CategoryID),
		OwnerID:       nullString(sess.OwnerID),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return toModelSession(row), nil
}

// Update applies a partial update and returns the updated session.
// Returns nil, nil when the session does not exist.
func (s *SessionStore) Update(ctx context.Context, id int64, upd models.SessionUpdate) (*models.Session, error) {
	fields := make(map[string]any, 3)
	if upd.Duration != nil {
		fields["duration"] = *upd.Duration
	}
	if upd.Timestamp != nil {
		fields["timestamp"] = *upd.Timestamp
	}
	if upd.CategoryID != nil {
		fields["category_id"] = *upd.CategoryID
	}

	if len(fields) > 0 {
		res := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return s.GetByID(ctx, id)
}

// Delete removes the given sessions and returns how many rows were removed.
func (s *SessionStore) Delete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Session{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 && s.deleteFunc != nil {
		s.deleteFunc(ctx, ids)
	}
	return res.RowsAffected, nil
}

// FindUncategorized returns up to limit uncategorized sessions, newest first,
// skipping sessions currently claimed by another sweep.
func (s *SessionStore) FindUncategorized(ctx context.Context, limit int, staleBefore int64) ([]*models.Session, error) {
	var rows []Session
	err := s.db.WithContext(ctx).
		Where("category_id IS NULL").
		Where("claim_token IS NULL OR claimed_at_epoch < ?", staleBefore).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelSessions(rows), nil
}

// Claim marks an uncategorized session as being classified by the holder of token.
// A claim older than staleBefore may be taken over. Returns false when another
// holder owns the session or it is already categorized.
func (s *SessionStore) Claim(ctx context.Context, id int64, token string, staleBefore int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ? AND category_id IS NULL", id).
		Where("claim_token IS NULL OR claimed_at_epoch < ?", staleBefore).
		Updates(map[string]any{
			"claim_token":      token,
			"claimed_at_epoch": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteClaim attaches a category to a claimed session and clears the claim.
// Returns false when the claim was lost in the meantime.
func (s *SessionStore) CompleteClaim(ctx context.Context, id int64, token string, categoryID int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ? AND claim_token = ?", id, token).
		Updates(map[string]any{
			"category_id":      categoryID,
			"claim_token":      nil,
			"claimed_at_epoch": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseClaim drops a claim without categorizing.
func (s *SessionStore) ReleaseClaim(ctx context.Context, id int64, token string) error {
	return s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ? AND claim_token = ?", id, token).
		Updates(map[string]any{
			"claim_token":      nil,
			"claimed_at_epoch": nil,
		}).Error
}

// SetCategory attaches a category regardless of current state.
// Returns false when the session does not exist.
func (s *SessionStore) SetCategory(ctx context.Context, id int64, categoryID *int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("category_id", nullInt64(categoryID))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Count returns the number of stored sessions.
func (s *SessionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Session{}).Count(&count).Error
	return count, err
}
