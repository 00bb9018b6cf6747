// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/thebtf/reflectra/pkg/models"
)

// ReflectionStore persists reflection questions and answers.
type ReflectionStore struct {
	db *gorm.DB
}

// NewReflectionStore creates a new reflection store.
func NewReflectionStore(store *Store) *ReflectionStore {
	return &ReflectionStore{db: store.DB}
}

// Create stores a reflection and returns it with its assigned ID.
func (s *ReflectionStore) Create(ctx context.Context, r *models.Reflection) (*models.Reflection, error) {
	row := &Reflection{
		Query:     r.Query,
		Response:  r.Response,
		TimeRange: nullString(r.TimeRange),
		Timestamp: r.Timestamp,
	}
	if len(r.Context) > 0 {
		data, err := json.Marshal(r.Context)
		if err != nil {
			return nil, fmt.Errorf("encode reflection context: %w", err)
		}
		row.Context = nullString(string(data))
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}

	out := *r
	out.ID = row.ID
	out.Timestamp = row.Timestamp
	return &out, nil
}

// List returns the most recent reflections without their context, newest first.
func (s *ReflectionStore) List(ctx context.Context, limit int) ([]*models.Reflection, error) {
	var rows []Reflection
	err := s.db.WithContext(ctx).
		Select("id", "query", "response", "time_range", "timestamp").
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Reflection, 0, len(rows))
	for i := range rows {
		r, err := toModelReflection(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetByID retrieves a reflection with its context. Returns nil, nil when absent.
func (s *ReflectionStore) GetByID(ctx context.Context, id int64) (*models.Reflection, error) {
	var row Reflection
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelReflection(&row)
}

func toModelReflection(row *Reflection) (*models.Reflection, error) {
	r := &models.Reflection{
		ID:        row.ID,
		Query:     row.Query,
		Response:  row.Response,
		TimeRange: row.TimeRange.String,
		Timestamp: row.Timestamp,
	}
	if row.Context.Valid && row.Context.String != "" {
		if err := json.Unmarshal([]byte(row.Context.String), &r.Context); err != nil {
			return nil, fmt.Errorf("decode reflection %d context: %w", row.ID, err)
		}
	}
	return r, nil
}
