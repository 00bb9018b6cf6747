// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/reflectra/pkg/models"
)

// WellnessStore persists daily wellness scores.
type WellnessStore struct {
	db *gorm.DB
}

// NewWellnessStore creates a new wellness store.
func NewWellnessStore(store *Store) *WellnessStore {
	return &WellnessStore{db: store.DB}
}

// Upsert stores the score for its date, replacing an existing one.
func (s *WellnessStore) Upsert(ctx context.Context, score *models.WellnessScore) error {
	row := &WellnessScore{
		Date:         score.Date,
		Score:        score.Score,
		FocusTime:    score.FocusTime,
		LearningTime: score.LearningTime,
		RestTime:     score.RestTime,
		SocialTime:   score.SocialTime,
		MindlessTime: score.MindlessTime,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"score", "focus_time", "learning_time", "rest_time", "social_time", "mindless_time",
		}),
	}).Create(row).Error
}

// History returns the most recent scores, newest first.
func (s *WellnessStore) History(ctx context.Context, days int) ([]*models.WellnessScore, error) {
	var rows []WellnessScore
	err := s.db.WithContext(ctx).Order("date DESC").Limit(days).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.WellnessScore, 0, len(rows))
	for i := range rows {
		out = append(out, toModelWellnessScore(&rows[i]))
	}
	return out, nil
}
