// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/reflectra/pkg/models"
	"github.com/thebtf/reflectra/pkg/urlnorm"
)

// GORM Models

// Category is a named wellness classification.
type Category struct {
	ID             int64               `gorm:"primaryKey;autoIncrement"`
	Name           string              `gorm:"uniqueIndex;not null"`
	Description    sql.NullString      `gorm:"type:text"`
	Color          sql.NullString      `gorm:"type:text"`
	WellnessType   models.WellnessType `gorm:"type:text;default:'unknown';check:wellness_type IN ('productive', 'growth', 'rest', 'social', 'drain', 'unknown');not null"`
	CreatedAtEpoch int64               `gorm:"not null"`
}

func (Category) TableName() string { return "categories" }

// BeforeCreate hook to ensure defaults are set.
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if c.WellnessType == "" {
		c.WellnessType = models.WellnessUnknown
	}
	return nil
}

// Session is one persisted attention span.
// NormalizedURL is derived from URL on create and backs the merge lookups.
type Session struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	URL            string         `gorm:"type:text;not null"`
	NormalizedURL  string         `gorm:"type:text;not null;index:idx_sessions_norm_ts,priority:1"`
	Title          string         `gorm:"type:text;not null"`
	Duration       int64          `gorm:"not null;check:duration >= 0"`
	Timestamp      int64          `gorm:"not null;index:idx_sessions_timestamp;index:idx_sessions_norm_ts,priority:2"`
	CategoryID     sql.NullInt64  `gorm:"index:idx_sessions_category"`
	Category       *Category      `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL"`
	OwnerID        sql.NullString `gorm:"index"`
	ClaimToken     sql.NullString `gorm:"type:text"`
	ClaimedAtEpoch sql.NullInt64
	CreatedAtEpoch int64 `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

// BeforeCreate hook to ensure timestamps and the normalized URL are set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if s.NormalizedURL == "" {
		s.NormalizedURL = urlnorm.Normalize(s.URL)
	}
	return nil
}

// WellnessScore is the stored daily wellness summary.
type WellnessScore struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Date           string `gorm:"uniqueIndex;not null"`
	Score          int    `gorm:"not null"`
	FocusTime      int64  `gorm:"default:0"`
	LearningTime   int64  `gorm:"default:0"`
	RestTime       int64  `gorm:"default:0"`
	SocialTime     int64  `gorm:"default:0"`
	MindlessTime   int64  `gorm:"default:0"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (WellnessScore) TableName() string { return "wellness_scores" }

// BeforeCreate hook to ensure timestamps are set.
func (w *WellnessScore) BeforeCreate(tx *gorm.DB) error {
	if w.CreatedAtEpoch == 0 {
		w.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// Reflection is a stored question and answer. Context is the JSON-encoded
// session list the answer was based on.
type Reflection struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	Query          string         `gorm:"type:text;not null"`
	Response       string         `gorm:"type:text;not null"`
	TimeRange      sql.NullString `gorm:"type:text"`
	Context        sql.NullString `gorm:"type:text"`
	Timestamp      int64          `gorm:"not null;index:idx_reflections_timestamp"`
	CreatedAtEpoch int64          `gorm:"not null"`
}

func (Reflection) TableName() string { return "reflections" }

// BeforeCreate hook to ensure timestamps are set.
func (r *Reflection) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.Timestamp == 0 {
		r.Timestamp = r.CreatedAtEpoch
	}
	return nil
}

func toModelCategory(c *Category) *models.Category {
	return &models.Category{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description.String,
		Color:        c.Color.String,
		WellnessType: c.WellnessType,
	}
}

func toModelSession(s *Session) *models.Session {
	out := &models.Session{
		ID:        s.ID,
		URL:       s.URL,
		Title:     s.Title,
		Duration:  s.Duration,
		Timestamp: s.Timestamp,
		OwnerID:   s.OwnerID.String,
	}
	if s.CategoryID.Valid {
		id := s.CategoryID.Int64
		out.CategoryID = &id
	}
	if s.Category != nil {
		out.CategoryName = s.Category.Name
		out.CategoryColor = s.Category.Color.String
	}
	return out
}

func toModelSessions(rows []Session) []*models.Session {
	out := make([]*models.Session, 0, len(rows))
	for i := range rows {
		out = append(out, toModelSession(&rows[i]))
	}
	return out
}

func toModelWellnessScore(w *WellnessScore) *models.WellnessScore {
	return &models.WellnessScore{
		Date:         w.Date,
		Score:        w.Score,
		FocusTime:    w.FocusTime,
		LearningTime: w.LearningTime,
		RestTime:     w.RestTime,
		SocialTime:   w.SocialTime,
		MindlessTime: w.MindlessTime,
	}
}
