// Package models contains domain models for reflectra.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSession is returned when a session record fails boundary validation.
// It is the only reconciler error that reaches the record-producing caller.
var ErrInvalidSession = errors.New("invalid session")

// Session is one record of continuous attention to a URL.
// Timestamp is the start of the attention span in epoch milliseconds and Duration
// is its length in milliseconds.
type Session struct {
	ID         int64  `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Duration   int64  `json:"duration"`
	Timestamp  int64  `json:"timestamp"`
	CategoryID *int64 `json:"category_id,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`

	// Display-only fields, populated by joins and display-time merging.
	CategoryName  string `json:"category_name,omitempty"`
	CategoryColor string `json:"category_color,omitempty"`
	MergedCount   int    `json:"merged_count,omitempty"`
}

// End returns the epoch millisecond at which the attention span ended.
func (s *Session) End() int64 {
	return s.Timestamp + s.Duration
}

// IsCategorized reports whether a category has been attached.
func (s *Session) IsCategorized() bool {
	return s.CategoryID != nil
}

// Validate checks the invariants a record must satisfy before it enters the reconciler.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidSession)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: duration must be non-negative, got %d", ErrInvalidSession, s.Duration)
	}
	if s.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSession)
	}
	return nil
}

// Clone returns a copy that does not share the CategoryID pointer.
func (s *Session) Clone() *Session {
	c := *s
	if s.CategoryID != nil {
		id := *s.CategoryID
		c.CategoryID = &id
	}
	return &c
}

// SessionFilter selects sessions from the store.
// Zero values mean "no constraint".
type SessionFilter struct {
	// NormalizedURL restricts results to records whose URL normalizes to this value.
	NormalizedURL string
	// From and To bound Timestamp inclusively.
	From int64
	To   int64
	// Uncategorized restricts results to records with no category.
	Uncategorized bool
	CategoryID    *int64
	OwnerID       string
	// Newest orders by timestamp descending instead of ascending.
	Newest bool
	Limit  int
}

// RecordResult is returned by incremental merge-on-insert.
type RecordResult struct {
	Session *Session `json:"session"`
	Merged  bool     `json:"merged"`
}

// ReconcileResult summarizes a storage-mutating batch reconciliation.
type ReconcileResult struct {
	Merged  int `json:"merged"`
	Deleted int `json:"deleted"`
}

// SweepResult summarizes one bulk categorization pass.
type SweepResult struct {
	Categorized int `json:"categorized"`
	Total       int `json:"total"`
}

// SessionIDs returns the identifiers of the given sessions in order.
func SessionIDs(sessions []*Session) []int64 {
	ids := make([]int64, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

// SessionUpdate carries a partial update of a persisted session.
// Nil fields are left unchanged.
type SessionUpdate struct {
	Duration   *int64
	Timestamp  *int64
	CategoryID *int64
}
