package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		wantErr bool
	}{
		{name: "valid", session: &Session{URL: "https://example.com", Duration: 1000, Timestamp: 1}},
		{name: "zero duration allowed", session: &Session{URL: "https://example.com", Duration: 0, Timestamp: 1}},
		{name: "nil", session: nil, wantErr: true},
		{name: "missing url", session: &Session{Duration: 10, Timestamp: 1}, wantErr: true},
		{name: "blank url", session: &Session{URL: "   ", Duration: 10, Timestamp: 1}, wantErr: true},
		{name: "negative duration", session: &Session{URL: "https://a.b", Duration: -1, Timestamp: 1}, wantErr: true},
		{name: "missing timestamp", session: &Session{URL: "https://a.b", Duration: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSession))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSession_EndAndClone(t *testing.T) {
	id := int64(3)
	s := &Session{ID: 1, URL: "https://a.b", Timestamp: 1000, Duration: 500, CategoryID: &id}
	assert.Equal(t, int64(1500), s.End())
	assert.True(t, s.IsCategorized())

	c := s.Clone()
	*c.CategoryID = 9
	assert.Equal(t, int64(3), *s.CategoryID, "clone must not share category pointer")
}

func TestWellnessType_Valid(t *testing.T) {
	for _, wt := range WellnessTypes {
		assert.True(t, wt.Valid(), string(wt))
	}
	assert.False(t, WellnessType("chaos").Valid())
}

func TestSeedCategories(t *testing.T) {
	require.Len(t, SeedCategories, 8)
	seen := make(map[string]bool)
	for _, c := range SeedCategories {
		assert.False(t, seen[c.Name], "duplicate seed %q", c.Name)
		seen[c.Name] = true
		assert.True(t, c.WellnessType.Valid())
	}
	assert.True(t, seen[CategoryUncategorized])
	assert.Equal(t, CategoryUncategorized, SeedCategories[len(SeedCategories)-1].Name)
}

func TestSessionIDs(t *testing.T) {
	ids := SessionIDs([]*Session{{ID: 4}, {ID: 2}})
	assert.Equal(t, []int64{4, 2}, ids)
}
