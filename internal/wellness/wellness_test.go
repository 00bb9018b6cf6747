package wellness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/reflectra/pkg/models"
)

func ct(name string, time int64) models.CategoryTime {
	return models.CategoryTime{Name: name, Time: time}
}

func TestDailyScore(t *testing.T) {
	tests := []struct {
		name string
		cats []models.CategoryTime
		want *int
	}{
		{name: "no data", cats: nil, want: nil},
		{name: "no time", cats: []models.CategoryTime{ct(models.CategoryLearning, 0)}, want: intp(0)},
		{
			name: "ideal mix",
			cats: []models.CategoryTime{
				ct(models.CategoryFocusedWork, 35),
				ct(models.CategoryLearning, 25),
				ct(models.CategoryRelaxation, 25),
				ct(models.CategorySocialConnection, 15),
			},
			want: intp(100),
		},
		{
			// Deviations: productive .35, growth .25, rest .25, social .15 = 100, minus drain 30.
			name: "all drain",
			cats: []models.CategoryTime{ct(models.CategoryMindlessScroll, 100)},
			want: intp(0),
		},
		{
			// productive 1.0: deviations .65+.25+.25+.15 = 1.30 -> clamped to 0.
			name: "all focus",
			cats: []models.CategoryTime{ct(models.CategoryFocusedWork, 100)},
			want: intp(0),
		},
		{
			// productive .5, rest .5: .15+.25+.25+.15 = .80 -> 20.
			name: "half focus half rest",
			cats: []models.CategoryTime{
				ct(models.CategoryFocusedWork, 50),
				ct(models.CategoryRelaxation, 50),
			},
			want: intp(20),
		},
		{
			// Uses the row's wellness type over the name.
			name: "explicit type",
			cats: []models.CategoryTime{
				{Name: "Gaming", WellnessType: models.WellnessProductive, Time: 50},
				ct(models.CategoryRelaxation, 50),
			},
			want: intp(20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DailyScore(tt.cats)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestFocusRestRatio(t *testing.T) {
	assert.Equal(t, "0:0", FocusRestRatio(nil))
	assert.Equal(t, "Infinity", FocusRestRatio([]models.CategoryTime{ct(models.CategoryResearch, 10)}))
	assert.Equal(t, "1.50", FocusRestRatio([]models.CategoryTime{
		ct(models.CategoryFocusedWork, 100),
		ct(models.CategoryLearning, 50),
		ct(models.CategoryRelaxation, 100),
	}))
}

func TestAggregateAndBreakdown(t *testing.T) {
	cats := make([]*models.Category, 0, len(models.SeedCategories))
	for i, c := range models.SeedCategories {
		c := c
		c.ID = int64(i + 1)
		cats = append(cats, &c)
	}
	focus, scroll := int64(1), int64(6)

	sessions := []*models.Session{
		{ID: 1, Duration: 1000, CategoryID: &focus},
		{ID: 2, Duration: 4000, CategoryID: &scroll},
		{ID: 3, Duration: 500},
		{ID: 4, Duration: 2000, CategoryID: &focus},
	}

	got := Aggregate(sessions, cats)
	require.Len(t, got, 3)
	assert.Equal(t, models.CategoryMindlessScroll, got[0].Name)
	assert.Equal(t, int64(4000), got[0].Time)
	assert.Equal(t, models.CategoryFocusedWork, got[1].Name)
	assert.Equal(t, int64(3000), got[1].Time)
	assert.Equal(t, 2, got[1].Count)
	assert.Equal(t, models.CategoryUncategorized, got[2].Name)
	assert.Nil(t, got[2].CategoryID)

	b := Breakdown("2026-01-01", 42, got)
	assert.Equal(t, int64(3000), b.FocusTime)
	assert.Equal(t, int64(4000), b.MindlessTime)
	assert.Equal(t, int64(0), b.RestTime)

	st := Summarize(sessions, cats)
	assert.Equal(t, 4, st.SessionCount)
	assert.Equal(t, int64(7500), st.TotalTime)
	require.NotNil(t, st.WellnessScore)
}

func intp(v int) *int { return &v }
