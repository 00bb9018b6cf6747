// Package wellness computes the daily digital wellness score from time spent
// per category.
package wellness

import (
	"math"
	"sort"
	"strconv"

	"github.com/thebtf/reflectra/pkg/models"
)

// Ideal share of tracked time per wellness type. Drain and unknown time count
// toward the total but have no target.
var Ideal = map[models.WellnessType]float64{
	models.WellnessProductive: 0.35,
	models.WellnessGrowth:     0.25,
	models.WellnessRest:       0.25,
	models.WellnessSocial:     0.15,
}

// DrainPenalty is subtracted per unit share of drain time.
const DrainPenalty = 30.0

// Stats summarizes a period of browsing.
type Stats struct {
	SessionCount   int                   `json:"sessionCount"`
	TotalTime      int64                 `json:"totalTime"`
	Categories     []models.CategoryTime `json:"categories"`
	WellnessScore  *int                  `json:"wellnessScore"`
	FocusRestRatio string                `json:"focusRestRatio"`
}

// typeByName maps seed category names to their wellness type, for category
// rows that carry no type.
var typeByName = func() map[string]models.WellnessType {
	m := make(map[string]models.WellnessType, len(models.SeedCategories))
	for _, c := range models.SeedCategories {
		m[c.Name] = c.WellnessType
	}
	return m
}()

func wellnessType(ct models.CategoryTime) models.WellnessType {
	if ct.WellnessType != "" && ct.WellnessType.Valid() {
		return ct.WellnessType
	}
	if t, ok := typeByName[ct.Name]; ok {
		return t
	}
	return models.WellnessUnknown
}

// TimeByType sums category time per wellness type.
func TimeByType(cats []models.CategoryTime) (map[models.WellnessType]int64, int64) {
	byType := make(map[models.WellnessType]int64, len(models.WellnessTypes))
	var total int64
	for _, c := range cats {
		total += c.Time
		byType[wellnessType(c)] += c.Time
	}
	return byType, total
}

// DailyScore rates how close the day's mix is to the ideal, from 0 to 100.
// Returns nil when there is no category data and 0 when no time was tracked.
func DailyScore(cats []models.CategoryTime) *int {
	if len(cats) == 0 {
		return nil
	}
	byType, total := TimeByType(cats)
	score := 0
	if total == 0 {
		return &score
	}

	balance := 100.0
	for t, ideal := range Ideal {
		actual := float64(byType[t]) / float64(total)
		balance -= math.Abs(ideal-actual) * 100
	}
	balance -= float64(byType[models.WellnessDrain]) / float64(total) * DrainPenalty

	score = int(math.Round(math.Max(0, math.Min(100, balance))))
	return &score
}

// FocusRestRatio returns focus time (productive and growth) over rest time,
// formatted to two decimals. "Infinity" means focus without rest, "0:0" means
// neither.
func FocusRestRatio(cats []models.CategoryTime) string {
	byType, _ := TimeByType(cats)
	focus := byType[models.WellnessProductive] + byType[models.WellnessGrowth]
	rest := byType[models.WellnessRest]
	if rest == 0 {
		if focus > 0 {
			return "Infinity"
		}
		return "0:0"
	}
	return strconv.FormatFloat(float64(focus)/float64(rest), 'f', 2, 64)
}

// Breakdown builds the stored score row for a day.
func Breakdown(date string, score int, cats []models.CategoryTime) *models.WellnessScore {
	byType, _ := TimeByType(cats)
	return &models.WellnessScore{
		Date:         date,
		Score:        score,
		FocusTime:    byType[models.WellnessProductive],
		LearningTime: byType[models.WellnessGrowth],
		RestTime:     byType[models.WellnessRest],
		SocialTime:   byType[models.WellnessSocial],
		MindlessTime: byType[models.WellnessDrain],
	}
}

// Aggregate sums session time per category, ordered by time descending.
// Sessions without a category are grouped under Uncategorized.
func Aggregate(sessions []*models.Session, categories []*models.Category) []models.CategoryTime {
	byID := make(map[int64]*models.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	var uncategorized *models.CategoryTime
	buckets := make(map[int64]*models.CategoryTime)
	var order []*models.CategoryTime

	for _, s := range sessions {
		var b *models.CategoryTime
		if s.CategoryID == nil {
			if uncategorized == nil {
				uncategorized = &models.CategoryTime{
					Name:         models.CategoryUncategorized,
					WellnessType: models.WellnessUnknown,
				}
				order = append(order, uncategorized)
			}
			b = uncategorized
		} else {
			id := *s.CategoryID
			b = buckets[id]
			if b == nil {
				b = &models.CategoryTime{CategoryID: &id, Name: s.CategoryName, Color: s.CategoryColor}
				if c, ok := byID[id]; ok {
					b.Name = c.Name
					b.Color = c.Color
					b.WellnessType = c.WellnessType
				}
				buckets[id] = b
				order = append(order, b)
			}
		}
		b.Time += s.Duration
		b.Count++
	}

	out := make([]models.CategoryTime, 0, len(order))
	for _, b := range order {
		out = append(out, *b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	return out
}

// Summarize aggregates sessions into period stats.
func Summarize(sessions []*models.Session, categories []*models.Category) *Stats {
	cats := Aggregate(sessions, categories)
	st := &Stats{
		SessionCount:   len(sessions),
		Categories:     cats,
		WellnessScore:  DailyScore(cats),
		FocusRestRatio: FocusRestRatio(cats),
	}
	for _, s := range sessions {
		st.TotalTime += s.Duration
	}
	return st
}
