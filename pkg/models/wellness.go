package models

// WellnessScore is the persisted daily wellness summary.
// Times are in milliseconds.
type WellnessScore struct {
	Date         string `json:"date"`
	Score        int    `json:"score"`
	FocusTime    int64  `json:"focus_time"`
	LearningTime int64  `json:"learning_time"`
	RestTime     int64  `json:"rest_time"`
	SocialTime   int64  `json:"social_time"`
	MindlessTime int64  `json:"mindless_time"`
}

// CategoryTime is the time spent in one category over a period.
type CategoryTime struct {
	CategoryID   *int64       `json:"category_id,omitempty"`
	Name         string       `json:"name"`
	Color        string       `json:"color"`
	WellnessType WellnessType `json:"wellness_type"`
	Time         int64        `json:"time"`
	Count        int          `json:"count"`
}
