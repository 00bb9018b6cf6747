package models

// Reflection time ranges.
const (
	TimeRangeToday = "today"
	TimeRangeWeek  = "week"
	TimeRangeMonth = "month"
	// TimeRangeDay is the trailing 24 hours, used for unknown ranges.
	TimeRangeDay = "day"
)

// Reflection is a question about browsing behavior and the answer given for it.
type Reflection struct {
	ID        int64                `json:"id"`
	Query     string               `json:"query"`
	Response  string               `json:"response"`
	TimeRange string               `json:"time_range,omitempty"`
	// Context holds the sessions the answer was based on. History listings omit it.
	Context   []*ReflectionSession `json:"context,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

// ReflectionSession is the slice of a session shown to the model.
type ReflectionSession struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Duration  int64  `json:"duration"`
	Timestamp int64  `json:"timestamp"`
	Category  string `json:"category"`
}
