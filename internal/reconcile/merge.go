package reconcile

import (
	"sort"

	"github.com/thebtf/reflectra/pkg/models"
	"github.com/thebtf/reflectra/pkg/urlnorm"
)

// Default merge windows in milliseconds.
const (
	DefaultLookback      int64 = 120_000
	DefaultMaxGap        int64 = 35_000
	DefaultDisplayWindow int64 = 300_000
	DefaultCleanupWindow int64 = 120_000
)

// run is one group of records judged to be a single logical session.
// members are in timestamp order; members[0] is the survivor.
type run struct {
	members []*models.Session
}

func (r *run) last() *models.Session {
	return r.members[len(r.members)-1]
}

func (r *run) accepts(s *models.Session, window int64) bool {
	last := r.last()
	return s.Title == last.Title && s.Timestamp-last.Timestamp <= window
}

// collapse produces the surviving record. Single-member runs pass through unchanged.
func (r *run) collapse() *models.Session {
	if len(r.members) == 1 {
		return r.members[0]
	}
	out := r.members[0].Clone()
	out.Duration = 0
	for _, m := range r.members {
		out.Duration += m.Duration
		if out.CategoryID == nil && m.CategoryID != nil {
			id := *m.CategoryID
			out.CategoryID = &id
			out.CategoryName = m.CategoryName
			out.CategoryColor = m.CategoryColor
		}
	}
	out.MergedCount = len(r.members)
	return out
}

// folded returns the ids absorbed into the survivor.
func (r *run) folded() []int64 {
	return models.SessionIDs(r.members[1:])
}

// runKey partitions records by owner and normalized URL.
func runKey(s *models.Session) string {
	return s.OwnerID + "\x00" + urlnorm.Normalize(s.URL)
}

// buildRuns sorts sessions by start time, partitions them by owner and normalized URL and
// splits each partition into runs. A record joins the current run when its title
// equals the previous member's title and it started within window of it.
// Runs are returned ordered by their survivor's timestamp.
func buildRuns(sessions []*models.Session, window int64) []*run {
	if len(sessions) == 0 {
		return nil
	}

	sorted := make([]*models.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	current := make(map[string]*run)
	var runs []*run
	for _, s := range sorted {
		key := runKey(s)
		if r, ok := current[key]; ok && r.accepts(s, window) {
			r.members = append(r.members, s)
			continue
		}
		r := &run{members: []*models.Session{s}}
		current[key] = r
		runs = append(runs, r)
	}
	return runs
}

// MergeForDisplay collapses fragmented records into logical sessions without
// touching storage. Merged records carry the earliest member's identity and
// timestamp, the summed duration and MergedCount set to the member count.
// The result is ordered by timestamp ascending. A non-positive window selects
// DefaultDisplayWindow.
func MergeForDisplay(sessions []*models.Session, window int64) []*models.Session {
	if window <= 0 {
		window = DefaultDisplayWindow
	}
	runs := buildRuns(sessions, window)
	out := make([]*models.Session, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.collapse())
	}
	return out
}
