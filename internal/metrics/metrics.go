// Package metrics derives dashboard figures from action snapshots. Every
// result is recomputed from its inputs; nothing is cached or persisted.
package metrics

import (
	"iter"
	"time"

	"tooldo/internal/domain"
	"tooldo/internal/period"
)

// Summary holds the dashboard figures for one period plus the comparison
// against the immediately preceding period.
type Summary struct {
	TotalDeliveries        int     `json:"total_deliveries"`
	AvgCompletionRate      float64 `json:"avg_completion_rate"`
	TotalLate              int     `json:"total_late"`
	Velocity               int     `json:"velocity"`
	DeliveriesDelta        int     `json:"deliveries_delta"`
	DeliveriesPercentDelta float64 `json:"deliveries_percent_delta"`
	VelocityDelta          int     `json:"velocity_delta"`
	LateDelta              int     `json:"late_delta"`
	CompletionRateDelta    float64 `json:"completion_rate_delta"`
}

// TeamMember is the roster entry shown alongside the figures.
type TeamMember struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// TrendPoint is one day bucket of the delivery trend.
type TrendPoint struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// Compute aggregates the current and previous period snapshots. A nil slice
// marks an input that has not loaded yet; in that case the zero Summary is
// returned so callers always render a well-defined neutral result.
func Compute(current, previous []domain.Action) Summary {
	if current == nil || previous == nil {
		return Summary{}
	}
	cur := tally(current)
	prev := tally(previous)
	return Summary{
		TotalDeliveries:        cur.done,
		AvgCompletionRate:      cur.completionRate(),
		TotalLate:              cur.late,
		Velocity:               cur.done,
		DeliveriesDelta:        cur.done - prev.done,
		DeliveriesPercentDelta: percentDelta(float64(cur.done), float64(prev.done)),
		VelocityDelta:          cur.done - prev.done,
		LateDelta:              cur.late - prev.late,
		CompletionRateDelta:    cur.completionRate() - prev.completionRate(),
	}
}

type counts struct {
	total int
	done  int
	late  int
}

func tally(actions []domain.Action) counts {
	var c counts
	c.total = len(actions)
	for _, a := range actions {
		if a.Status == domain.StatusDone {
			c.done++
		}
		if a.IsLate {
			c.late++
		}
	}
	return c
}

func (c counts) completionRate() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.done) / float64(c.total) * 100
}

func percentDelta(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// Roster returns the members who appear as responsibles in either snapshot,
// deduplicated by id, in first-seen order.
func Roster(members []domain.Member, current, previous []domain.Action) []TeamMember {
	byID := make(map[string]domain.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	seen := map[string]struct{}{}
	var roster []TeamMember
	for _, a := range append(append([]domain.Action(nil), current...), previous...) {
		if a.ResponsibleID == nil {
			continue
		}
		id := *a.ResponsibleID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		entry := TeamMember{ID: id}
		if m, ok := byID[id]; ok {
			entry.FirstName = m.FirstName
			entry.LastName = m.LastName
		}
		roster = append(roster, entry)
	}
	return roster
}

// DeliveriesByDay buckets completed actions by completion day across the
// range. The sequence is chronological and gap-free: days without a delivery
// yield a zero count. Iteration can be restarted at will.
func DeliveriesByDay(actions []domain.Action, r period.Range) iter.Seq[TrendPoint] {
	return func(yield func(TrendPoint) bool) {
		buckets := map[string]int{}
		for _, a := range actions {
			if a.Status != domain.StatusDone || a.CompletedAt == nil {
				continue
			}
			ts, err := time.Parse(time.RFC3339, *a.CompletedAt)
			if err != nil {
				continue
			}
			ts = ts.In(r.From.Location())
			if !r.Contains(ts) {
				continue
			}
			buckets[ts.Format(time.DateOnly)]++
		}
		for day := startOfDay(r.From); !day.After(r.To); day = day.AddDate(0, 0, 1) {
			point := TrendPoint{Day: day, Count: buckets[day.Format(time.DateOnly)]}
			if !yield(point) {
				return
			}
		}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
