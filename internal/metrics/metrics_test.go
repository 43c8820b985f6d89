package metrics_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"tooldo/internal/domain"
	"tooldo/internal/metrics"
	"tooldo/internal/period"
)

func action(status string, late bool) domain.Action {
	return domain.Action{Status: status, IsLate: late}
}

func doneAt(ts string) domain.Action {
	return domain.Action{Status: domain.StatusDone, CompletedAt: &ts}
}

func TestComputeBasicCounts(t *testing.T) {
	current := []domain.Action{
		action(domain.StatusDone, false),
		action(domain.StatusDone, true),
		action(domain.StatusDone, false),
		action(domain.StatusDone, false),
		action(domain.StatusDone, false),
		action(domain.StatusDone, false),
		action(domain.StatusTodo, true),
		action(domain.StatusTodo, false),
		action(domain.StatusInProgress, false),
		action(domain.StatusInProgress, false),
	}
	s := metrics.Compute(current, []domain.Action{})
	if s.TotalDeliveries != 6 {
		t.Fatalf("deliveries = %d", s.TotalDeliveries)
	}
	if s.AvgCompletionRate != 60 {
		t.Fatalf("completion rate = %v", s.AvgCompletionRate)
	}
	if s.TotalLate != 2 {
		t.Fatalf("late = %d", s.TotalLate)
	}
	if s.Velocity != s.TotalDeliveries {
		t.Fatalf("velocity %d should equal deliveries %d", s.Velocity, s.TotalDeliveries)
	}
}

func TestComputeEmptyCurrent(t *testing.T) {
	s := metrics.Compute([]domain.Action{}, []domain.Action{})
	if s.AvgCompletionRate != 0 || math.IsNaN(s.AvgCompletionRate) {
		t.Fatalf("completion rate on empty input = %v", s.AvgCompletionRate)
	}
}

func TestComputeZeroPreviousAvoidsInfinity(t *testing.T) {
	current := []domain.Action{action(domain.StatusDone, false)}
	s := metrics.Compute(current, []domain.Action{})
	if math.IsInf(s.DeliveriesPercentDelta, 0) || s.DeliveriesPercentDelta != 0 {
		t.Fatalf("percent delta with zero previous = %v", s.DeliveriesPercentDelta)
	}
	if s.DeliveriesDelta != 1 {
		t.Fatalf("absolute delta = %d", s.DeliveriesDelta)
	}
}

func TestComputeDeltas(t *testing.T) {
	current := []domain.Action{
		action(domain.StatusDone, false),
		action(domain.StatusDone, true),
		action(domain.StatusDone, false),
		action(domain.StatusTodo, false),
	}
	previous := []domain.Action{
		action(domain.StatusDone, false),
		action(domain.StatusDone, true),
		action(domain.StatusTodo, true),
		action(domain.StatusTodo, false),
	}
	s := metrics.Compute(current, previous)
	if s.DeliveriesDelta != 1 {
		t.Fatalf("deliveries delta = %d", s.DeliveriesDelta)
	}
	if s.DeliveriesPercentDelta != 50 {
		t.Fatalf("percent delta = %v", s.DeliveriesPercentDelta)
	}
	if s.LateDelta != -1 {
		t.Fatalf("late delta = %d", s.LateDelta)
	}
	if s.CompletionRateDelta != 25 {
		t.Fatalf("completion rate delta = %v", s.CompletionRateDelta)
	}
}

func TestComputePendingInputsNeutral(t *testing.T) {
	loaded := []domain.Action{action(domain.StatusDone, false)}
	for _, tc := range []struct {
		name      string
		cur, prev []domain.Action
	}{
		{"current pending", nil, loaded},
		{"previous pending", loaded, nil},
		{"both pending", nil, nil},
	} {
		if s := metrics.Compute(tc.cur, tc.prev); s != (metrics.Summary{}) {
			t.Fatalf("%s: expected zero summary, got %+v", tc.name, s)
		}
	}
}

func TestRosterDeduplicates(t *testing.T) {
	resp := func(id string) *string { return &id }
	members := []domain.Member{
		{ID: "m-1", FirstName: "Ana", LastName: "Silva"},
		{ID: "m-2", FirstName: "Bruno", LastName: "Costa"},
		{ID: "m-3", FirstName: "Carla", LastName: "Dias"},
	}
	current := []domain.Action{
		{ResponsibleID: resp("m-1")},
		{ResponsibleID: resp("m-2")},
		{ResponsibleID: resp("m-1")},
		{ResponsibleID: nil},
	}
	previous := []domain.Action{
		{ResponsibleID: resp("m-2")},
		{ResponsibleID: resp("m-3")},
	}
	roster := metrics.Roster(members, current, previous)
	if len(roster) != 3 {
		t.Fatalf("roster size = %d: %+v", len(roster), roster)
	}
	if roster[0].ID != "m-1" || roster[1].ID != "m-2" || roster[2].ID != "m-3" {
		t.Fatalf("roster order: %+v", roster)
	}
	if roster[0].FirstName != "Ana" || roster[2].LastName != "Dias" {
		t.Fatalf("roster names: %+v", roster)
	}
}

func TestDeliveriesByDayFillsGaps(t *testing.T) {
	r := period.Range{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 3, 23, 59, 59, int(999*time.Millisecond), time.UTC),
	}
	actions := []domain.Action{
		doneAt("2024-05-01T10:00:00Z"),
		doneAt("2024-05-03T18:30:00Z"),
		doneAt("2024-05-03T08:00:00Z"),
		doneAt("2024-05-09T08:00:00Z"), // outside the range
		{Status: domain.StatusTodo},
	}
	var points []metrics.TrendPoint
	for p := range metrics.DeliveriesByDay(actions, r) {
		points = append(points, p)
	}
	if len(points) != 3 {
		t.Fatalf("want 3 day buckets, got %d: %+v", len(points), points)
	}
	wantCounts := []int{1, 0, 2}
	for i, p := range points {
		if p.Count != wantCounts[i] {
			t.Fatalf("day %d count = %d want %d", i+1, p.Count, wantCounts[i])
		}
		if p.Day.Day() != i+1 {
			t.Fatalf("buckets out of order: %+v", points)
		}
	}
}

func TestDeliveriesByDayRestartable(t *testing.T) {
	r := period.Range{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC),
	}
	seq := metrics.DeliveriesByDay([]domain.Action{doneAt("2024-05-02T09:00:00Z")}, r)
	render := func() string {
		out := ""
		for p := range seq {
			out += fmt.Sprintf("%s=%d;", p.Day.Format(time.DateOnly), p.Count)
		}
		return out
	}
	first, second := render(), render()
	if first != second || first != "2024-05-01=0;2024-05-02=1;" {
		t.Fatalf("sequence not restartable: %q vs %q", first, second)
	}
}
