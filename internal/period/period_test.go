package period_test

import (
	"testing"
	"time"

	"tooldo/internal/period"
)

func TestThisWeekAlwaysMondayToSunday(t *testing.T) {
	// 2024-07-01 is a Monday; walk a full week of "today"s
	for i := 0; i < 7; i++ {
		now := time.Date(2024, 7, 1+i, 15, 4, 5, 0, time.UTC)
		r := period.Resolve(period.ThisWeek, now)
		if r.From.Weekday() != time.Monday {
			t.Fatalf("now=%s: from weekday %s", now.Format(time.DateOnly), r.From.Weekday())
		}
		if h, m, s := r.From.Clock(); h != 0 || m != 0 || s != 0 || r.From.Nanosecond() != 0 {
			t.Fatalf("now=%s: from not at midnight: %s", now.Format(time.DateOnly), r.From)
		}
		if r.To.Weekday() != time.Sunday {
			t.Fatalf("now=%s: to weekday %s", now.Format(time.DateOnly), r.To.Weekday())
		}
		if h, m, s := r.To.Clock(); h != 23 || m != 59 || s != 59 || r.To.Nanosecond() != int(999*time.Millisecond) {
			t.Fatalf("now=%s: to not at end of day: %s", now.Format(time.DateOnly), r.To)
		}
		if !r.Contains(now) {
			t.Fatalf("now=%s outside its own week %v", now, r)
		}
	}
	// Sunday maps back to the preceding Monday
	sunday := time.Date(2024, 7, 7, 9, 0, 0, 0, time.UTC)
	r := period.Resolve(period.ThisWeek, sunday)
	if r.From.Day() != 1 || r.To.Day() != 7 {
		t.Fatalf("sunday week should be Jul 1-7, got %v", r)
	}
}

func TestThisMonthOnThirtyFirst(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	r := period.Resolve(period.ThisMonth, now)
	if r.From.Day() != 1 || r.From.Month() != time.January {
		t.Fatalf("from = %s", r.From)
	}
	if r.To.Day() != 31 || r.To.Month() != time.January {
		t.Fatalf("to = %s", r.To)
	}
	if h, _, s := r.To.Clock(); h != 23 || s != 59 {
		t.Fatalf("to not at end of day: %s", r.To)
	}
}

func TestThisMonthFebruary(t *testing.T) {
	r := period.Resolve(period.ThisMonth, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	if r.To.Day() != 29 {
		t.Fatalf("2024 is a leap year, want Feb 29, got %s", r.To)
	}
}

func TestRollingPresets(t *testing.T) {
	now := time.Date(2024, 3, 20, 18, 30, 0, 0, time.UTC)
	two := period.Resolve(period.LastTwoWeeks, now)
	if two.From.Day() != 6 || two.From.Month() != time.March {
		t.Fatalf("last-2-weeks from = %s", two.From)
	}
	if two.To.Day() != 20 {
		t.Fatalf("last-2-weeks to = %s", two.To)
	}
	thirty := period.Resolve(period.LastThirtyDays, now)
	if thirty.From.Day() != 19 || thirty.From.Month() != time.February {
		t.Fatalf("last-30-days from = %s", thirty.From)
	}
}

func TestPreviousIsAdjacentAndEqual(t *testing.T) {
	instants := []time.Time{
		time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 7, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 12, 15, 6, 0, 0, 0, time.UTC),
	}
	for _, p := range period.Presets() {
		for _, now := range instants {
			cur := period.Resolve(p, now)
			prev := period.Previous(p, now)
			if got := cur.From.Sub(prev.To); got != time.Millisecond {
				t.Fatalf("%s @ %s: gap = %s, want 1ms", p, now.Format(time.DateOnly), got)
			}
			if cur.Duration() != prev.Duration() {
				t.Fatalf("%s @ %s: durations differ: %s vs %s", p, now.Format(time.DateOnly), cur.Duration(), prev.Duration())
			}
			if !prev.To.Before(cur.From) {
				t.Fatalf("%s @ %s: ranges overlap", p, now.Format(time.DateOnly))
			}
		}
	}
}

func TestFormatRange(t *testing.T) {
	same := period.Range{
		From: time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 12, 8, 23, 59, 59, 0, time.UTC),
	}
	if got := period.FormatRange(same); got != "2 a 8 de dez" {
		t.Fatalf("same-month label = %q", got)
	}
	cross := period.Range{
		From: time.Date(2024, 11, 25, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 12, 1, 23, 59, 59, 0, time.UTC),
	}
	if got := period.FormatRange(cross); got != "25 de nov a 1 de dez" {
		t.Fatalf("cross-month label = %q", got)
	}
}

func TestParse(t *testing.T) {
	if p, err := period.Parse(""); err != nil || p != period.ThisWeek {
		t.Fatalf("empty should default to this-week, got %v %v", p, err)
	}
	if _, err := period.Parse("fortnight"); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
	for _, p := range period.Presets() {
		got, err := period.Parse(string(p))
		if err != nil || got != p {
			t.Fatalf("parse %s: %v %v", p, got, err)
		}
	}
}
