package period

import (
	"fmt"
	"time"
)

// Preset is a named date window resolved against an explicit instant.
type Preset string

const (
	ThisWeek       Preset = "this-week"
	LastTwoWeeks   Preset = "last-2-weeks"
	ThisMonth      Preset = "this-month"
	LastThirtyDays Preset = "last-30-days"
)

// Presets returns the supported presets.
func Presets() []Preset {
	return []Preset{ThisWeek, LastTwoWeeks, ThisMonth, LastThirtyDays}
}

// Parse converts a raw preset string, defaulting to ThisWeek when empty.
func Parse(raw string) (Preset, error) {
	if raw == "" {
		return ThisWeek, nil
	}
	p := Preset(raw)
	switch p {
	case ThisWeek, LastTwoWeeks, ThisMonth, LastThirtyDays:
		return p, nil
	}
	return "", fmt.Errorf("unknown period preset %q", raw)
}

// Range is an inclusive date window with millisecond day boundaries.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Duration is the span covered by the range.
func (r Range) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// Contains reports whether t falls inside the range, bounds included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Resolve maps a preset to an absolute range. The evaluation instant is an
// explicit parameter so callers control the clock.
func Resolve(p Preset, now time.Time) Range {
	switch p {
	case ThisWeek:
		return thisWeek(now)
	case LastTwoWeeks:
		return Range{From: startOfDay(now.AddDate(0, 0, -14)), To: endOfDay(now)}
	case ThisMonth:
		return thisMonth(now)
	case LastThirtyDays:
		return Range{From: startOfDay(now.AddDate(0, 0, -30)), To: endOfDay(now)}
	default:
		return Range{From: startOfDay(now), To: endOfDay(now)}
	}
}

// Previous returns the window of equal duration ending one millisecond
// before the current one starts.
func Previous(p Preset, now time.Time) Range {
	cur := Resolve(p, now)
	to := cur.From.Add(-time.Millisecond)
	return Range{From: to.Add(-cur.Duration()), To: to}
}

// thisWeek spans Monday through Sunday of the ISO week containing now.
// Sunday belongs to the week that started the previous Monday.
func thisWeek(now time.Time) Range {
	back := int(now.Weekday()) - 1
	if now.Weekday() == time.Sunday {
		back = 6
	}
	monday := now.AddDate(0, 0, -back)
	return Range{From: startOfDay(monday), To: endOfDay(monday.AddDate(0, 0, 6))}
}

func thisMonth(now time.Time) Range {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	// day zero of the next month is the last day of this one
	last := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location())
	return Range{From: first, To: endOfDay(last)}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// monthNames holds the product-locale short month labels.
var monthNames = [...]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

func monthName(m time.Month) string {
	return monthNames[int(m)-1]
}

// FormatRange renders a short human label, "2 a 8 de dez" within one month
// and "25 de nov a 1 de dez" across months.
func FormatRange(r Range) string {
	if r.From.Month() == r.To.Month() && r.From.Year() == r.To.Year() {
		return fmt.Sprintf("%d a %d de %s", r.From.Day(), r.To.Day(), monthName(r.From.Month()))
	}
	return fmt.Sprintf("%d de %s a %d de %s", r.From.Day(), monthName(r.From.Month()), r.To.Day(), monthName(r.To.Month()))
}
