package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Day-granularity dates (leave is booked in days)
// =============================================================================

// TimePoint is a calendar date in UTC. Leave transactions carry no
// time-of-day component; effective dates compare at day granularity.
type TimePoint struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() TimePoint {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return TimePoint{Time: t}, nil
}

// Comparison
func (tp TimePoint) Before(o TimePoint) bool        { return tp.normalize().Before(o.normalize()) }
func (tp TimePoint) Equal(o TimePoint) bool         { return tp.normalize().Equal(o.normalize()) }
func (tp TimePoint) After(o TimePoint) bool         { return tp.normalize().After(o.normalize()) }
func (tp TimePoint) BeforeOrEqual(o TimePoint) bool { return tp.Before(o) || tp.Equal(o) }
func (tp TimePoint) AfterOrEqual(o TimePoint) bool  { return tp.After(o) || tp.Equal(o) }
func (tp TimePoint) IsZero() bool                   { return tp.Time.IsZero() }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, n, 0)} }

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }

func (tp TimePoint) String() string { return tp.Time.Format("2006-01-02") }

func nowUTC() time.Time { return time.Now().UTC() }

// =============================================================================
// ACCRUAL PERIODS - Calendar months keyed "2006-01"
// =============================================================================

// PeriodKey returns the accrual period key for the date, e.g. "2025-11".
func (tp TimePoint) PeriodKey() string { return tp.Time.Format("2006-01") }

// ParsePeriodKey parses a "2006-01" period key into its month boundaries.
func ParsePeriodKey(key string) (start, end TimePoint, err error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return TimePoint{}, TimePoint{}, fmt.Errorf("invalid period key %q: %w", key, err)
	}
	start = NewDate(t.Year(), t.Month(), 1)
	return start, EndOfMonth(start), nil
}

func StartOfMonth(tp TimePoint) TimePoint {
	return NewDate(tp.Year(), tp.Month(), 1)
}

func EndOfMonth(tp TimePoint) TimePoint {
	first := NewDate(tp.Year(), tp.Month(), 1)
	return first.AddMonths(1).AddDays(-1)
}

// MonthsBetween returns the first day of every month from `from` through
// `to`, inclusive. Used by the accrual backfill.
func MonthsBetween(from, to TimePoint) []TimePoint {
	var months []TimePoint
	current := StartOfMonth(from)
	last := StartOfMonth(to)
	for current.BeforeOrEqual(last) {
		months = append(months, current)
		current = current.AddMonths(1)
	}
	return months
}
