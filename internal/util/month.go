package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
)

// MonthKeyLayout is the canonical month identifier format. Keys are
// zero-padded so lexical order equals chronological order.
const MonthKeyLayout = "2006-01"

// Now is the clock used by CurrentMonth; tests replace it
var Now = time.Now

// ParseMonthKey validates a YYYY-MM key and returns its year and month
func ParseMonthKey(key string) (int, time.Month, error) {
	if len(key) != len(MonthKeyLayout) {
		return 0, 0, domain.ErrInvalidMonthKey
	}
	t, err := time.Parse(MonthKeyLayout, key)
	if err != nil {
		return 0, 0, domain.ErrInvalidMonthKey
	}
	return t.Year(), t.Month(), nil
}

// IsValidMonthKey reports whether key is a well-formed YYYY-MM key
func IsValidMonthKey(key string) bool {
	_, _, err := ParseMonthKey(key)
	return err == nil
}

// MonthKey formats a year and month as YYYY-MM
func MonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// MonthKeyOf returns the month key of t in loc (time.Local when nil)
func MonthKeyOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return MonthKey(t.Year(), t.Month())
}

// CurrentMonth returns the current local calendar month
func CurrentMonth() string {
	return MonthKeyOf(Now(), time.Local)
}

// IsCurrentMonth reports whether key is the current local month
func IsCurrentMonth(key string) bool {
	return key == CurrentMonth()
}

// PreviousMonth returns the key of the month before key.
// Malformed keys are returned unchanged.
func PreviousMonth(key string) string {
	return shiftMonth(key, -1)
}

// NextMonth returns the key of the month after key.
// Malformed keys are returned unchanged.
func NextMonth(key string) string {
	return shiftMonth(key, 1)
}

func shiftMonth(key string, delta int) string {
	year, month, err := ParseMonthKey(key)
	if err != nil {
		return key
	}
	m := int(month) - 1 + delta
	year += m / 12
	m %= 12
	if m < 0 {
		m += 12
		year--
	}
	return MonthKey(year, time.Month(m+1))
}

// MonthBounds returns the half-open interval [start, end) covering the month
// in loc (time.Local when nil)
func MonthBounds(key string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	year, month, err := ParseMonthKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// FormatForDisplay renders a key as "January 2026"
func FormatForDisplay(key string) string {
	year, month, err := ParseMonthKey(key)
	if err != nil {
		return key
	}
	return fmt.Sprintf("%s %d", month.String(), year)
}

// MonthsBetween returns the ascending, inclusive sequence of keys from start
// to end. It is empty when start is after end.
func MonthsBetween(start, end string) []string {
	if !IsValidMonthKey(start) || !IsValidMonthKey(end) || start > end {
		return []string{}
	}
	months := []string{}
	for key := start; key <= end; key = NextMonth(key) {
		months = append(months, key)
	}
	return months
}

// LastNMonths returns n ascending keys ending at from
func LastNMonths(from string, n int) []string {
	if n <= 0 || !IsValidMonthKey(from) {
		return []string{}
	}
	months := make([]string, n)
	key := from
	for i := n - 1; i >= 0; i-- {
		months[i] = key
		key = PreviousMonth(key)
	}
	return months
}

// NextNMonths returns n ascending keys starting at from
func NextNMonths(from string, n int) []string {
	if n <= 0 || !IsValidMonthKey(from) {
		return []string{}
	}
	months := make([]string, n)
	key := from
	for i := 0; i < n; i++ {
		months[i] = key
		key = NextMonth(key)
	}
	return months
}

// FirstTrackedMonth returns the month of the chronologically earliest
// transaction, or the current month when there are none
func FirstTrackedMonth(transactions []*domain.Transaction, loc *time.Location) string {
	if len(transactions) == 0 {
		return CurrentMonth()
	}
	sorted := make([]*domain.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return MonthKeyOf(sorted[0].Timestamp, loc)
}
