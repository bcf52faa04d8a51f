package filter

import (
	"time"

	"github.com/pitabwire/vitrine/model"
)

// Relative date periods offered by Select.DatePeriods.
const (
	PeriodToday       = "today"
	PeriodYesterday   = "yesterday"
	PeriodThisWeek    = "this_week"
	PeriodLastWeek    = "last_week"
	PeriodThisMonth   = "this_month"
	PeriodLastMonth   = "last_month"
	PeriodThisQuarter = "this_quarter"
	PeriodLastQuarter = "last_quarter"
	PeriodThisYear    = "this_year"
	PeriodLastYear    = "last_year"
	PeriodLast7Days   = "last_7_days"
	PeriodLast30Days  = "last_30_days"
)

var periodOptions = []model.OptionDescriptor{
	{Label: "Today", Value: PeriodToday},
	{Label: "Yesterday", Value: PeriodYesterday},
	{Label: "This Week", Value: PeriodThisWeek},
	{Label: "Last Week", Value: PeriodLastWeek},
	{Label: "This Month", Value: PeriodThisMonth},
	{Label: "Last Month", Value: PeriodLastMonth},
	{Label: "This Quarter", Value: PeriodThisQuarter},
	{Label: "Last Quarter", Value: PeriodLastQuarter},
	{Label: "This Year", Value: PeriodThisYear},
	{Label: "Last Year", Value: PeriodLastYear},
	{Label: "Last 7 Days", Value: PeriodLast7Days},
	{Label: "Last 30 Days", Value: PeriodLast30Days},
}

// PeriodBounds resolves a period to inclusive start and end instants
// relative to now. Weeks start on Monday.
func PeriodBounds(period string, now time.Time) (start, end time.Time, ok bool) {
	today := startOfDay(now)
	switch period {
	case PeriodToday:
		return today, endOfDay(today), true
	case PeriodYesterday:
		y := today.AddDate(0, 0, -1)
		return y, endOfDay(y), true
	case PeriodThisWeek:
		mon := startOfWeek(today)
		return mon, endOfDay(mon.AddDate(0, 0, 6)), true
	case PeriodLastWeek:
		mon := startOfWeek(today).AddDate(0, 0, -7)
		return mon, endOfDay(mon.AddDate(0, 0, 6)), true
	case PeriodThisMonth:
		first := startOfMonth(today)
		return first, first.AddDate(0, 1, 0).Add(-time.Nanosecond), true
	case PeriodLastMonth:
		first := startOfMonth(today).AddDate(0, -1, 0)
		return first, first.AddDate(0, 1, 0).Add(-time.Nanosecond), true
	case PeriodThisQuarter:
		first := startOfQuarter(today)
		return first, first.AddDate(0, 3, 0).Add(-time.Nanosecond), true
	case PeriodLastQuarter:
		first := startOfQuarter(today).AddDate(0, -3, 0)
		return first, first.AddDate(0, 3, 0).Add(-time.Nanosecond), true
	case PeriodThisYear:
		first := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
		return first, first.AddDate(1, 0, 0).Add(-time.Nanosecond), true
	case PeriodLastYear:
		first := time.Date(today.Year()-1, time.January, 1, 0, 0, 0, 0, today.Location())
		return first, first.AddDate(1, 0, 0).Add(-time.Nanosecond), true
	case PeriodLast7Days:
		return today.AddDate(0, 0, -6), endOfDay(today), true
	case PeriodLast30Days:
		return today.AddDate(0, 0, -29), endOfDay(today), true
	}
	return time.Time{}, time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfQuarter(t time.Time) time.Time {
	first := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), first, 1, 0, 0, 0, 0, t.Location())
}
