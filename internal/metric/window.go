package metric

import (
	"fmt"
	"strconv"
	"time"
)

// Range tokens besides plain day counts.
const (
	RangeToday = "TODAY"
	RangeMTD   = "MTD"
	RangeQTD   = "QTD"
	RangeYTD   = "YTD"
	RangeAll   = "ALL"
)

// Range is a selectable time range. Token is a day count ("30") or one of
// the calendar tokens.
type Range struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

// DefaultRanges is offered by value and trend metrics that declare none.
func DefaultRanges() []Range {
	return []Range{
		{Token: "30", Label: "30 Days"},
		{Token: "60", Label: "60 Days"},
		{Token: "365", Label: "365 Days"},
		{Token: RangeToday, Label: "Today"},
		{Token: RangeMTD, Label: "Month To Date"},
		{Token: RangeQTD, Label: "Quarter To Date"},
		{Token: RangeYTD, Label: "Year To Date"},
	}
}

// Window is the resolved time span of a range. Bounds are inclusive. The
// previous span is the comparison period of the same length.
type Window struct {
	Token     string
	Start     time.Time
	End       time.Time
	PrevStart time.Time
	PrevEnd   time.Time
	// All means the window has no lower bound.
	All bool
}

// HasPrevious reports whether the window has a comparison period.
func (w Window) HasPrevious() bool {
	return !w.All && !w.PrevStart.IsZero()
}

// Days returns the calendar days covered by the window, oldest first.
func (w Window) Days() []time.Time {
	if w.All {
		return nil
	}
	var days []time.Time
	for d := startOfDay(w.Start); !d.After(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Resolve computes the window for token relative to now in loc.
func Resolve(token string, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	w := Window{Token: token, End: now}

	switch token {
	case RangeAll:
		w.All = true
		return w, nil
	case RangeToday:
		w.Start = startOfDay(now)
		w.PrevStart = w.Start.AddDate(0, 0, -1)
		w.PrevEnd = w.Start.Add(-time.Nanosecond)
	case RangeMTD:
		w.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		w.PrevStart = w.Start.AddDate(0, -1, 0)
		w.PrevEnd = clampBefore(now.AddDate(0, -1, 0), w.Start)
	case RangeQTD:
		first := time.Month((int(now.Month())-1)/3*3 + 1)
		w.Start = time.Date(now.Year(), first, 1, 0, 0, 0, 0, loc)
		w.PrevStart = w.Start.AddDate(0, -3, 0)
		w.PrevEnd = clampBefore(now.AddDate(0, -3, 0), w.Start)
	case RangeYTD:
		w.Start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		w.PrevStart = w.Start.AddDate(-1, 0, 0)
		w.PrevEnd = clampBefore(now.AddDate(-1, 0, 0), w.Start)
	default:
		days, err := strconv.Atoi(token)
		if err != nil || days <= 0 {
			return Window{}, fmt.Errorf("unknown range %q", token)
		}
		w.Start = now.AddDate(0, 0, -days)
		w.PrevStart = w.Start.AddDate(0, 0, -days)
		w.PrevEnd = w.Start.Add(-time.Nanosecond)
	}
	return w, nil
}

// SelectedRange returns the requested token when it is one of ranges, else
// the first declared range. Metrics without ranges cover all time.
func SelectedRange(requested string, ranges []Range) string {
	if len(ranges) == 0 {
		return RangeAll
	}
	for _, r := range ranges {
		if r.Token == requested {
			return requested
		}
	}
	return ranges[0].Token
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// clampBefore keeps a previous-period end strictly before the current start;
// month arithmetic can overflow into the next month.
func clampBefore(t, limit time.Time) time.Time {
	if !t.Before(limit) {
		return limit.Add(-time.Nanosecond)
	}
	return t
}
