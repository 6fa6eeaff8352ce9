// Package chart derives the accident histogram and stat cards shown on the
// overview page. Everything here is pure: callers pass the alerts and the
// reference time.
package chart

import (
	"fmt"
	"sort"
	"time"

	"roadguard/internal/models"
)

// Range selects the histogram window
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
	Range1y  Range = "1y"
	RangeAll Range = "all"
)

// DefaultRange is selected when the page first mounts
const DefaultRange = Range24h

// Ranges lists the selectable ranges in menu order
var Ranges = []Range{Range24h, Range7d, Range30d, Range1y, RangeAll}

const day = 24 * time.Hour

// ParseRange validates a range from a query string or flag
func ParseRange(s string) (Range, error) {
	if s == "" {
		return DefaultRange, nil
	}
	for _, r := range Ranges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown range %q (want one of 24h, 7d, 30d, 1y, all)", s)
}

// Title is the chart heading for the range
func (r Range) Title() string {
	switch r {
	case Range24h:
		return "Accident Trends (24h)"
	case Range7d:
		return "Accident Trends (7 Days)"
	case Range30d:
		return "Accident Trends (30 Days)"
	case Range1y:
		return "Accident Trends (1 Year)"
	case RangeAll:
		return "Accident Trends (All Time)"
	}
	return "Accident Trends"
}

// Label is the short menu text for the range
func (r Range) Label() string {
	switch r {
	case Range24h:
		return "Last 24 Hours"
	case Range7d:
		return "Last 7 Days"
	case Range30d:
		return "Last 30 Days"
	case Range1y:
		return "Last Year"
	case RangeAll:
		return "All Time"
	}
	return string(r)
}

// Bar is one histogram bucket
type Bar struct {
	Label string `json:"time"`
	Count int    `json:"count"`
}

// Bucketize counts alerts into the buckets of range r as seen at now.
// Alert times are moved into now's location before any calendar maths, so
// the caller picks the display zone by choosing now.Location().
func Bucketize(alerts []models.Alert, r Range, now time.Time) []Bar {
	loc := now.Location()

	switch r {
	case Range24h:
		bars := make([]Bar, 6)
		for i := range bars {
			bars[i].Label = fmt.Sprintf("%02d:00", i*4)
		}
		start := now.Add(-day)
		for _, a := range alerts {
			t := a.Time.In(loc)
			// Future-dated alerts still land in their hour-of-day bucket.
			if !t.Before(start) {
				bars[t.Hour()/4].Count++
			}
		}
		return bars

	case Range7d:
		bars := make([]Bar, 7)
		for i := range bars {
			bars[i].Label = now.AddDate(0, 0, i-6).Format("Jan 2")
		}
		start := now.Add(-7 * day)
		for _, a := range alerts {
			t := a.Time.In(loc)
			if t.Before(start) {
				continue
			}
			idx := 6 - floorDiv(now.Sub(t), day)
			if idx >= 0 && idx < 7 {
				bars[idx].Count++
			}
		}
		return bars

	case Range30d:
		bars := make([]Bar, 5)
		for i := range bars {
			bars[i].Label = fmt.Sprintf("Week %d", i+1)
		}
		start := now.Add(-30 * day)
		for _, a := range alerts {
			t := a.Time.In(loc)
			if t.Before(start) {
				continue
			}
			idx := 4 - floorDiv(now.Sub(t), 7*day)
			if idx >= 0 && idx < 5 {
				bars[idx].Count++
			}
		}
		return bars

	case Range1y:
		bars := make([]Bar, 12)
		for i := range bars {
			bars[i].Label = monthOffset(now, i-11).Format("Jan")
		}
		start := now.Add(-365 * day)
		for _, a := range alerts {
			t := a.Time.In(loc)
			if t.Before(start) {
				continue
			}
			idx := 11 - monthsBetween(now, t)
			if idx >= 0 && idx < 12 {
				bars[idx].Count++
			}
		}
		return bars

	case RangeAll:
		counts := make(map[time.Time]int)
		for _, a := range alerts {
			if a.Time.IsZero() {
				continue
			}
			t := a.Time.In(loc)
			counts[time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)]++
		}
		months := make([]time.Time, 0, len(counts))
		for m := range counts {
			months = append(months, m)
		}
		sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

		bars := make([]Bar, 0, len(months))
		for _, m := range months {
			bars = append(bars, Bar{Label: m.Format("Jan '06"), Count: counts[m]})
		}
		return bars
	}
	return nil
}

// floorDiv rounds toward negative infinity so slightly-future alerts get a
// negative offset instead of collapsing into today's bucket.
func floorDiv(d, unit time.Duration) int {
	q := d / unit
	if d%unit != 0 && d < 0 {
		q--
	}
	return int(q)
}

// monthsBetween counts calendar month boundaries from t to now
func monthsBetween(now, t time.Time) int {
	return (now.Year()-t.Year())*12 + int(now.Month()) - int(t.Month())
}

// monthOffset returns the first of the month n months from now. It avoids
// AddDate so that e.g. 31 March minus one month is February, not 3 March.
func monthOffset(now time.Time, n int) time.Time {
	return time.Date(now.Year(), now.Month()+time.Month(n), 1, 0, 0, 0, 0, now.Location())
}

// Stats are the four counters at the top of the overview
type Stats struct {
	Alerts        int `json:"alerts"`
	ActiveStreams int `json:"active_streams"`
	Cameras       int `json:"cameras"`
	Users         int `json:"users"`
}

// ComputeStats fills the stat cards from the latest snapshots
func ComputeStats(alerts []models.Alert, streams []models.Stream, cameras []models.Camera, users []models.User) Stats {
	s := Stats{
		Alerts:  len(alerts),
		Cameras: len(cameras),
		Users:   len(users),
	}
	for _, st := range streams {
		if st.IsActive {
			s.ActiveStreams++
		}
	}
	return s
}

// Recent returns at most n alerts from the head of the list, which the API
// already orders newest first.
func Recent(alerts []models.Alert, n int) []models.Alert {
	if len(alerts) <= n {
		return alerts
	}
	return alerts[:n]
}
