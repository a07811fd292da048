package monitoring

import (
	"fmt"
	"math"
	"time"

	"heartify/db"
)

// DaySummary aggregates one calendar day of readings.
type DaySummary struct {
	Date   string  `json:"date"`
	MaxBPM float64 `json:"maxBPM"`
	AvgBPM float64 `json:"avgBPM"`
	MinBPM float64 `json:"minBPM"`
}

// WeekSummary aggregates one week-of-month bucket of readings.
type WeekSummary struct {
	Week   string  `json:"week"`
	MaxBPM float64 `json:"maxBPM"`
	AvgBPM float64 `json:"avgBPM"`
	MinBPM float64 `json:"minBPM"`
}

type bucket struct {
	key   string
	max   float64
	sum   float64
	min   float64
	count int
}

func (b *bucket) add(r db.Reading) {
	b.max = math.Max(b.max, r.MaxBPM)
	b.sum += r.AvgBPM
	// A zero min means the bucket has not seen a usable value yet.
	if b.min == 0 {
		b.min = r.MinBPM
	} else {
		b.min = math.Min(b.min, r.MinBPM)
	}
	b.count++
}

func (b *bucket) avg() float64 {
	return math.Floor(b.sum/float64(b.count) + 0.5)
}

// groupReadings buckets readings by key, keeping first-seen order.
func groupReadings(readings []db.Reading, key func(db.Reading) string) []*bucket {
	index := make(map[string]*bucket)
	var order []*bucket
	for _, r := range readings {
		k := key(r)
		b, ok := index[k]
		if !ok {
			b = &bucket{key: k}
			index[k] = b
			order = append(order, b)
		}
		b.add(r)
	}
	return order
}

// DailyBuckets groups readings by calendar date in loc.
func DailyBuckets(readings []db.Reading, loc *time.Location) []DaySummary {
	groups := groupReadings(readings, func(r db.Reading) string {
		return r.CreatedAt.In(loc).Format(time.DateOnly)
	})
	out := make([]DaySummary, len(groups))
	for i, b := range groups {
		out[i] = DaySummary{Date: b.key, MaxBPM: b.max, AvgBPM: b.avg(), MinBPM: b.min}
	}
	return out
}

// WeeklyBuckets groups readings by week of month in loc.
func WeeklyBuckets(readings []db.Reading, loc *time.Location) []WeekSummary {
	groups := groupReadings(readings, func(r db.Reading) string {
		return WeekKey(r.CreatedAt.In(loc))
	})
	out := make([]WeekSummary, len(groups))
	for i, b := range groups {
		out[i] = WeekSummary{Week: b.key, MaxBPM: b.max, AvgBPM: b.avg(), MinBPM: b.min}
	}
	return out
}

// WeekKey returns "<year>-<month>-W<n>" where weeks start on Sunday and
// week 1 holds the first day of the month.
func WeekKey(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	week := (t.Day() + int(first.Weekday()) + 6) / 7
	return fmt.Sprintf("%d-%d-W%d", t.Year(), int(t.Month()), week)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
