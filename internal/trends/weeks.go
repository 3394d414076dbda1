package trends

import (
	"math"
	"time"

	"github.com/mrwolf/moodtrack/internal/mood"
)

// DaysPerWeek is the fixed bucket width
const DaysPerWeek = 7

// WeekBucket summarises seven consecutive days starting on the configured weekday
type WeekBucket struct {
	WeekStart         Date                 `json:"week_start"`
	Days              [DaysPerWeek]DayMood `json:"daily_moods"`
	Dominant          *mood.CanonicalMood  `json:"dominant_mood"`
	DominantDays      int                  `json:"dominant_day_count"`
	ConfidencePercent int                  `json:"confidence_percent"`
}

// AggregateWeeks returns weeksCount buckets, oldest first, the last one
// containing today. Slots with no matching entry in days (including days
// after today) are left nil.
func AggregateWeeks(days []DayMood, weeksCount int, weekStart time.Weekday, today Date) []WeekBucket {
	if weeksCount <= 0 {
		return []WeekBucket{}
	}

	byDay := make(map[Date]*mood.CanonicalMood, len(days))
	for _, d := range days {
		byDay[d.Day] = d.Mood
	}

	current := today.StartOfWeek(weekStart)
	weeks := make([]WeekBucket, weeksCount)
	for w := range weeks {
		start := current.AddDays(-DaysPerWeek * (weeksCount - 1 - w))
		bucket := WeekBucket{WeekStart: start}
		for i := 0; i < DaysPerWeek; i++ {
			day := start.AddDays(i)
			bucket.Days[i] = DayMood{Day: day, Mood: byDay[day]}
		}
		bucket.Dominant, bucket.DominantDays = dominant(bucket.Days)
		bucket.ConfidencePercent = confidencePercent(bucket.DominantDays)
		weeks[w] = bucket
	}
	return weeks
}

// dominant picks the category with the highest day count. Ties go to the
// category seen on the latest day of the week.
func dominant(days [DaysPerWeek]DayMood) (*mood.CanonicalMood, int) {
	counts := make(map[mood.Category]int)
	for _, d := range days {
		if d.Mood != nil {
			counts[d.Mood.Category]++
		}
	}

	var best mood.Category
	bestCount := 0
	for i := DaysPerWeek - 1; i >= 0; i-- {
		if days[i].Mood == nil {
			continue
		}
		c := days[i].Mood.Category
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	if bestCount == 0 {
		return nil, 0
	}
	m := mood.Of(best)
	return &m, bestCount
}

func confidencePercent(n int) int {
	return int(math.Round(float64(n) / DaysPerWeek * 100))
}
