package trends

import (
	"time"

	"github.com/mrwolf/moodtrack/internal/mood"
)

// Observation is one raw mood data point. A zero ObservedAt marks a
// timestamp that could not be read; it never takes part in a day vote.
type Observation struct {
	RawLabel   string    `json:"raw_label"`
	ObservedAt time.Time `json:"observed_at"`
}

// DayMood is the representative mood of one calendar day. Mood is nil when
// the day had no observations or its vote tied.
type DayMood struct {
	Day  Date                `json:"day"`
	Mood *mood.CanonicalMood `json:"mood"`
}

// CollapseToDays returns exactly windowDays entries, oldest first, the last
// one being today's date in loc. Each day holds the majority mood of the
// observations whose wall-clock date in loc falls on it.
func CollapseToDays(observations []Observation, windowDays int, loc *time.Location, today time.Time) []DayMood {
	if windowDays <= 0 {
		return []DayMood{}
	}
	if loc == nil {
		loc = time.UTC
	}

	last := DateOf(today, loc)
	first := last.AddDays(-(windowDays - 1))

	// index -> category -> count
	votes := make([]map[mood.Category]int, windowDays)
	for _, o := range observations {
		if o.ObservedAt.IsZero() {
			continue
		}
		idx := DateOf(o.ObservedAt, loc).Sub(first)
		if idx < 0 || idx >= windowDays {
			continue
		}
		if votes[idx] == nil {
			votes[idx] = make(map[mood.Category]int)
		}
		votes[idx][mood.Normalize(o.RawLabel).Category]++
	}

	days := make([]DayMood, windowDays)
	for i := range days {
		days[i] = DayMood{Day: first.AddDays(i), Mood: majority(votes[i])}
	}
	return days
}

// majority returns the single most frequent category, or nil when the
// top count is shared or there are no votes.
func majority(counts map[mood.Category]int) *mood.CanonicalMood {
	var best mood.Category
	bestCount, tied := 0, false
	for c, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount, tied = c, n, false
		case n == bestCount:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return nil
	}
	m := mood.Of(best)
	return &m
}
