package predict

import (
	"github.com/mrwolf/moodtrack/internal/mood"
	"github.com/mrwolf/moodtrack/internal/rules"
)

type sequence = [rules.SequenceLength]mood.Bucket

type pattern struct {
	name  string
	match func(s sequence) (mood.Bucket, float64, string, bool)
}

// Majority tier confidences
const (
	MajorityStrongConfidence = 0.75 // three or more of five
	MajorityWeakConfidence   = 0.66
	EveryOtherDayConfidence  = 0.65
)

// Evaluated in order; the first match wins
var cascade = []pattern{
	{"all_same", func(s sequence) (mood.Bucket, float64, string, bool) {
		ok := s[0] == s[1] && s[1] == s[2] && s[2] == s[3] && s[3] == s[4]
		return s[4], 1.0, "All past days same mood.", ok
	}},
	{"last_3_same", func(s sequence) (mood.Bucket, float64, string, bool) {
		ok := s[2] == s[3] && s[3] == s[4]
		return s[4], 1.0, "Last 3 days same mood.", ok
	}},
	{"last_2_repeating", func(s sequence) (mood.Bucket, float64, string, bool) {
		ok := s[0] == s[1] && s[1] == s[2] && s[3] == s[4] && s[2] != s[3]
		return s[4], 0.9, "Last 2 days repeating.", ok
	}},
	{"last_2_same", func(s sequence) (mood.Bucket, float64, string, bool) {
		return s[4], 0.8, "Last 2 days same mood.", s[3] == s[4]
	}},
	{"alternating", func(s sequence) (mood.Bucket, float64, string, bool) {
		ok := s[0] == s[2] && s[2] == s[4] && s[1] == s[3] && s[0] != s[1]
		return s[0], 0.7, "Alternate pattern.", ok
	}},
	{"start_end_same", func(s sequence) (mood.Bucket, float64, string, bool) {
		return s[0], 0.8, "Start & end same mood.", s[0] == s[4]
	}},
	{"majority", majority},
	{"every_other_day", func(s sequence) (mood.Bucket, float64, string, bool) {
		return s[1], EveryOtherDayConfidence, "Every-other day pattern.", s[1] == s[3]
	}},
}

// majority matches when one bucket occurs strictly more often than any other
func majority(s sequence) (mood.Bucket, float64, string, bool) {
	var counts [mood.Bucket5 + 1]int
	for _, b := range s {
		if b.Valid() {
			counts[b]++
		}
	}

	best, top, runnerUp := mood.BucketUnknown, 0, 0
	for b := mood.Bucket1; b <= mood.Bucket5; b++ {
		switch n := counts[b]; {
		case n > top:
			best, runnerUp, top = b, top, n
		case n > runnerUp:
			runnerUp = n
		}
	}
	if top == 0 || top == runnerUp {
		return mood.BucketUnknown, 0, "", false
	}
	if top >= 3 {
		return best, MajorityStrongConfidence, "Majority in last 5", true
	}
	return best, MajorityWeakConfidence, "Mixed pattern, predicted majority mood.", true
}
