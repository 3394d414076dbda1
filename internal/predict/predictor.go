package predict

import (
	"fmt"

	"github.com/mrwolf/moodtrack/internal/mood"
	"github.com/mrwolf/moodtrack/internal/rules"
)

// Source values
const (
	SourceExactRule = "exact_rule"
	SourceFallback  = "fallback"
	sourcePattern   = "pattern:"
)

// Fallback tier constants
const (
	FallbackConfidence = 0.6
	FallbackRationale  = "Mixed pattern; momentum from yesterday"
)

// Prediction is the forecast for the day after the five input days
type Prediction struct {
	Predicted  mood.Bucket        `json:"predicted_mood"`
	Mood       mood.CanonicalMood `json:"mood"`
	Confidence float64            `json:"confidence"`
	Rationale  string             `json:"rationale"`
	Source     string             `json:"source"`
	// Refined is set when an authored table reason replaced the pattern text
	Refined bool `json:"refined,omitempty"`
}

// Predict forecasts day 6 from days 1..5 (oldest first). An exact sequence
// match in t wins; otherwise the first matching pattern in the cascade is
// used, and day 5 carries over when nothing matches. t may be nil.
//
// Callers fill missing days with mood.Default() before calling.
func Predict(t *rules.Table, last5 [rules.SequenceLength]mood.CanonicalMood) Prediction {
	var seq [rules.SequenceLength]mood.Bucket
	for i, m := range last5 {
		seq[i] = mood.BucketOf(m.Category)
	}

	if r, ok := t.Lookup(seq); ok {
		return newPrediction(r.Predicted, r.Confidence, r.Reason, SourceExactRule)
	}

	for _, p := range cascade {
		b, conf, reason, ok := p.match(seq)
		if !ok {
			continue
		}
		pred := newPrediction(b, conf, reason, sourcePattern+p.name)
		if authored, found := t.ReasonFor(reason, b); found {
			pred.Confidence = authored.Confidence
			pred.Rationale = authored.Reason
			pred.Refined = true
		}
		return pred
	}

	return newPrediction(seq[4], FallbackConfidence, FallbackRationale, SourceFallback)
}

func newPrediction(b mood.Bucket, conf float64, reason, source string) Prediction {
	return Prediction{
		Predicted:  b,
		Mood:       b.Representative(),
		Confidence: conf,
		Rationale:  reason,
		Source:     source,
	}
}

// FromLabels normalizes exactly five raw labels, oldest first. Blank labels
// stand for missing days and become neutral.
func FromLabels(labels []string) ([rules.SequenceLength]mood.CanonicalMood, error) {
	var out [rules.SequenceLength]mood.CanonicalMood
	if len(labels) != rules.SequenceLength {
		return out, fmt.Errorf("expected %d days, got %d", rules.SequenceLength, len(labels))
	}
	for i, l := range labels {
		out[i] = mood.Normalize(l)
	}
	return out, nil
}
