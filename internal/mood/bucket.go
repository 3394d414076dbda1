package mood

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bucket is the coarse five-way grouping used for rule-table keys
type Bucket int

const (
	BucketUnknown Bucket = iota
	Bucket1              // happy, calm, excited, neutral, confused
	Bucket2              // sad, anxious
	Bucket3              // angry
	Bucket4              // tired
	Bucket5              // sick
)

var bucketOf = map[Category]Bucket{
	Happy:    Bucket1,
	Calm:     Bucket1,
	Excited:  Bucket1,
	Neutral:  Bucket1,
	Confused: Bucket1,
	Sad:      Bucket2,
	Anxious:  Bucket2,
	Angry:    Bucket3,
	Tired:    Bucket4,
	Sick:     Bucket5,
}

// Each bucket is displayed using one category
var representative = map[Bucket]Category{
	Bucket1: Happy,
	Bucket2: Sad,
	Bucket3: Angry,
	Bucket4: Tired,
	Bucket5: Sick,
}

// BucketOf maps a category to its bucket
func BucketOf(c Category) Bucket {
	if b, ok := bucketOf[c]; ok {
		return b
	}
	return Bucket1
}

// Valid reports whether b is one of Mood 1..Mood 5
func (b Bucket) Valid() bool {
	return b >= Bucket1 && b <= Bucket5
}

// Representative returns the canonical mood shown for a bucket
func (b Bucket) Representative() CanonicalMood {
	if c, ok := representative[b]; ok {
		return Of(c)
	}
	return Default()
}

func (b Bucket) String() string {
	if !b.Valid() {
		return "unknown"
	}
	return fmt.Sprintf("Mood %d", int(b))
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Bucket) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bucket must be a string: %w", err)
	}
	parsed, ok := ParseBucket(s)
	if !ok {
		return fmt.Errorf("unknown bucket %q", s)
	}
	*b = parsed
	return nil
}

// ParseBucket accepts "Mood 3", "mood3" or a bare "3"
func ParseBucket(s string) (Bucket, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "mood")
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return BucketUnknown, false
	}
	b := Bucket(n)
	if !b.Valid() {
		return BucketUnknown, false
	}
	return b, true
}

// ParseCell resolves a tabular cell to a bucket: either an explicit bucket
// name or any label Lookup recognises.
func ParseCell(s string) (Bucket, bool) {
	if b, ok := ParseBucket(s); ok {
		return b, true
	}
	if m, ok := Lookup(s); ok {
		return BucketOf(m.Category), true
	}
	return BucketUnknown, false
}
