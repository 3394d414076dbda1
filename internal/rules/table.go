package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mrwolf/moodtrack/internal/mood"
)

// SequenceLength is the number of prior days in a rule key
const SequenceLength = 5

// Key is the five-day bucket sequence, serialized as "1|1|2|2|2"
type Key string

// KeyOf builds the lookup key for an ordered bucket sequence
func KeyOf(seq [SequenceLength]mood.Bucket) Key {
	parts := make([]string, SequenceLength)
	for i, b := range seq {
		parts[i] = strconv.Itoa(int(b))
	}
	return Key(strings.Join(parts, "|"))
}

// Rule is one compiled sequence rule
type Rule struct {
	Sequence   [SequenceLength]mood.Bucket `json:"sequence"`
	Predicted  mood.Bucket                 `json:"pred"`
	Confidence float64                     `json:"pct"`
	Reason     string                      `json:"reason,omitempty"`
	Row        int                         `json:"row"` // source line, used for stable ordering
}

// Table is an immutable set of compiled rules. The zero value and a nil
// *Table are both valid empty tables.
type Table struct {
	rules map[Key]Rule
	// rows in ascending source order, for reason lookups
	ordered []Rule
}

// NewTable builds a table from rules. Later rules with an already-seen key
// are ignored.
func NewTable(rs []Rule) *Table {
	t := &Table{rules: make(map[Key]Rule, len(rs))}
	for _, r := range rs {
		k := KeyOf(r.Sequence)
		if _, dup := t.rules[k]; dup {
			continue
		}
		t.rules[k] = r
		t.ordered = append(t.ordered, r)
	}
	sort.SliceStable(t.ordered, func(i, j int) bool {
		return t.ordered[i].Row < t.ordered[j].Row
	})
	return t
}

// Len returns the number of rules
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Lookup finds the rule for an exact bucket sequence
func (t *Table) Lookup(seq [SequenceLength]mood.Bucket) (Rule, bool) {
	if t == nil || t.rules == nil {
		return Rule{}, false
	}
	r, ok := t.rules[KeyOf(seq)]
	return r, ok
}

// ReasonFor finds the earliest rule predicting bucket whose authored reason
// mentions phrase. Matching ignores case and trailing punctuation.
func (t *Table) ReasonFor(phrase string, bucket mood.Bucket) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	needle := foldReason(phrase)
	if needle == "" {
		return Rule{}, false
	}
	for _, r := range t.ordered {
		if r.Predicted != bucket || r.Reason == "" {
			continue
		}
		if strings.Contains(foldReason(r.Reason), needle) {
			return r, true
		}
	}
	return Rule{}, false
}

func foldReason(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".!;: ")
}

// Rules returns a copy of the rules in source order
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// MarshalJSON writes the table as a key -> rule object. encoding/json sorts
// map keys, so output is byte-stable for a given rule set.
func (t *Table) MarshalJSON() ([]byte, error) {
	m := make(map[Key]Rule, t.Len())
	if t != nil {
		for k, r := range t.rules {
			m[k] = r
		}
	}
	return json.Marshal(m)
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var m map[Key]Rule
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding rule table: %w", err)
	}
	rs := make([]Rule, 0, len(m))
	for k, r := range m {
		if KeyOf(r.Sequence) != k {
			return fmt.Errorf("rule key %q does not match its sequence %q", k, KeyOf(r.Sequence))
		}
		for _, b := range r.Sequence {
			if !b.Valid() {
				return fmt.Errorf("rule %q has invalid sequence bucket", k)
			}
		}
		if !r.Predicted.Valid() {
			return fmt.Errorf("rule %q has invalid prediction", k)
		}
		if r.Confidence <= 0 || r.Confidence > 1 {
			return fmt.Errorf("rule %q has confidence %v outside (0, 1]", k, r.Confidence)
		}
		rs = append(rs, r)
	}
	// Map order is random; row then key keeps NewTable deterministic
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Row != rs[j].Row {
			return rs[i].Row < rs[j].Row
		}
		return KeyOf(rs[i].Sequence) < KeyOf(rs[j].Sequence)
	})
	*t = *NewTable(rs)
	return nil
}

// Load reads a compiled table from disk
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
