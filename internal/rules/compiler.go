package rules

import (
	"strconv"
	"strings"

	"github.com/mrwolf/moodtrack/internal/mood"
)

// DefaultConfidence applies when a row has no usable percentage
const DefaultConfidence = 0.66

// Row is one line of the tabular rule source
type Row struct {
	Line    int
	Days    [SequenceLength]string
	Outcome string
	Percent string
	Reason  string
}

// Report describes what the compiler kept and dropped
type Report struct {
	Rows           int   `json:"rows"`
	Compiled       int   `json:"compiled"`
	Skipped        int   `json:"skipped"`
	SkippedLines   []int `json:"skipped_lines,omitempty"`
	Duplicates     int   `json:"duplicates"`
	DuplicateLines []int `json:"duplicate_lines,omitempty"`
}

// Compile turns source rows into a rule table. Rows with an unreadable mood
// cell are skipped; when two rows share a sequence the first one wins.
func Compile(rows []Row) (*Table, Report) {
	report := Report{Rows: len(rows)}
	seen := make(map[Key]bool, len(rows))
	var compiled []Rule

	for _, row := range rows {
		rule, ok := compileRow(row)
		if !ok {
			report.Skipped++
			report.SkippedLines = append(report.SkippedLines, row.Line)
			continue
		}
		k := KeyOf(rule.Sequence)
		if seen[k] {
			report.Duplicates++
			report.DuplicateLines = append(report.DuplicateLines, row.Line)
			continue
		}
		seen[k] = true
		compiled = append(compiled, rule)
	}

	report.Compiled = len(compiled)
	return NewTable(compiled), report
}

func compileRow(row Row) (Rule, bool) {
	var rule Rule
	for i, cell := range row.Days {
		b, ok := mood.ParseCell(cell)
		if !ok {
			return Rule{}, false
		}
		rule.Sequence[i] = b
	}
	pred, ok := mood.ParseCell(row.Outcome)
	if !ok {
		return Rule{}, false
	}
	rule.Predicted = pred
	rule.Confidence = ParseConfidence(row.Percent)
	rule.Reason = strings.TrimSpace(row.Reason)
	rule.Row = row.Line
	return rule, true
}

// ParseConfidence reads "80", "80%", "0.8" or "" into a fraction in (0, 1]
func ParseConfidence(s string) float64 {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return DefaultConfidence
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return DefaultConfidence
	}
	if percent || v > 1 {
		v /= 100
	}
	if v > 1 {
		v = 1
	}
	return v
}
