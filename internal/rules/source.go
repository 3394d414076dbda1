package rules

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

type column int

const (
	colDay1 column = iota
	colDay2
	colDay3
	colDay4
	colDay5
	colOutcome
	colPercent
	colReason
	colCount
)

// Header spellings after folding (lowercase, letters and digits only)
var headerAliases = map[string]column{
	"day1":           colDay1,
	"day2":           colDay2,
	"day3":           colDay3,
	"day4":           colDay4,
	"day5":           colDay5,
	"conclusionday6": colOutcome,
	"conclusion":     colOutcome,
	"day6":           colOutcome,
	"outcome":        colOutcome,
	"percentage":     colPercent,
	"percent":        colPercent,
	"pct":            colPercent,
	"confidence":     colPercent,
	"reason":         colReason,
	"reasons":        colReason,
	"rationale":      colReason,
}

func foldHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ErrMissingColumns is returned when the header lacks a day or conclusion column
var ErrMissingColumns = errors.New("rule source is missing required columns")

// ReadRows parses a CSV or tab-separated rule source. The first non-empty
// line is the header; column names are matched ignoring case, spacing and
// punctuation. Line numbers in the result are 1-based file lines.
func ReadRows(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("reading rule source: %w", err)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if sniffTabs(first) {
		cr.Comma = '\t'
	}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make([]int, colCount)
	for i := range index {
		index[i] = -1
	}
	for i, h := range header {
		if c, ok := headerAliases[foldHeader(h)]; ok && index[c] == -1 {
			index[c] = i
		}
	}
	var missing []string
	for c := colDay1; c <= colOutcome; c++ {
		if index[c] == -1 {
			missing = append(missing, columnName(c))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading rule source: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blank(record) {
			continue
		}

		cell := func(c column) string {
			i := index[c]
			if i < 0 || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := Row{
			Line:    line,
			Outcome: cell(colOutcome),
			Percent: cell(colPercent),
			Reason:  cell(colReason),
		}
		for d := 0; d < SequenceLength; d++ {
			row.Days[d] = cell(colDay1 + column(d))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile opens and parses a rule source file
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule source: %w", err)
	}
	defer f.Close()
	return ReadRows(f)
}

// CompileFile reads and compiles a rule source in one step
func CompileFile(path string) (*Table, Report, error) {
	rows, err := ReadFile(path)
	if err != nil {
		return nil, Report{}, err
	}
	t, report := Compile(rows)
	return t, report, nil
}

func sniffTabs(head []byte) bool {
	line := string(head)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.Count(line, "\t") > strings.Count(line, ",")
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func columnName(c column) string {
	if c == colOutcome {
		return "Conclusion Day 6"
	}
	return fmt.Sprintf("Day %d", int(c)+1)
}
