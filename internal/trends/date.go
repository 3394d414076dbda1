package trends

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day with no zone attached. Values are always
// normalized, so they compare with ==.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the wall-clock date of t in loc
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Noon returns midday of d in loc, a safe instant for "this day" across DST
func (d Date) Noon(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, loc)
}

// AddDays moves the date by n calendar days
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight().AddDate(0, 0, n), time.UTC)
}

// Weekday returns the day of the week
func (d Date) Weekday() time.Weekday {
	return d.midnight().Weekday()
}

// Sub returns the number of days from o to d
func (d Date) Sub(o Date) int {
	return int(d.midnight().Sub(o.midnight()).Hours() / 24)
}

func (d Date) Before(o Date) bool {
	return d.Sub(o) < 0
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// StartOfWeek returns the most recent date on or before d that falls on start
func (d Date) StartOfWeek(start time.Weekday) Date {
	offset := (int(d.Weekday()) - int(start) + 7) % 7
	return d.AddDays(-offset)
}

// ISOWeek returns a "2026-W03" style label
func (d Date) ISOWeek() string {
	y, w := d.midnight().ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

// WeekLabel names the week beginning on start that contains d. The label is
// the ISO week of that week's fourth day, so every day of the week shares it.
func (d Date) WeekLabel(start time.Weekday) string {
	return d.StartOfWeek(start).AddDays(3).ISOWeek()
}

func (d Date) String() string {
	return d.midnight().Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
