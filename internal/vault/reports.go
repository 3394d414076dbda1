package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrwolf/moodtrack/internal/predict"
	"github.com/mrwolf/moodtrack/internal/trends"
)

// WeeklyReport is the markdown summary written after each week closes
type WeeklyReport struct {
	ID    string
	User  string
	Week  string // "2026-W03"
	Weeks []trends.WeekBucket
	// Forecast for the coming day, if one was made
	Forecast *predict.Prediction
}

// ReportPath returns the vault-relative path of a user's weekly report
func ReportPath(week, user string) string {
	return filepath.Join("Reports", "Weekly", week+"_"+user+".md")
}

// WriteReport writes a weekly report, replacing any earlier version for the
// same week. Returns the vault-relative path.
func (v *Vault) WriteReport(r WeeklyReport) (string, error) {
	if r.Week == "" || r.User == "" {
		return "", fmt.Errorf("report needs a week and a user")
	}
	relPath := ReportPath(r.Week, r.User)
	fullPath := filepath.Join(v.basePath, relPath)

	if err := WriteFileAtomic(fullPath, []byte(buildReportContent(r))); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	return relPath, nil
}

func buildReportContent(r WeeklyReport) string {
	var sb strings.Builder

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("id: %s\n", r.ID))
	sb.WriteString("type: weekly\n")
	sb.WriteString(fmt.Sprintf("week: %s\n", r.Week))
	sb.WriteString(fmt.Sprintf("user: %s\n", r.User))
	sb.WriteString(fmt.Sprintf("created: %s\n", time.Now().UTC().Format(time.RFC3339)))
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("# Mood report %s\n\n", r.Week))

	if len(r.Weeks) == 0 {
		sb.WriteString("No mood data yet.\n")
	} else {
		sb.WriteString("| Week of | Days | Dominant | Confidence |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, w := range r.Weeks {
			dominant := "no clear mood"
			if w.Dominant != nil {
				dominant = w.Dominant.Symbol + " " + w.Dominant.String()
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d%% |\n",
				w.WeekStart, daySymbols(w.Days), dominant, w.ConfidencePercent))
		}
	}

	if r.Forecast != nil {
		sb.WriteString("\n## Forecast\n\n")
		sb.WriteString(fmt.Sprintf("%s %s (%s), %.0f%% confidence. %s\n",
			r.Forecast.Mood.Symbol, r.Forecast.Mood, r.Forecast.Predicted, r.Forecast.Confidence*100, r.Forecast.Rationale))
	}

	return sb.String()
}

// daySymbols renders a week as its day symbols, "·" for days without a mood
func daySymbols(days [trends.DaysPerWeek]trends.DayMood) string {
	var sb strings.Builder
	for i, d := range days {
		if i > 0 {
			sb.WriteString(" ")
		}
		if d.Mood == nil {
			sb.WriteString("·")
			continue
		}
		sb.WriteString(d.Mood.Symbol)
	}
	return sb.String()
}

// ReadReport returns the content of a user's weekly report
func (v *Vault) ReadReport(week, user string) (string, error) {
	content, err := os.ReadFile(filepath.Join(v.basePath, ReportPath(week, user)))
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}
	return string(content), nil
}
