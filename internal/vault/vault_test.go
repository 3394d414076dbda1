package vault

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mrwolf/moodtrack/internal/mood"
	"github.com/mrwolf/moodtrack/internal/predict"
	"github.com/mrwolf/moodtrack/internal/rules"
	"github.com/mrwolf/moodtrack/internal/trends"
)

func TestWriteRuleTable(t *testing.T) {
	tmpDir := t.TempDir()
	v := NewVault(tmpDir)

	rows, err := rules.ReadRows(strings.NewReader("Day 1,Day 2,Day 3,Day 4,Day 5,Day 6,Percent,Reason\n" +
		"happy,happy,sad,sad,sad,sad,80,Low spell carrying on\n"))
	if err != nil {
		t.Fatalf("reading rows: %v", err)
	}
	table, _ := rules.Compile(rows)

	path, err := v.WriteRuleTable("", table)
	if err != nil {
		t.Fatalf("writing rule table: %v", err)
	}
	if path != filepath.Join(tmpDir, "Rules", "compiled.json") {
		t.Errorf("unexpected path %s", path)
	}

	loaded, err := rules.Load(path)
	if err != nil {
		t.Fatalf("loading rule table: %v", err)
	}
	r, ok := loaded.Lookup([rules.SequenceLength]mood.Bucket{1, 1, 2, 2, 2})
	if !ok || r.Confidence != 0.8 || r.Reason != "Low spell carrying on" {
		t.Errorf("unexpected rule after reload %+v (found %v)", r, ok)
	}

	entries, _ := os.ReadDir(filepath.Join(tmpDir, "Rules"))
	if len(entries) != 1 {
		t.Errorf("expected only compiled.json, found %d entries", len(entries))
	}
}

func TestLogPrediction(t *testing.T) {
	tmpDir := t.TempDir()
	v := NewVault(tmpDir)

	p := predict.Predict(nil, [rules.SequenceLength]mood.CanonicalMood{
		mood.Of(mood.Happy), mood.Of(mood.Happy), mood.Of(mood.Sad), mood.Of(mood.Sad), mood.Of(mood.Sad),
	})
	entry := NewPredictionEntry("wolf", "2026-01-16", "schedule", p, []string{"happy", "happy", "sad", "sad", "sad"})
	if err := v.LogPrediction(entry); err != nil {
		t.Fatalf("logging prediction: %v", err)
	}
	other := NewPredictionEntry("fox", "2026-01-16", "api", p, nil)
	if err := v.LogPrediction(other); err != nil {
		t.Fatalf("logging prediction: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "Log", "predictions.jsonl"))
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	str := string(content)
	if !strings.Contains(str, `"predicted":"Mood 2"`) {
		t.Error("missing predicted bucket in journal")
	}
	if !strings.Contains(str, `"source":"pattern:last_3_same"`) {
		t.Error("missing source in journal")
	}
	if strings.Count(str, "\n") != 2 {
		t.Errorf("expected 2 lines, got %q", str)
	}

	entries, err := v.ReadPredictions("wolf")
	if err != nil {
		t.Fatalf("reading predictions: %v", err)
	}
	if len(entries) != 1 || entries[0].Target != "2026-01-16" || entries[0].Category != "sad" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestLogPredictionConcurrent(t *testing.T) {
	v := NewVault(t.TempDir())
	p := predict.Prediction{Predicted: mood.Bucket1, Mood: mood.Of(mood.Happy), Confidence: 0.6, Source: predict.SourceFallback}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.LogPrediction(NewPredictionEntry("wolf", "2026-01-16", "api", p, nil))
		}()
	}
	wg.Wait()

	entries, err := v.ReadPredictions("")
	if err != nil {
		t.Fatalf("reading predictions: %v", err)
	}
	if len(entries) != 20 {
		t.Errorf("expected 20 intact entries, got %d", len(entries))
	}
}

func TestReadPredictionsMissingJournal(t *testing.T) {
	v := NewVault(t.TempDir())
	entries, err := v.ReadPredictions("wolf")
	if err != nil || entries != nil {
		t.Errorf("expected no entries and no error, got %v, %v", entries, err)
	}
}

func TestWriteReport(t *testing.T) {
	tmpDir := t.TempDir()
	v := NewVault(tmpDir)

	today := trends.Date{Year: 2026, Month: 1, Day: 15}
	sad := mood.Of(mood.Sad)
	days := []trends.DayMood{
		{Day: today.AddDays(-4), Mood: &sad},
		{Day: today.AddDays(-3), Mood: &sad},
		{Day: today.AddDays(-2)},
	}
	weeks := trends.AggregateWeeks(days, 1, 0, today)
	forecast := predict.Prediction{Predicted: mood.Bucket2, Mood: sad, Confidence: 1, Rationale: "Last 3 days same mood.", Source: "pattern:last_3_same"}

	relPath, err := v.WriteReport(WeeklyReport{
		ID:       "rep_2026-W03_wolf",
		User:     "wolf",
		Week:     today.ISOWeek(),
		Weeks:    weeks,
		Forecast: &forecast,
	})
	if err != nil {
		t.Fatalf("writing report: %v", err)
	}
	if relPath != filepath.Join("Reports", "Weekly", "2026-W03_wolf.md") {
		t.Errorf("unexpected path %s", relPath)
	}

	str, err := v.ReadReport("2026-W03", "wolf")
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	for _, want := range []string{"id: rep_2026-W03_wolf", "user: wolf", "😢 sad", "29%", "100% confidence", "·"} {
		if !strings.Contains(str, want) {
			t.Errorf("report missing %q:\n%s", want, str)
		}
	}
}

func TestWriteReportRequiresWeekAndUser(t *testing.T) {
	v := NewVault(t.TempDir())
	if _, err := v.WriteReport(WeeklyReport{User: "wolf"}); err == nil {
		t.Error("expected error without a week")
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.txt")
	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "two" {
		t.Errorf("expected replaced content, got %q", content)
	}
	if !FileExists(path) {
		t.Error("expected file to exist")
	}
}
