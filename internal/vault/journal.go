package vault

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrwolf/moodtrack/internal/predict"
)

// PredictionEntry is one line of the prediction journal
type PredictionEntry struct {
	TS         string   `json:"ts"`
	User       string   `json:"user"`
	Target     string   `json:"target"`
	Predicted  string   `json:"predicted"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Source     string   `json:"source"`
	Refined    bool     `json:"refined,omitempty"`
	Inputs     []string `json:"inputs"`
	Trigger    string   `json:"trigger"` // "schedule" or "api"
}

// NewPredictionEntry fills a journal entry from a prediction. inputs are
// the five input day categories, oldest first.
func NewPredictionEntry(user, target, trigger string, p predict.Prediction, inputs []string) PredictionEntry {
	return PredictionEntry{
		TS:         time.Now().UTC().Format(time.RFC3339),
		User:       user,
		Target:     target,
		Predicted:  p.Predicted.String(),
		Category:   string(p.Mood.Category),
		Confidence: p.Confidence,
		Rationale:  p.Rationale,
		Source:     p.Source,
		Refined:    p.Refined,
		Inputs:     inputs,
		Trigger:    trigger,
	}
}

func (v *Vault) journalPath() string {
	return filepath.Join(v.basePath, "Log", "predictions.jsonl")
}

// LogPrediction appends an entry to Log/predictions.jsonl
func (v *Vault) LogPrediction(entry PredictionEntry) error {
	v.journalLock.Lock()
	defer v.journalLock.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling prediction entry: %w", err)
	}

	if err := AppendLine(v.journalPath(), line); err != nil {
		return fmt.Errorf("appending prediction journal: %w", err)
	}

	return nil
}

// ReadPredictions returns journal entries for user in file order. An empty
// user returns every entry. Malformed lines are skipped.
func (v *Vault) ReadPredictions(user string) ([]PredictionEntry, error) {
	v.journalLock.Lock()
	defer v.journalLock.Unlock()

	f, err := os.Open(v.journalPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening prediction journal: %w", err)
	}
	defer f.Close()

	var entries []PredictionEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e PredictionEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if user == "" || e.User == user {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}
