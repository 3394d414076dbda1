package insights

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/moodtrack/internal/db"
	"github.com/mrwolf/moodtrack/internal/metrics"
	"github.com/mrwolf/moodtrack/internal/mood"
	"github.com/mrwolf/moodtrack/internal/predict"
	"github.com/mrwolf/moodtrack/internal/rules"
	"github.com/mrwolf/moodtrack/internal/trends"
	"github.com/mrwolf/moodtrack/internal/vault"
)

// observationLimit caps how many stored rows feed one window; a 35-day
// window at a few moods a day stays well under it.
const observationLimit = 5000

// Options configures a Service
type Options struct {
	Location    *time.Location
	WeekStart   time.Weekday
	WindowDays  int
	WeeksCount  int
	RulesSource string // authored CSV/TSV, optional
	RulesPath   string // compiled JSON
}

// Service reads observations from the store and runs them through the
// engine. The active rule table is swapped atomically on reload.
type Service struct {
	db      *db.DB
	vault   *vault.Vault
	clock   clockwork.Clock
	metrics *metrics.Metrics
	opts    Options

	table atomic.Pointer[rules.Table]

	reloadMu    sync.Mutex // one compile at a time
	sourceMTime time.Time
}

func NewService(database *db.DB, v *vault.Vault, clock clockwork.Clock, m *metrics.Metrics, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Service{db: database, vault: v, clock: clock, metrics: m, opts: opts}
	s.table.Store(&rules.Table{})
	return s
}

// Now is the service clock's current instant
func (s *Service) Now() time.Time { return s.clock.Now() }

// Today is the current civil date in the configured zone
func (s *Service) Today() trends.Date {
	return trends.DateOf(s.clock.Now(), s.opts.Location)
}

func (s *Service) Location() *time.Location { return s.opts.Location }

// Rules returns the active table, never nil
func (s *Service) Rules() *rules.Table {
	return s.table.Load()
}

// SetRules swaps in t as the active table
func (s *Service) SetRules(t *rules.Table) {
	if t == nil {
		t = &rules.Table{}
	}
	s.table.Store(t)
	s.metrics.RulesLoaded(t.Len())
}

func (s *Service) observations(user string) ([]trends.Observation, error) {
	records, err := s.db.GetObservations(user, observationLimit)
	if err != nil {
		return nil, fmt.Errorf("loading observations: %w", err)
	}
	out := make([]trends.Observation, 0, len(records))
	for _, r := range records {
		out = append(out, trends.Observation{
			RawLabel:   r.Label,
			ObservedAt: trends.CoerceInstant(r.ObservedAt),
		})
	}
	return out, nil
}

// Days collapses a user's observations into the last window days ending
// today. window <= 0 uses the configured default.
func (s *Service) Days(user string, window int) ([]trends.DayMood, error) {
	if window <= 0 {
		window = s.opts.WindowDays
	}
	obs, err := s.observations(user)
	if err != nil {
		return nil, err
	}
	return trends.CollapseToDays(obs, window, s.opts.Location, s.clock.Now()), nil
}

// Weeks returns weeksCount week buckets ending with the current week.
// weeksCount <= 0 uses the configured default.
func (s *Service) Weeks(user string, weeksCount int) ([]trends.WeekBucket, error) {
	if weeksCount <= 0 {
		weeksCount = s.opts.WeeksCount
	}
	today := s.Today()
	first := today.StartOfWeek(s.opts.WeekStart).AddDays(-trends.DaysPerWeek * (weeksCount - 1))

	obs, err := s.observations(user)
	if err != nil {
		return nil, err
	}
	days := trends.CollapseToDays(obs, today.Sub(first)+1, s.opts.Location, s.clock.Now())
	return trends.AggregateWeeks(days, weeksCount, s.opts.WeekStart, today), nil
}

// Forecast is a prediction for one target day and the days it was made from
type Forecast struct {
	User   string
	Target trends.Date
	// Inputs are the five days before Target, oldest first; nil moods were
	// read as neutral
	Inputs     []trends.DayMood
	Prediction predict.Prediction
}

// InputCategories lists the categories the predictor saw, oldest first
func (f Forecast) InputCategories() []string {
	out := make([]string, len(f.Inputs))
	for i, d := range f.Inputs {
		if d.Mood == nil {
			out[i] = string(mood.Default().Category)
			continue
		}
		out[i] = string(d.Mood.Category)
	}
	return out
}

// Predict forecasts target from the five days before it. A zero target
// means tomorrow.
func (s *Service) Predict(user string, target trends.Date) (Forecast, error) {
	if target.IsZero() {
		target = s.Today().AddDays(1)
	}
	obs, err := s.observations(user)
	if err != nil {
		return Forecast{}, err
	}

	last := target.AddDays(-1)
	inputs := trends.CollapseToDays(obs, rules.SequenceLength, s.opts.Location, last.Noon(s.opts.Location))

	var last5 [rules.SequenceLength]mood.CanonicalMood
	for i, d := range inputs {
		if d.Mood == nil {
			last5[i] = mood.Default()
			continue
		}
		last5[i] = *d.Mood
	}

	p := predict.Predict(s.Rules(), last5)
	s.metrics.Prediction(p.Source)

	return Forecast{User: user, Target: target, Inputs: inputs, Prediction: p}, nil
}

// PredictLabels runs the predictor on five raw labels, oldest first
func (s *Service) PredictLabels(labels []string) (predict.Prediction, error) {
	last5, err := predict.FromLabels(labels)
	if err != nil {
		return predict.Prediction{}, err
	}
	p := predict.Predict(s.Rules(), last5)
	s.metrics.Prediction(p.Source)
	return p, nil
}

// Record stores a forecast and appends it to the vault journal. trigger
// names what asked for it ("schedule" or "api").
func (s *Service) Record(f Forecast, trigger string) error {
	err := s.db.SavePrediction(db.PredictionRecord{
		User:       f.User,
		TargetDate: f.Target.String(),
		Bucket:     int(f.Prediction.Predicted),
		Confidence: f.Prediction.Confidence,
		Rationale:  f.Prediction.Rationale,
		Source:     f.Prediction.Source,
	})
	if err != nil {
		return fmt.Errorf("saving prediction: %w", err)
	}
	if s.vault == nil {
		return nil
	}
	entry := vault.NewPredictionEntry(f.User, f.Target.String(), trigger, f.Prediction, f.InputCategories())
	if err := s.vault.LogPrediction(entry); err != nil {
		return fmt.Errorf("journaling prediction: %w", err)
	}
	return nil
}

// WriteWeeklyReport writes the report for the week containing the current
// date, with a forecast for tomorrow. Returns the vault-relative path.
func (s *Service) WriteWeeklyReport(user string) (string, error) {
	if s.vault == nil {
		return "", errors.New("no vault configured")
	}
	weeks, err := s.Weeks(user, 0)
	if err != nil {
		return "", err
	}
	f, err := s.Predict(user, trends.Date{})
	if err != nil {
		return "", err
	}

	week := s.Today().WeekLabel(s.opts.WeekStart)
	reportID := fmt.Sprintf("rep_%s_%s", week, user)
	relPath, err := s.vault.WriteReport(vault.WeeklyReport{
		ID:       reportID,
		User:     user,
		Week:     week,
		Weeks:    weeks,
		Forecast: &f.Prediction,
	})
	if err != nil {
		return "", err
	}
	if err := s.db.SaveReport(reportID, user, week, relPath); err != nil {
		log.Printf("Failed to record report %s: %v", reportID, err)
	}
	return relPath, nil
}

// ReadWeeklyReport returns the markdown of a written weekly report
func (s *Service) ReadWeeklyReport(user, week string) (string, error) {
	if s.vault == nil {
		return "", errors.New("no vault configured")
	}
	return s.vault.ReadReport(week, user)
}

// ReloadResult describes a rule reload
type ReloadResult struct {
	From      string        `json:"from"` // "source" or "compiled"
	Path      string        `json:"path"`
	Rules     int           `json:"rules"`
	Report    *rules.Report `json:"report,omitempty"`
	Unchanged bool          `json:"unchanged,omitempty"`
}

// ReloadRules recompiles the authored source when one is configured and
// writes the compiled table; otherwise it reloads the compiled file. On
// failure the active table is left as it was.
func (s *Service) ReloadRules() (ReloadResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	return s.reloadLocked()
}

func (s *Service) reloadLocked() (ReloadResult, error) {
	if s.opts.RulesSource == "" {
		t, err := rules.Load(s.opts.RulesPath)
		if err != nil {
			return ReloadResult{}, err
		}
		s.SetRules(t)
		return ReloadResult{From: "compiled", Path: s.opts.RulesPath, Rules: t.Len()}, nil
	}

	info, err := os.Stat(s.opts.RulesSource)
	if err != nil {
		return ReloadResult{}, fmt.Errorf("checking rule source: %w", err)
	}
	t, report, err := rules.CompileFile(s.opts.RulesSource)
	if err != nil {
		return ReloadResult{}, err
	}
	if s.opts.RulesPath != "" {
		if err := vault.WriteRuleTable(s.opts.RulesPath, t); err != nil {
			log.Printf("Failed to write compiled rules: %v", err)
		}
	}
	s.table.Store(t)
	s.sourceMTime = info.ModTime()
	s.metrics.RulesCompiled(report.Skipped, report.Duplicates, t.Len())

	log.Printf("Compiled %d rules from %s (%d skipped, %d duplicates)",
		report.Compiled, s.opts.RulesSource, report.Skipped, report.Duplicates)
	return ReloadResult{From: "source", Path: s.opts.RulesSource, Rules: t.Len(), Report: &report}, nil
}

// RefreshRules recompiles only when the source file changed since the last
// compile. Without a source it does nothing.
func (s *Service) RefreshRules() (ReloadResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.opts.RulesSource == "" {
		return ReloadResult{Unchanged: true, Rules: s.Rules().Len()}, nil
	}
	info, err := os.Stat(s.opts.RulesSource)
	if err != nil {
		return ReloadResult{}, fmt.Errorf("checking rule source: %w", err)
	}
	if info.ModTime().Equal(s.sourceMTime) {
		return ReloadResult{From: "source", Path: s.opts.RulesSource, Rules: s.Rules().Len(), Unchanged: true}, nil
	}
	return s.reloadLocked()
}

// LoadRules is the startup load: a compile from source when one is
// configured, else the compiled table. Failures leave an empty table and
// are logged.
func (s *Service) LoadRules() {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	switch {
	case s.opts.RulesSource != "":
		if _, err := s.reloadLocked(); err != nil {
			log.Printf("Failed to compile rules, predicting from patterns only: %v", err)
		}
	case s.opts.RulesPath != "" && vault.FileExists(s.opts.RulesPath):
		t, err := rules.Load(s.opts.RulesPath)
		if err != nil {
			log.Printf("Failed to load compiled rules, predicting from patterns only: %v", err)
			return
		}
		s.SetRules(t)
		log.Printf("Loaded %d rules from %s", t.Len(), s.opts.RulesPath)
	default:
		log.Printf("No rule table found, predicting from patterns only")
	}
}

// ObservationIngested counts a stored observation by channel
func (s *Service) ObservationIngested(channel string) {
	s.metrics.ObservationIngested(channel)
}

// Users returns every user with stored observations
func (s *Service) Users() ([]string, error) {
	return s.db.GetUsers()
}

// Ping checks the store
func (s *Service) Ping() error {
	return s.db.Ping()
}
