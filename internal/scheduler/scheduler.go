package scheduler

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/moodtrack/internal/db"
	"github.com/mrwolf/moodtrack/internal/insights"
	"github.com/mrwolf/moodtrack/internal/metrics"
)

// Job names, also used as scheduler_runs.job_type
const (
	JobNightlyForecast = "nightly-forecast"
	JobWeeklyReport    = "weekly-report"
	JobRulesRefresh    = "rules-refresh"
)

// TriggerSchedule marks forecasts recorded by the nightly job
const TriggerSchedule = "schedule"

// systemUser owns runs that are not per user
const systemUser = "system"

// Scheduler manages scheduled jobs
type Scheduler struct {
	scheduler gocron.Scheduler
	svc       *insights.Service
	db        *db.DB
	metrics   *metrics.Metrics
	weekStart time.Weekday
	users     []string
}

// Config holds scheduler configuration
type Config struct {
	Location  *time.Location
	WeekStart time.Weekday
	Users     []string // configured users; users seen only in the store are added per run
	Clock     clockwork.Clock
	// RefreshEvery is the rule source poll interval, 15 minutes when zero
	RefreshEvery time.Duration
}

// New creates a new scheduler
func New(svc *insights.Service, database *db.DB, m *metrics.Metrics, cfg Config) (*Scheduler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	opts := []gocron.SchedulerOption{gocron.WithLocation(loc)}
	if cfg.Clock != nil {
		opts = append(opts, gocron.WithClock(cfg.Clock))
	}

	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	sched := &Scheduler{
		scheduler: s,
		svc:       svc,
		db:        database,
		metrics:   m,
		weekStart: cfg.WeekStart,
		users:     cfg.Users,
	}
	if err := sched.register(cfg.RefreshEvery); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Scheduler) register(refreshEvery time.Duration) error {
	if refreshEvery <= 0 {
		refreshEvery = 15 * time.Minute
	}

	// Today's forecast just after midnight, once yesterday is complete
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(s.forecastAll),
		gocron.WithName(JobNightlyForecast),
	)
	if err != nil {
		return err
	}

	// Weekly report on the first day of the week at 08:00
	_, err = s.scheduler.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(s.weekStart), gocron.NewAtTimes(gocron.NewAtTime(8, 0, 0))),
		gocron.NewTask(s.reportAll),
		gocron.WithName(JobWeeklyReport),
	)
	if err != nil {
		return err
	}

	_, err = s.scheduler.NewJob(
		gocron.DurationJob(refreshEvery),
		gocron.NewTask(s.refreshRules),
		gocron.WithName(JobRulesRefresh),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Printf("Scheduler started with jobs: %s", strings.Join(s.JobNames(), ", "))
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// JobNames lists the registered jobs, sorted
func (s *Scheduler) JobNames() []string {
	var names []string
	for _, j := range s.scheduler.Jobs() {
		names = append(names, j.Name())
	}
	sort.Strings(names)
	return names
}

// allUsers merges configured users with those that have stored observations
func (s *Scheduler) allUsers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, u := range s.users {
		add(u)
	}
	stored, err := s.svc.Users()
	if err != nil {
		log.Printf("Error listing users: %v", err)
	}
	for _, u := range stored {
		add(u)
	}
	sort.Strings(out)
	return out
}

// track records a run in scheduler_runs and the job counter
func (s *Scheduler) track(user, job string, fn func() error) error {
	runID, err := s.db.StartSchedulerRun(user, job)
	if err != nil {
		log.Printf("Error recording %s run for %s: %v", job, user, err)
	}

	jobErr := fn()

	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
		log.Printf("Job %s failed for %s: %v", job, user, jobErr)
	}
	if runID != 0 {
		if err := s.db.CompleteSchedulerRun(runID, errMsg); err != nil {
			log.Printf("Error completing %s run %d: %v", job, runID, err)
		}
	}
	s.metrics.JobRun(job, jobErr != nil)
	return jobErr
}

func (s *Scheduler) forecastAll() {
	log.Println("Running nightly forecast...")
	for _, user := range s.allUsers() {
		s.ForecastNow(user)
	}
}

// ForecastNow predicts today for user from the five days before it and
// records the result
func (s *Scheduler) ForecastNow(user string) error {
	return s.track(user, JobNightlyForecast, func() error {
		f, err := s.svc.Predict(user, s.svc.Today())
		if err != nil {
			return err
		}
		if err := s.svc.Record(f, TriggerSchedule); err != nil {
			return err
		}
		log.Printf("Forecast for %s on %s: %s (%.2f, %s)",
			user, f.Target, f.Prediction.Predicted, f.Prediction.Confidence, f.Prediction.Source)
		return nil
	})
}

func (s *Scheduler) reportAll() {
	log.Println("Running weekly report generation...")
	for _, user := range s.allUsers() {
		s.GenerateWeeklyNow(user)
	}
}

// GenerateWeeklyNow writes user's weekly report immediately
func (s *Scheduler) GenerateWeeklyNow(user string) error {
	return s.track(user, JobWeeklyReport, func() error {
		path, err := s.svc.WriteWeeklyReport(user)
		if err != nil {
			return fmt.Errorf("writing weekly report: %w", err)
		}
		log.Printf("Generated weekly report for %s: %s", user, path)
		return nil
	})
}

func (s *Scheduler) refreshRules() {
	s.RefreshRulesNow()
}

// RefreshRulesNow recompiles the rule source if it changed
func (s *Scheduler) RefreshRulesNow() error {
	return s.track(systemUser, JobRulesRefresh, func() error {
		res, err := s.svc.RefreshRules()
		if err != nil {
			return err
		}
		if !res.Unchanged {
			log.Printf("Rule table refreshed: %d rules", res.Rules)
		}
		return nil
	})
}

// LastRun returns the most recent recorded run of job for user. Rule
// refreshes are not per user and are looked up under the system user.
func (s *Scheduler) LastRun(user, job string) (*db.SchedulerRun, error) {
	if job == JobRulesRefresh {
		user = systemUser
	}
	return s.db.GetLastSchedulerRun(user, job)
}
