package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned when an observation id is already stored
var ErrDuplicate = errors.New("duplicate observation id")

// observed_at is declared ANY so producers can store epoch numbers or ISO
// strings as sent; readers coerce on the way out.
const schema = `
-- Raw mood observations
CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    user TEXT NOT NULL,
    label TEXT NOT NULL,
    observed_at ANY,
    source TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- Stored forecasts, one per user and target day
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user TEXT NOT NULL,
    target_date TEXT NOT NULL,
    bucket INTEGER NOT NULL,
    confidence REAL NOT NULL,
    rationale TEXT NOT NULL,
    source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(user, target_date)
);

-- Weekly report tracking
CREATE TABLE IF NOT EXISTS reports (
    report_id TEXT PRIMARY KEY,
    user TEXT NOT NULL,
    week TEXT NOT NULL,
    created_at TEXT NOT NULL,
    file_path TEXT NOT NULL
);

-- Scheduler job tracking per user
CREATE TABLE IF NOT EXISTS scheduler_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user TEXT NOT NULL,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_observations_user ON observations(user, created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user, target_date);
CREATE INDEX IF NOT EXISTS idx_reports_user ON reports(user, week);
CREATE INDEX IF NOT EXISTS idx_scheduler_user ON scheduler_runs(user, job_type);
`

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection is alive
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// ObservationRecord is a stored observation. ObservedAt holds whatever the
// driver returned for the column (int64, float64, string, []byte or nil).
type ObservationRecord struct {
	ID         string
	User       string
	Label      string
	ObservedAt any
	Source     string
	CreatedAt  time.Time
}

// InsertObservation stores one observation. observedAt is written as given.
func (db *DB) InsertObservation(id, user, label string, observedAt any, source string) error {
	_, err := db.conn.Exec(`
		INSERT INTO observations (id, user, label, observed_at, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, user, label, observedAt, source, time.Now().UTC().Format(time.RFC3339))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	return err
}

// GetObservations returns the most recent observations for a user, newest
// first. limit <= 0 means no limit.
func (db *DB) GetObservations(user string, limit int) ([]ObservationRecord, error) {
	query := `SELECT id, user, label, observed_at, source, created_at
		FROM observations WHERE user = ?
		ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{user}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []ObservationRecord
	for rows.Next() {
		var o ObservationRecord
		var createdStr string
		if err := rows.Scan(&o.ID, &o.User, &o.Label, &o.ObservedAt, &o.Source, &createdStr); err != nil {
			return nil, err
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// GetUsers returns every user with at least one observation
func (db *DB) GetUsers() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT user FROM observations ORDER BY user`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// PredictionRecord is a stored forecast
type PredictionRecord struct {
	ID         int64
	User       string
	TargetDate string
	Bucket     int
	Confidence float64
	Rationale  string
	Source     string
	CreatedAt  time.Time
}

// SavePrediction stores the forecast for a user's target day, replacing an
// earlier one for the same day.
func (db *DB) SavePrediction(p PredictionRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.conn.Exec(`
		INSERT INTO predictions (user, target_date, bucket, confidence, rationale, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user, target_date) DO UPDATE SET
			bucket = excluded.bucket,
			confidence = excluded.confidence,
			rationale = excluded.rationale,
			source = excluded.source,
			created_at = excluded.created_at
	`, p.User, p.TargetDate, p.Bucket, p.Confidence, p.Rationale, p.Source, now)
	return err
}

// GetPredictions returns a user's stored forecasts, latest target first
func (db *DB) GetPredictions(user string, limit int) ([]PredictionRecord, error) {
	query := `SELECT id, user, target_date, bucket, confidence, rationale, source, created_at
		FROM predictions WHERE user = ?
		ORDER BY target_date DESC`
	args := []interface{}{user}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predictions []PredictionRecord
	for rows.Next() {
		var p PredictionRecord
		var createdStr string
		if err := rows.Scan(&p.ID, &p.User, &p.TargetDate, &p.Bucket, &p.Confidence, &p.Rationale, &p.Source, &createdStr); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// ReportRecord tracks a written weekly report
type ReportRecord struct {
	ReportID  string
	User      string
	Week      string
	CreatedAt string
	FilePath  string
}

// SaveReport records a generated weekly report
func (db *DB) SaveReport(reportID, user, week, filePath string) error {
	_, err := db.conn.Exec(`
		INSERT INTO reports (report_id, user, week, created_at, file_path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET created_at = excluded.created_at, file_path = excluded.file_path
	`, reportID, user, week, time.Now().UTC().Format(time.RFC3339), filePath)
	return err
}

// GetReports returns a user's reports, newest week first
func (db *DB) GetReports(user string) ([]ReportRecord, error) {
	rows, err := db.conn.Query(`
		SELECT report_id, user, week, created_at, file_path
		FROM reports WHERE user = ?
		ORDER BY week DESC LIMIT 50
	`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []ReportRecord
	for rows.Next() {
		var r ReportRecord
		if err := rows.Scan(&r.ReportID, &r.User, &r.Week, &r.CreatedAt, &r.FilePath); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// SchedulerRun tracks a scheduler job execution
type SchedulerRun struct {
	ID           int64
	User         string
	JobType      string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// StartSchedulerRun records the start of a scheduler job
func (db *DB) StartSchedulerRun(user, jobType string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO scheduler_runs (user, job_type, status, started_at)
		VALUES (?, ?, 'running', ?)
	`, user, jobType, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteSchedulerRun marks a scheduler job as completed
func (db *DB) CompleteSchedulerRun(runID int64, errMsg string) error {
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}
	_, err := db.conn.Exec(`
		UPDATE scheduler_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, status, time.Now().UTC().Format(time.RFC3339Nano), errMsg, runID)
	return err
}

// GetLastSchedulerRun returns the last run for a user and job type
func (db *DB) GetLastSchedulerRun(user, jobType string) (*SchedulerRun, error) {
	var run SchedulerRun
	var startedStr string
	var completedStr, errMsg sql.NullString
	err := db.conn.QueryRow(`
		SELECT id, user, job_type, status, started_at, completed_at, error_message
		FROM scheduler_runs
		WHERE user = ? AND job_type = ?
		ORDER BY id DESC
		LIMIT 1
	`, user, jobType).Scan(&run.ID, &run.User, &run.JobType, &run.Status, &startedStr, &completedStr, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if completedStr.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedStr.String)
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}
