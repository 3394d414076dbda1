package models

import (
	"github.com/mrwolf/moodtrack/internal/predict"
	"github.com/mrwolf/moodtrack/internal/trends"
)

// ObservationRequest records one mood for the authenticated user.
// ObservedAt may be epoch seconds, epoch milliseconds or an ISO-8601
// string; omitted means now.
type ObservationRequest struct {
	Label      string `json:"label" validate:"required,max=64"`
	ObservedAt any    `json:"observed_at,omitempty"`
	Source     string `json:"source,omitempty" validate:"omitempty,max=32"`
}

// ObservationResponse is returned after storing an observation
type ObservationResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Category string `json:"category"` // what the label normalized to
}

// MoodEvent is a mood detection published on the ingest topic
type MoodEvent struct {
	User       string `json:"user" validate:"required,max=64"`
	Label      string `json:"label" validate:"required,max=64"`
	ObservedAt any    `json:"observed_at,omitempty"`
	Source     string `json:"source,omitempty" validate:"omitempty,max=32"`
}

// DaysResponse is returned by the days endpoint
type DaysResponse struct {
	User string           `json:"user"`
	Days []trends.DayMood `json:"days"`
}

// WeeksResponse is returned by the weeks endpoint
type WeeksResponse struct {
	User      string              `json:"user"`
	WeekStart string              `json:"week_start"`
	Weeks     []trends.WeekBucket `json:"weeks"`
}

// PredictRequest asks for a forecast from five labels, oldest first
type PredictRequest struct {
	Days []string `json:"days" validate:"len=5,dive,max=64"`
}

// PredictionResponse wraps a forecast for a target day
type PredictionResponse struct {
	Target string `json:"target"`
	predict.Prediction
	Inputs []trends.DayMood `json:"inputs"`
}

// StoredPrediction is a forecast read back from the store
type StoredPrediction struct {
	TargetDate string  `json:"target_date"`
	Predicted  string  `json:"predicted_mood"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	Source     string  `json:"source"`
	CreatedAt  string  `json:"created_at"`
}

// PredictionsResponse is returned by the stored predictions endpoint
type PredictionsResponse struct {
	Predictions []StoredPrediction `json:"predictions"`
}

// Report is a written weekly report
type Report struct {
	ReportID  string `json:"report_id"`
	Week      string `json:"week"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
}

// ReportsResponse is returned by the reports endpoint
type ReportsResponse struct {
	Reports []Report `json:"reports"`
}

// JobStatus is the last recorded run of one scheduled job
type JobStatus struct {
	Job         string  `json:"job"`
	Status      string  `json:"status"` // "never", "running", "completed" or "failed"
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// JobsResponse is returned by the jobs endpoint
type JobsResponse struct {
	Jobs []JobStatus `json:"jobs"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Vault    string `json:"vault"`
	Rules    int    `json:"rules"`
	Version  string `json:"version"`
}

// Status constants
const (
	StatusReceived = "received"
	StatusOK       = "ok"
)

// Ingest channels
const (
	ChannelAPI   = "api"
	ChannelKafka = "kafka"
)
