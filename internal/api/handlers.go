package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mrwolf/moodtrack/internal/config"
	"github.com/mrwolf/moodtrack/internal/db"
	"github.com/mrwolf/moodtrack/internal/insights"
	"github.com/mrwolf/moodtrack/internal/models"
	"github.com/mrwolf/moodtrack/internal/mood"
	"github.com/mrwolf/moodtrack/internal/trends"
)

const version = "1.0.0"

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// JobRunner runs scheduled jobs on demand and reports their last runs
type JobRunner interface {
	GenerateWeeklyNow(user string) error
	JobNames() []string
	LastRun(user, job string) (*db.SchedulerRun, error)
}

var weekLabel = regexp.MustCompile(`^\d{4}-W\d{2}$`)

type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	svc       *insights.Service
	validate  *validator.Validate
	jobs      JobRunner
}

func NewHandlers(cfg *config.Config, database *db.DB, svc *insights.Service) *Handlers {
	return &Handlers{
		cfg:      cfg,
		db:       database,
		svc:      svc,
		validate: validator.New(),
	}
}

// SetJobRunner sets the scheduler behind /reports/weekly and /jobs
func (h *Handlers) SetJobRunner(j JobRunner) {
	h.jobs = j
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:   models.StatusOK,
		Database: h.checkDatabase(),
		Vault:    h.checkVault(),
		Rules:    h.svc.Rules().Len(),
		Version:  version,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkDatabase() string {
	if err := h.svc.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) checkVault() string {
	info, err := os.Stat(h.cfg.VaultPath)
	if err != nil {
		return "error: " + err.Error()
	}
	if !info.IsDir() {
		return "error: not a directory"
	}
	return "writable"
}

// decode reads a JSON body into v and validates its struct tags
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid field: "+verrs[0].Field(), "VALIDATION_FAILED")
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_FAILED")
		return false
	}
	return true
}

// Observe handles POST /observations
func (h *Handlers) Observe(w http.ResponseWriter, r *http.Request) {
	var req models.ObservationRequest
	if !h.decode(w, r, &req) {
		return
	}

	user := GetUser(r)
	observedAt := any(h.svc.Now().UTC().Format(time.RFC3339Nano))
	if req.ObservedAt != nil {
		stored, ok := trends.StorageForm(req.ObservedAt)
		if !ok {
			writeError(w, http.StatusBadRequest, "observed_at is not a readable timestamp", "INVALID_TIMESTAMP")
			return
		}
		observedAt = stored
	}
	source := req.Source
	if source == "" {
		source = models.ChannelAPI
	}

	id := "obs_" + uuid.NewString()
	if err := h.db.InsertObservation(id, user, req.Label, observedAt, source); err != nil {
		log.Printf("Failed to store observation %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to store observation", "DB_ERROR")
		return
	}
	h.svc.ObservationIngested(models.ChannelAPI)

	writeJSON(w, http.StatusCreated, models.ObservationResponse{
		ID:       id,
		Status:   models.StatusReceived,
		Category: string(mood.Normalize(req.Label).Category),
	})
}

// queryInt reads an optional positive integer query parameter bounded by max
func queryInt(r *http.Request, name string, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, errors.New(name + " must be between 1 and " + strconv.Itoa(max))
	}
	return n, nil
}

// Days handles GET /days?window=N
func (h *Handlers) Days(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window", config.MaxWindowDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAM")
		return
	}

	user := GetUser(r)
	days, err := h.svc.Days(user, window)
	if err != nil {
		log.Printf("Failed to collapse days for %s: %v", user, err)
		writeError(w, http.StatusInternalServerError, "failed to load observations", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, models.DaysResponse{User: user, Days: days})
}

// Weeks handles GET /weeks?weeks=N
func (h *Handlers) Weeks(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "weeks", config.MaxWeeks)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAM")
		return
	}

	user := GetUser(r)
	weeks, err := h.svc.Weeks(user, count)
	if err != nil {
		log.Printf("Failed to aggregate weeks for %s: %v", user, err)
		writeError(w, http.StatusInternalServerError, "failed to load observations", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, models.WeeksResponse{
		User:      user,
		WeekStart: h.cfg.FirstWeekday().String(),
		Weeks:     weeks,
	})
}

// Prediction handles GET /prediction?target=YYYY-MM-DD
func (h *Handlers) Prediction(w http.ResponseWriter, r *http.Request) {
	var target trends.Date
	if raw := r.URL.Query().Get("target"); raw != "" {
		d, err := trends.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "target must be YYYY-MM-DD", "INVALID_PARAM")
			return
		}
		target = d
	}

	user := GetUser(r)
	fc, err := h.svc.Predict(user, target)
	if err != nil {
		log.Printf("Failed to predict for %s: %v", user, err)
		writeError(w, http.StatusInternalServerError, "failed to load observations", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, models.PredictionResponse{
		Target:     fc.Target.String(),
		Prediction: fc.Prediction,
		Inputs:     fc.Inputs,
	})
}

// Predict handles POST /predict, a stateless forecast from five labels
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.PredictLabels(req.Days)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_BODY")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Predictions handles GET /predictions
func (h *Handlers) Predictions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 365)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAM")
		return
	}
	if limit == 0 {
		limit = 30
	}

	records, err := h.db.GetPredictions(GetUser(r), limit)
	if err != nil {
		log.Printf("Failed to get predictions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load predictions", "DB_ERROR")
		return
	}

	resp := models.PredictionsResponse{Predictions: make([]models.StoredPrediction, 0, len(records))}
	for _, p := range records {
		resp.Predictions = append(resp.Predictions, models.StoredPrediction{
			TargetDate: p.TargetDate,
			Predicted:  mood.Bucket(p.Bucket).String(),
			Confidence: p.Confidence,
			Rationale:  p.Rationale,
			Source:     p.Source,
			CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reports handles GET /reports
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	records, err := h.db.GetReports(GetUser(r))
	if err != nil {
		log.Printf("Failed to get reports: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load reports", "DB_ERROR")
		return
	}

	resp := models.ReportsResponse{Reports: make([]models.Report, 0, len(records))}
	for _, rec := range records {
		resp.Reports = append(resp.Reports, models.Report{
			ReportID:  rec.ReportID,
			Week:      rec.Week,
			Path:      rec.FilePath,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Report handles GET /reports/{week}, returning the report markdown
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	week := chi.URLParam(r, "week")
	if !weekLabel.MatchString(week) {
		writeError(w, http.StatusBadRequest, "week must look like 2026-W03", "INVALID_PARAM")
		return
	}

	content, err := h.svc.ReadWeeklyReport(GetUser(r), week)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "report not found", "NOT_FOUND")
		return
	}
	if err != nil {
		log.Printf("Failed to read report %s: %v", week, err)
		writeError(w, http.StatusInternalServerError, "failed to read report", "VAULT_ERROR")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

// Jobs handles GET /jobs, listing the last run of every scheduled job
func (h *Handlers) Jobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured", "NOT_CONFIGURED")
		return
	}

	user := GetUser(r)
	resp := models.JobsResponse{Jobs: []models.JobStatus{}}
	for _, name := range h.jobs.JobNames() {
		run, err := h.jobs.LastRun(user, name)
		if err != nil {
			log.Printf("Failed to get last %s run: %v", name, err)
			writeError(w, http.StatusInternalServerError, "failed to load job runs", "DB_ERROR")
			return
		}
		status := models.JobStatus{Job: name, Status: "never"}
		if run != nil {
			started := run.StartedAt.UTC().Format(time.RFC3339)
			status.Status = run.Status
			status.StartedAt = &started
			status.Error = run.ErrorMessage
			if run.CompletedAt != nil {
				completed := run.CompletedAt.UTC().Format(time.RFC3339)
				status.CompletedAt = &completed
			}
		}
		resp.Jobs = append(resp.Jobs, status)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GenerateWeekly handles POST /reports/weekly, running the weekly job now
func (h *Handlers) GenerateWeekly(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "report generator not configured", "NOT_CONFIGURED")
		return
	}

	user := GetUser(r)
	log.Printf("Generating weekly report for %s on request", user)
	if err := h.jobs.GenerateWeeklyNow(user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "GENERATION_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": models.StatusOK,
		"user":   user,
		"type":   "weekly",
	})
}

// ReloadRules handles POST /rules/reload
func (h *Handlers) ReloadRules(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReloadRules()
	if err != nil {
		log.Printf("Rule reload failed: %v", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "RULES_RELOAD_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
