package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/moodtrack/internal/config"
	"github.com/mrwolf/moodtrack/internal/db"
	"github.com/mrwolf/moodtrack/internal/insights"
	"github.com/mrwolf/moodtrack/internal/metrics"
	"github.com/mrwolf/moodtrack/internal/mood"
	"github.com/mrwolf/moodtrack/internal/rules"
	"github.com/mrwolf/moodtrack/internal/vault"
)

// 2026-01-15 is a Thursday
var testNow = time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)

type stubReports struct {
	users []string
	err   error
	runs  map[string]*db.SchedulerRun // keyed by user/job
}

func (s *stubReports) GenerateWeeklyNow(user string) error {
	s.users = append(s.users, user)
	return s.err
}

func (s *stubReports) JobNames() []string {
	return []string{"nightly-forecast", "weekly-report"}
}

func (s *stubReports) LastRun(user, job string) (*db.SchedulerRun, error) {
	return s.runs[user+"/"+job], nil
}

type testServer struct {
	*httptest.Server
	cfg     *config.Config
	db      *db.DB
	svc     *insights.Service
	reports *stubReports
}

func setupTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "moodtrack-api-test-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}

	vaultPath := filepath.Join(tmpDir, "vault")
	dbPath := filepath.Join(tmpDir, "test.db")
	os.MkdirAll(vaultPath, 0755)

	cfg := &config.Config{
		Port:       "0",
		VaultPath:  vaultPath,
		DBPath:     dbPath,
		Timezone:   "UTC",
		WeekStart:  "sunday",
		WeeksCount: 5,
		WindowDays: 35,
		RulesPath:  filepath.Join(vaultPath, "Rules", "compiled.json"),
		Tokens: map[string]string{
			"wolf": "test_wolf_token",
			"wife": "test_wife_token",
		},
	}

	database, err := db.Open(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("opening database: %v", err)
	}

	m := metrics.New()
	svc := insights.NewService(database, vault.NewVault(vaultPath), clockwork.NewFakeClockAt(testNow), m, insights.Options{
		Location:   time.UTC,
		WeekStart:  time.Sunday,
		WindowDays: cfg.WindowDays,
		WeeksCount: cfg.WeeksCount,
		RulesPath:  cfg.RulesPath,
	})

	reports := &stubReports{}
	router := NewRouter(cfg, database, svc, m, reports)
	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return &testServer{Server: server, cfg: cfg, db: database, svc: svc, reports: reports}, cleanup
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, s.URL+path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["database"] != "connected" {
		t.Errorf("expected database connected, got %v", body["database"])
	}
	if body["version"] != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %v", body["version"])
	}
}

func TestAuthRequired(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic test_wolf_token"},
		{"unknown token", "Bearer invalid_token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", server.URL+"/api/v1/days", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET /days: %v", err)
			}
			body := decodeBody(t, resp)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", resp.StatusCode)
			}
			if body["code"] != "UNAUTHORIZED" {
				t.Errorf("expected UNAUTHORIZED code, got %v", body["code"])
			}
		})
	}
}

func TestObserveAndCollapseDays(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	today := testNow.Add(-6 * time.Hour).Unix()
	for _, label := range []string{"happy", "😢", "Happy "} {
		resp := server.do(t, "POST", "/api/v1/observations", "test_wolf_token",
			`{"label":"`+label+`","observed_at":`+jsonInt(today)+`}`)
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
		}
		if !strings.HasPrefix(body["id"].(string), "obs_") {
			t.Errorf("expected obs_ id, got %v", body["id"])
		}
	}

	resp := server.do(t, "GET", "/api/v1/days?window=3", "test_wolf_token", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	days := body["days"].([]interface{})
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	last := days[2].(map[string]interface{})
	if last["day"] != "2026-01-15" {
		t.Errorf("expected last day 2026-01-15, got %v", last["day"])
	}
	m, ok := last["mood"].(map[string]interface{})
	if !ok || m["category"] != "happy" {
		t.Errorf("expected happy majority, got %v", last["mood"])
	}
	if days[0].(map[string]interface{})["mood"] != nil {
		t.Errorf("expected empty first day, got %v", days[0])
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestObservationsArePerUser(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := server.do(t, "POST", "/api/v1/observations", "test_wife_token", `{"label":"sick"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	records, err := server.db.GetObservations("wife", 0)
	if err != nil {
		t.Fatalf("reading observations: %v", err)
	}
	if len(records) != 1 || records[0].Source != "api" {
		t.Fatalf("expected one api observation for wife, got %+v", records)
	}

	others, _ := server.db.GetObservations("wolf", 0)
	if len(others) != 0 {
		t.Errorf("wolf should have no observations, got %d", len(others))
	}
}

func TestObserveValidation(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{label`, "INVALID_BODY"},
		{"missing label", `{"source":"watch"}`, "VALIDATION_FAILED"},
		{"label too long", `{"label":"` + strings.Repeat("x", 65) + `"}`, "VALIDATION_FAILED"},
		{"unreadable time", `{"label":"happy","observed_at":"yesterday-ish"}`, "INVALID_TIMESTAMP"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := server.do(t, "POST", "/api/v1/observations", "test_wolf_token", tc.body)
			body := decodeBody(t, resp)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			if body["code"] != tc.code {
				t.Errorf("expected code %s, got %v", tc.code, body["code"])
			}
		})
	}
}

func TestWindowParams(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/days", http.StatusOK},
		{"/api/v1/days?window=35", http.StatusOK},
		{"/api/v1/days?window=36", http.StatusBadRequest},
		{"/api/v1/days?window=0", http.StatusBadRequest},
		{"/api/v1/days?window=abc", http.StatusBadRequest},
		{"/api/v1/weeks?weeks=5", http.StatusOK},
		{"/api/v1/weeks?weeks=6", http.StatusBadRequest},
		{"/api/v1/prediction?target=2026-01-20", http.StatusOK},
		{"/api/v1/prediction?target=20/01/2026", http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			resp := server.do(t, "GET", tc.path, "test_wolf_token", "")
			resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Errorf("expected %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}

func TestWeeksEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := server.do(t, "GET", "/api/v1/weeks?weeks=2", "test_wolf_token", "")
	body := decodeBody(t, resp)

	if body["week_start"] != "Sunday" {
		t.Errorf("expected Sunday week start, got %v", body["week_start"])
	}
	weeks := body["weeks"].([]interface{})
	if len(weeks) != 2 {
		t.Fatalf("expected 2 weeks, got %d", len(weeks))
	}
	current := weeks[1].(map[string]interface{})
	if current["week_start"] != "2026-01-11" {
		t.Errorf("expected current week to start 2026-01-11, got %v", current["week_start"])
	}
	if current["dominant_mood"] != nil {
		t.Errorf("empty week should have no dominant mood, got %v", current["dominant_mood"])
	}
}

func TestPredictionFromStore(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	// Three sad days ending today
	for i := 0; i < 3; i++ {
		at := testNow.AddDate(0, 0, -i).Add(-4 * time.Hour)
		if err := server.db.InsertObservation(
			"obs_"+at.Format("20060102"), "wolf", "sad", at.Unix(), "test"); err != nil {
			t.Fatalf("inserting observation: %v", err)
		}
	}

	resp := server.do(t, "GET", "/api/v1/prediction", "test_wolf_token", "")
	body := decodeBody(t, resp)

	if body["target"] != "2026-01-16" {
		t.Errorf("expected tomorrow as target, got %v", body["target"])
	}
	if body["predicted_mood"] != "Mood 2" {
		t.Errorf("expected Mood 2, got %v", body["predicted_mood"])
	}
	if body["source"] != "pattern:last_3_same" {
		t.Errorf("expected pattern:last_3_same, got %v", body["source"])
	}
	if inputs := body["inputs"].([]interface{}); len(inputs) != 5 {
		t.Errorf("expected 5 inputs, got %d", len(inputs))
	}
}

func TestPredictStateless(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := server.do(t, "POST", "/api/v1/predict", "test_wolf_token",
		`{"days":["tired","tired","tired","tired","tired"]}`)
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["predicted_mood"] != "Mood 4" || body["confidence"] != 1.0 {
		t.Errorf("expected Mood 4 at 1.0, got %v at %v", body["predicted_mood"], body["confidence"])
	}

	resp = server.do(t, "POST", "/api/v1/predict", "test_wolf_token", `{"days":["happy"]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for short sequence, got %d", resp.StatusCode)
	}
}

func TestPredictionsList(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	err := server.db.SavePrediction(db.PredictionRecord{
		User: "wolf", TargetDate: "2026-01-15", Bucket: 3,
		Confidence: 0.8, Rationale: "Last 2 days same mood.", Source: "pattern:last_2_same",
	})
	if err != nil {
		t.Fatalf("saving prediction: %v", err)
	}

	resp := server.do(t, "GET", "/api/v1/predictions", "test_wolf_token", "")
	body := decodeBody(t, resp)
	preds := body["predictions"].([]interface{})
	if len(preds) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(preds))
	}
	if p := preds[0].(map[string]interface{}); p["predicted_mood"] != "Mood 3" {
		t.Errorf("expected Mood 3, got %v", p["predicted_mood"])
	}

	resp = server.do(t, "GET", "/api/v1/predictions", "test_wife_token", "")
	body = decodeBody(t, resp)
	if preds := body["predictions"].([]interface{}); len(preds) != 0 {
		t.Errorf("wife should see no predictions, got %d", len(preds))
	}
}

func TestGenerateWeekly(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := server.do(t, "POST", "/api/v1/reports/weekly", "test_wife_token", "")
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["user"] != "wife" {
		t.Errorf("expected user wife, got %v", body["user"])
	}
	if len(server.reports.users) != 1 || server.reports.users[0] != "wife" {
		t.Errorf("expected one generation for wife, got %v", server.reports.users)
	}

	server.reports.err = errors.New("vault offline")
	resp = server.do(t, "POST", "/api/v1/reports/weekly", "test_wife_token", "")
	body = decodeBody(t, resp)
	if resp.StatusCode != http.StatusInternalServerError || body["code"] != "GENERATION_FAILED" {
		t.Errorf("expected 500 GENERATION_FAILED, got %d %v", resp.StatusCode, body["code"])
	}
}

func TestReportsList(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if err := server.db.SaveReport("rep_2026-W03_wolf", "wolf", "2026-W03", "Reports/Weekly/2026-W03_wolf.md"); err != nil {
		t.Fatalf("saving report: %v", err)
	}

	resp := server.do(t, "GET", "/api/v1/reports", "test_wolf_token", "")
	body := decodeBody(t, resp)
	reports := body["reports"].([]interface{})
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if r := reports[0].(map[string]interface{}); r["week"] != "2026-W03" {
		t.Errorf("expected week 2026-W03, got %v", r["week"])
	}
}

func TestReportContent(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if _, err := server.svc.WriteWeeklyReport("wolf"); err != nil {
		t.Fatalf("writing report: %v", err)
	}

	resp := server.do(t, "GET", "/api/v1/reports/2026-W03", "test_wolf_token", "")
	content, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, content)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("expected markdown content type, got %s", ct)
	}
	if !strings.Contains(string(content), "week: 2026-W03") {
		t.Errorf("expected report frontmatter, got:\n%s", content)
	}

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   string
	}{
		{"other user", "/api/v1/reports/2026-W03", "test_wife_token", http.StatusNotFound, "NOT_FOUND"},
		{"unwritten week", "/api/v1/reports/2026-W01", "test_wolf_token", http.StatusNotFound, "NOT_FOUND"},
		{"bad label", "/api/v1/reports/latest", "test_wolf_token", http.StatusBadRequest, "INVALID_PARAM"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := server.do(t, "GET", tc.path, tc.token, "")
			body := decodeBody(t, resp)
			if resp.StatusCode != tc.status || body["code"] != tc.code {
				t.Errorf("expected %d %s, got %d %v", tc.status, tc.code, resp.StatusCode, body["code"])
			}
		})
	}
}

func TestJobsEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	started := time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)
	server.reports.runs = map[string]*db.SchedulerRun{
		"wolf/nightly-forecast": {User: "wolf", JobType: "nightly-forecast", Status: "completed", StartedAt: started, CompletedAt: &completed},
	}

	resp := server.do(t, "GET", "/api/v1/jobs", "test_wolf_token", "")
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	jobs := body["jobs"].([]interface{})
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	forecast := jobs[0].(map[string]interface{})
	if forecast["job"] != "nightly-forecast" || forecast["status"] != "completed" || forecast["completed_at"] != "2026-01-15T00:05:02Z" {
		t.Errorf("unexpected forecast status %v", forecast)
	}
	if weekly := jobs[1].(map[string]interface{}); weekly["status"] != "never" {
		t.Errorf("expected weekly-report never run, got %v", weekly)
	}
}

func TestReloadRules(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	// No compiled table yet
	resp := server.do(t, "POST", "/api/v1/rules/reload", "test_wolf_token", "")
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without a table, got %d", resp.StatusCode)
	}
	if body["code"] != "RULES_RELOAD_FAILED" {
		t.Errorf("expected RULES_RELOAD_FAILED, got %v", body["code"])
	}

	table := rules.NewTable([]rules.Rule{{
		Sequence:   [rules.SequenceLength]mood.Bucket{mood.Bucket3, mood.Bucket3, mood.Bucket3, mood.Bucket3, mood.Bucket3},
		Predicted:  mood.Bucket1,
		Confidence: 0.9,
		Reason:     "Storm passes",
		Row:        2,
	}})
	if err := vault.WriteRuleTable(server.cfg.RulesPath, table); err != nil {
		t.Fatalf("writing table: %v", err)
	}

	resp = server.do(t, "POST", "/api/v1/rules/reload", "test_wolf_token", "")
	body = decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["rules"] != 1.0 || body["from"] != "compiled" {
		t.Errorf("expected 1 compiled rule, got %v", body)
	}

	resp = server.do(t, "POST", "/api/v1/predict", "test_wolf_token",
		`{"days":["angry","angry","angry","angry","angry"]}`)
	body = decodeBody(t, resp)
	if body["source"] != "exact_rule" || body["rationale"] != "Storm passes" {
		t.Errorf("expected exact rule after reload, got %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	server.do(t, "GET", "/api/v1/days", "test_wolf_token", "").Body.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(raw), `moodtrack_http_requests_total{route="/api/v1/days",status="200"} 1`) {
		t.Errorf("expected days request in metrics:\n%s", raw)
	}
}

func TestRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	rl := NewRateLimiter(2, time.Minute, clock)

	if !rl.Allow("wolf") || !rl.Allow("wolf") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("wolf") {
		t.Error("third request inside the window should be refused")
	}
	if !rl.Allow("wife") {
		t.Error("limits are per user")
	}

	clock.Advance(61 * time.Second)
	if !rl.Allow("wolf") {
		t.Error("window should have slid past the earlier requests")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, clockwork.NewFakeClockAt(testNow))
	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("GET", "/", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("GET", "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After 60, got %q", second.Header().Get("Retry-After"))
	}
}
