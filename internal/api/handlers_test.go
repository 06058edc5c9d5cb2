package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrwolf/geolocator/internal/config"
	"github.com/mrwolf/geolocator/internal/confidence"
	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/locator"
	"github.com/mrwolf/geolocator/internal/metrics"
	"github.com/mrwolf/geolocator/internal/models"
	"github.com/mrwolf/geolocator/internal/report"
)

const berlinReply = `Sure! {"location":{"city":"Berlin","country":"Germany","lat":52.52,"lng":13.405,"confidence":85},` +
	`"analysis":{"description":"urban street scene","clues":["Bundesgasse street sign","Deutsche Bahn logo"],` +
	`"reasoning":"Clear German signage and transit branding observed throughout the frame confirming location precisely"}}`

var pngImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeModel struct {
	reply string
	err   error
}

func (f *fakeModel) Vision(ctx context.Context, prompt string, images [][]byte) (string, error) {
	return f.reply, f.err
}

func (f *fakeModel) HealthCheck(ctx context.Context) error {
	return f.err
}

type testServer struct {
	*httptest.Server
	db      *db.DB
	reports *report.Writer
}

func setupTestServer(t *testing.T, model *fakeModel, rateLimit int) *testServer {
	t.Helper()

	tmpDir := t.TempDir()
	reportsPath := filepath.Join(tmpDir, "reports")
	os.MkdirAll(reportsPath, 0755)

	cfg := &config.Config{
		Port:           "0",
		DBPath:         filepath.Join(tmpDir, "test.db"),
		ReportsPath:    reportsPath,
		Tokens:         map[string]string{"alice_token": "alice", "bob_token": "bob"},
		RuleSet:        "tiered",
		RateLimit:      rateLimit,
		Timezone:       "UTC",
		MaxUploadBytes: 1 << 20,
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}

	m := metrics.New()
	reports := report.NewWriter(reportsPath)
	router := NewRouter(Deps{
		Config:  cfg,
		DB:      database,
		Reports: reports,
		Locator: locator.New(model, confidence.Tiered(), locator.Options{Metrics: m}),
		Model:   model,
		Metrics: m,
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		database.Close()
	})

	return &testServer{Server: server, db: database, reports: reports}
}

func (s *testServer) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()

	if body == nil {
		body = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, s.URL+path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) upload(t *testing.T, token string, image []byte) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("image", "photo.png")
	part.Write(image)
	mw.Close()

	return s.do(t, "POST", "/api/v1/analyze", token, body, mw.FormDataContentType())
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		model      *fakeModel
		wantStatus string
		wantModel  string
	}{
		{"model up", &fakeModel{}, "ok", "connected"},
		{"model down", &fakeModel{err: errors.New("connection refused")}, "degraded", "error: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, tt.model, 60)

			resp := server.do(t, "GET", "/health", "", nil, "")
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}

			body := decode[models.HealthResponse](t, resp)
			if body.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, body.Status)
			}
			if body.Model != tt.wantModel {
				t.Errorf("expected model %q, got %q", tt.wantModel, body.Model)
			}
			if body.Reports != "writable" {
				t.Errorf("expected writable reports, got %s", body.Reports)
			}
			if body.Version != "1.0.0" {
				t.Errorf("expected version 1.0.0, got %s", body.Version)
			}
		})
	}
}

type fakeMonitor bool

func (m fakeMonitor) ModelHealthy() bool { return bool(m) }

func TestHealthReportsModelMonitor(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	tests := []struct {
		name    string
		monitor ModelMonitor
		want    string
	}{
		{"no monitor", nil, ""},
		{"last check passed", fakeMonitor(true), "healthy"},
		{"last check failed", fakeMonitor(false), "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handlers{db: database, model: &fakeModel{}, monitor: tt.monitor}
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest("GET", "/health", nil))

			var body models.HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if body.ModelMonitor != tt.want {
				t.Errorf("expected model_monitor %q, got %q", tt.want, body.ModelMonitor)
			}
			if body.Status != "ok" {
				t.Errorf("expected status ok, got %s", body.Status)
			}
		})
	}
}

func TestAuth(t *testing.T) {
	server := setupTestServer(t, &fakeModel{reply: berlinReply}, 60)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic alice_token"},
		{"invalid token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", server.URL+"/api/v1/analyses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET /analyses: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", resp.StatusCode)
			}
			if body := decode[ErrorResponse](t, resp); body.Code != "UNAUTHORIZED" {
				t.Errorf("expected code UNAUTHORIZED, got %s", body.Code)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	server := setupTestServer(t, &fakeModel{reply: berlinReply}, 60)

	resp := server.upload(t, "alice_token", pngImage)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body := decode[models.Analysis](t, resp)
	if !strings.HasPrefix(body.ID, "ana_") {
		t.Errorf("expected ana_ id, got %q", body.ID)
	}
	if body.Location.City != "Berlin" || body.Confidence != 85 || !body.IsValid {
		t.Errorf("unexpected analysis: %+v", body)
	}
	if body.RuleSet != "tiered" {
		t.Errorf("expected rule set tiered, got %s", body.RuleSet)
	}
	if body.ImageHash != locator.Digest(pngImage) {
		t.Errorf("unexpected image hash %s", body.ImageHash)
	}

	rec, err := server.db.GetAnalysis("alice", body.ID)
	if err != nil || rec == nil {
		t.Fatalf("expected stored analysis, got %v %v", rec, err)
	}
	if rec.RawReply != berlinReply {
		t.Error("raw reply should be stored verbatim")
	}

	if body.Report == "" {
		t.Fatal("expected a report path")
	}
	if _, err := os.Stat(filepath.Join(server.reports.BasePath(), body.Report)); err != nil {
		t.Errorf("report not written: %v", err)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name       string
		model      *fakeModel
		image      []byte
		wantStatus int
		wantCode   string
	}{
		{"unusable reply", &fakeModel{reply: "I have no idea where this is."}, pngImage, http.StatusUnprocessableEntity, "UNUSABLE_REPLY"},
		{"malformed reply", &fakeModel{reply: `{"location": {"city": "Berlin",}}`}, pngImage, http.StatusUnprocessableEntity, "UNUSABLE_REPLY"},
		{"model down", &fakeModel{err: errors.New("connection refused")}, pngImage, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE"},
		{"not an image", &fakeModel{reply: berlinReply}, []byte("hello world"), http.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE"},
		{"empty image", &fakeModel{reply: berlinReply}, []byte{}, http.StatusBadRequest, "EMPTY_IMAGE"},
		{"too large", &fakeModel{reply: berlinReply}, bytes.Repeat([]byte{0xff}, (1<<20)+1000), http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, tt.model, 60)

			resp := server.upload(t, "alice_token", tt.image)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			body := decode[ErrorResponse](t, resp)
			if body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
			}

			if n, _ := server.db.CountAnalyses(""); n != 0 {
				t.Errorf("failed analyses must not be stored, found %d", n)
			}
		})
	}
}

func TestAnalyzeMissingImageField(t *testing.T) {
	server := setupTestServer(t, &fakeModel{reply: berlinReply}, 60)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	mw.WriteField("note", "no image here")
	mw.Close()

	resp := server.do(t, "POST", "/api/v1/analyze", "alice_token", body, mw.FormDataContentType())
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
	if got := decode[ErrorResponse](t, resp); got.Code != "MISSING_IMAGE" {
		t.Errorf("expected MISSING_IMAGE, got %s", got.Code)
	}
}

func TestValidate(t *testing.T) {
	server := setupTestServer(t, &fakeModel{}, 60)

	hedged := `{"location":{"city":"Berlin","country":"Germany","lat":52.52,"lng":13.405,"confidence":85},` +
		`"analysis":{"description":"urban street scene","clues":["Bundesgasse street sign","Deutsche Bahn logo"],"reasoning":"This might be Berlin"}}`
	payload, _ := json.Marshal(models.ValidateRequest{Reply: hedged})

	resp := server.do(t, "POST", "/api/v1/validate", "alice_token", bytes.NewBuffer(payload), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body := decode[models.Analysis](t, resp)
	if body.Confidence > 50 {
		t.Errorf("expected confidence at most 50, got %d", body.Confidence)
	}
	if len(body.Reasons) != 2 {
		t.Errorf("expected 2 reasons, got %v", body.Reasons)
	}
	if body.ID != "" {
		t.Error("validate must not persist an analysis")
	}
}

func TestValidateErrors(t *testing.T) {
	server := setupTestServer(t, &fakeModel{}, 60)

	tests := []struct {
		name       string
		payload    string
		wantStatus int
		wantCode   string
	}{
		{"bad body", `not json`, http.StatusBadRequest, "INVALID_BODY"},
		{"empty reply", `{"reply":""}`, http.StatusBadRequest, "MISSING_REPLY"},
		{"no json in reply", `{"reply":"just prose"}`, http.StatusUnprocessableEntity, "UNUSABLE_REPLY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := server.do(t, "POST", "/api/v1/validate", "alice_token", bytes.NewBufferString(tt.payload), "application/json")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if body := decode[ErrorResponse](t, resp); body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
			}
		})
	}
}

func TestHistoryLifecycle(t *testing.T) {
	server := setupTestServer(t, &fakeModel{reply: berlinReply}, 60)

	created := decode[models.Analysis](t, server.upload(t, "alice_token", pngImage))

	list := decode[models.AnalysesResponse](t, server.do(t, "GET", "/api/v1/analyses?limit=10", "alice_token", nil, ""))
	if list.Total != 1 || len(list.Analyses) != 1 || list.Analyses[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	other := decode[models.AnalysesResponse](t, server.do(t, "GET", "/api/v1/analyses", "bob_token", nil, ""))
	if other.Total != 0 || len(other.Analyses) != 0 {
		t.Errorf("bob should see no analyses, got %+v", other)
	}

	if resp := server.do(t, "GET", "/api/v1/analyses/"+created.ID, "bob_token", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for another actor, got %d", resp.StatusCode)
	}

	got := decode[models.Analysis](t, server.do(t, "GET", "/api/v1/analyses/"+created.ID, "alice_token", nil, ""))
	if got.Location.City != "Berlin" || len(got.Analysis.Clues) != 2 {
		t.Errorf("unexpected analysis: %+v", got)
	}

	if resp := server.do(t, "DELETE", "/api/v1/analyses/"+created.ID, "alice_token", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", resp.StatusCode)
	}
	if resp := server.do(t, "DELETE", "/api/v1/analyses/"+created.ID, "alice_token", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestListAnalysesBadQuery(t *testing.T) {
	server := setupTestServer(t, &fakeModel{}, 60)

	tests := []struct {
		query    string
		wantCode string
	}{
		{"limit=zero", "INVALID_LIMIT"},
		{"limit=-1", "INVALID_LIMIT"},
		{"since=yesterday", "INVALID_SINCE"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := server.do(t, "GET", "/api/v1/analyses?"+tt.query, "alice_token", nil, "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.StatusCode)
			}
			if body := decode[ErrorResponse](t, resp); body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	server := setupTestServer(t, &fakeModel{}, 2)

	for i := 0; i < 2; i++ {
		if resp := server.do(t, "GET", "/api/v1/analyses", "alice_token", nil, ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp := server.do(t, "GET", "/api/v1/analyses", "alice_token", nil, "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if resp := server.do(t, "GET", "/api/v1/analyses", "bob_token", nil, ""); resp.StatusCode != http.StatusOK {
		t.Errorf("bob has a separate budget, got %d", resp.StatusCode)
	}
}

func TestOpenAPIAndMetrics(t *testing.T) {
	server := setupTestServer(t, &fakeModel{reply: berlinReply}, 60)
	server.upload(t, "alice_token", pngImage)

	resp := server.do(t, "GET", "/openapi.json", "", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for openapi.json, got %d", resp.StatusCode)
	}
	spec := decode[map[string]any](t, resp)
	paths, _ := spec["paths"].(map[string]any)
	if _, ok := paths["/api/v1/analyze"]; !ok {
		t.Error("expected /api/v1/analyze in openapi paths")
	}

	resp = server.do(t, "GET", "/metrics", "", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for metrics, got %d", resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `geolocator_analyses_total{outcome="valid"} 1`) {
		t.Error("expected one valid analysis in metrics")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("k") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("k") {
		t.Error("fourth request should be limited")
	}
	if !rl.Allow("other") {
		t.Error("keys are limited independently")
	}
}
