package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/batch"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

type fakeEngine struct {
	findings    []detector.Finding
	findingsErr error
	triggers    []*alerting.TriggerResult
	evalErr     error
	evaluated   []models.Subject
}

func (f *fakeEngine) Findings(ctx context.Context, petID string) ([]detector.Finding, error) {
	return f.findings, f.findingsErr
}

func (f *fakeEngine) EvaluateSubject(ctx context.Context, subject models.Subject) ([]*alerting.TriggerResult, error) {
	f.evaluated = append(f.evaluated, subject)
	return f.triggers, f.evalErr
}

type fakePets struct {
	pets map[string]*models.Pet
	err  error
}

func (f *fakePets) GetByID(ctx context.Context, id string) (*models.Pet, error) {
	if f.err != nil {
		return nil, f.err
	}
	pet, ok := f.pets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return pet, nil
}

type fakeSweeper struct {
	summary *batch.SweepSummary
	err     error
	ctxErr  error
}

func (f *fakeSweeper) Run(ctx context.Context) (*batch.SweepSummary, error) {
	f.ctxErr = ctx.Err()
	return f.summary, f.err
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *Error          `json:"error"`
}

func testServer(t *testing.T, cfg *Config) (*Server, *fakeEngine, *fakeSweeper) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	engine := &fakeEngine{}
	pets := &fakePets{pets: map[string]*models.Pet{
		"pet-1": models.NewPet("pet-1", "user-1", "Rex"),
	}}
	sweeper := &fakeSweeper{summary: &batch.SweepSummary{Checked: 2, Triggered: 1}}

	srv, err := New(cfg, engine, pets, sweeper)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, engine, sweeper
}

func do(t *testing.T, srv *Server, method, path string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func TestNew_RequiresDependencies(t *testing.T) {
	engine := &fakeEngine{}
	pets := &fakePets{}
	sweeper := &fakeSweeper{}

	if _, err := New(nil, engine, pets, sweeper); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&Config{}, nil, pets, sweeper); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := New(&Config{}, engine, nil, sweeper); err == nil {
		t.Error("expected error for nil pets")
	}
	if _, err := New(&Config{}, engine, pets, nil); err == nil {
		t.Error("expected error for nil sweeper")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	if cfg.Address != ":8080" {
		t.Errorf("Address = %q, want :8080", cfg.Address)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.SweepTimeout != 10*time.Minute {
		t.Errorf("SweepTimeout = %v, want 10m", cfg.SweepTimeout)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAnomalies(t *testing.T) {
	findings := []detector.Finding{
		{Type: models.AnomalyFrequency, IsAnomalous: true, Severity: models.SeverityHigh, Confidence: 80},
		{Type: models.AnomalyHealthDecline, IsAnomalous: false, Severity: models.SeverityLow, Confidence: 10},
	}

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount int
		errCode   string
	}{
		{name: "all findings", path: "/api/v1/pets/pet-1/anomalies", wantCode: http.StatusOK, wantCount: 2},
		{name: "anomalous only", path: "/api/v1/pets/pet-1/anomalies?anomalous=true", wantCode: http.StatusOK, wantCount: 1},
		{name: "unknown pet", path: "/api/v1/pets/pet-9/anomalies", wantCode: http.StatusNotFound, errCode: ErrCodeNotFound},
		{name: "bad filter", path: "/api/v1/pets/pet-1/anomalies?anomalous=maybe", wantCode: http.StatusBadRequest, errCode: ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, engine, _ := testServer(t, nil)
			engine.findings = findings

			rec, env := do(t, srv, "GET", tt.path, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.errCode != "" {
				if env.Error == nil || env.Error.Code != tt.errCode {
					t.Errorf("error = %+v, want code %s", env.Error, tt.errCode)
				}
				return
			}

			var resp AnomaliesResponse
			if err := json.Unmarshal(env.Data, &resp); err != nil {
				t.Fatalf("decode data: %v", err)
			}
			if resp.PetID != "pet-1" {
				t.Errorf("PetID = %q, want pet-1", resp.PetID)
			}
			if len(resp.Findings) != tt.wantCount {
				t.Errorf("findings = %d, want %d", len(resp.Findings), tt.wantCount)
			}
		})
	}
}

func TestAnomalies_EmptyIsList(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	rec, env := do(t, srv, "GET", "/api/v1/pets/pet-1/anomalies", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["findings"]) != "[]" {
		t.Errorf("findings = %s, want []", raw["findings"])
	}
}

func TestAnomalies_BackendError(t *testing.T) {
	srv, engine, _ := testServer(t, nil)
	engine.findingsErr = errors.New("disk I/O error")

	rec, env := do(t, srv, "GET", "/api/v1/pets/pet-1/anomalies", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeInternalError {
		t.Errorf("error = %+v, want INTERNAL_ERROR", env.Error)
	}
}

func TestEvaluate(t *testing.T) {
	srv, engine, _ := testServer(t, nil)
	engine.triggers = []*alerting.TriggerResult{{
		RuleID:   "rule-1",
		RuleName: "Health decline",
		Subject:  models.Subject{UserID: "user-1", PetID: "pet-1"},
	}}

	rec, env := do(t, srv, "POST", "/api/v1/pets/pet-1/evaluate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	if len(engine.evaluated) != 1 {
		t.Fatalf("evaluated %d subjects, want 1", len(engine.evaluated))
	}
	if got := engine.evaluated[0]; got.UserID != "user-1" || got.PetID != "pet-1" {
		t.Errorf("subject = %+v, want user-1/pet-1", got)
	}

	var resp EvaluateResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Triggers) != 1 || resp.Triggers[0].RuleID != "rule-1" {
		t.Errorf("triggers = %+v", resp.Triggers)
	}
}

func TestEvaluate_UnknownPet(t *testing.T) {
	srv, engine, _ := testServer(t, nil)

	rec, _ := do(t, srv, "POST", "/api/v1/pets/ghost/evaluate", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(engine.evaluated) != 0 {
		t.Error("engine must not run for an unknown pet")
	}
}

func TestEvaluate_MethodNotAllowed(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	req := httptest.NewRequest("GET", "/api/v1/pets/pet-1/evaluate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestSweep(t *testing.T) {
	srv, _, sweeper := testServer(t, nil)

	rec, env := do(t, srv, "POST", "/api/v1/sweeps", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sweeper.ctxErr != nil {
		t.Errorf("sweep context already done: %v", sweeper.ctxErr)
	}

	var resp SweepResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checked != 2 || resp.Triggered != 1 {
		t.Errorf("summary = %+v", resp)
	}
	if resp.Results == nil || resp.Errors == nil {
		t.Error("results and errors must encode as lists")
	}
}

func TestSweep_InProgress(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	srv.sweepMu.Lock()
	defer srv.sweepMu.Unlock()

	rec, env := do(t, srv, "POST", "/api/v1/sweeps", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeConflict {
		t.Errorf("error = %+v, want CONFLICT", env.Error)
	}
}

func TestSweep_EnumerationFailure(t *testing.T) {
	srv, _, sweeper := testServer(t, nil)
	sweeper.summary = nil
	sweeper.err = errors.New("list active rules: database is locked")

	rec, _ := do(t, srv, "POST", "/api/v1/sweeps", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestTokenRequired(t *testing.T) {
	srv, _, _ := testServer(t, &Config{Token: "s3cret"})

	rec, env := do(t, srv, "POST", "/api/v1/sweeps", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeUnauthorized {
		t.Errorf("error = %+v, want UNAUTHORIZED", env.Error)
	}

	rec, _ = do(t, srv, "POST", "/api/v1/sweeps", map[string]string{"Authorization": "Bearer s3cret"})
	if rec.Code != http.StatusOK {
		t.Errorf("status with token = %d, want 200", rec.Code)
	}

	// Health stays public.
	req := httptest.NewRequest("GET", "/health", nil)
	hrec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(hrec, req)
	if hrec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", hrec.Code)
	}
}
