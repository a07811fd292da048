package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"heartify/auth"
	"heartify/config"
	"heartify/db"
	"heartify/ml"
	"heartify/monitoring"
	"heartify/predictor"
)

type staticSource struct {
	artifacts *predictor.Artifacts
	err       error
}

func (s staticSource) Acquire(context.Context) (*predictor.Artifacts, error) { return s.artifacts, s.err }
func (s staticSource) Close() error                                          { return nil }

type fakeModel struct {
	label      int
	confidence float64
	err        error
}

func (f *fakeModel) Predict(features []float64) (int, float64, error) {
	return f.label, f.confidence, f.err
}

func heartEncoder() *ml.OneHotEncoder {
	return &ml.OneHotEncoder{
		Features: ml.CategoricalFeatureNames(),
		Categories: [][]string{
			{"F", "M"},
			{"ASY", "ATA", "NAP", "TA"},
			{"LVH", "Normal", "ST"},
			{"N", "Y"},
			{"Down", "Flat", "Up"},
		},
	}
}

type testEnv struct {
	handler http.Handler
	hub     *monitoring.WebSocketHub
}

func newTestEnv(t *testing.T, source predictor.ArtifactSource) *testEnv {
	t.Helper()
	if source == nil {
		source = staticSource{artifacts: &predictor.Artifacts{Model: &fakeModel{label: 1, confidence: 1}, Encoder: heartEncoder()}}
	}
	reg := prometheus.NewRegistry()
	hub := monitoring.NewWebSocketHub(zap.NewNop(), nil, nil)
	heartRate, err := monitoring.NewHeartRateService(hub, 16, time.UTC, zap.NewNop(), monitoring.NewMetrics(reg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := config.Defaults()
	cfg.Auth.BcryptCost = 4
	handler := NewHandler(cfg.HTTP, Deps{
		Predictor: predictor.New(source, zap.NewNop(), predictor.NewMetrics(reg)),
		HeartRate: heartRate,
		Hub:       hub,
		Tokens:    auth.NewTokenService("test-secret", time.Hour),
		Auth:      cfg.Auth,
		Registry:  reg,
		Logger:    zap.NewNop(),
	})
	return &testEnv{handler: handler, hub: hub}
}

func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("GET", "/api/health", "")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do("POST", "/predict", `{}`)

	rr := env.do("GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	for _, name := range []string{"heartify_prediction_failures_total", "heartify_http_request_duration_seconds"} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("unexpected allow-credentials %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Fatalf("expected JSON error body, got %s", w.Body.String())
	}
}

func TestMain(m *testing.M) {
	if err := db.InitDB(":memory:"); err != nil {
		panic(err)
	}

	code := m.Run()

	db.Close()
	os.Exit(code)
}
