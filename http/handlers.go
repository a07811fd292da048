package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"heartify/db"
)

// API holds the route handlers.
type API struct {
	deps   Deps
	logger *zap.Logger
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.deps.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /predict", a.handlePredict)

	mux.HandleFunc("POST /insertData", a.handleInsertData)
	mux.HandleFunc("GET /maxHR", a.handleMaxHR)
	mux.Handle("GET /api/heart-rate/daily", a.requireAuth(http.HandlerFunc(a.handleDaily)))
	mux.Handle("GET /api/heart-rate/weekly", a.requireAuth(http.HandlerFunc(a.handleWeekly)))
	mux.Handle("GET /api/heart-rate/monthly", a.requireAuth(http.HandlerFunc(a.handleMonthly)))
	if a.deps.Hub != nil {
		mux.HandleFunc("GET /ws", a.deps.Hub.HandleWebSocket)
	}

	mux.HandleFunc("POST /api/signup", a.handleSignup)
	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.HandleFunc("GET /api/verify-token", a.handleVerifyToken)
	mux.HandleFunc("POST /api/logout", a.handleLogout)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := db.Ping(); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads exactly one JSON value from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON value")
	}
	return nil
}

// bodyStatus maps a decode failure to 413 for oversized bodies and 400
// otherwise.
func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func malformedBody(err error) string {
	return fmt.Sprintf("malformed JSON body: %v", err)
}
