package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"heartify/db"
	"heartify/monitoring"
)

type messageResponse struct {
	Message string `json:"message"`
}

func (a *API) handleInsertData(w http.ResponseWriter, r *http.Request) {
	var in monitoring.ReadingInput
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, bodyStatus(err), messageResponse{Message: "Invalid data"})
		return
	}

	if _, err := a.deps.HeartRate.Ingest(in, monitoring.SourceHTTP); err != nil {
		if errors.Is(err, monitoring.ErrInvalidReading) {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid data"})
			return
		}
		a.logger.Error("insert reading failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "failed to store reading"})
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Data inserted successfully"})
}

// handleMaxHR answers with a list holding the newest reading, or an
// empty list.
func (a *API) handleMaxHR(w http.ResponseWriter, r *http.Request) {
	latest, err := a.deps.HeartRate.Latest(r.URL.Query().Get("heartifyID"))
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusOK, []db.Reading{})
		return
	}
	if err != nil {
		a.logger.Error("latest reading failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "failed to load reading"})
		return
	}
	writeJSON(w, http.StatusOK, []db.Reading{*latest})
}

func (a *API) handleDaily(w http.ResponseWriter, r *http.Request) {
	readings, err := a.deps.HeartRate.Daily()
	a.writeSummary(w, r, readings, err)
}

func (a *API) handleWeekly(w http.ResponseWriter, r *http.Request) {
	days, err := a.deps.HeartRate.Weekly()
	a.writeSummary(w, r, days, err)
}

func (a *API) handleMonthly(w http.ResponseWriter, r *http.Request) {
	weeks, err := a.deps.HeartRate.Monthly()
	a.writeSummary(w, r, weeks, err)
}

func (a *API) writeSummary(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		var userID string
		if user := CurrentUser(r.Context()); user != nil {
			userID = user.ID
		}
		a.logger.Error("heart-rate summary failed",
			zap.String("path", r.URL.Path),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load heart-rate data")
		return
	}
	writeJSON(w, http.StatusOK, v)
}
