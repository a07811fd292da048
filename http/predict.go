package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"heartify/ml"
	"heartify/predictor"
)

type predictResponse struct {
	Message string `json:"message"`
}

type validationResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var input ml.PatientInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, bodyStatus(err), malformedBody(err))
		return
	}

	assessment, err := a.deps.Predictor.Predict(r.Context(), input)
	if err != nil {
		a.writePredictError(w, r, err)
		return
	}

	a.logger.Info("prediction served",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Int("label", assessment.Label),
		zap.Float64("confidence", assessment.Confidence),
	)
	writeJSON(w, http.StatusOK, predictResponse{Message: assessment.Message})
}

// writePredictError answers 400 for invalid input and 500 for every
// server-side failure. Server-side detail goes to the log only.
func (a *API) writePredictError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *predictor.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Error:  "missing or invalid fields",
			Fields: verr.FieldNames(),
		})
		return
	}
	if errors.Is(err, predictor.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.Error("prediction failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("kind", predictor.Kind(err)),
		zap.Error(err),
	)

	var msg string
	switch {
	case errors.Is(err, predictor.ErrArtifactLoad):
		msg = predictor.ErrArtifactLoad.Error()
	case errors.Is(err, predictor.ErrEncoding):
		msg = predictor.ErrEncoding.Error()
	case errors.Is(err, predictor.ErrInference):
		msg = predictor.ErrInference.Error()
	default:
		msg = "internal server error"
	}
	writeError(w, http.StatusInternalServerError, msg)
}
