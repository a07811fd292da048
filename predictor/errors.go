package predictor

import (
	"errors"
	"strings"

	"go.uber.org/multierr"

	"heartify/ml"
)

// Failure kinds of a prediction. Callers match them with errors.Is; the
// wrapped cause carries the detail.
var (
	ErrInvalidInput = errors.New("invalid patient input")
	ErrArtifactLoad = errors.New("artifact load failed")
	ErrEncoding     = errors.New("categorical encoding failed")
	ErrInference    = errors.New("inference failed")
)

// Kind names the failure for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrArtifactLoad):
		return "artifact_load"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrInference):
		return "inference"
	default:
		return "internal"
	}
}

// ValidationError lists every request field that failed validation.
type ValidationError struct {
	Fields []*ml.FieldError
}

func newValidationError(err error) *ValidationError {
	verr := &ValidationError{}
	for _, e := range multierr.Errors(err) {
		var fe *ml.FieldError
		if errors.As(e, &fe) {
			verr.Fields = append(verr.Fields, fe)
		}
	}
	return verr
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return ErrInvalidInput.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// FieldNames returns the JSON keys of the offending fields in request order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}
