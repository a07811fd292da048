package ml

import "errors"

var (
	ErrNotLoaded       = errors.New("model not loaded")
	ErrFeatureShape    = errors.New("feature vector length mismatch")
	ErrInvalidTree     = errors.New("invalid tree state")
	ErrUnknownCategory = errors.New("unknown category")
	ErrColumnCount     = errors.New("categorical column count mismatch")
)

// Classifier is the inference side of a fitted model: one row in, one label out.
type Classifier interface {
	Predict(features []float64) (int, float64, error)
}

// Encoder maps a categorical row onto a fixed-length numeric block.
type Encoder interface {
	Transform(row []string) ([]float64, error)
	OutputLen() int
}

type MLModel interface {
	Classifier
	NumFeatures() int
	Save(path string) error
	Load(path string) error
}
