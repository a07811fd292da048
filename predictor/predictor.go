// Package predictor turns a patient record into a heart-disease risk
// assessment using a fitted encoder and classifier.
package predictor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"heartify/ml"
)

// Assessment is the outcome of one prediction.
type Assessment struct {
	Label      int
	Confidence float64
	Message    string
	Features   []float64
}

type Predictor struct {
	source  ArtifactSource
	logger  *zap.Logger
	metrics *Metrics
}

func New(source ArtifactSource, logger *zap.Logger, metrics *Metrics) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{source: source, logger: logger, metrics: metrics}
}

// Predict validates the input, encodes it behind the current artifacts and
// classifies it. Errors wrap one of ErrInvalidInput, ErrArtifactLoad,
// ErrEncoding or ErrInference.
func (p *Predictor) Predict(ctx context.Context, input ml.PatientInput) (*Assessment, error) {
	assessment, err := p.predict(ctx, input)
	if err != nil {
		p.metrics.observeFailure(err)
		return nil, err
	}
	p.metrics.observePrediction(assessment.Label)
	return assessment, nil
}

func (p *Predictor) predict(ctx context.Context, input ml.PatientInput) (*Assessment, error) {
	if err := input.Validate(); err != nil {
		return nil, newValidationError(err)
	}

	artifacts, err := p.source.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrArtifactLoad) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrArtifactLoad, err)
	}

	numeric, err := input.NumericValues()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	row, err := input.CategoricalRow()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	encoded, err := artifacts.Encoder.Transform(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	features, err := ml.AssembleFeatureVector(numeric, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	label, confidence, err := artifacts.Model.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	p.logger.Debug("risk predicted",
		zap.Int("label", label),
		zap.Float64("confidence", confidence),
		zap.Int("features", len(features)),
	)

	return &Assessment{
		Label:      label,
		Confidence: confidence,
		Message:    RiskMessage(label),
		Features:   features,
	}, nil
}

// Close releases the artifact source.
func (p *Predictor) Close() error {
	return p.source.Close()
}
