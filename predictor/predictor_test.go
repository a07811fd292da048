package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"heartify/config"
	"heartify/ml"
)

type fakeModel struct {
	label int
	err   error
	seen  []float64
}

func (m *fakeModel) Predict(features []float64) (int, float64, error) {
	m.seen = append([]float64(nil), features...)
	if m.err != nil {
		return 0, 0, m.err
	}
	return m.label, 0.9, nil
}

type fakeEncoder struct {
	out []float64
	err error
}

func (e fakeEncoder) Transform(row []string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.out, nil
}

func (e fakeEncoder) OutputLen() int { return len(e.out) }

type fakeSource struct {
	artifacts *Artifacts
	err       error
}

func (s fakeSource) Acquire(context.Context) (*Artifacts, error) { return s.artifacts, s.err }
func (s fakeSource) Close() error                                { return nil }

const examplePatient = `{"age":63,"sex":"M","CpainType":"ATA","RestingBP":145,"Cholesterol":233,
"FastingBP":1,"RestingECG":"Normal","Angina":"N","St_Slope":"Up","latest_maxHR":150,"OldPeak":2.3}`

func patient(t *testing.T, payload string) ml.PatientInput {
	t.Helper()
	var p ml.PatientInput
	require.NoError(t, json.Unmarshal([]byte(payload), &p))
	return p
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

func constantForest(t *testing.T, label int) *ml.RandomForest {
	t.Helper()
	rf, err := ml.NewRandomForest([][]ml.TreeNode{{{IsLeaf: true, ClassLabel: label}}}, []int{0, 1}, 20)
	require.NoError(t, err)
	return rf
}

func writeArtifacts(t *testing.T, dir string, label int) (string, string) {
	t.Helper()
	modelPath := filepath.Join(dir, "rf_model.json")
	encoderPath := filepath.Join(dir, "encoder.json")
	require.NoError(t, constantForest(t, label).Save(modelPath))
	require.NoError(t, heartEncoder().Save(encoderPath))
	return modelPath, encoderPath
}

func TestPredictMessages(t *testing.T) {
	cases := []struct {
		label   int
		message string
	}{
		{1, HighRiskMessage},
		{0, NotAtRiskMessage},
		{2, NotAtRiskMessage},
		{-1, NotAtRiskMessage},
	}
	for _, tc := range cases {
		model := &fakeModel{label: tc.label}
		p := New(fakeSource{artifacts: &Artifacts{Model: model, Encoder: fakeEncoder{out: []float64{1, 0}}}}, nil, nil)

		got, err := p.Predict(context.Background(), patient(t, examplePatient))
		require.NoError(t, err)
		assert.Equal(t, tc.label, got.Label)
		assert.Equal(t, tc.message, got.Message)
	}
}

func TestPredictAssemblesNumericBlockFirst(t *testing.T) {
	model := &fakeModel{label: 0}
	p := New(fakeSource{artifacts: &Artifacts{Model: model, Encoder: fakeEncoder{out: []float64{7, 8}}}}, nil, nil)

	_, err := p.Predict(context.Background(), patient(t, examplePatient))
	require.NoError(t, err)
	assert.Equal(t, []float64{63, 145, 233, 1, 150, 2.3, 7, 8}, model.seen)
}

func TestPredictEndToEnd(t *testing.T) {
	modelPath, encoderPath := writeArtifacts(t, t.TempDir(), 1)
	p := New(NewPerRequestSource(FileLoader(ml.ModelTypeRandomForest, modelPath, encoderPath), nil), zap.NewNop(), nil)

	got, err := p.Predict(context.Background(), patient(t, examplePatient))
	require.NoError(t, err)
	assert.Equal(t, HighRiskMessage, got.Message)
	assert.Len(t, got.Features, 6+heartEncoder().OutputLen())
}

func TestPredictMissingAge(t *testing.T) {
	loads := 0
	load := func() (*Artifacts, error) {
		loads++
		return nil, errors.New("should not load")
	}
	p := New(NewPerRequestSource(load, nil), nil, nil)

	payload := `{"sex":"M","CpainType":"ATA","RestingBP":145,"Cholesterol":233,"FastingBP":1,
"RestingECG":"Normal","Angina":"N","St_Slope":"Up","latest_maxHR":150,"OldPeak":2.3}`
	_, err := p.Predict(context.Background(), patient(t, payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"age"}, verr.FieldNames())
	assert.Zero(t, loads)
}

func TestPredictFailureKinds(t *testing.T) {
	good := fakeEncoder{out: []float64{1, 0}}
	cases := []struct {
		name   string
		source ArtifactSource
		want   error
	}{
		{"missing artifact", NewPerRequestSource(FileLoader(ml.ModelTypeRandomForest, "missing.json", "missing.json"), nil), ErrArtifactLoad},
		{"source error", fakeSource{err: errors.New("disk gone")}, ErrArtifactLoad},
		{"unknown category", fakeSource{artifacts: &Artifacts{Model: &fakeModel{}, Encoder: fakeEncoder{err: ml.ErrUnknownCategory}}}, ErrEncoding},
		{"shape mismatch", fakeSource{artifacts: &Artifacts{Model: &fakeModel{err: ml.ErrFeatureShape}, Encoder: good}}, ErrInference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(tc.source, nil, nil)
			_, err := p.Predict(context.Background(), patient(t, examplePatient))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPredictUnseenCategoryWithRealEncoder(t *testing.T) {
	model := &fakeModel{label: 1}
	p := New(fakeSource{artifacts: &Artifacts{Model: model, Encoder: heartEncoder()}}, nil, nil)

	var input ml.PatientInput
	require.NoError(t, json.Unmarshal([]byte(examplePatient), &input))
	input.ChestPainType = ml.TextScalar("XYZ")

	_, err := p.Predict(context.Background(), input)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.ErrorIs(t, err, ml.ErrUnknownCategory)
	assert.Equal(t, "encoding", Kind(err))
}

func TestPredictWrongVectorLengthIsInferenceError(t *testing.T) {
	rf, err := ml.NewRandomForest([][]ml.TreeNode{{{IsLeaf: true, ClassLabel: 1}}}, []int{0, 1}, 12)
	require.NoError(t, err)
	p := New(fakeSource{artifacts: &Artifacts{Model: rf, Encoder: heartEncoder()}}, nil, nil)

	_, err = p.Predict(context.Background(), patient(t, examplePatient))
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, ml.ErrFeatureShape)
}

func TestPredictDeterministic(t *testing.T) {
	modelPath, encoderPath := writeArtifacts(t, t.TempDir(), 0)
	source, err := NewStaticSource(FileLoader(ml.ModelTypeRandomForest, modelPath, encoderPath), nil)
	require.NoError(t, err)
	p := New(source, nil, nil)

	first, err := p.Predict(context.Background(), patient(t, examplePatient))
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), patient(t, examplePatient))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPredictMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	p := New(fakeSource{artifacts: &Artifacts{Model: &fakeModel{label: 1}, Encoder: fakeEncoder{}}}, nil, metrics)

	_, err := p.Predict(context.Background(), patient(t, examplePatient))
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), patient(t, `{}`))
	require.Error(t, err)

	assert.Equal(t, 1.0, counterValue(t, reg, "heartify_predictions_total", "label", "1"))
	assert.Equal(t, 1.0, counterValue(t, reg, "heartify_prediction_failures_total", "kind", "invalid_input"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewSourceModes(t *testing.T) {
	modelPath, encoderPath := writeArtifacts(t, t.TempDir(), 1)
	cfg := config.ArtifactsConfig{ModelPath: modelPath, EncoderPath: encoderPath, ModelType: ml.ModelTypeRandomForest}

	for _, mode := range []string{config.ReloadPerRequest, config.ReloadAtStartup, config.ReloadOnChange} {
		cfg.Reload = mode
		source, err := NewSource(cfg, zap.NewNop(), nil)
		require.NoError(t, err, mode)
		artifacts, err := source.Acquire(context.Background())
		require.NoError(t, err, mode)
		assert.NotNil(t, artifacts.Model, mode)
		require.NoError(t, source.Close())
	}

	cfg.Reload = "hourly"
	_, err := NewSource(cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestStaticSourceFailsFast(t *testing.T) {
	_, err := NewStaticSource(FileLoader(ml.ModelTypeRandomForest, "nope.json", "nope.json"), nil)
	assert.ErrorIs(t, err, ErrArtifactLoad)
}

func TestWatchSourceReloadsChangedModel(t *testing.T) {
	dir := t.TempDir()
	modelPath, encoderPath := writeArtifacts(t, dir, 0)

	source, err := NewWatchSource(FileLoader(ml.ModelTypeRandomForest, modelPath, encoderPath),
		[]string{modelPath, encoderPath}, zap.NewNop(), nil)
	require.NoError(t, err)
	defer source.Close()

	p := New(source, nil, nil)
	got, err := p.Predict(context.Background(), patient(t, examplePatient))
	require.NoError(t, err)
	require.Equal(t, 0, got.Label)

	require.NoError(t, constantForest(t, 1).Save(modelPath))

	require.Eventually(t, func() bool {
		got, err := p.Predict(context.Background(), patient(t, examplePatient))
		return err == nil && got.Label == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchSourceKeepsPreviousPairOnBadReload(t *testing.T) {
	dir := t.TempDir()
	modelPath, encoderPath := writeArtifacts(t, dir, 1)

	source, err := NewWatchSource(FileLoader(ml.ModelTypeRandomForest, modelPath, encoderPath),
		[]string{modelPath, encoderPath}, zap.NewNop(), nil)
	require.NoError(t, err)
	defer source.Close()

	before, err := source.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(modelPath, []byte("{not json"), 0o600))
	assert.ErrorIs(t, source.Reload(), ErrArtifactLoad)

	after, err := source.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestAcquireHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := NewPerRequestSource(func() (*Artifacts, error) { return &Artifacts{}, nil }, nil)
	_, err := source.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
