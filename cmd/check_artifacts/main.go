// Command check_artifacts loads a classifier and encoder pair, reports the
// feature layout they agree on, and optionally scores one patient.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"heartify/config"
	"heartify/logging"
	"heartify/ml"
	"heartify/predictor"
)

func main() {
	cfg := config.Defaults()
	modelPath := flag.String("model_path", cfg.Artifacts.ModelPath, "classifier artifact")
	encoderPath := flag.String("encoder_path", cfg.Artifacts.EncoderPath, "encoder artifact")
	modelType := flag.String("model_type", cfg.Artifacts.ModelType, "decision_tree or random_forest")
	patientPath := flag.String("patient", "", "optional JSON file with one patient to score")
	flag.Parse()

	logger, err := logging.New(config.LogConfig{Level: "info", Console: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	model, err := ml.LoadModel(*modelType, *modelPath)
	if err != nil {
		logger.Fatal("failed to load model", zap.String("path", *modelPath), zap.Error(err))
	}
	enc, err := ml.LoadEncoder(*encoderPath)
	if err != nil {
		logger.Fatal("failed to load encoder", zap.String("path", *encoderPath), zap.Error(err))
	}

	names := ml.FeatureNames(enc)
	fmt.Printf("features (%d):\n", len(names))
	for i, name := range names {
		fmt.Printf("  %2d  %s\n", i, name)
	}
	fmt.Printf("model expects %d features\n", model.NumFeatures())
	if model.NumFeatures() != len(names) {
		logger.Fatal("feature length mismatch",
			zap.Int("encoder", len(names)),
			zap.Int("model", model.NumFeatures()),
		)
	}

	if *patientPath == "" {
		return
	}
	data, err := os.ReadFile(*patientPath)
	if err != nil {
		logger.Fatal("failed to read patient", zap.Error(err))
	}
	var patient ml.PatientInput
	if err := json.Unmarshal(data, &patient); err != nil {
		logger.Fatal("failed to parse patient", zap.Error(err))
	}

	source, err := predictor.NewStaticSource(func() (*predictor.Artifacts, error) {
		return &predictor.Artifacts{Model: model, Encoder: enc}, nil
	}, nil)
	if err != nil {
		logger.Fatal("failed to build source", zap.Error(err))
	}
	pred := predictor.New(source, logger, nil)
	defer pred.Close()

	assessment, err := pred.Predict(context.Background(), patient)
	if err != nil {
		logger.Fatal("prediction failed", zap.Error(err))
	}
	vector := make([]string, len(assessment.Features))
	for i, v := range assessment.Features {
		vector[i] = fmt.Sprintf("%g", v)
	}
	fmt.Printf("vector: [%s]\n", strings.Join(vector, ", "))
	fmt.Printf("label=%d confidence=%.3f\n%s\n", assessment.Label, assessment.Confidence, assessment.Message)
}
