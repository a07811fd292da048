package ml

import (
	"fmt"
)

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeRandomForest = "random_forest"
)

func SupportedModelType(modelType string) bool {
	switch modelType {
	case ModelTypeDecisionTree, ModelTypeRandomForest:
		return true
	default:
		return false
	}
}

func LoadModel(modelType, path string) (MLModel, error) {
	var model MLModel
	switch modelType {
	case ModelTypeDecisionTree:
		model = &DecisionTree{}
	case ModelTypeRandomForest:
		model = &RandomForest{}
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
