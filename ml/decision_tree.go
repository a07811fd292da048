package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

type DecisionTree struct {
	nodes     []TreeNode
	nFeatures int
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Proba      []float64 `json:"proba,omitempty"`
}

type treeArtifact struct {
	NFeatures int        `json:"n_features"`
	Nodes     []TreeNode `json:"nodes"`
}

func NewDecisionTree(nodes []TreeNode, nFeatures int) (*DecisionTree, error) {
	if err := validateNodes(nodes, nFeatures); err != nil {
		return nil, err
	}
	return &DecisionTree{nodes: nodes, nFeatures: nFeatures}, nil
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.nFeatures
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if err := checkShape(features, dt.nFeatures); err != nil {
		return 0, 0, err
	}
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	return leaf.ClassLabel, leafConfidence(leaf), nil
}

// leaf walks from the root; x[feature] <= threshold goes left.
func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, ErrNotLoaded
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, fmt.Errorf("%w: feature index %d out of range for %d features", ErrFeatureShape, node.FeatureIdx, len(features))
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, ErrInvalidTree
		}
	}
	return TreeNode{}, fmt.Errorf("%w: cycle detected", ErrInvalidTree)
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotLoaded
	}
	payload, err := json.Marshal(treeArtifact{NFeatures: dt.nFeatures, Nodes: dt.nodes})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load accepts either a bare node array or an object carrying n_features.
func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact treeArtifact
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &artifact.Nodes)
	} else {
		err = json.Unmarshal(trimmed, &artifact)
	}
	if err != nil {
		return fmt.Errorf("decode decision tree %s: %w", path, err)
	}
	if err := validateNodes(artifact.Nodes, artifact.NFeatures); err != nil {
		return fmt.Errorf("decision tree %s: %w", path, err)
	}
	dt.nodes = artifact.Nodes
	dt.nFeatures = artifact.NFeatures
	return nil
}

func validateNodes(nodes []TreeNode, nFeatures int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidTree)
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || (nFeatures > 0 && node.FeatureIdx >= nFeatures) {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrInvalidTree, i, node.FeatureIdx)
		}
		if node.LeftChild <= 0 || node.LeftChild >= len(nodes) || node.RightChild <= 0 || node.RightChild >= len(nodes) {
			return fmt.Errorf("%w: node %d has children %d/%d", ErrInvalidTree, i, node.LeftChild, node.RightChild)
		}
	}
	return nil
}

func checkShape(features []float64, nFeatures int) error {
	if nFeatures > 0 && len(features) != nFeatures {
		return fmt.Errorf("%w: got %d, model expects %d", ErrFeatureShape, len(features), nFeatures)
	}
	return nil
}

func leafConfidence(node TreeNode) float64 {
	if len(node.Proba) == 0 {
		return 1
	}
	best := 0.0
	for _, p := range node.Proba {
		if p > best {
			best = p
		}
	}
	return best
}
