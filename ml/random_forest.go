package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// RandomForest is an ensemble of decision trees sharing one class list.
// When every reached leaf carries a class distribution the forest averages
// them; otherwise it falls back to a majority vote over leaf labels.
type RandomForest struct {
	trees     []*DecisionTree
	classes   []int
	nFeatures int
}

type forestArtifact struct {
	NFeatures int          `json:"n_features"`
	Classes   []int        `json:"classes,omitempty"`
	Trees     [][]TreeNode `json:"trees"`
}

func NewRandomForest(trees [][]TreeNode, classes []int, nFeatures int) (*RandomForest, error) {
	rf := &RandomForest{}
	if err := rf.init(forestArtifact{NFeatures: nFeatures, Classes: classes, Trees: trees}); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RandomForest) NumFeatures() int {
	return rf.nFeatures
}

func (rf *RandomForest) Classes() []int {
	return append([]int(nil), rf.classes...)
}

func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	if len(rf.trees) == 0 {
		return 0, 0, ErrNotLoaded
	}
	if err := checkShape(features, rf.nFeatures); err != nil {
		return 0, 0, err
	}

	leaves := make([]TreeNode, len(rf.trees))
	soft := true
	for i, tree := range rf.trees {
		leaf, err := tree.leaf(features)
		if err != nil {
			return 0, 0, fmt.Errorf("tree %d: %w", i, err)
		}
		leaves[i] = leaf
		if len(leaf.Proba) != len(rf.classes) {
			soft = false
		}
	}

	scores := make([]float64, len(rf.classes))
	for _, leaf := range leaves {
		if soft {
			for c, p := range leaf.Proba {
				scores[c] += p
			}
			continue
		}
		c := rf.classIndex(leaf.ClassLabel)
		if c < 0 {
			return 0, 0, fmt.Errorf("%w: leaf label %d not in classes %v", ErrInvalidTree, leaf.ClassLabel, rf.classes)
		}
		scores[c]++
	}

	best := 0
	for c := 1; c < len(scores); c++ {
		if scores[c] > scores[best] {
			best = c
		}
	}
	return rf.classes[best], scores[best] / float64(len(leaves)), nil
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrNotLoaded
	}
	artifact := forestArtifact{NFeatures: rf.nFeatures, Classes: rf.classes}
	for _, tree := range rf.trees {
		artifact.Trees = append(artifact.Trees, tree.nodes)
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (rf *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact forestArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("decode random forest %s: %w", path, err)
	}
	if err := rf.init(artifact); err != nil {
		return fmt.Errorf("random forest %s: %w", path, err)
	}
	return nil
}

func (rf *RandomForest) init(artifact forestArtifact) error {
	if len(artifact.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrInvalidTree)
	}
	trees := make([]*DecisionTree, len(artifact.Trees))
	for i, nodes := range artifact.Trees {
		tree, err := NewDecisionTree(nodes, artifact.NFeatures)
		if err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = tree
	}
	classes := artifact.Classes
	if len(classes) == 0 {
		classes = leafLabels(artifact.Trees)
	}
	rf.trees = trees
	rf.classes = classes
	rf.nFeatures = artifact.NFeatures
	return nil
}

func (rf *RandomForest) classIndex(label int) int {
	for i, c := range rf.classes {
		if c == label {
			return i
		}
	}
	return -1
}

func leafLabels(trees [][]TreeNode) []int {
	seen := make(map[int]bool)
	for _, nodes := range trees {
		for _, node := range nodes {
			if node.IsLeaf {
				seen[node.ClassLabel] = true
			}
		}
	}
	labels := make([]int, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	return labels
}
