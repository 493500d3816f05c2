package lightgbm

// Node represents a single node in a decision tree. Leaves have
// LeftChild == RightChild == -1.
type Node struct {
	LeftChild  int
	RightChild int

	// Split information (for non-leaf nodes)
	SplitFeature int     // Feature index used for splitting
	Threshold    float64 // Samples with x[SplitFeature] <= Threshold go left
	Gain         float64 // Split gain (reduction in loss)

	// Leaf information (for leaf nodes)
	LeafValue float64 // Unshrunk Newton step of the samples at the node
	LeafCount int     // Number of bagged samples at the node
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree represents a single decision tree in the ensemble
type Tree struct {
	TreeIndex     int     // Index of the tree in ensemble
	NumLeaves     int     // Number of leaf nodes
	ShrinkageRate float64 // Learning rate applied to this tree

	Nodes []Node // Node 0 is the root
}

// Predict makes a prediction for a single sample using this tree
func (t *Tree) Predict(features []float64) float64 {
	return t.predict(func(j int) float64 { return features[j] })
}

func (t *Tree) predict(at func(feature int) float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	node := &t.Nodes[0]
	for !node.IsLeaf() {
		if at(node.SplitFeature) <= node.Threshold {
			node = &t.Nodes[node.LeftChild]
		} else {
			node = &t.Nodes[node.RightChild]
		}
	}
	return node.LeafValue * t.ShrinkageRate
}

// Model represents a complete boosted ensemble
type Model struct {
	NumIteration int     // Number of boosting iterations
	LearningRate float64 // Base learning rate
	NumLeaves    int     // Maximum number of leaves per tree
	MaxDepth     int     // Maximum tree depth

	Trees []Tree

	NumFeatures       int
	FeatureImportance []float64 // Split gain per feature, normalized to sum to 1

	InitScore float64 // Mean of the training target
}

// Predict returns InitScore plus the shrunk output of every tree.
func (m *Model) Predict(features []float64) float64 {
	pred := m.InitScore
	for i := range m.Trees {
		pred += m.Trees[i].Predict(features)
	}
	return pred
}
