package model

import "fmt"

const leaf = -1

type tree struct {
	left, right []int
	feature     []int
	threshold   []float64
	proba       [][]float64 // per-node class distribution, normalised
}

// Forest is a fitted random forest. Its prediction is the class with the
// highest mean leaf probability across trees.
type Forest struct {
	classes []int
	trees   []tree
	dim     int
}

func newForest(p ForestParams, dim int) (*Forest, error) {
	if len(p.Classes) < 2 {
		return nil, fmt.Errorf("%w: forest needs at least 2 classes, has %d", ErrMalformed, len(p.Classes))
	}
	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("%w: forest has no trees", ErrMalformed)
	}
	f := &Forest{classes: append([]int(nil), p.Classes...), dim: dim}
	for i, tp := range p.Trees {
		t, err := newTree(tp, len(p.Classes), dim)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		f.trees = append(f.trees, t)
	}
	return f, nil
}

func newTree(p TreeParams, nClasses, dim int) (tree, error) {
	n := len(p.ChildrenLeft)
	if n == 0 {
		return tree{}, fmt.Errorf("%w: empty tree", ErrMalformed)
	}
	if len(p.ChildrenRight) != n || len(p.Feature) != n || len(p.Threshold) != n || len(p.Value) != n {
		return tree{}, fmt.Errorf("%w: node arrays differ in length", ErrMalformed)
	}
	t := tree{
		left:      p.ChildrenLeft,
		right:     p.ChildrenRight,
		feature:   p.Feature,
		threshold: p.Threshold,
		proba:     make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		if t.left[i] == leaf {
			if len(p.Value[i]) != nClasses {
				return tree{}, fmt.Errorf("%w: node %d has %d class values, want %d", ErrMalformed, i, len(p.Value[i]), nClasses)
			}
			t.proba[i] = normalise(p.Value[i])
			continue
		}
		// children always come after their parent, which also rules out cycles
		if t.left[i] <= i || t.left[i] >= n || t.right[i] <= i || t.right[i] >= n {
			return tree{}, fmt.Errorf("%w: node %d has invalid children", ErrMalformed, i)
		}
		if t.feature[i] < 0 || t.feature[i] >= dim {
			return tree{}, fmt.Errorf("%w: node %d splits on feature %d of %d", ErrMalformed, i, t.feature[i], dim)
		}
	}
	return t, nil
}

func normalise(v []float64) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}

func (t *tree) leafProba(x []float64) []float64 {
	node := 0
	for t.left[node] != leaf {
		if x[t.feature[node]] <= t.threshold[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.proba[node]
}

// Classes returns the class labels in probability order.
func (f *Forest) Classes() []int { return f.classes }

// NumTrees is the number of trees in the forest.
func (f *Forest) NumTrees() int { return len(f.trees) }

// PredictProba averages the leaf class distributions over all trees.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.dim {
		return nil, fmt.Errorf("%w: forest expects %d, got %d", ErrDimension, f.dim, len(x))
	}
	out := make([]float64, len(f.classes))
	for i := range f.trees {
		for c, p := range f.trees[i].leafProba(x) {
			out[c] += p
		}
	}
	for c := range out {
		out[c] /= float64(len(f.trees))
	}
	return out, nil
}

// Predict returns the label of the most probable class. Ties go to the
// lower class index.
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return f.classes[best], nil
}
