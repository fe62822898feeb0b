package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"stackml/pkg/model"
)

// Pipeline chains multiple transformers. It is itself a model.Transformer.
// An empty pipeline is the identity.
type Pipeline struct {
	steps []model.Transformer
}

func NewPipeline(steps ...model.Transformer) *Pipeline {
	return &Pipeline{steps: steps}
}

// Len returns the number of steps.
func (p *Pipeline) Len() int { return len(p.steps) }

// Fit fits each step on the output of the previous one.
func (p *Pipeline) Fit(X mat.Matrix, y []float64) error {
	cur := X
	for i, step := range p.steps {
		if err := step.Fit(cur, y); err != nil {
			return fmt.Errorf("pipeline step %d: %w", i, err)
		}
		if i == len(p.steps)-1 {
			break
		}
		out, err := step.Transform(cur)
		if err != nil {
			return fmt.Errorf("pipeline step %d: %w", i, err)
		}
		cur = out
	}
	return nil
}

func (p *Pipeline) Transform(X mat.Matrix) (*mat.Dense, error) {
	if len(p.steps) == 0 {
		return mat.DenseCopyOf(X), nil
	}
	cur := X
	var out *mat.Dense
	for i, step := range p.steps {
		var err error
		if out, err = step.Transform(cur); err != nil {
			return nil, fmt.Errorf("pipeline step %d: %w", i, err)
		}
		cur = out
	}
	return out, nil
}

// FitTransform fits p on X and returns the transformed X.
func (p *Pipeline) FitTransform(X mat.Matrix, y []float64) (*mat.Dense, error) {
	if err := p.Fit(X, y); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// Clone returns an unfitted copy of every step.
func (p *Pipeline) Clone() model.Transformer {
	steps := make([]model.Transformer, len(p.steps))
	for i, s := range p.steps {
		steps[i] = s.Clone()
	}
	return &Pipeline{steps: steps}
}
