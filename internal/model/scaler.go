package model

import "fmt"

// Scaler applies the fitted standardisation (x - mean) / scale.
type Scaler struct {
	mean  []float64
	scale []float64
}

func newScaler(p ScalerParams) (*Scaler, error) {
	if len(p.Mean) != len(p.Scale) {
		return nil, fmt.Errorf("%w: scaler mean has %d values, scale has %d", ErrMalformed, len(p.Mean), len(p.Scale))
	}
	scale := make([]float64, len(p.Scale))
	for i, s := range p.Scale {
		// zero variance columns are left unscaled
		if s == 0 {
			s = 1
		}
		scale[i] = s
	}
	mean := make([]float64, len(p.Mean))
	copy(mean, p.Mean)
	return &Scaler{mean: mean, scale: scale}, nil
}

// Dim is the number of features the scaler was fitted on.
func (s *Scaler) Dim() int { return len(s.mean) }

// Transform returns a standardised copy of x.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.mean) {
		return nil, fmt.Errorf("%w: scaler expects %d, got %d", ErrDimension, len(s.mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}
