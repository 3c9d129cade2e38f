package workload

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	DistConstant    = "constant"
	DistUniform     = "uniform"
	DistGaussian    = "gaussian"
	DistExponential = "exponential"
)

// Sampler draws positive values for demand amounts and durations.
type Sampler interface {
	Sample(rng *rand.Rand) float64
}

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 { return s.value }

// UniformSampler draws from [min, max).
type UniformSampler struct {
	min, max float64
}

func (s *UniformSampler) Sample(rng *rand.Rand) float64 {
	if s.min == s.max {
		return s.min
	}
	return s.min + rng.Float64()*(s.max-s.min)
}

// GaussianSampler produces a normal draw clamped to [min, max].
type GaussianSampler struct {
	mean, stdDev float64
	min, max     float64
}

func (s *GaussianSampler) Sample(rng *rand.Rand) float64 {
	if s.min == s.max {
		return s.min
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	return math.Min(s.max, math.Max(s.min, val))
}

// ExponentialSampler produces exponentially-distributed values.
type ExponentialSampler struct {
	mean float64
}

func (s *ExponentialSampler) Sample(rng *rand.Rand) float64 {
	return rng.ExpFloat64() * s.mean
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	for name, val := range params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("params.%s must be a finite number, got %f", name, val)
		}
	}
	return nil
}

// NewSampler creates a Sampler from a DistSpec. Every distribution must be
// confined to positive values.
func NewSampler(spec DistSpec) (Sampler, error) {
	p := spec.Params
	switch spec.Type {
	case DistConstant:
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		if p["value"] <= 0 {
			return nil, fmt.Errorf("constant value must be positive, got %f", p["value"])
		}
		return &ConstantSampler{value: p["value"]}, nil

	case DistUniform:
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["min"] <= 0 || p["max"] < p["min"] {
			return nil, fmt.Errorf("uniform requires 0 < min <= max, got [%f, %f]", p["min"], p["max"])
		}
		return &UniformSampler{min: p["min"], max: p["max"]}, nil

	case DistGaussian:
		if err := requireParam(p, "mean", "std_dev", "min", "max"); err != nil {
			return nil, err
		}
		if p["min"] <= 0 || p["max"] < p["min"] || p["std_dev"] < 0 {
			return nil, fmt.Errorf("gaussian requires 0 < min <= max and std_dev >= 0")
		}
		return &GaussianSampler{mean: p["mean"], stdDev: p["std_dev"], min: p["min"], max: p["max"]}, nil

	case DistExponential:
		if err := requireParam(p, "mean"); err != nil {
			return nil, err
		}
		if p["mean"] <= 0 {
			return nil, fmt.Errorf("exponential mean must be positive, got %f", p["mean"])
		}
		return &ExponentialSampler{mean: p["mean"]}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q; valid: constant, uniform, gaussian, exponential", spec.Type)
	}
}
