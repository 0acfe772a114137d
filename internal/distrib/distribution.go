package distrib

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// FloatDist draws float64 values. Parameters are expressions, so they may
// vary with the frame index; the distribution itself is revalidated each
// draw because of that.
//
// JSON forms, tagged by "random-type":
//
//	{ "random-type": "constant-float", "value": {...} }
//	{ "random-type": "uniform-float", "min": {...}, "max": {...} }
//	{ "random-type": "normal", "mean": {...}, "sd": {...} }
//	{ "random-type": "exponential", "lifetime": {...} }
type FloatDist struct {
	kind string

	value    FloatExpr
	min, max FloatExpr
	mean, sd FloatExpr
	lifetime FloatExpr
}

// Distribution kind tags as they appear in configuration files.
const (
	KindConstantFloat = "constant-float"
	KindUniformFloat  = "uniform-float"
	KindNormal        = "normal"
	KindExponential   = "exponential"
	KindConstantInt   = "constant-int"
	KindUniformInt    = "uniform-int"
)

// ConstFloatDist returns a degenerate distribution around a literal. Used
// by tests and defaults.
func ConstFloatDist(v float64) FloatDist {
	return FloatDist{kind: KindConstantFloat, value: ConstFloat(v)}
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *FloatDist) UnmarshalJSON(data []byte) error {
	var raw struct {
		RandomType string     `json:"random-type"`
		Value      *FloatExpr `json:"value"`
		Min        *FloatExpr `json:"min"`
		Max        *FloatExpr `json:"max"`
		Mean       *FloatExpr `json:"mean"`
		SD         *FloatExpr `json:"sd"`
		Lifetime   *FloatExpr `json:"lifetime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("float distribution: %w", err)
	}
	switch raw.RandomType {
	case KindConstantFloat:
		if raw.Value == nil {
			return fmt.Errorf("%w: constant-float requires value", ErrBadDistribution)
		}
		*d = FloatDist{kind: raw.RandomType, value: *raw.Value}
	case KindUniformFloat:
		if raw.Min == nil || raw.Max == nil {
			return fmt.Errorf("%w: uniform-float requires min and max", ErrBadDistribution)
		}
		*d = FloatDist{kind: raw.RandomType, min: *raw.Min, max: *raw.Max}
	case KindNormal:
		if raw.Mean == nil || raw.SD == nil {
			return fmt.Errorf("%w: normal requires mean and sd", ErrBadDistribution)
		}
		*d = FloatDist{kind: raw.RandomType, mean: *raw.Mean, sd: *raw.SD}
	case KindExponential:
		if raw.Lifetime == nil {
			return fmt.Errorf("%w: exponential requires lifetime", ErrBadDistribution)
		}
		*d = FloatDist{kind: raw.RandomType, lifetime: *raw.Lifetime}
	default:
		return fmt.Errorf("%w: unknown random-type %q", ErrBadDistribution, raw.RandomType)
	}
	return nil
}

// Sample draws one value for the given frame index.
func (d FloatDist) Sample(rng *rand.Rand, frame int) (float64, error) {
	switch d.kind {
	case KindUniformFloat:
		lo, err := d.min.Value(frame)
		if err != nil {
			return 0, err
		}
		hi, err := d.max.Value(frame)
		if err != nil {
			return 0, err
		}
		if hi < lo {
			return 0, fmt.Errorf("%w: uniform-float min %v > max %v", ErrBadDistribution, lo, hi)
		}
		if hi == lo {
			return lo, nil
		}
		return distuv.Uniform{Min: lo, Max: hi, Src: rng}.Rand(), nil
	case KindNormal:
		mean, err := d.mean.Value(frame)
		if err != nil {
			return 0, err
		}
		sd, err := d.sd.Value(frame)
		if err != nil {
			return 0, err
		}
		if sd <= 0 {
			return 0, fmt.Errorf("%w: normal sd %v must be positive", ErrBadDistribution, sd)
		}
		return distuv.Normal{Mu: mean, Sigma: sd, Src: rng}.Rand(), nil
	case KindExponential:
		lifetime, err := d.lifetime.Value(frame)
		if err != nil {
			return 0, err
		}
		if lifetime <= 0 {
			return 0, fmt.Errorf("%w: exponential lifetime %v must be positive", ErrBadDistribution, lifetime)
		}
		return distuv.Exponential{Rate: 1 / lifetime, Src: rng}.Rand(), nil
	default:
		return d.value.Value(frame)
	}
}

// IntDist draws int values.
//
// JSON forms, tagged by "random-type":
//
//	{ "random-type": "constant-int", "value": {...} }
//	{ "random-type": "uniform-int", "min": {...}, "max": {...} }
type IntDist struct {
	kind     string
	value    IntExpr
	min, max IntExpr
}

// ConstIntDist returns a degenerate distribution around a literal.
func ConstIntDist(v int) IntDist {
	return IntDist{kind: KindConstantInt, value: ConstInt(v)}
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *IntDist) UnmarshalJSON(data []byte) error {
	var raw struct {
		RandomType string   `json:"random-type"`
		Value      *IntExpr `json:"value"`
		Min        *IntExpr `json:"min"`
		Max        *IntExpr `json:"max"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("int distribution: %w", err)
	}
	switch raw.RandomType {
	case KindConstantInt:
		if raw.Value == nil {
			return fmt.Errorf("%w: constant-int requires value", ErrBadDistribution)
		}
		*d = IntDist{kind: raw.RandomType, value: *raw.Value}
	case KindUniformInt:
		if raw.Min == nil || raw.Max == nil {
			return fmt.Errorf("%w: uniform-int requires min and max", ErrBadDistribution)
		}
		*d = IntDist{kind: raw.RandomType, min: *raw.Min, max: *raw.Max}
	default:
		return fmt.Errorf("%w: unknown random-type %q", ErrBadDistribution, raw.RandomType)
	}
	return nil
}

// Sample draws one value for the given frame index. The uniform variant
// draws from the half-open range [min, max).
func (d IntDist) Sample(rng *rand.Rand, frame int) (int, error) {
	switch d.kind {
	case KindUniformInt:
		lo, err := d.min.Value(frame)
		if err != nil {
			return 0, err
		}
		hi, err := d.max.Value(frame)
		if err != nil {
			return 0, err
		}
		if hi < lo {
			return 0, fmt.Errorf("%w: uniform-int min %v > max %v", ErrBadDistribution, lo, hi)
		}
		if hi == lo {
			return lo, nil
		}
		return lo + rng.Intn(hi-lo), nil
	default:
		return d.value.Value(frame)
	}
}
