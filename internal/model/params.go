package model

import "math"

// Params is the model parameter vector: hyperbolic discount rate K and
// softmax inverse temperature M.
type Params struct {
	K float64 `json:"k" yaml:"k"`
	M float64 `json:"m" yaml:"m"`
}

// Vector returns the parameters as [k, m].
func (p Params) Vector() []float64 {
	return []float64{p.K, p.M}
}

// ParamsFromVector is the inverse of Params.Vector.
func ParamsFromVector(x []float64) Params {
	return Params{K: x[0], M: x[1]}
}

// Bounds is the closed feasible box for a parameter vector.
type Bounds struct {
	KMin float64 `json:"k_min" yaml:"k_min" mapstructure:"k_min"`
	KMax float64 `json:"k_max" yaml:"k_max" mapstructure:"k_max"`
	MMin float64 `json:"m_min" yaml:"m_min" mapstructure:"m_min"`
	MMax float64 `json:"m_max" yaml:"m_max" mapstructure:"m_max"`
}

// DefaultBounds is k in [0, 1], m in [0, 200].
var DefaultBounds = Bounds{KMin: 0, KMax: 1, MMin: 0, MMax: 200}

// Lower returns the lower corner as a vector.
func (b Bounds) Lower() []float64 { return []float64{b.KMin, b.MMin} }

// Upper returns the upper corner as a vector.
func (b Bounds) Upper() []float64 { return []float64{b.KMax, b.MMax} }

// Contains reports whether p lies inside the box.
func (b Bounds) Contains(p Params) bool {
	return p.K >= b.KMin && p.K <= b.KMax && p.M >= b.MMin && p.M <= b.MMax
}

// Clamp projects p onto the box.
func (b Bounds) Clamp(p Params) Params {
	return Params{
		K: math.Min(math.Max(p.K, b.KMin), b.KMax),
		M: math.Min(math.Max(p.M, b.MMin), b.MMax),
	}
}
