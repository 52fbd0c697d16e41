package estimate

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// Status is the termination reason of a local search.
type Status string

const (
	StatusConvergedPGTol        Status = "converged_pgtol"
	StatusConvergedRelReduction Status = "converged_rel_reduction"
	StatusMaxIterations         Status = "max_iterations"
	StatusMaxFuncEvals          Status = "max_func_evals"
	StatusLineSearchFailed      Status = "abnormal_line_search"
	StatusInfeasibleStart       Status = "infeasible_start"
	StatusNonFiniteGradient     Status = "nonfinite_gradient"
	StatusZeroStep              Status = "zero_projected_step"
)

// Converged reports whether the search stopped on a convergence test.
func (s Status) Converged() bool {
	return s == StatusConvergedPGTol || s == StatusConvergedRelReduction
}

// Message is a human-readable description of the status.
func (s Status) Message() string {
	switch s {
	case StatusConvergedPGTol:
		return "CONVERGENCE: NORM OF PROJECTED GRADIENT <= PGTOL"
	case StatusConvergedRelReduction:
		return "CONVERGENCE: REL_REDUCTION_OF_F <= FACTR*EPSMCH"
	case StatusMaxIterations:
		return "STOP: TOTAL NO. OF ITERATIONS REACHED LIMIT"
	case StatusMaxFuncEvals:
		return "STOP: TOTAL NO. OF F,G EVALUATIONS EXCEEDS LIMIT"
	case StatusLineSearchFailed:
		return "ABNORMAL_TERMINATION_IN_LNSRCH"
	case StatusInfeasibleStart:
		return "ABNORMAL: OBJECTIVE NOT FINITE AT START"
	case StatusNonFiniteGradient:
		return "ABNORMAL: GRADIENT NOT FINITE"
	case StatusZeroStep:
		return "ABNORMAL: PROJECTED SEARCH STEP IS ZERO"
	default:
		return string(s)
	}
}

// LocalSettings tunes the bounded quasi-Newton search.
type LocalSettings struct {
	MaxIterations int
	MaxFuncEvals  int
	Memory        int     // number of correction pairs kept
	PGTol         float64 // projected-gradient infinity-norm tolerance
	FTol          float64 // relative reduction tolerance
	Step          float64 // forward-difference step
	MaxLineSearch int
}

const machineEpsilon = 2.220446049250313e-16

// DefaultLocalSettings mirrors the usual L-BFGS-B defaults with a 10000
// iteration budget.
func DefaultLocalSettings() LocalSettings {
	return LocalSettings{
		MaxIterations: 10000,
		MaxFuncEvals:  15000,
		Memory:        10,
		PGTol:         1e-5,
		FTol:          1e7 * machineEpsilon,
		Step:          1e-8,
		MaxLineSearch: 20,
	}
}

func (s LocalSettings) withDefaults() LocalSettings {
	d := DefaultLocalSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.MaxFuncEvals <= 0 {
		s.MaxFuncEvals = d.MaxFuncEvals
	}
	if s.Memory <= 0 {
		s.Memory = d.Memory
	}
	if s.PGTol <= 0 {
		s.PGTol = d.PGTol
	}
	if s.FTol <= 0 {
		s.FTol = d.FTol
	}
	if s.Step <= 0 {
		s.Step = d.Step
	}
	if s.MaxLineSearch <= 0 {
		s.MaxLineSearch = d.MaxLineSearch
	}
	return s
}

// LocalResult is the point a local search stopped at.
type LocalResult struct {
	X            []float64
	F            float64
	Grad         []float64
	Iterations   int
	FuncEvals    int
	GradEvals    int
	ProjGradNorm float64
	Status       Status
}

// armijo is the sufficient-decrease constant of the backtracking search.
const armijo = 1e-4

// Minimize runs a projected limited-memory BFGS search for a minimum of f
// inside the box [lower, upper], starting from x0 (projected onto the box).
// f may return +Inf; such points are treated as infeasible.
func Minimize(f func([]float64) float64, x0, lower, upper []float64, settings LocalSettings) LocalResult {
	b := &boxSearch{
		f:     f,
		lower: lower,
		upper: upper,
		s:     settings.withDefaults(),
	}
	return b.run(x0)
}

type boxSearch struct {
	f            func([]float64) float64
	lower, upper []float64
	s            LocalSettings

	nf, ng int
	sHist  [][]float64
	yHist  [][]float64
	rho    []float64
}

func (b *boxSearch) run(x0 []float64) LocalResult {
	n := len(x0)
	x := make([]float64, n)
	b.project(x, x0)

	fx := b.eval(x)
	res := LocalResult{X: x, F: fx}
	if !isFinite(fx) {
		res.Status = StatusInfeasibleStart
		return b.finish(res)
	}

	g := b.gradient(x, fx)
	res.Grad = g
	if !allFinite(g) {
		res.Status = StatusNonFiniteGradient
		return b.finish(res)
	}

	d := make([]float64, n)
	xn := make([]float64, n)
	step := make([]float64, n)
	for {
		res.ProjGradNorm = b.projGradNorm(x, g)
		if res.ProjGradNorm <= b.s.PGTol {
			res.Status = StatusConvergedPGTol
			break
		}
		if res.Iterations >= b.s.MaxIterations {
			res.Status = StatusMaxIterations
			break
		}
		if b.nf >= b.s.MaxFuncEvals {
			res.Status = StatusMaxFuncEvals
			break
		}

		active := b.activeSet(x, g)
		b.direction(d, g, active)
		if floats.Dot(d, g) >= 0 {
			// Lost descent; fall back to steepest descent with fresh memory.
			b.resetHistory()
			b.direction(d, g, active)
		}

		t := 1.0
		if len(b.sHist) == 0 {
			if nrm := floats.Norm(d, 2); nrm > 1 {
				t = 1 / nrm
			}
		}

		fn, ok, moved := b.lineSearch(x, fx, g, d, t, xn, step)
		if !moved {
			// A badly scaled quasi-Newton step can round to no movement;
			// retry once from steepest descent.
			if len(b.sHist) > 0 {
				b.resetHistory()
				continue
			}
			res.Status = StatusZeroStep
			break
		}
		if !ok {
			res.Status = StatusLineSearchFailed
			break
		}
		res.Iterations++

		gn := b.gradient(xn, fn)
		if !allFinite(gn) {
			copy(x, xn)
			res.F = fn
			res.Status = StatusNonFiniteGradient
			break
		}

		y := make([]float64, n)
		floats.SubTo(y, gn, g)
		b.pushHistory(append([]float64(nil), step...), y)

		reduction := fx - fn
		scale := math.Max(math.Max(math.Abs(fx), math.Abs(fn)), 1)
		copy(x, xn)
		fx, g = fn, gn
		res.F, res.Grad = fx, g
		if reduction <= b.s.FTol*scale {
			res.ProjGradNorm = b.projGradNorm(x, g)
			res.Status = StatusConvergedRelReduction
			break
		}
	}
	return b.finish(res)
}

func (b *boxSearch) finish(res LocalResult) LocalResult {
	res.FuncEvals = b.nf
	res.GradEvals = b.ng
	return res
}

// lineSearch backtracks along the projected path x + t*d until the Armijo
// condition holds. moved is false when the projected step is zero.
func (b *boxSearch) lineSearch(x []float64, fx float64, g, d []float64, t float64, xn, step []float64) (fn float64, ok, moved bool) {
	for ls := 0; ls < b.s.MaxLineSearch; ls++ {
		floats.AddScaledTo(xn, x, t, d)
		b.project(xn, xn)
		floats.SubTo(step, xn, x)
		if floats.Norm(step, math.Inf(1)) == 0 {
			return fx, false, ls > 0
		}
		moved = true

		fn = b.eval(xn)
		if isFinite(fn) && fn <= fx+armijo*floats.Dot(g, step) {
			return fn, true, true
		}
		if b.nf >= b.s.MaxFuncEvals {
			return fn, false, true
		}
		if isFinite(fn) {
			t *= 0.5
		} else {
			t *= 0.1
		}
	}
	return fn, false, moved
}

// direction writes the two-loop L-BFGS direction -H*g into d with active
// bound components held at zero.
func (b *boxSearch) direction(d, g []float64, active []bool) {
	q := append([]float64(nil), g...)
	zeroActive(q, active)

	m := len(b.sHist)
	alpha := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		alpha[i] = b.rho[i] * floats.Dot(b.sHist[i], q)
		floats.AddScaled(q, -alpha[i], b.yHist[i])
	}
	if m > 0 {
		yy := floats.Dot(b.yHist[m-1], b.yHist[m-1])
		floats.Scale(floats.Dot(b.sHist[m-1], b.yHist[m-1])/yy, q)
	}
	for i := 0; i < m; i++ {
		beta := b.rho[i] * floats.Dot(b.yHist[i], q)
		floats.AddScaled(q, alpha[i]-beta, b.sHist[i])
	}

	copy(d, q)
	floats.Scale(-1, d)
	zeroActive(d, active)
}

func (b *boxSearch) pushHistory(s, y []float64) {
	sy := floats.Dot(s, y)
	if sy <= machineEpsilon*floats.Dot(y, y) {
		return
	}
	if len(b.sHist) == b.s.Memory {
		b.sHist, b.yHist, b.rho = b.sHist[1:], b.yHist[1:], b.rho[1:]
	}
	b.sHist = append(b.sHist, s)
	b.yHist = append(b.yHist, y)
	b.rho = append(b.rho, 1/sy)
}

func (b *boxSearch) resetHistory() {
	b.sHist, b.yHist, b.rho = nil, nil, nil
}

func (b *boxSearch) eval(x []float64) float64 {
	b.nf++
	return b.f(x)
}

func (b *boxSearch) gradient(x []float64, fx float64) []float64 {
	b.ng++
	b.nf += len(x)
	return fd.Gradient(nil, b.f, x, &fd.Settings{
		Formula:     fd.Forward,
		Step:        b.s.Step,
		OriginKnown: true,
		OriginValue: fx,
	})
}

func (b *boxSearch) project(dst, x []float64) {
	for i := range x {
		dst[i] = math.Min(math.Max(x[i], b.lower[i]), b.upper[i])
	}
}

// activeSet marks variables pinned at a bound by a gradient pointing out
// of the box.
func (b *boxSearch) activeSet(x, g []float64) []bool {
	active := make([]bool, len(x))
	for i := range x {
		active[i] = (x[i] <= b.lower[i] && g[i] > 0) || (x[i] >= b.upper[i] && g[i] < 0)
	}
	return active
}

func (b *boxSearch) projGradNorm(x, g []float64) float64 {
	var nrm float64
	for i := range x {
		pg := math.Min(math.Max(x[i]-g[i], b.lower[i]), b.upper[i]) - x[i]
		nrm = math.Max(nrm, math.Abs(pg))
	}
	return nrm
}

func zeroActive(v []float64, active []bool) {
	for i, a := range active {
		if a {
			v[i] = 0
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !isFinite(x) {
			return false
		}
	}
	return true
}
