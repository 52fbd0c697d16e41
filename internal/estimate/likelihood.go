// Package estimate fits a hyperbolic-discounting softmax choice model to
// intertemporal choice data by multi-start bounded maximum likelihood.
package estimate

import (
	"math"

	"github.com/sells-group/fitk/internal/model"
)

// SubjectiveValue is the hyperbolically discounted value r / (1 + k*d).
func SubjectiveValue(r, d, k float64) float64 {
	return r / (1 + k*d)
}

// ValueDifference is V(r2, d2) - V(r1, d1) for trial t under discount rate k.
func ValueDifference(t model.Trial, k float64) float64 {
	return SubjectiveValue(t.LLAmount, t.LLDelay, k) - SubjectiveValue(t.SSAmount, t.SSDelay, k)
}

// ProbLL is the softmax probability of choosing the larger-later option.
func ProbLL(t model.Trial, p model.Params) float64 {
	return 1 / (1 + math.Exp(-p.M*ValueDifference(t, p.K)))
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithDegenerateEpsilon widens the degenerate-probability guard from exact
// equality to p_LL <= eps for LL choices and p_LL >= 1-eps for SS choices.
func WithDegenerateEpsilon(eps float64) EvaluatorOption {
	return func(e *Evaluator) {
		if eps > 0 {
			e.eps = eps
		}
	}
}

// Evaluator computes the negative log-likelihood of a fixed trial set.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	trials model.Trials
	eps    float64
}

// NewEvaluator binds a trial set. The slice must not be modified while
// the evaluator is in use.
func NewEvaluator(trials model.Trials, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{trials: trials}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Trials returns the bound trial set.
func (e *Evaluator) Trials() model.Trials {
	return e.trials
}

// Cost returns the negative log-likelihood of the observed choices at p.
// A choice the model assigns probability zero makes the cost +Inf.
func (e *Evaluator) Cost(p model.Params) float64 {
	var ll float64
	for _, t := range e.trials {
		pll := ProbLL(t, p)
		if e.degenerate(t.Choice, pll) {
			return math.Inf(1)
		}
		if t.Choice == model.ChoiceLL {
			ll += math.Log(pll)
		} else {
			ll += math.Log(1 - pll)
		}
	}
	return -ll
}

// LogLikelihood is -Cost(p).
func (e *Evaluator) LogLikelihood(p model.Params) float64 {
	return -e.Cost(p)
}

// Objective adapts Cost to a vector function of [k, m].
func (e *Evaluator) Objective(x []float64) float64 {
	return e.Cost(model.ParamsFromVector(x))
}

func (e *Evaluator) degenerate(c model.Choice, pll float64) bool {
	if c == model.ChoiceLL {
		return pll <= e.eps
	}
	return pll >= 1-e.eps
}
