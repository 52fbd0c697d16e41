package estimate

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fitk/internal/model"
)

func sampleTrials() model.Trials {
	return model.Trials{
		{SSAmount: 10, SSDelay: 0, LLAmount: 20, LLDelay: 30, Choice: model.ChoiceLL},
		{SSAmount: 10, SSDelay: 0, LLAmount: 12, LLDelay: 45, Choice: model.ChoiceSS},
		{SSAmount: 20, SSDelay: 15, LLAmount: 30, LLDelay: 40, Choice: model.ChoiceLL},
		{SSAmount: 20, SSDelay: 0, LLAmount: 22, LLDelay: 20, Choice: model.ChoiceSS},
		{SSAmount: 10, SSDelay: 15, LLAmount: 10, LLDelay: 16, Choice: model.ChoiceSS},
	}
}

// boundaryTrials is a set where every choice is LL and the value difference
// is positive for k near zero.
func boundaryTrials() model.Trials {
	var ts model.Trials
	for range 10 {
		ts = append(ts,
			model.Trial{SSAmount: 20, SSDelay: 0, LLAmount: 40, LLDelay: 60, Choice: model.ChoiceLL},
			model.Trial{SSAmount: 20, SSDelay: 15, LLAmount: 40, LLDelay: 30, Choice: model.ChoiceLL},
		)
	}
	return ts
}

func TestSubjectiveValue_ZeroDelay(t *testing.T) {
	for _, k := range []float64{0, 0.02, 0.5, 1} {
		assert.Equal(t, 25.0, SubjectiveValue(25, 0, k))
	}
}

func TestSubjectiveValue_NonIncreasing(t *testing.T) {
	ks := []float64{0, 0.001, 0.02, 0.1, 0.5, 1}
	ds := []float64{0, 1, 7, 30, 90, 365}

	for _, k := range ks {
		for i := 1; i < len(ds); i++ {
			assert.LessOrEqual(t, SubjectiveValue(40, ds[i], k), SubjectiveValue(40, ds[i-1], k),
				"V should not increase in d (k=%g)", k)
		}
	}
	for _, d := range ds {
		for i := 1; i < len(ks); i++ {
			assert.LessOrEqual(t, SubjectiveValue(40, d, ks[i]), SubjectiveValue(40, d, ks[i-1]),
				"V should not increase in k (d=%g)", d)
		}
	}
}

func TestProbLL_Complement(t *testing.T) {
	for _, tr := range sampleTrials() {
		for _, p := range []model.Params{{K: 0, M: 0}, {K: 0.02, M: 5}, {K: 1, M: 200}, {K: 0.3, M: 0.7}} {
			pll := ProbLL(tr, p)
			pss := 1 / (1 + math.Exp(p.M*ValueDifference(tr, p.K)))
			assert.InDelta(t, 1.0, pll+pss, 1e-12)
		}
	}
}

func TestProbLL_ZeroSensitivity(t *testing.T) {
	for _, tr := range sampleTrials() {
		for _, k := range []float64{0, 0.02, 1} {
			assert.Equal(t, 0.5, ProbLL(tr, model.Params{K: k, M: 0}))
		}
	}
}

func TestProbLL_SharpensWithM(t *testing.T) {
	ms := []float64{0, 0.1, 1, 5, 20, 200}
	for _, tr := range sampleTrials() {
		if ValueDifference(tr, 0.02) == 0 {
			continue
		}
		prev := 0.0
		for _, m := range ms {
			dist := math.Abs(ProbLL(tr, model.Params{K: 0.02, M: m}) - 0.5)
			assert.GreaterOrEqual(t, dist, prev, "m=%g", m)
			prev = dist
		}
	}
}

func TestCost_ZeroSensitivity(t *testing.T) {
	ts := sampleTrials()
	e := NewEvaluator(ts)
	assert.InDelta(t, float64(len(ts))*math.Ln2, e.Cost(model.Params{K: 0.5, M: 0}), 1e-12)
}

func TestCost_MatchesManualSum(t *testing.T) {
	ts := sampleTrials()
	p := model.Params{K: 0.02, M: 1.5}

	var want float64
	for _, tr := range ts {
		pll := ProbLL(tr, p)
		if tr.Choice == model.ChoiceLL {
			want -= math.Log(pll)
		} else {
			want -= math.Log(1 - pll)
		}
	}

	e := NewEvaluator(ts)
	assert.InDelta(t, want, e.Cost(p), 1e-12)
	assert.InDelta(t, -want, e.LogLikelihood(p), 1e-12)
	assert.Equal(t, e.Cost(p), e.Objective(p.Vector()))
}

func TestCost_DegenerateLLChoice(t *testing.T) {
	// LL is worth far less than SS, so p_LL underflows to exactly 0.
	ts := model.Trials{{SSAmount: 50, SSDelay: 0, LLAmount: 10, LLDelay: 30, Choice: model.ChoiceLL}}
	e := NewEvaluator(ts)

	require.Equal(t, 0.0, ProbLL(ts[0], model.Params{K: 0, M: 200}))
	assert.True(t, math.IsInf(e.Cost(model.Params{K: 0, M: 200}), 1))
}

func TestCost_DegenerateSSChoice(t *testing.T) {
	ts := model.Trials{{SSAmount: 10, SSDelay: 0, LLAmount: 50, LLDelay: 1, Choice: model.ChoiceSS}}
	e := NewEvaluator(ts)

	require.Equal(t, 1.0, ProbLL(ts[0], model.Params{K: 0, M: 200}))
	assert.True(t, math.IsInf(e.Cost(model.Params{K: 0, M: 200}), 1))
}

func TestCost_DegenerateEpsilon(t *testing.T) {
	ts := model.Trials{{SSAmount: 10, SSDelay: 0, LLAmount: 12, LLDelay: 0, Choice: model.ChoiceSS}}
	p := model.Params{K: 0, M: 10} // p_LL = 1/(1+e^-20), close to but below 1

	exact := NewEvaluator(ts)
	assert.False(t, math.IsInf(exact.Cost(p), 1))

	guarded := NewEvaluator(ts, WithDegenerateEpsilon(1e-6))
	assert.True(t, math.IsInf(guarded.Cost(p), 1))

	// Non-positive epsilon keeps exact equality.
	assert.Equal(t, exact.Cost(p), NewEvaluator(ts, WithDegenerateEpsilon(-1)).Cost(p))
}

func TestCost_BoundaryScenario(t *testing.T) {
	e := NewEvaluator(boundaryTrials())

	for _, k := range []float64{0, 1e-12, 1e-6, 1e-3} {
		for _, m := range []float64{0, 1, 50, 200} {
			cost := e.Cost(model.Params{K: k, M: m})
			assert.False(t, math.IsNaN(cost), "k=%g m=%g", k, m)
			assert.False(t, math.IsInf(cost, 0), "k=%g m=%g", k, m)
			assert.GreaterOrEqual(t, cost, 0.0)
		}
	}

	// p_LL reaches 1 at k=0 and m=200; the LL choices then cost nothing.
	for _, tr := range boundaryTrials() {
		assert.Equal(t, 1.0, ProbLL(tr, model.Params{K: 0, M: 200}))
	}
	assert.Equal(t, 0.0, e.Cost(model.Params{K: 0, M: 200}))
}

func TestCost_BitIdenticalRepeats(t *testing.T) {
	e := NewEvaluator(sampleTrials())
	p := model.Params{K: 0.0173, M: 3.91}
	first := e.Cost(p)

	var wg sync.WaitGroup
	results := make([]float64, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.Cost(p)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, math.Float64bits(first), math.Float64bits(r))
	}
}

func TestEvaluator_Trials(t *testing.T) {
	ts := sampleTrials()
	assert.Equal(t, ts, NewEvaluator(ts).Trials())
}
