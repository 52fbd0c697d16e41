// Package simulate generates synthetic intertemporal choice data from known
// model parameters.
package simulate

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitk/internal/estimate"
	"github.com/sells-group/fitk/internal/model"
)

// Offer is a reward amount at a delay in days.
type Offer struct {
	Amount float64 `json:"amount" yaml:"amount" mapstructure:"amount"`
	Delay  float64 `json:"delay" yaml:"delay" mapstructure:"delay"`
}

// Design controls how synthetic offers are laid out.
type Design struct {
	// SSOffers are the smaller-sooner options, picked uniformly per trial.
	SSOffers []Offer
	// LL delays are drawn uniformly from [LLDelayMin, LLDelayMax] days.
	LLDelayMin int
	LLDelayMax int
	// The LL amount is set so that, under the generating parameters, the
	// value difference V(LL)-V(SS) is uniform in [-ValueSpread/m, ValueSpread/m].
	ValueSpread float64
}

// DefaultDesign uses the staircase task's SS menu and LL delays of 16-45 days.
func DefaultDesign() Design {
	return Design{
		SSOffers: []Offer{
			{Amount: 10, Delay: 0},
			{Amount: 10, Delay: 15},
			{Amount: 20, Delay: 0},
			{Amount: 20, Delay: 15},
		},
		LLDelayMin:  16,
		LLDelayMax:  45,
		ValueSpread: 3,
	}
}

func (d Design) validate() error {
	switch {
	case len(d.SSOffers) == 0:
		return eris.New("simulate: design has no SS offers")
	case d.LLDelayMin < 0 || d.LLDelayMax < d.LLDelayMin:
		return eris.Errorf("simulate: invalid LL delay range [%d, %d]", d.LLDelayMin, d.LLDelayMax)
	case d.ValueSpread <= 0:
		return eris.Errorf("simulate: value spread must be positive (got %g)", d.ValueSpread)
	}
	for _, o := range d.SSOffers {
		if o.Amount <= 0 || o.Delay < 0 {
			return eris.Errorf("simulate: invalid SS offer %+v", o)
		}
	}
	return nil
}

// maxDraws bounds redraws of an offer whose LL amount would not be positive.
const maxDraws = 100

// Generator draws trials from a seeded source.
type Generator struct {
	rng    *rand.Rand
	design Design
	seed   uint64
}

// NewGenerator creates a Generator. A zero seed picks a time-based one.
func NewGenerator(seed uint64, design Design) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		rng:    rand.New(rand.NewPCG(seed, seed)),
		design: design,
		seed:   seed,
	}
}

// Seed returns the generator's seed.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// Trials draws n trials and samples each choice from the model
// probabilities at p.
func (g *Generator) Trials(p model.Params, n int) (model.Trials, error) {
	if n < 1 {
		return nil, eris.Errorf("simulate: n must be >= 1 (got %d)", n)
	}
	if p.K < 0 || p.M <= 0 {
		return nil, eris.Errorf("simulate: need k >= 0 and m > 0 (got k=%g, m=%g)", p.K, p.M)
	}
	if err := g.design.validate(); err != nil {
		return nil, err
	}

	trials := make(model.Trials, 0, n)
	for len(trials) < n {
		t, err := g.offer(p)
		if err != nil {
			return nil, err
		}
		if g.bernoulli(estimate.ProbLL(t, p)) {
			t.Choice = model.ChoiceLL
		} else {
			t.Choice = model.ChoiceSS
		}
		trials = append(trials, t)
	}
	return trials, nil
}

func (g *Generator) offer(p model.Params) (model.Trial, error) {
	d := g.design
	for range maxDraws {
		ss := d.SSOffers[g.rng.IntN(len(d.SSOffers))]
		llDelay := float64(d.LLDelayMin + g.rng.IntN(d.LLDelayMax-d.LLDelayMin+1))

		dv := g.uniform(-d.ValueSpread, d.ValueSpread) / p.M
		vll := estimate.SubjectiveValue(ss.Amount, ss.Delay, p.K) + dv
		llAmount := roundCents(vll * (1 + p.K*llDelay))
		if llAmount <= 0 {
			continue
		}
		return model.Trial{
			SSAmount: ss.Amount,
			SSDelay:  ss.Delay,
			LLAmount: llAmount,
			LLDelay:  llDelay,
		}, nil
	}
	return model.Trial{}, eris.Errorf("simulate: no positive LL amount after %d draws (m=%g too small for design)", maxDraws, p.M)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) bernoulli(p float64) bool {
	return g.rng.Float64() < p
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
