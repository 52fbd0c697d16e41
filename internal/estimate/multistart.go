package estimate

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fitk/internal/model"
)

// ErrNoFeasibleFit is returned when every restart ends at an infinite cost.
var ErrNoFeasibleFit = eris.New("estimate: no feasible fit")

// Settings configures a multi-start fit.
type Settings struct {
	Restarts          int
	Workers           int
	Seed              uint64 // 0 picks a time-based seed, reported on the result
	KStartMax         float64
	MStartMax         float64
	Bounds            model.Bounds
	DegenerateEpsilon float64
	Local             LocalSettings
}

// DefaultSettings returns 1000 restarts with starts drawn from
// k0 ~ U(0, 0.02), m0 ~ U(0, 2) over the default bounds.
func DefaultSettings() Settings {
	return Settings{
		Restarts:  1000,
		Workers:   runtime.GOMAXPROCS(0),
		KStartMax: 0.02,
		MStartMax: 2,
		Bounds:    model.DefaultBounds,
		Local:     DefaultLocalSettings(),
	}
}

// Validate rejects settings that cannot produce a fit.
func (s Settings) Validate() error {
	switch {
	case s.Restarts < 1:
		return eris.Errorf("estimate: restarts must be >= 1 (got %d)", s.Restarts)
	case s.Workers < 0:
		return eris.Errorf("estimate: workers must be >= 0 (got %d)", s.Workers)
	case s.KStartMax < 0 || s.MStartMax < 0:
		return eris.New("estimate: start ranges must be non-negative")
	case s.Bounds.KMin > s.Bounds.KMax || s.Bounds.MMin > s.Bounds.MMax:
		return eris.Errorf("estimate: empty bounds %+v", s.Bounds)
	case s.DegenerateEpsilon < 0 || s.DegenerateEpsilon >= 0.5:
		return eris.Errorf("estimate: degenerate epsilon must be in [0, 0.5) (got %g)", s.DegenerateEpsilon)
	}
	return nil
}

// Candidate is the point one restart's local search ended at.
type Candidate struct {
	Restart     int
	Params      model.Params
	Cost        float64
	Diagnostics model.Diagnostics
}

// Feasible reports whether the candidate's cost is finite.
func (c Candidate) Feasible() bool {
	return isFinite(c.Cost)
}

// Reduce returns the feasible candidate with the lowest cost. Candidates
// are scanned in order and only a strictly lower cost replaces the
// incumbent, so the first of equal costs wins. ok is false when no
// candidate is feasible.
func Reduce(cands []Candidate) (best Candidate, ok bool) {
	for _, c := range cands {
		if !c.Feasible() {
			continue
		}
		if !ok || c.Cost < best.Cost {
			best, ok = c, true
		}
	}
	return best, ok
}

// StartPoints draws n starting points k0 ~ U(0, kMax), m0 ~ U(0, mMax).
func StartPoints(rng *rand.Rand, n int, kMax, mMax float64) []model.Params {
	starts := make([]model.Params, n)
	for i := range starts {
		starts[i] = model.Params{K: rng.Float64() * kMax, M: rng.Float64() * mMax}
	}
	return starts
}

// Fitter runs multi-start maximum-likelihood fits.
type Fitter struct {
	settings Settings
}

// NewFitter creates a Fitter. Zero-valued fields fall back to DefaultSettings.
func NewFitter(s Settings) *Fitter {
	d := DefaultSettings()
	if s.Restarts == 0 {
		s.Restarts = d.Restarts
	}
	if s.Workers == 0 {
		s.Workers = d.Workers
	}
	if s.KStartMax == 0 {
		s.KStartMax = d.KStartMax
	}
	if s.MStartMax == 0 {
		s.MStartMax = d.MStartMax
	}
	if s.Bounds == (model.Bounds{}) {
		s.Bounds = d.Bounds
	}
	s.Local = s.Local.withDefaults()
	return &Fitter{settings: s}
}

// Settings returns the effective settings.
func (f *Fitter) Settings() Settings {
	return f.settings
}

// Fit validates trials, runs every restart and returns the best feasible
// fit. It returns ErrNoFeasibleFit when no restart reaches a finite cost.
func (f *Fitter) Fit(ctx context.Context, subject string, trials model.Trials) (*model.FitResult, error) {
	if err := f.settings.Validate(); err != nil {
		return nil, err
	}
	if err := trials.Validate(); err != nil {
		return nil, eris.Wrap(err, "estimate: invalid trials")
	}

	seed := f.settings.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	log := zap.L().With(zap.String("subject", subject), zap.Uint64("seed", seed))
	start := time.Now()

	cands, err := f.candidates(ctx, trials, seed)
	if err != nil {
		return nil, err
	}

	feasible := 0
	for _, c := range cands {
		if c.Feasible() {
			feasible++
		}
	}

	best, ok := Reduce(cands)
	if !ok {
		log.Warn("estimate: no feasible restart", zap.Int("restarts", len(cands)))
		return nil, eris.Wrapf(ErrNoFeasibleFit, "estimate: subject %q, %d restarts", subject, len(cands))
	}

	result := &model.FitResult{
		ID:            uuid.New().String(),
		Subject:       subject,
		Params:        best.Params,
		LogLikelihood: -best.Cost,
		Trials:        len(trials),
		Restarts:      len(cands),
		Feasible:      feasible,
		Seed:          seed,
		Diagnostics:   best.Diagnostics,
		CreatedAt:     time.Now().UTC(),
	}

	log.Info("estimate: fit complete",
		zap.Float64("k", result.Params.K),
		zap.Float64("m", result.Params.M),
		zap.Float64("ll", result.LogLikelihood),
		zap.Int("trials", result.Trials),
		zap.Int("restarts", result.Restarts),
		zap.Int("feasible", feasible),
		zap.Int("winning_restart", best.Restart),
		zap.String("status", best.Diagnostics.Status),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// Candidates validates trials and returns every restart's candidate in
// restart order, without reducing them.
func (f *Fitter) Candidates(ctx context.Context, trials model.Trials, seed uint64) ([]Candidate, error) {
	if err := f.settings.Validate(); err != nil {
		return nil, err
	}
	if err := trials.Validate(); err != nil {
		return nil, eris.Wrap(err, "estimate: invalid trials")
	}
	return f.candidates(ctx, trials, seed)
}

func (f *Fitter) candidates(ctx context.Context, trials model.Trials, seed uint64) ([]Candidate, error) {
	s := f.settings
	rng := rand.New(rand.NewPCG(seed, seed))
	starts := StartPoints(rng, s.Restarts, s.KStartMax, s.MStartMax)
	eval := NewEvaluator(trials, WithDegenerateEpsilon(s.DegenerateEpsilon))

	cands := make([]Candidate, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i, start := range starts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cands[i] = f.search(eval, i, start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "estimate: restarts")
	}
	return cands, nil
}

// search runs one bounded local search from start.
func (f *Fitter) search(eval *Evaluator, restart int, start model.Params) Candidate {
	b := f.settings.Bounds
	res := Minimize(eval.Objective, start.Vector(), b.Lower(), b.Upper(), f.settings.Local)

	p := model.ParamsFromVector(res.X)
	cost := eval.Cost(p)

	if !isFinite(cost) {
		zap.L().Debug("estimate: restart infeasible",
			zap.Int("restart", restart),
			zap.String("status", string(res.Status)),
		)
	}

	return Candidate{
		Restart: restart,
		Params:  p,
		Cost:    cost,
		Diagnostics: model.Diagnostics{
			Restart:      restart,
			Start:        start,
			Iterations:   res.Iterations,
			FuncEvals:    res.FuncEvals,
			GradEvals:    res.GradEvals,
			Status:       string(res.Status),
			Message:      res.Status.Message(),
			Converged:    res.Status.Converged(),
			ProjGradNorm: res.ProjGradNorm,
			Cost:         cost,
		},
	}
}
