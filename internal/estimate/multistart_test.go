package estimate

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"runtime"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fitk/internal/model"
)

var inf = math.Inf(1)

func TestReduce(t *testing.T) {
	tests := []struct {
		name        string
		costs       []float64
		wantOK      bool
		wantRestart int
	}{
		{"empty", nil, false, 0},
		{"all infinite", []float64{inf, inf, inf}, false, 0},
		{"lowest wins", []float64{5, 3, 4}, true, 1},
		{"infinite first never incumbent", []float64{inf, 7, inf, 6}, true, 3},
		{"first of equal costs wins", []float64{4, 2, 3, 2, 2}, true, 1},
		{"nan ignored", []float64{math.NaN(), 9}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := make([]Candidate, len(tt.costs))
			for i, c := range tt.costs {
				cands[i] = Candidate{Restart: i, Cost: c}
			}

			best, ok := Reduce(cands)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantRestart, best.Restart)
			for _, c := range cands {
				if c.Feasible() {
					assert.LessOrEqual(t, best.Cost, c.Cost)
				}
			}
		})
	}
}

func TestStartPoints(t *testing.T) {
	a := StartPoints(rand.New(rand.NewPCG(7, 7)), 500, 0.02, 2)
	b := StartPoints(rand.New(rand.NewPCG(7, 7)), 500, 0.02, 2)

	require.Len(t, a, 500)
	assert.Equal(t, a, b)
	for _, p := range a {
		assert.GreaterOrEqual(t, p.K, 0.0)
		assert.Less(t, p.K, 0.02)
		assert.GreaterOrEqual(t, p.M, 0.0)
		assert.Less(t, p.M, 2.0)
	}

	c := StartPoints(rand.New(rand.NewPCG(8, 8)), 500, 0.02, 2)
	assert.NotEqual(t, a, c)
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 1000, s.Restarts)
	assert.Equal(t, runtime.GOMAXPROCS(0), s.Workers)
	assert.Equal(t, 0.02, s.KStartMax)
	assert.Equal(t, 2.0, s.MStartMax)
	assert.Equal(t, model.DefaultBounds, s.Bounds)
	assert.Zero(t, s.DegenerateEpsilon)
	assert.NoError(t, s.Validate())
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"no restarts", func(s *Settings) { s.Restarts = 0 }},
		{"negative workers", func(s *Settings) { s.Workers = -1 }},
		{"negative start range", func(s *Settings) { s.KStartMax = -0.1 }},
		{"empty bounds", func(s *Settings) { s.Bounds.KMin = 2 }},
		{"epsilon too large", func(s *Settings) { s.DegenerateEpsilon = 0.5 }},
		{"negative epsilon", func(s *Settings) { s.DegenerateEpsilon = -1e-9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestNewFitter_FillsDefaults(t *testing.T) {
	f := NewFitter(Settings{Restarts: 12, Seed: 5})
	s := f.Settings()

	assert.Equal(t, 12, s.Restarts)
	assert.Equal(t, uint64(5), s.Seed)
	assert.Equal(t, runtime.GOMAXPROCS(0), s.Workers)
	assert.Equal(t, model.DefaultBounds, s.Bounds)
	assert.Equal(t, DefaultLocalSettings(), s.Local)
}

func TestFit_InvalidTrials(t *testing.T) {
	ts := sampleTrials()
	ts[3].Choice = 4

	_, err := NewFitter(Settings{Restarts: 4, Seed: 1}).Fit(context.Background(), "01", ts)
	require.Error(t, err)

	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 4, verr.Row)
	assert.Equal(t, model.FieldChoice, verr.Field)
}

func TestFit_EmptyTrials(t *testing.T) {
	_, err := NewFitter(Settings{Restarts: 4, Seed: 1}).Fit(context.Background(), "01", nil)
	assert.True(t, eris.Is(err, model.ErrEmptyTrials))
}

func TestFit_NoFeasibleRestart(t *testing.T) {
	// The LL option is worth so much less than SS that p_LL underflows to
	// zero at every start point.
	ts := model.Trials{{SSAmount: 1e12, SSDelay: 0, LLAmount: 1, LLDelay: 10, Choice: model.ChoiceLL}}

	res, err := NewFitter(Settings{Restarts: 16, Workers: 4, Seed: 3}).Fit(context.Background(), "02", ts)

	assert.Nil(t, res)
	assert.True(t, eris.Is(err, ErrNoFeasibleFit))
}

func TestFit_Result(t *testing.T) {
	ts := sampleTrials()
	res, err := NewFitter(Settings{Restarts: 20, Workers: 4, Seed: 99}).Fit(context.Background(), "05", ts)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "05", res.Subject)
	assert.Equal(t, len(ts), res.Trials)
	assert.Equal(t, 20, res.Restarts)
	assert.Equal(t, 20, res.Feasible)
	assert.Equal(t, uint64(99), res.Seed)
	assert.False(t, res.CreatedAt.IsZero())
	assert.LessOrEqual(t, res.LogLikelihood, 0.0)
	assert.True(t, model.DefaultBounds.Contains(res.Params))

	// The reported likelihood is the cost at the reported point.
	assert.Equal(t, -NewEvaluator(ts).Cost(res.Params), res.LogLikelihood)
	assert.Equal(t, -res.LogLikelihood, res.Diagnostics.Cost)
}

func TestFit_SelectionInvariant(t *testing.T) {
	ts := sampleTrials()
	f := NewFitter(Settings{Restarts: 30, Workers: 3, Seed: 21})

	cands, err := f.Candidates(context.Background(), ts, 21)
	require.NoError(t, err)
	require.Len(t, cands, 30)

	res, err := f.Fit(context.Background(), "06", ts)
	require.NoError(t, err)

	winner := -1
	for i, c := range cands {
		assert.Equal(t, i, c.Restart)
		if !c.Feasible() {
			continue
		}
		assert.LessOrEqual(t, -res.LogLikelihood, c.Cost)
		if winner < 0 && c.Cost == -res.LogLikelihood {
			winner = i
		}
	}
	assert.Equal(t, winner, res.Diagnostics.Restart)
	assert.Equal(t, cands[winner].Params, res.Params)
	assert.Equal(t, cands[winner].Diagnostics.Start, res.Diagnostics.Start)
}

func TestFit_DeterministicAcrossWorkers(t *testing.T) {
	ts := sampleTrials()

	serial, err := NewFitter(Settings{Restarts: 25, Workers: 1, Seed: 1234}).Fit(context.Background(), "07", ts)
	require.NoError(t, err)
	parallel, err := NewFitter(Settings{Restarts: 25, Workers: 8, Seed: 1234}).Fit(context.Background(), "07", ts)
	require.NoError(t, err)

	assert.Equal(t, serial.Params, parallel.Params)
	assert.Equal(t, math.Float64bits(serial.LogLikelihood), math.Float64bits(parallel.LogLikelihood))
	assert.Equal(t, serial.Diagnostics, parallel.Diagnostics)
}

func TestFit_TimeSeedReported(t *testing.T) {
	res, err := NewFitter(Settings{Restarts: 2}).Fit(context.Background(), "08", sampleTrials())
	require.NoError(t, err)
	assert.NotZero(t, res.Seed)
}

func TestFit_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFitter(Settings{Restarts: 50, Workers: 2, Seed: 1}).Fit(ctx, "09", sampleTrials())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
