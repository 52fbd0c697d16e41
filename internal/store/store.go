// Package store records fit history: each fit's parameters, diagnostics and
// the trial set it was estimated from.
package store

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitk/internal/model"
)

// ErrFitNotFound is returned when no fit matches a lookup.
var ErrFitNotFound = eris.New("store: fit not found")

// FitFilter specifies criteria for listing fits.
type FitFilter struct {
	Subject string `json:"subject,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for fit results.
type Store interface {
	// Fits
	SaveFit(ctx context.Context, fit *model.FitResult, trials model.Trials) error
	GetFit(ctx context.Context, id string) (*model.FitResult, error)
	GetLatestFit(ctx context.Context, subject string) (*model.FitResult, error)
	ListFits(ctx context.Context, filter FitFilter) ([]model.FitResult, error)

	// Trials
	GetTrials(ctx context.Context, fitID string) (model.Trials, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// trialColumns is the column order of the fit_trials table.
var trialColumns = []string{"fit_id", "idx", "r1", "d1", "r2", "d2", "choice"}

func validateFit(fit *model.FitResult) error {
	switch {
	case fit == nil:
		return eris.New("store: nil fit")
	case fit.ID == "":
		return eris.New("store: fit has no ID")
	case fit.Subject == "":
		return eris.New("store: fit has no subject")
	}
	return nil
}

// Seeds are full uint64 values; both backends store them as text.
func formatSeed(seed uint64) string {
	return strconv.FormatUint(seed, 10)
}

func parseSeed(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, eris.Wrapf(err, "store: parse seed %q", s)
}
