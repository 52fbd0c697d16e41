//go:build !integration

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/fitk/internal/estimate"
	"github.com/sells-group/fitk/internal/model"
	"github.com/sells-group/fitk/internal/simulate"
	"github.com/sells-group/fitk/internal/trialio"
)

// syntheticTrials generates a reproducible trial set from (0.02, 5).
func syntheticTrials(t *testing.T, n int) model.Trials {
	t.Helper()
	trials, err := simulate.NewGenerator(11, simulate.DefaultDesign()).Trials(model.Params{K: 0.02, M: 5}, n)
	require.NoError(t, err)
	return trials
}

func trialsCSV(t *testing.T, trials model.Trials) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, trialio.WriteCSV(&buf, trials))
	return buf.Bytes()
}

func writeTrialsFile(t *testing.T, dir string, trials model.Trials) string {
	t.Helper()
	path := filepath.Join(dir, "trials.csv")
	require.NoError(t, os.WriteFile(path, trialsCSV(t, trials), 0o644))
	return path
}

func testFitter() *estimate.Fitter {
	return estimate.NewFitter(estimate.Settings{Restarts: 8, Workers: 2, Seed: 3})
}
