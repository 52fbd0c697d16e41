//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fitk/internal/model"
)

func sampleFit() model.FitResult {
	return model.FitResult{
		ID:            "abc12345-6789-0000-0000-000000000000",
		Subject:       "07",
		Params:        model.Params{K: 0.0213, M: 4.87},
		LogLikelihood: -61.25,
		Trials:        120,
		Restarts:      1000,
		Feasible:      998,
		Seed:          42,
		Diagnostics:   model.Diagnostics{Restart: 17, Status: "converged_pgtol", Converged: true},
		CreatedAt:     time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestFormatFitsList(t *testing.T) {
	var buf bytes.Buffer
	formatFitsList(&buf, []model.FitResult{sampleFit()})

	output := buf.String()
	assert.Contains(t, output, "SUBJECT")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "07")
	assert.Contains(t, output, "0.02130")
	assert.Contains(t, output, "4.870")
	assert.Contains(t, output, "-61.25000")
	assert.Contains(t, output, "998/1000")
	assert.Contains(t, output, "converged_pgtol")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestEncodeFits_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeFits(&buf, "json", sampleFit()))

	assert.Contains(t, buf.String(), `"subject": "07"`)
	assert.Contains(t, buf.String(), `"ll": -61.25`)
}

func TestEncodeFits_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeFits(&buf, "yaml", sampleFit()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "07", decoded["subject"])
	assert.Equal(t, -61.25, decoded["ll"])

	params, ok := decoded["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 4.87, params["m"])
}

func TestEncodeFits_UnknownFormat(t *testing.T) {
	err := encodeFits(&bytes.Buffer{}, "xml", sampleFit())
	assert.Error(t, err)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
