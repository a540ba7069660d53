package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactsim/contactsim/sim/engine"
	"github.com/contactsim/contactsim/sim/stopping"
	"github.com/contactsim/contactsim/sim/telemetry"
	"github.com/contactsim/contactsim/sim/trace"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const smallExperiment = `
seed: 3
replications:
  initial: 2
  max: 4
model:
  periods: 1
  period_duration: 300
  checked_period: 60
  window_periods: 2
  dialer_epoch: 15
  inbound:
    - name: support
      arrival_rate: 0.05
      mean_service: 30
      mean_patience: 60
      awt: 20
  outbound:
    - name: callback
      reach_probability: 0.5
      dial_delay: 3
      mean_service: 40
      min_total_free: 0
      min_target_free: -1
      dialer:
        policy: DIAL2XFREE
  groups:
    - name: blend
      size: 4
      role: blend
      inbound: [support]
      outbound: [callback]
stopping:
  level: 0.9
  threshold: -1000
  target:
    measure: rate-of-arrivals
  max_reps: 4
`

func writeExperiment(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestRunExperiment_PrintsSummaryAndSavesResults(t *testing.T) {
	// GIVEN a small experiment and a results path
	path := writeExperiment(t, smallExperiment)
	results := filepath.Join(t.TempDir(), "results.json")
	var out bytes.Buffer

	// WHEN the experiment runs with dial tracing
	err := runExperiment(context.Background(), runOptions{
		ConfigPath: path, TraceLevel: string(trace.TraceLevelDials), ResultsPath: results,
	}, &out)
	require.NoError(t, err)

	// THEN the summary is on the writer
	assert.Contains(t, out.String(), "=== Experiment Summary ===")
	assert.Contains(t, out.String(), "rate-of-arrivals")
	assert.Contains(t, out.String(), "=== Decision Trace ===")

	// AND the JSON results decode with the stop outcome
	data, err := os.ReadFile(results)
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, 2, r.Replications)
	assert.Equal(t, string(stopping.ReasonSignificant), r.StopReason)
	assert.Equal(t, "rate-of-arrivals[-1,-1]", r.Target)
	require.NotNil(t, r.Average)
	assert.NotEmpty(t, r.Measures)
	require.NotNil(t, r.Trace)
	assert.Greater(t, r.Trace.DialDecisions, 0)
}

func TestRunExperiment_MissingFile(t *testing.T) {
	err := runExperiment(context.Background(), runOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}, io.Discard)
	assert.ErrorContains(t, err, "reading experiment config")
}

func TestExperimentConfig_CLIOverrides(t *testing.T) {
	b, err := engine.LoadExperimentBundle(writeExperiment(t, smallExperiment))
	require.NoError(t, err)

	tests := []struct {
		name         string
		opts         runOptions
		wantSeed     int64
		wantParallel int
	}{
		{"yaml values", runOptions{}, 3, 0},
		{"seed override", runOptions{Seed: ptr(int64(99))}, 99, 0},
		{"parallel override", runOptions{Parallel: ptr(4)}, 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := experimentConfig(b, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeed, cfg.Seed)
			assert.Equal(t, tt.wantParallel, cfg.Parallelism)
			assert.Equal(t, 2, cfg.InitialReplications)
			assert.Equal(t, 4, cfg.MaxReplications)
			require.NotNil(t, cfg.Stopping)
		})
	}
}

func TestExperimentConfig_PassesMetrics(t *testing.T) {
	b, err := engine.LoadExperimentBundle(writeExperiment(t, smallExperiment))
	require.NoError(t, err)
	m := telemetry.New()
	cfg, err := experimentConfig(b, runOptions{Metrics: m})
	require.NoError(t, err)
	assert.Same(t, m, cfg.Metrics)
}

func TestOptionsFromFlags_OnlyExplicitOverrides(t *testing.T) {
	oldSeed, oldParallel := seed, parallel
	t.Cleanup(func() { seed, parallel = oldSeed, oldParallel })

	// GIVEN a flag set where only --seed is passed
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Int64Var(&seed, "seed", 42, "")
	fs.IntVar(&parallel, "parallel", 1, "")
	require.NoError(t, fs.Parse([]string{"--seed", "9"}))

	// WHEN the options are collected
	opts := optionsFromFlags(fs)

	// THEN the seed overrides the bundle and parallelism does not
	require.NotNil(t, opts.Seed)
	assert.Equal(t, int64(9), *opts.Seed)
	assert.Nil(t, opts.Parallel)
}

func TestValidateExperiment(t *testing.T) {
	var out bytes.Buffer
	path := writeExperiment(t, smallExperiment)
	require.NoError(t, validateExperiment(path, &out))
	assert.Contains(t, out.String(), "ok (1 inbound, 1 outbound, 1 groups, 1 periods)")

	bad := writeExperiment(t, smallExperiment+"measures: [not-a-measure]\n")
	assert.ErrorContains(t, validateExperiment(bad, io.Discard), "unknown performance measure")
}

func TestValidateExperiment_ShippedExample(t *testing.T) {
	require.NoError(t, validateExperiment(filepath.Join("..", "examples", "experiment.yaml"), io.Discard))
}

func ptr[T any](v T) *T { return &v }
