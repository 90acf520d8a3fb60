package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaevo/internal/model"
)

type cliEnv struct {
	dataDir string
	dbPath  string
	outDir  string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	base := t.TempDir()
	env := cliEnv{
		dataDir: filepath.Join(base, "data"),
		dbPath:  filepath.Join(base, "formulaevo.db"),
		outDir:  filepath.Join(base, "exports"),
	}
	for i, driver := range []string{"harshness", "vowel_ratio"} {
		name := []string{"brands", "cities"}[i]
		_, err := env.run(t, "generate", "--domain", name, "--count", "40", "--seed", strconv.Itoa(i+1), "--driver", driver, "--gain", "5", "--out", env.dataDir)
		require.NoError(t, err)
	}
	return env
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	global := []string{"--data-dir", e.dataDir, "--db-path", e.dbPath, "--exports-dir", e.outDir, "--log-level", "warn"}
	root.SetArgs(append(args, global...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateWritesDomainCSV(t *testing.T) {
	env := newCLIEnv(t)
	assert.FileExists(t, filepath.Join(env.dataDir, "brands.csv"))
	assert.FileExists(t, filepath.Join(env.dataDir, "cities.csv"))

	_, err := env.run(t, "generate", "--domain", "../escape", "--out", env.dataDir)
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "validate", "--formula", "phonetic", "--domains", "brands,missing", "--sample-limit", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "brands")
	assert.Contains(t, out, "skipped: provider_error")

	out, err = env.run(t, "validate", "--formula", "phonetic", "--domains", "brands", "--save", "--json")
	require.NoError(t, err)
	var report model.ValidationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 40, report.Domains[0].EntityCount)

	_, err = env.run(t, "validate", "--formula", "cubist", "--domains", "brands")
	assert.Error(t, err)
	_, err = env.run(t, "validate", "--formula", "phonetic", "--params", "1,2", "--domains", "brands")
	assert.Error(t, err)
}

func TestEvolveRunsAnalyzeAndExport(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "evolve", "--formula", "phonetic", "--domains", "brands,cities",
		"--population", "6", "--generations", "2", "--sample-limit", "40", "--runs", "3", "--analyze", "--json")
	require.NoError(t, err)
	var batch batchResult
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch.Runs, 3)
	require.NotNil(t, batch.Invariants)
	assert.Len(t, batch.Invariants.RunIDs, 3)

	out, err = env.run(t, "runs", "--limit", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "RUN ID")
	assert.Contains(t, lines[1], batch.Runs[2].RunID)

	out, err = env.run(t, "analyze", "--formula", "phonetic")
	require.NoError(t, err)
	assert.Contains(t, out, "over 3 runs")

	out, err = env.run(t, "export", "--latest")
	require.NoError(t, err)
	assert.Contains(t, out, batch.Runs[2].RunID)
	assert.FileExists(t, filepath.Join(env.outDir, batch.Runs[2].RunID, "fitness.csv"))

	_, err = env.run(t, "export")
	assert.Error(t, err)
}

func TestEvolveFromRunFile(t *testing.T) {
	env := newCLIEnv(t)
	config := filepath.Join(t.TempDir(), "runs.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
formula_type: semantic
domains: [brands]
population: 4
generations: 1
sample_limit: 40
seeds: [7, 11]
selection: roulette
fitness: consistency
`), 0o644))

	out, err := env.run(t, "evolve", "--config", config, "--json")
	require.NoError(t, err)
	var batch batchResult
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch.Runs, 2)
	assert.Nil(t, batch.Invariants)
}

func TestScheduleOnce(t *testing.T) {
	env := newCLIEnv(t)
	config := filepath.Join(t.TempDir(), "runs.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
formula_type: phonetic
domains: [brands, cities]
population: 4
generations: 1
sample_limit: 40
runs: 2
schedule: "@every 6h"
`), 0o644))

	out, err := env.run(t, "schedule", "--config", config, "--once")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "run="))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("formula_type: phonetic\ndomains: [brands]\n"), 0o644))
	_, err = env.run(t, "schedule", "--config", bad)
	assert.ErrorContains(t, err, "cron schedule is required")
	_, err = env.run(t, "schedule", "--config", bad, "--cron", "not a schedule")
	assert.Error(t, err)
}

func TestRunSchedulerStopsOnCancel(t *testing.T) {
	schedule, err := cron.ParseStandard("@every 1h")
	require.NoError(t, err)
	logger, err := newLogger(&bytes.Buffer{}, "json", "info")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runScheduler(ctx, schedule, func() {}, logger) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "json", "debug")
	require.NoError(t, err)
	logger.Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = newLogger(&buf, "text", "loud")
	assert.Error(t, err)
}
