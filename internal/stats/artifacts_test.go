package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaevo/internal/model"
)

func sampleHistory(runID string) model.EvolutionHistory {
	gens := make([]model.Generation, 3)
	for i := range gens {
		best := model.Individual{Parameters: []float64{1, 2}, Fitness: 0.1 * float64(i+1)}
		gens[i] = model.Generation{
			Index:       i,
			Population:  []model.Individual{best},
			Best:        best,
			MeanFitness: 0.05 * float64(i+1),
			MinFitness:  0.01,
			Diversity:   0.5 / float64(i+1),
			Failures:    i,
		}
	}
	return model.EvolutionHistory{
		RunID:       runID,
		FormulaType: model.FormulaPhonetic,
		Domains:     []string{"names"},
		SampleLimit: 100,
		Seed:        7,
		Generations: gens,
		StopReason:  "generations",
	}
}

func TestWriteRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()

	history := sampleHistory("run-123")
	set := model.InvariantSet{ID: "set-1", RunIDs: []string{"run-123"}, Invariants: []model.Invariant{}}
	runDir, err := WriteRunArtifacts(baseDir, RunArtifacts{History: history, Invariants: &set})
	require.NoError(t, err)

	for _, file := range []string{historyFile, fitnessFile, invariantsFile} {
		assert.FileExists(t, filepath.Join(runDir, file))
	}
	assert.NoFileExists(t, filepath.Join(runDir, reportFile))
	assert.Len(t, ArtifactFiles, 4)

	assert.Equal(t, filepath.Join(baseDir, "run-123"), runDir)

	got, err := ReadHistory(runDir)
	require.NoError(t, err)
	assert.Equal(t, history.RunID, got.RunID)
	assert.Equal(t, history.BestByGeneration(), got.BestByGeneration())
}

func TestFitnessCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), fitnessFile)
	history := sampleHistory("run-csv")
	require.NoError(t, WriteFitnessCSV(path, history))

	rows, err := ReadFitnessCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		g := history.Generations[i]
		assert.Equal(t, g.Index, row.Generation)
		assert.Equal(t, g.Best.Fitness, row.BestFitness)
		assert.Equal(t, g.MeanFitness, row.MeanFitness)
		assert.Equal(t, g.MinFitness, row.MinFitness)
		assert.Equal(t, g.Diversity, row.Diversity)
		assert.Equal(t, g.Failures, row.Failures)
	}
}

func TestReadFitnessCSVErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err := ReadFitnessCSV(empty)
	assert.Error(t, err)

	short := filepath.Join(dir, "short.csv")
	require.NoError(t, os.WriteFile(short, []byte("generation,best_fitness\n0,1\n"), 0o644))
	_, err = ReadFitnessCSV(short)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("generation,best_fitness,mean_fitness,min_fitness,diversity,failures\n0,x,0,0,0,0\n"), 0o644))
	_, err = ReadFitnessCSV(bad)
	assert.ErrorContains(t, err, "row 2")
}

func TestArtifactsRejectUnsafeRunIDs(t *testing.T) {
	baseDir := t.TempDir()
	for _, id := range []string{"", ".", "..", "a/b"} {
		_, err := WriteRunArtifacts(baseDir, RunArtifacts{History: model.EvolutionHistory{RunID: id}})
		assert.Error(t, err, "run id %q", id)
	}
	_, err := ReadHistory(filepath.Join(baseDir, "missing"))
	assert.Error(t, err)
}
