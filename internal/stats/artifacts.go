package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"formulaevo/internal/model"
)

const (
	historyFile    = "history.json"
	fitnessFile    = "fitness.csv"
	reportFile     = "report.json"
	invariantsFile = "invariants.json"
)

// ArtifactFiles lists every file an export directory may contain.
var ArtifactFiles = []string{historyFile, fitnessFile, reportFile, invariantsFile}

var fitnessHeader = []string{"generation", "best_fitness", "mean_fitness", "min_fitness", "diversity", "failures"}

// RunArtifacts bundles what gets written for one run. Report and Invariants
// are optional.
type RunArtifacts struct {
	History    model.EvolutionHistory
	Report     *model.ValidationReport
	Invariants *model.InvariantSet
}

// FitnessRow is one line of fitness.csv.
type FitnessRow struct {
	Generation  int
	BestFitness float64
	MeanFitness float64
	MinFitness  float64
	Diversity   float64
	Failures    int
}

// WriteRunArtifacts writes the run's files under baseDir/<run id> and returns
// that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := artifacts.History.RunID
	if err := checkRunID(runID); err != nil {
		return "", err
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}

	if err := writeJSON(filepath.Join(runDir, historyFile), artifacts.History); err != nil {
		return "", err
	}
	if err := WriteFitnessCSV(filepath.Join(runDir, fitnessFile), artifacts.History); err != nil {
		return "", err
	}
	if artifacts.Report != nil {
		if err := writeJSON(filepath.Join(runDir, reportFile), artifacts.Report); err != nil {
			return "", err
		}
	}
	if artifacts.Invariants != nil {
		if err := writeJSON(filepath.Join(runDir, invariantsFile), artifacts.Invariants); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// WriteFitnessCSV writes one row per generation of the history.
func WriteFitnessCSV(path string, history model.EvolutionHistory) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(fitnessHeader); err != nil {
		return err
	}
	for _, g := range history.Generations {
		if err := writer.Write([]string{
			strconv.Itoa(g.Index),
			formatFloat(g.Best.Fitness),
			formatFloat(g.MeanFitness),
			formatFloat(g.MinFitness),
			formatFloat(g.Diversity),
			strconv.Itoa(g.Failures),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Sync()
}

// ReadFitnessCSV parses a file written by WriteFitnessCSV.
func ReadFitnessCSV(path string) ([]FitnessRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("fitness csv %s is empty", path)
		}
		return nil, err
	}
	if len(header) != len(fitnessHeader) {
		return nil, fmt.Errorf("fitness csv header must have %d columns", len(fitnessHeader))
	}

	rows := make([]FitnessRow, 0, 64)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := parseFitnessRow(record)
		if err != nil {
			return nil, fmt.Errorf("fitness csv row %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFitnessRow(record []string) (FitnessRow, error) {
	var (
		row    FitnessRow
		err    error
		floats [4]float64
	)
	if row.Generation, err = strconv.Atoi(record[0]); err != nil {
		return FitnessRow{}, err
	}
	for i := range floats {
		if floats[i], err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return FitnessRow{}, err
		}
	}
	if row.Failures, err = strconv.Atoi(record[5]); err != nil {
		return FitnessRow{}, err
	}
	row.BestFitness, row.MeanFitness, row.MinFitness, row.Diversity = floats[0], floats[1], floats[2], floats[3]
	return row, nil
}

// ReadHistory loads history.json from a run directory.
func ReadHistory(runDir string) (model.EvolutionHistory, error) {
	data, err := os.ReadFile(filepath.Join(runDir, historyFile))
	if err != nil {
		return model.EvolutionHistory{}, err
	}
	var history model.EvolutionHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return model.EvolutionHistory{}, fmt.Errorf("decode history: %w", err)
	}
	return history, nil
}

func checkRunID(runID string) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if runID == "." || runID == ".." || filepath.Base(runID) != runID {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
