package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"formulaevo/internal/model"
	"formulaevo/pkg/formulaevo"
)

// runFile is the YAML description of a batch of evolution runs, optionally
// followed by a convergence analysis over them. A rate of -1 disables that
// operator; 0 or an absent key selects the default.
type runFile struct {
	FormulaType        string   `yaml:"formula_type"`
	Domains            []string `yaml:"domains"`
	Population         int      `yaml:"population"`
	Generations        int      `yaml:"generations"`
	SampleLimit        int      `yaml:"sample_limit"`
	Seed               int64    `yaml:"seed"`
	Runs               int      `yaml:"runs"`
	Seeds              []int64  `yaml:"seeds"`
	MaxDuration        string   `yaml:"max_duration"`
	EliteCount         int      `yaml:"elite_count"`
	Workers            int      `yaml:"workers"`
	Selection          string   `yaml:"selection"`
	Fitness            string   `yaml:"fitness"`
	CrossoverRate      float64  `yaml:"crossover_rate"`
	MutationRate       float64  `yaml:"mutation_rate"`
	MutationScale      float64  `yaml:"mutation_scale"`
	ConvergenceEpsilon float64  `yaml:"convergence_epsilon"`
	ConvergenceWindow  int      `yaml:"convergence_window"`

	Analyze  bool   `yaml:"analyze"`
	Schedule string `yaml:"schedule"`
}

func loadRunFile(path string) (runFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runFile{}, err
	}
	return parseRunFile(data)
}

func parseRunFile(data []byte) (runFile, error) {
	var cfg runFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return runFile{}, errors.New("run file is empty")
		}
		return runFile{}, fmt.Errorf("parse run file: %w", err)
	}
	if cfg.Runs < 0 {
		return runFile{}, errors.New("runs must be >= 0")
	}
	if cfg.Runs > 0 && len(cfg.Seeds) > 0 {
		return runFile{}, errors.New("use either runs or seeds")
	}
	return cfg, nil
}

// requests expands the file into one request per seed. Without explicit
// seeds, runs consecutive seeds start at seed.
func (f runFile) requests() ([]formulaevo.EvolveRequest, error) {
	formulaType, err := model.ParseFormulaType(f.FormulaType)
	if err != nil {
		return nil, err
	}
	var maxDuration time.Duration
	if f.MaxDuration != "" {
		if maxDuration, err = time.ParseDuration(f.MaxDuration); err != nil {
			return nil, fmt.Errorf("max_duration: %w", err)
		}
	}

	seeds := f.Seeds
	if len(seeds) == 0 {
		runs := max(f.Runs, 1)
		for i := 0; i < runs; i++ {
			seeds = append(seeds, f.Seed+int64(i))
		}
	}

	out := make([]formulaevo.EvolveRequest, 0, len(seeds))
	for _, seed := range seeds {
		out = append(out, formulaevo.EvolveRequest{
			FormulaType:        formulaType,
			Domains:            append([]string(nil), f.Domains...),
			Population:         f.Population,
			Generations:        f.Generations,
			SampleLimit:        f.SampleLimit,
			Seed:               seed,
			MaxDuration:        maxDuration,
			EliteCount:         f.EliteCount,
			Workers:            f.Workers,
			Selection:          f.Selection,
			Fitness:            f.Fitness,
			CrossoverRate:      f.CrossoverRate,
			MutationRate:       f.MutationRate,
			MutationScale:      f.MutationScale,
			ConvergenceEpsilon: f.ConvergenceEpsilon,
			ConvergenceWindow:  f.ConvergenceWindow,
		})
	}
	return out, nil
}
