package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"formulaevo/internal/domain"
	"formulaevo/internal/formula"
	"formulaevo/internal/model"
	"formulaevo/pkg/formulaevo"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var (
		formulaName string
		params      []float64
		domains     []string
		sampleLimit int
		save        bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Score one parameter vector against domain outcomes",
		Example: `  formulactl validate --formula hybrid --domains brands,cities
  formulactl validate --formula phonetic --params 360,60,30,1.5,1,1 --domains brands --save`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formulaType, err := model.ParseFormulaType(formulaName)
			if err != nil {
				return err
			}
			if len(params) == 0 {
				if params, err = formula.DefaultParameters(formulaType); err != nil {
					return err
				}
			}
			client, err := opts.newClient(cmd, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := client.Validate(cmd.Context(), formulaevo.ValidateRequest{
				FormulaType: formulaType,
				Parameters:  params,
				Domains:     domains,
				SampleLimit: sampleLimit,
				Save:        save,
			})
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&formulaName, "formula", "", "formula type")
	cmd.Flags().Float64SliceVar(&params, "params", nil, "parameter vector (defaults to the formula's declared defaults)")
	cmd.Flags().StringSliceVar(&domains, "domains", nil, "domain ids")
	cmd.Flags().IntVar(&sampleLimit, "sample-limit", 0, "entities loaded per domain (0 selects the default)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the report")
	_ = cmd.MarkFlagRequired("formula")
	_ = cmd.MarkFlagRequired("domains")
	return cmd
}

func newEvolveCmd(opts *globalOptions) *cobra.Command {
	var (
		configPath string
		file       runFile
		maxDur     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Run seeded genetic searches over a formula's parameters",
		Example: `  formulactl evolve --formula phonetic --domains brands,cities --runs 5
  formulactl evolve --config runs.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				loaded, err := loadRunFile(configPath)
				if err != nil {
					return err
				}
				file = loaded
			} else if maxDur > 0 {
				file.MaxDuration = maxDur.String()
			}
			client, err := opts.newClient(cmd, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := runBatch(cmd, client, file)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printBatch(cmd.OutOrStdout(), result)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML run file; overrides the run flags")
	flags.StringVar(&file.FormulaType, "formula", "", "formula type")
	flags.StringSliceVar(&file.Domains, "domains", nil, "domain ids")
	flags.IntVar(&file.Population, "population", 0, "population size (0 selects the default)")
	flags.IntVar(&file.Generations, "generations", 0, "generation budget (0 selects the default)")
	flags.IntVar(&file.SampleLimit, "sample-limit", 0, "entities loaded per domain (0 selects the default)")
	flags.Int64Var(&file.Seed, "seed", 1, "seed of the first run")
	flags.IntVar(&file.Runs, "runs", 1, "independent runs with consecutive seeds")
	flags.DurationVar(&maxDur, "max-duration", 0, "wall-time limit per run (0 disables)")
	flags.IntVar(&file.EliteCount, "elite", 0, "elite count (0 selects the default)")
	flags.StringVar(&file.Selection, "selection", "", "parent selection strategy")
	flags.StringVar(&file.Fitness, "fitness", "", "fitness function")
	flags.BoolVar(&file.Analyze, "analyze", false, "run convergence analysis over the batch")
	return cmd
}

// batchResult is what one evolve invocation or scheduled tick produced.
type batchResult struct {
	Runs       []formulaevo.RunSummary `json:"runs"`
	Invariants *model.InvariantSet     `json:"invariants,omitempty"`
}

func runBatch(cmd *cobra.Command, client *formulaevo.Client, file runFile) (batchResult, error) {
	requests, err := file.requests()
	if err != nil {
		return batchResult{}, err
	}
	ctx := cmd.Context()
	var result batchResult
	for _, req := range requests {
		summary, err := client.Evolve(ctx, req)
		if err != nil {
			return result, err
		}
		result.Runs = append(result.Runs, summary)
		if summary.Cancelled {
			return result, nil
		}
	}
	if file.Analyze {
		runIDs := make([]string, 0, len(result.Runs))
		for _, r := range result.Runs {
			runIDs = append(runIDs, r.RunID)
		}
		set, err := client.Analyze(ctx, formulaevo.AnalyzeRequest{RunIDs: runIDs})
		if err != nil {
			return result, err
		}
		result.Invariants = &set
	}
	return result, nil
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var (
		runIDs    []string
		formulas  []string
		minRuns   int
		maxCV     float64
		tolerance float64
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Look for ratios that stay stable across stored runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := formulaevo.AnalyzeRequest{RunIDs: runIDs, MinRuns: minRuns, MaxCV: maxCV, Tolerance: tolerance}
			for _, name := range formulas {
				t, err := model.ParseFormulaType(name)
				if err != nil {
					return err
				}
				req.FormulaTypes = append(req.FormulaTypes, t)
			}
			client, err := opts.newClient(cmd, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			set, err := client.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), set)
			}
			printInvariants(cmd.OutOrStdout(), set)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&runIDs, "run-ids", nil, "runs to analyze (default: every stored run)")
	cmd.Flags().StringSliceVar(&formulas, "formula", nil, "restrict stored runs to these formula types")
	cmd.Flags().IntVar(&minRuns, "min-runs", 0, "runs a ratio family needs (0 selects the default)")
	cmd.Flags().Float64Var(&maxCV, "max-cv", 0, "coefficient of variation ceiling (0 selects the default)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "relative error for constant matches (0 selects the default)")
	return cmd
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var (
		limit       int
		formulaName string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := formulaevo.RunsRequest{Limit: limit}
			if formulaName != "" {
				t, err := model.ParseFormulaType(formulaName)
				if err != nil {
					return err
				}
				req.FormulaType = t
			}
			client, err := opts.newClient(cmd, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tCREATED\tFORMULA\tSEED\tGENERATIONS\tBEST\tCONVERGED\tTIMED OUT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.4f\t%t\t%t\n",
					r.RunID, r.CreatedAtUTC, r.FormulaType, r.Seed, r.Generations, r.BestFitness, r.Converged, r.TimedOut)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 lists all)")
	cmd.Flags().StringVar(&formulaName, "formula", "", "only list runs of this formula type")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var req formulaevo.ExportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a run's history and fitness series to disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.newClient(cmd, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run=%s dir=%s\n", summary.RunID, summary.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run to export")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "export the newest run")
	cmd.Flags().StringVar(&req.OutDir, "out", "", "output directory (defaults to --exports-dir)")
	cmd.Flags().StringVar(&req.ReportID, "report-id", "", "include a stored validation report")
	cmd.Flags().StringVar(&req.InvariantSetID, "invariant-set-id", "", "include a stored invariant set")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		spec   domain.SyntheticSpec
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic domain CSV whose outcome follows one feature",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if spec.DomainID == "" || filepath.Base(spec.DomainID) != spec.DomainID {
				return errors.New("--domain must be a plain file name")
			}
			entities, err := domain.Synthetic(spec)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(outDir, spec.DomainID+".csv")
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := domain.WriteCSV(f, entities); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entities to %s\n", len(entities), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.DomainID, "domain", "", "domain id, also the file name")
	cmd.Flags().IntVar(&spec.Count, "count", 200, "entities to generate")
	cmd.Flags().Int64Var(&spec.Seed, "seed", 1, "generator seed")
	cmd.Flags().StringVar(&spec.Driver, "driver", "", "feature the outcome follows (empty for pure noise)")
	cmd.Flags().Float64Var(&spec.Gain, "gain", 1, "driver gain")
	cmd.Flags().Float64Var(&spec.Noise, "noise", 0.1, "Gaussian noise scale")
	cmd.Flags().StringVar(&outDir, "out", "data", "output directory")
	return cmd
}

func printReport(w io.Writer, report model.ValidationReport) {
	if report.ID != "" {
		fmt.Fprintf(w, "report %s\n", report.ID)
	}
	fmt.Fprintf(w, "%s\n", formula.Describe(report.FormulaType, report.Parameters))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tENTITIES\tDROPPED\tSTATUS\tSIGNIFICANT")
	for _, d := range report.Domains {
		status := "scored"
		if d.Skipped {
			status = "skipped: " + d.SkipReason
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\n", d.DomainID, d.EntityCount, d.DroppedEntities, status, len(d.Significant))
	}
	_ = tw.Flush()
	for _, d := range report.ActiveDomains() {
		for _, c := range d.Significant {
			fmt.Fprintf(w, "  %s %-18s r=%+.4f p=%.3g\n", d.DomainID, c.Property, c.Correlation, c.PValue)
		}
	}
	for _, p := range model.Properties {
		if v := report.Consistency[p]; v > 0 {
			fmt.Fprintf(w, "consistency %-18s %.2f\n", p, v)
		}
	}
}

func printBatch(w io.Writer, result batchResult) {
	for _, r := range result.Runs {
		fmt.Fprintf(w, "run=%s generations=%d best=%.4f stop=%s\n", r.RunID, len(r.BestByGeneration), r.Best.Fitness, r.StopReason)
	}
	if result.Invariants != nil {
		printInvariants(w, *result.Invariants)
	}
}

func printInvariants(w io.Writer, set model.InvariantSet) {
	fmt.Fprintf(w, "invariant set %s over %d runs\n", set.ID, len(set.RunIDs))
	if len(set.Invariants) == 0 {
		fmt.Fprintln(w, "no consistent ratios found")
		return
	}
	for _, inv := range set.Invariants {
		fmt.Fprintf(w, "  [%s] %s (consistency %.3f)\n", inv.Kind, inv.Description, inv.ConsistencyScore)
	}
}
