package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"formulaevo/internal/cache"
	"formulaevo/internal/domain"
	"formulaevo/internal/storage"
	"formulaevo/pkg/formulaevo"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	storeKind    string
	dbPath       string
	dataDir      string
	exportsDir   string
	shuffleSeed  int64
	minEntities  int
	alpha        float64
	workers      int
	maxEncodings int
	logFormat    string
	logLevel     string
	jsonOutput   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "formulactl",
		Short: "Validate, evolve and analyze visual-encoding formulas",
		Long: `formulactl scores formula parameter vectors against domain outcomes,
evolves parameter vectors with a genetic search, and looks for ratios that
stay stable across independent runs.

Domains are read from <data-dir>/<domain>.csv with a name,outcome header
followed by feature columns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.storeKind, "store", storage.KindSQLite, "store backend: "+strings.Join(storage.Kinds, "|"))
	flags.StringVar(&opts.dbPath, "db-path", "formulaevo.db", "sqlite database path")
	flags.StringVar(&opts.dataDir, "data-dir", "data", "directory of domain CSV files")
	flags.StringVar(&opts.exportsDir, "exports-dir", "exports", "default export directory")
	flags.Int64Var(&opts.shuffleSeed, "shuffle-seed", 0, "permute outcomes with this seed to build a null control (0 disables)")
	flags.IntVar(&opts.minEntities, "min-entities", 0, "usable entities a domain needs to be scored (0 selects the default)")
	flags.Float64Var(&opts.alpha, "alpha", 0, "significance level (0 selects the default)")
	flags.IntVar(&opts.workers, "workers", 0, "domains validated concurrently (0 selects the default)")
	flags.IntVar(&opts.maxEncodings, "max-cached-encodings", cache.DefaultMaxEncodings, "transform results cached per validation or evolution run (-1 for unbounded)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text|json")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newValidateCmd(opts),
		newEvolveCmd(opts),
		newAnalyzeCmd(opts),
		newRunsCmd(opts),
		newExportCmd(opts),
		newScheduleCmd(opts),
		newGenerateCmd(),
	)
	return root
}

func (o *globalOptions) logger(cmd *cobra.Command) (*slog.Logger, error) {
	return newLogger(cmd.ErrOrStderr(), o.logFormat, o.logLevel)
}

func (o *globalOptions) newClient(cmd *cobra.Command, reg prometheus.Registerer) (*formulaevo.Client, error) {
	logger, err := o.logger(cmd)
	if err != nil {
		return nil, err
	}
	var provider domain.Provider = domain.NewCSVProvider(o.dataDir)
	if o.shuffleSeed != 0 {
		provider = domain.ShuffledProvider{Inner: provider, Seed: o.shuffleSeed}
	}
	client, err := formulaevo.New(formulaevo.Options{
		Provider:           provider,
		StoreKind:          o.storeKind,
		DBPath:             o.dbPath,
		ExportsDir:         o.exportsDir,
		MinEntities:        o.minEntities,
		Alpha:              o.alpha,
		Workers:            o.workers,
		MaxCachedEncodings: o.maxEncodings,
		Registerer:         reg,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
