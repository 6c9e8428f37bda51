package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evolva/internal/config"
	"evolva/internal/logging"
	"evolva/internal/metrics"
	"evolva/internal/storage"
	"evolva/pkg/evolva"
)

type globalOptions struct {
	storeKind  string
	dbPath     string
	exportsDir string
	logLevel   string
	logFormat  string
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "evolvactl",
		Short:         "Run and inspect genetic algorithm experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", "evolva.db", "sqlite database path")
	flags.StringVar(&opts.exportsDir, "exports-dir", "exports", "directory for exported runs")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", "console", "log format: json|console")

	root.AddCommand(
		newInitCommand(opts),
		newResetCommand(opts),
		newRunCommand(opts),
		newBatchCommand(opts),
		newRunsCommand(opts),
		newDiagnosticsCommand(opts),
		newExportCommand(opts),
		newShowCommand(),
		newSchemesCommand(),
		newConfigCommand(),
	)
	return root
}

// applyGlobals lets explicitly set global flags override the run file.
func applyGlobals(cmd *cobra.Command, opts *globalOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Kind = opts.storeKind
	}
	if flags.Changed("db-path") || cfg.Store.Path == "" {
		cfg.Store.Path = opts.dbPath
	}
	if flags.Changed("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") || cfg.Log.Format == "" {
		cfg.Log.Format = opts.logFormat
	}
}

func newLogger(cfg logging.Config) (*zap.Logger, error) {
	return logging.New(cfg)
}

func newClient(opts *globalOptions, storeKind, dbPath string, logger *zap.Logger, rec *metrics.Recorder) (*evolva.Client, error) {
	return evolva.New(evolva.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		ExportsDir: opts.exportsDir,
		Logger:     logger,
		Metrics:    rec,
	})
}

// newDefaultClient builds a client from global flags only.
func newDefaultClient(opts *globalOptions) (*evolva.Client, *zap.Logger, error) {
	logger, err := newLogger(logging.Config{Level: opts.logLevel, Format: opts.logFormat})
	if err != nil {
		return nil, nil, err
	}
	client, err := newClient(opts, opts.storeKind, opts.dbPath, logger, nil)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return client, logger, nil
}
