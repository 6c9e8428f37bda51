package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evolva/internal/config"
	"evolva/internal/evo"
	"evolva/internal/logging"
	"evolva/internal/metrics"
	"evolva/internal/model"
	"evolva/internal/stats"
	"evolva/pkg/evolva"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the run store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, logger, err := newDefaultClient(opts)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized store=%s\n", opts.storeKind)
			return nil
		},
	}
}

func newResetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, logger, err := newDefaultClient(opts)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)
			if err := client.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset store=%s\n", opts.storeKind)
			return nil
		},
	}
}

// runFlags are the per-run overrides shared by run and batch.
type runFlags struct {
	configPath  string
	runID       string
	generations int
	population  int
	crossover   float32
	mutation    float32
	seed        int64
	selection   string
	basis       string
	tournament  int
	scaling     string
	multiplier  float32
	cities      int
	problemSeed int64
	maximize    bool
	elitism     bool
	convergence float32
	debug       bool
	metricsAddr string
	jsonOut     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "YAML run file")
	flags.StringVar(&f.runID, "run-id", "", "run id, generated when empty")
	flags.IntVar(&f.generations, "gens", config.DefaultGenerations, "maximum generations")
	flags.IntVar(&f.population, "pop", evo.DefaultPopulationSize, "population size")
	flags.Float32Var(&f.crossover, "crossover", config.DefaultCrossover, "crossover probability")
	flags.Float32Var(&f.mutation, "mutation", config.DefaultMutation, "mutation probability")
	flags.Int64Var(&f.seed, "seed", 1, "engine random seed")
	flags.StringVar(&f.selection, "selection", string(evo.SelectionRoulette), "selection scheme")
	flags.StringVar(&f.basis, "basis", "scaled", "selection score basis: raw|scaled")
	flags.IntVar(&f.tournament, "tournament-size", config.DefaultTournamentSize, "tournament size")
	flags.StringVar(&f.scaling, "scaling", string(evo.ScalingLinear), "scaling scheme")
	flags.Float32Var(&f.multiplier, "multiplier", evo.DefaultLinearMultiplier, "linear scaling multiplier")
	flags.IntVar(&f.cities, "cities", config.DefaultCities, "number of cities")
	flags.Int64Var(&f.problemSeed, "problem-seed", 1, "city layout seed")
	flags.BoolVar(&f.maximize, "maximize", false, "treat higher raw scores as better")
	flags.BoolVar(&f.elitism, "elitism", false, "carry the best member into each generation")
	flags.Float32Var(&f.convergence, "convergence", 0, "stop once the best score converges to this ratio")
	flags.BoolVar(&f.debug, "debug", false, "log every generation")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on host:port while running")
	flags.BoolVar(&f.jsonOut, "json", false, "emit JSON output")
}

// resolve loads the run file, if any, then applies explicitly set flags.
func (f *runFlags) resolve(cmd *cobra.Command, opts *globalOptions) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else {
		cfg.Store.Kind = opts.storeKind
		cfg.Log = logging.Config{Level: opts.logLevel, Format: opts.logFormat}
	}
	applyGlobals(cmd, opts, &cfg)

	flags := cmd.Flags()
	if flags.Changed("gens") {
		cfg.Run.Generations = f.generations
	}
	if flags.Changed("pop") {
		cfg.Run.PopulationSize = f.population
	}
	if flags.Changed("crossover") {
		cfg.Run.Crossover = f.crossover
	}
	if flags.Changed("mutation") {
		cfg.Run.Mutation = f.mutation
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = f.seed
	}
	if flags.Changed("selection") {
		cfg.Selection.Scheme = f.selection
	}
	if flags.Changed("basis") {
		cfg.Selection.Basis = f.basis
	}
	if flags.Changed("tournament-size") {
		cfg.Selection.TournamentSize = f.tournament
	}
	if flags.Changed("scaling") {
		cfg.Scaling.Scheme = f.scaling
	}
	if flags.Changed("multiplier") {
		cfg.Scaling.Multiplier = f.multiplier
	}
	if flags.Changed("cities") {
		cfg.Problem.Cities = f.cities
	}
	if flags.Changed("problem-seed") {
		cfg.Problem.Seed = f.problemSeed
	}
	if flags.Changed("maximize") {
		cfg.Run.Minimize = !f.maximize
	}
	if flags.Changed("elitism") {
		cfg.Run.Elitism = f.elitism
	}
	if flags.Changed("convergence") {
		cfg.Run.Convergence = f.convergence
	}
	if flags.Changed("debug") {
		cfg.Run.Debug = f.debug
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session is a client plus the optional metrics endpoint serving it.
type session struct {
	client   *evolva.Client
	logger   *zap.Logger
	recorder *metrics.Recorder
	server   *http.Server
}

func openSession(cfg config.Config, opts *globalOptions) (*session, error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	recorder := metrics.NewRecorder(nil)
	client, err := newClient(opts, cfg.Store.Kind, cfg.Store.Path, logger, recorder)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	s := &session{client: client, logger: logger, recorder: recorder}
	if cfg.Metrics.Addr != "" {
		if err := s.serveMetrics(cfg.Metrics.Addr); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.recorder.Handler())
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *session) close() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.server.Shutdown(ctx)
		cancel()
	}
	closeClient(s.client, s.logger)
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one genetic algorithm experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve(cmd, opts)
			if err != nil {
				return err
			}
			s, err := openSession(cfg, opts)
			if err != nil {
				return err
			}
			defer s.close()

			summary, err := s.client.Run(cmd.Context(), evolva.RunRequest{RunID: flags.runID, Config: cfg})
			if summary.RunID == "" {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				if encErr := writeJSON(out, summary); encErr != nil {
					return encErr
				}
				return err
			}
			printRunSummary(out, cfg, summary)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func newBatchCommand(opts *globalOptions) *cobra.Command {
	flags := &runFlags{}
	var seeds []int64
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the same experiment once per seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(seeds) == 0 {
				return errors.New("at least one --seeds value is required")
			}
			cfg, err := flags.resolve(cmd, opts)
			if err != nil {
				return err
			}
			s, err := openSession(cfg, opts)
			if err != nil {
				return err
			}
			defer s.close()

			summaries, err := s.client.RunBatch(cmd.Context(), evolva.BatchRequest{
				RunID:  flags.runID,
				Config: cfg,
				Seeds:  seeds,
			})
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				if encErr := writeJSON(out, summaries); encErr != nil {
					return encErr
				}
				return err
			}
			tw := newTable(out, "batch")
			tw.AppendHeader(table.Row{"run_id", "status", "gens", "best_length", "elapsed"})
			for _, summary := range summaries {
				tw.AppendRow(table.Row{summary.RunID, summary.Status, summary.Generations, fmt.Sprintf("%.4f", summary.BestLength), summary.Elapsed.Round(time.Millisecond)})
			}
			tw.Render()
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().Int64SliceVar(&seeds, "seeds", nil, "engine seeds, one run per seed")
	return cmd
}

func newRunsCommand(opts *globalOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, logger, err := newDefaultClient(opts)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)
			items, err := client.Runs(cmd.Context(), evolva.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, items)
			}
			tw := newTable(out, "runs")
			tw.AppendHeader(table.Row{"run_id", "created_at", "status", "seed", "selection", "scaling", "pop", "gens", "best_length"})
			for _, item := range items {
				tw.AppendRow(table.Row{
					item.RunID, item.CreatedAtUTC, item.Status, item.Seed, item.Selection,
					item.Scaling, item.Population, item.Generations, fmt.Sprintf("%.4f", item.BestLength),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON output")
	return cmd
}

func newDiagnosticsCommand(opts *globalOptions) *cobra.Command {
	var (
		latest  bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "diagnostics [run-id]",
		Short: "Show per-generation statistics of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := newDefaultClient(opts)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)
			diag, err := client.Diagnostics(cmd.Context(), evolva.DiagnosticsRequest{RunID: firstArg(args), Latest: latest})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, diag)
			}
			fmt.Fprintf(out, "run_id=%s status=%s selection=%s scaling=%s best_length=%.6f\n",
				diag.Run.ID, diag.Run.Status, diag.Run.Selection, diag.Run.Scaling, diag.Run.BestRaw)
			tw := newTable(out, "generations")
			tw.AppendHeader(table.Row{"gen", "best", "mean", "min", "max", "stddev", "best_fitness", "crossovers", "mutations"})
			for _, gen := range diag.Generations {
				tw.AppendRow(table.Row{
					gen.Generation,
					fmt.Sprintf("%.4f", gen.BestRaw),
					fmt.Sprintf("%.4f", gen.MeanRaw),
					fmt.Sprintf("%.4f", gen.MinRaw),
					fmt.Sprintf("%.4f", gen.MaxRaw),
					fmt.Sprintf("%.4f", gen.StdDevRaw),
					fmt.Sprintf("%.4f", gen.BestFitness),
					gen.Crossovers,
					gen.Mutations,
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON output")
	return cmd
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	var (
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Write a run summary and its generation series to disk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := newDefaultClient(opts)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)
			exported, err := client.Export(cmd.Context(), evolva.ExportRequest{RunID: firstArg(args), Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory, defaults to --exports-dir")
	return cmd
}

func newShowCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <export-dir>",
		Short: "Print a run previously written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := stats.ReadRun(args[0])
			if err != nil {
				return fmt.Errorf("read exported run: %w", err)
			}
			series, err := stats.ReadGenerationSeries(args[0])
			if err != nil {
				return fmt.Errorf("read generation series: %w", err)
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, struct {
					Run    model.RunRecord `json:"run"`
					Series []float64       `json:"best_by_generation"`
				}{Run: run, Series: series})
			}
			fmt.Fprintf(out, "run_id=%s status=%s seed=%d stream=%d gens=%d best_length=%.6f tour=%v\n",
				run.ID, run.Status, run.Seed, run.Stream, run.Generations, run.BestRaw, run.BestTour)
			for i, best := range series {
				fmt.Fprintf(out, "generation=%d best_length=%.6f\n", i, best)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON output")
	return cmd
}

func newSchemesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schemes",
		Short: "List the available selection and scaling schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := newTable(cmd.OutOrStdout(), "schemes")
			tw.AppendHeader(table.Row{"kind", "name"})
			for _, name := range evo.ListSelectionSchemes() {
				tw.AppendRow(table.Row{"selection", name})
			}
			for _, name := range evo.ListScalingSchemes() {
				tw.AppendRow(table.Row{"scaling", name})
			}
			tw.Render()
			return nil
		},
	}
}

func newConfigCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective run file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "YAML run file to validate and print")
	return cmd
}

func printRunSummary(out io.Writer, cfg config.Config, summary evolva.RunSummary) {
	fmt.Fprintf(out, "run %s run_id=%s cities=%d pop=%d gens=%d seed=%d selection=%s scaling=%s\n",
		summary.Status, summary.RunID, cfg.Problem.Cities, cfg.Run.PopulationSize, summary.Generations,
		cfg.Run.Seed, cfg.Selection.Scheme, cfg.Scaling.Scheme)
	for i, best := range summary.BestByGeneration {
		fmt.Fprintf(out, "generation=%d best_length=%.6f\n", i, best)
	}
	fmt.Fprintf(out, "final_best_length=%.6f tour=%v elapsed=%s\n", summary.BestLength, summary.BestTour, summary.Elapsed.Round(time.Millisecond))
}

func newTable(out io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle(title)
	tw.SetStyle(table.StyleLight)
	return tw
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func closeClient(client *evolva.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("close client", zap.Error(err))
	}
	_ = logger.Sync()
}
