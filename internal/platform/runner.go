package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evolva/internal/config"
	"evolva/internal/evo"
	"evolva/internal/logging"
	"evolva/internal/metrics"
	"evolva/internal/model"
	"evolva/internal/rng"
	"evolva/internal/storage"
	"evolva/internal/tsp"
)

var ErrNotStarted = errors.New("runner is not initialized")

type Config struct {
	Store   storage.Store
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	// MaxParallel bounds concurrent runs in a batch. Zero means unbounded.
	MaxParallel int
}

// RunSpec describes one run. An empty RunID gets a fresh UUID. A non-zero
// Stream derives the engine's random context from the run seed, so runs
// sharing a seed still draw independent sequences.
type RunSpec struct {
	RunID  string
	Config config.Config
	Stream uint64
}

type RunResult struct {
	Run     model.RunRecord
	History []model.GenerationRecord
}

// Runner builds and drives genetic algorithm runs and persists their results.
type Runner struct {
	store   storage.Store
	logger  *zap.Logger
	metrics *metrics.Recorder
	cfg     Config

	mu      sync.RWMutex
	started bool
	runs    map[string]*activeRun
}

// activeRun is closed once the run has persisted its results.
type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:   cfg.Store,
		logger:  logger,
		metrics: cfg.Metrics,
		cfg:     cfg,
		runs:    make(map[string]*activeRun),
	}
}

func (r *Runner) Init(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("store is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.store.Init(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

func (r *Runner) Started() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

// Reset stops active runs, waits for them to persist, then clears all
// persisted records and their metric series.
func (r *Runner) Reset(ctx context.Context) error {
	r.Stop()
	if err := r.Init(ctx); err != nil {
		return err
	}
	if r.metrics != nil {
		runs, err := r.store.ListRuns(ctx, 0)
		if err != nil {
			return err
		}
		for _, run := range runs {
			r.metrics.Forget(run.ID)
		}
	}
	return r.store.Reset(ctx)
}

// Stop cancels every active run and waits until each has persisted its
// summary.
func (r *Runner) Stop() {
	if ids := r.Active(); len(ids) > 0 {
		r.logger.Info("stopping active runs", zap.Strings("run_ids", ids))
	}
	r.mu.Lock()
	pending := make([]chan struct{}, 0, len(r.runs))
	for _, run := range r.runs {
		run.cancel()
		pending = append(pending, run.done)
	}
	r.mu.Unlock()
	for _, done := range pending {
		<-done
	}
}

// Cancel stops a single active run without waiting for it.
func (r *Runner) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if ok {
		run.cancel()
	}
	return ok
}

// Active lists the ids of runs in progress.
func (r *Runner) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Runner) registerRun(runID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNotStarted
	}
	if _, exists := r.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	r.runs[runID] = &activeRun{cancel: cancel, done: make(chan struct{})}
	return nil
}

func (r *Runner) unregisterRun(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[runID]; ok {
		close(run.done)
		delete(r.runs, runID)
	}
}

// Run executes one run to completion or cancellation. The summary and
// generation history are persisted in both cases; the returned error is
// non-nil when the run did not complete.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	cfg := spec.Config
	if err := cfg.Validate(); err != nil {
		return RunResult{}, err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return RunResult{}, err
	}

	runID := spec.RunID
	if runID == "" {
		runID = storage.NewRunID()
	}
	logger := logging.WithRun(r.logger, runID)

	problem, err := tsp.RandomProblem(
		cfg.Problem.Cities,
		cfg.Problem.Width,
		cfg.Problem.Height,
		rng.New(cfg.Problem.Seed),
		cfg.Problem.CacheSize,
	)
	if err != nil {
		return RunResult{}, fmt.Errorf("build problem: %w", err)
	}

	scaling, selector, err := buildOperators(cfg, logger)
	if err != nil {
		return RunResult{}, err
	}

	var observer evo.Observer
	if r.metrics != nil {
		observer = r.metrics.ForRun(runID)
	}
	ga, err := evo.NewSimpleGeneticAlgorithm(engineCfg, evo.Options[*tsp.Tour, *tsp.Problem]{
		Factory:        tsp.Factory{Problem: problem},
		PopulationSize: cfg.Run.PopulationSize,
		Scaling:        scaling,
		Selector:       selector,
		EvalContext:    problem,
		Random:         runRandom(engineCfg.Seed, spec.Stream),
		Logger:         logger,
		Observer:       observer,
	})
	if err != nil {
		return RunResult{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := r.registerRun(runID, cancel); err != nil {
		return RunResult{}, err
	}
	defer r.unregisterRun(runID)

	record := storage.Stamp(model.RunRecord{
		ID:         runID,
		Problem:    tsp.Name,
		Seed:       engineCfg.Seed,
		Stream:     spec.Stream,
		Selection:  selector.Name(),
		Scaling:    scaling.Name(),
		Population: ga.Population().Size(),
		Minimize:   engineCfg.Minimize,
		Elitism:    engineCfg.Elitism,
		StartedAt:  time.Now().UTC(),
		Status:     model.RunStatusCompleted,
	})
	logger.Info("run started",
		zap.Int("cities", problem.Size()),
		zap.Int("population", record.Population),
		zap.Int("max_generations", engineCfg.MaxGenerations),
		zap.String("selection", record.Selection),
		zap.String("scaling", record.Scaling),
	)

	generations, runErr := ga.Run(runCtx)
	record.FinishedAt = time.Now().UTC()
	record.Generations = generations
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		record.Status = model.RunStatusCancelled
		record.Error = runErr.Error()
	default:
		record.Status = model.RunStatusFailed
		record.Error = runErr.Error()
	}
	if best, err := ga.Best(); err == nil && ga.State() != evo.StateCreated {
		record.BestRaw = float64(best.RawScore())
		record.BestFitness = float64(best.Fitness())
		record.BestTour = best.Order()
	}
	history := toGenerationRecords(ga.History())

	// Persist even when the caller's context is already cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err := r.store.SaveRun(saveCtx, record); err != nil {
		return RunResult{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := r.store.SaveGenerationStats(saveCtx, runID, history); err != nil {
		return RunResult{}, fmt.Errorf("save generation stats %s: %w", runID, err)
	}
	if r.metrics != nil {
		hits, misses := problem.CacheStats()
		r.metrics.RecordCache(hits, misses)
		r.metrics.RecordRun(record.Status)
	}

	logger.Info("run finished",
		zap.String("status", record.Status),
		zap.Int("generations", generations),
		zap.Float64("best_raw", record.BestRaw),
		zap.Duration("elapsed", record.Elapsed()),
	)

	result := RunResult{Run: record, History: history}
	if runErr != nil {
		return result, fmt.Errorf("run %s %s: %w", runID, record.Status, runErr)
	}
	return result, nil
}

// RunBatch runs spec once per seed concurrently. Run i uses stream i+1 of its
// seed, so repeated seeds act as independent replicas. Each run owns its
// random context, population and driver; only the store and metrics are
// shared. The first failure cancels the remaining runs.
func (r *Runner) RunBatch(ctx context.Context, spec RunSpec, seeds []int64) ([]RunResult, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one seed is required")
	}
	results := make([]RunResult, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.MaxParallel > 0 {
		g.SetLimit(r.cfg.MaxParallel)
	}
	for i, seed := range seeds {
		runSpec := spec
		runSpec.Config.Run.Seed = seed
		runSpec.Stream = uint64(i) + 1
		if spec.RunID != "" {
			runSpec.RunID = fmt.Sprintf("%s-%d", spec.RunID, i)
		}
		g.Go(func() error {
			result, err := r.Run(gctx, runSpec)
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Runs lists persisted run summaries, newest first.
func (r *Runner) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if !r.Started() {
		return nil, ErrNotStarted
	}
	return r.store.ListRuns(ctx, limit)
}

// Diagnostics loads a run summary with its generation history.
func (r *Runner) Diagnostics(ctx context.Context, runID string) (RunResult, bool, error) {
	if !r.Started() {
		return RunResult{}, false, ErrNotStarted
	}
	run, ok, err := r.store.GetRun(ctx, runID)
	if err != nil || !ok {
		return RunResult{}, ok, err
	}
	history, _, err := r.store.GetGenerationStats(ctx, runID)
	if err != nil {
		return RunResult{}, false, err
	}
	return RunResult{Run: run, History: history}, true, nil
}

// runRandom returns the engine's random context. Stream zero is the plain
// seed, matching a driver built without an injected context.
func runRandom(seed int64, stream uint64) *rng.Context {
	base := rng.New(seed)
	if stream == 0 {
		return base
	}
	return base.Derive(stream)
}

func buildOperators(cfg config.Config, logger *zap.Logger) (evo.Scaling[*tsp.Tour], evo.Selector[*tsp.Tour], error) {
	scalingScheme, err := evo.ParseScalingScheme(cfg.Scaling.Scheme)
	if err != nil {
		return nil, nil, err
	}
	scaling, err := evo.NewScaling[*tsp.Tour](scalingScheme, cfg.Scaling.Multiplier, logger)
	if err != nil {
		return nil, nil, err
	}

	selectionScheme, err := evo.ParseSelectionScheme(cfg.Selection.Scheme)
	if err != nil {
		return nil, nil, err
	}
	basis, err := evo.ParseScoreBasis(cfg.Selection.Basis)
	if err != nil {
		return nil, nil, err
	}
	selector, err := evo.NewSelector[*tsp.Tour](selectionScheme, basis, cfg.Selection.TournamentSize)
	if err != nil {
		return nil, nil, err
	}
	return scaling, selector, nil
}

func toGenerationRecords(history []evo.GenerationStats) []model.GenerationRecord {
	records := make([]model.GenerationRecord, 0, len(history))
	for _, stats := range history {
		records = append(records, model.GenerationRecord{
			Generation:    stats.Generation,
			BestRaw:       float64(stats.BestRaw),
			BestFitness:   float64(stats.BestFitness),
			MinRaw:        stats.Population.RawMin,
			MaxRaw:        stats.Population.RawMax,
			MeanRaw:       stats.Population.RawMean,
			StdDevRaw:     stats.Population.RawStdDev,
			MeanFitness:   stats.Population.FitnessMean,
			Crossovers:    stats.Crossovers,
			Mutations:     stats.Mutations,
			DurationNanos: stats.Duration.Nanoseconds(),
		})
	}
	return records
}
