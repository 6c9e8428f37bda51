package evolva

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"evolva/internal/config"
	"evolva/internal/metrics"
	"evolva/internal/model"
	"evolva/internal/platform"
	"evolva/internal/stats"
	"evolva/internal/storage"
)

const (
	defaultExportsDir = "exports"
	defaultDBPath     = "evolva.db"
	defaultRunsLimit  = 20
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind   string
	DBPath      string
	ExportsDir  string
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
	MaxParallel int
}

type Client struct {
	store  storage.Store
	runner *platform.Runner

	exportsDir string
}

type RunRequest struct {
	RunID  string
	Config config.Config
}

type BatchRequest struct {
	RunID  string
	Config config.Config
	Seeds  []int64
}

type RunSummary struct {
	RunID            string
	Status           string
	Generations      int
	BestLength       float64
	BestTour         []int
	BestByGeneration []float64
	Elapsed          time.Duration
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Status       string
	Seed         int64
	Selection    string
	Scaling      string
	Population   int
	Generations  int
	BestLength   float64
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
}

type DiagnosticsSummary struct {
	Run         model.RunRecord
	Generations []model.GenerationRecord
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store: store,
		runner: platform.NewRunner(platform.Config{
			Store:       store,
			Logger:      opts.Logger,
			Metrics:     opts.Metrics,
			MaxParallel: opts.MaxParallel,
		}),
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	c.runner.Stop()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.runner.Init(ctx)
}

// Reset clears every persisted run.
func (c *Client) Reset(ctx context.Context) error {
	return c.runner.Reset(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	result, err := c.runner.Run(ctx, platform.RunSpec{RunID: req.RunID, Config: req.Config})
	if result.Run.ID == "" {
		return RunSummary{}, err
	}
	return toRunSummary(result), err
}

// RunBatch runs the same configuration once per seed, concurrently.
func (c *Client) RunBatch(ctx context.Context, req BatchRequest) ([]RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	results, err := c.runner.RunBatch(ctx, platform.RunSpec{RunID: req.RunID, Config: req.Config}, req.Seeds)
	out := make([]RunSummary, 0, len(results))
	for _, result := range results {
		if result.Run.ID == "" {
			continue
		}
		out = append(out, toRunSummary(result))
	}
	return out, err
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	runs, err := c.runner.Runs(ctx, req.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:        run.ID,
			CreatedAtUTC: run.StartedAt.UTC().Format(time.RFC3339),
			Status:       run.Status,
			Seed:         run.Seed,
			Selection:    run.Selection,
			Scaling:      run.Scaling,
			Population:   run.Population,
			Generations:  run.Generations,
			BestLength:   run.BestRaw,
		})
	}
	return out, nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) (DiagnosticsSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return DiagnosticsSummary{}, err
	}
	result, ok, err := c.runner.Diagnostics(ctx, runID)
	if err != nil {
		return DiagnosticsSummary{}, err
	}
	if !ok {
		return DiagnosticsSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return DiagnosticsSummary{Run: result.Run, Generations: result.History}, nil
}

// Export writes a run's summary and history as files under OutDir.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	diag, err := c.Diagnostics(ctx, DiagnosticsRequest{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	dir, err := stats.ExportRun(req.OutDir, diag.Run, diag.Generations)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: diag.Run.ID, Directory: filepath.Clean(dir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}
	runs, err := c.runner.Runs(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
	}
	return runs[0].ID, nil
}

func toRunSummary(result platform.RunResult) RunSummary {
	best := make([]float64, 0, len(result.History))
	for _, gen := range result.History {
		best = append(best, gen.BestRaw)
	}
	return RunSummary{
		RunID:            result.Run.ID,
		Status:           result.Run.Status,
		Generations:      result.Run.Generations,
		BestLength:       result.Run.BestRaw,
		BestTour:         append([]int(nil), result.Run.BestTour...),
		BestByGeneration: best,
		Elapsed:          result.Run.Elapsed(),
	}
}
