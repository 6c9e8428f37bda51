package evo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evolva/internal/rng"
)

// State is the driver's lifecycle position.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// GenerationStats describes one generation after replacement.
type GenerationStats struct {
	Generation  int             `json:"generation"`
	BestRaw     float32         `json:"best_raw"`
	BestFitness float32         `json:"best_fitness"`
	Population  PopulationStats `json:"population"`
	Crossovers  int             `json:"crossovers"`
	Mutations   int             `json:"mutations"`
	Duration    time.Duration   `json:"duration"`
}

// Observer receives statistics after every completed step.
type Observer interface {
	ObserveGeneration(stats GenerationStats)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(stats GenerationStats)

func (f ObserverFunc) ObserveGeneration(stats GenerationStats) {
	f(stats)
}

// Options wires the collaborators of a SimpleGeneticAlgorithm. Either Factory
// or Population is required; Factory wins when both are set.
type Options[T Individual[T, E], E any] struct {
	Factory        Factory[T]
	PopulationSize int
	Population     *Population[T]

	Scaling  Scaling[T]
	Selector Selector[T]

	EvalContext E
	Random      *rng.Context
	Logger      *zap.Logger
	Observer    Observer
	Terminator  Terminator
}

// SimpleGeneticAlgorithm is a non-overlapping generational GA: every step
// replaces the whole population with offspring of selected parent pairs.
type SimpleGeneticAlgorithm[T Individual[T, E], E any] struct {
	cfg        Config
	pop        *Population[T]
	scaling    Scaling[T]
	selector   Selector[T]
	evalCtx    E
	rng        *rng.Context
	logger     *zap.Logger
	observer   Observer
	terminator Terminator

	state      State
	generation int
	history    []GenerationStats
}

func NewSimpleGeneticAlgorithm[T Individual[T, E], E any](cfg Config, opts Options[T, E]) (*SimpleGeneticAlgorithm[T, E], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := opts.Random
	if r == nil {
		r = rng.New(cfg.Seed)
	}
	order := cfg.SortOrder()

	var pop *Population[T]
	switch {
	case opts.Factory != nil:
		size := opts.PopulationSize
		if size <= 0 {
			size = DefaultPopulationSize
		}
		var err error
		pop, err = opts.Factory.RandomPopulation(size, order, r)
		if err != nil {
			return nil, fmt.Errorf("build initial population: %w", err)
		}
	case opts.Population != nil:
		pop = opts.Population
	default:
		return nil, fmt.Errorf("%w: factory or initial population is required", ErrEmptyPopulation)
	}
	if pop == nil {
		return nil, fmt.Errorf("%w: factory returned no population", ErrEmptyPopulation)
	}
	pop.SetOrder(order)

	scaling := opts.Scaling
	if scaling == nil {
		scaling = NoScaling[T]{}
	}
	selector := opts.Selector
	if selector == nil {
		selector = NewRouletteWheelSelector[T](nil, Scaled)
	}
	selector.Assign(pop)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	terminator := opts.Terminator
	if terminator == nil && cfg.ConvergencePercentage > 0 {
		terminator = TerminateUponConvergence(cfg.ConvergencePercentage, cfg.ConvergenceWindow, order)
	}

	return &SimpleGeneticAlgorithm[T, E]{
		cfg:        cfg,
		pop:        pop,
		scaling:    scaling,
		selector:   selector,
		evalCtx:    opts.EvalContext,
		rng:        r,
		logger:     logger,
		observer:   opts.Observer,
		terminator: terminator,
		state:      StateCreated,
	}, nil
}

func (g *SimpleGeneticAlgorithm[T, E]) Config() Config {
	return g.cfg
}

func (g *SimpleGeneticAlgorithm[T, E]) Population() *Population[T] {
	return g.pop
}

func (g *SimpleGeneticAlgorithm[T, E]) Generation() int {
	return g.generation
}

func (g *SimpleGeneticAlgorithm[T, E]) State() State {
	return g.state
}

// History returns per-generation statistics, index 0 being the initialized
// population.
func (g *SimpleGeneticAlgorithm[T, E]) History() []GenerationStats {
	out := make([]GenerationStats, len(g.history))
	copy(out, g.history)
	return out
}

// Best returns the best member by raw score.
func (g *SimpleGeneticAlgorithm[T, E]) Best() (T, error) {
	return g.pop.Best(Raw)
}

func (g *SimpleGeneticAlgorithm[T, E]) debug(msg string, fields ...zap.Field) {
	if g.cfg.Flags.Has(FlagDebug) {
		g.logger.Debug(msg, fields...)
	}
}

// Initialize evaluates and scales the starting population and resets the
// generation counter.
func (g *SimpleGeneticAlgorithm[T, E]) Initialize() error {
	if g.pop.Size() == 0 {
		return fmt.Errorf("%w: cannot initialize", ErrEmptyPopulation)
	}

	g.pop.Each(func(_ int, ind T) {
		ind.Evaluate(g.evalCtx)
	})
	g.pop.invalidate()
	g.scaling.Apply(g.pop)
	g.pop.Sort()
	g.selector.Assign(g.pop)
	if err := g.selector.Update(); err != nil {
		return fmt.Errorf("update selector: %w", err)
	}

	g.generation = 0
	g.history = g.history[:0]
	stats, err := g.snapshot(0, 0, 0)
	if err != nil {
		return err
	}
	g.history = append(g.history, stats)
	g.state = StateInitialized

	g.debug("genetic algorithm initialized",
		zap.Int("population", g.pop.Size()),
		zap.String("order", g.pop.Order().String()),
		zap.String("selector", g.selector.Name()),
		zap.String("scaling", g.scaling.Name()),
		zap.Float32("best_raw", stats.BestRaw),
	)
	return nil
}

// Step runs one generation and returns the new generation counter.
func (g *SimpleGeneticAlgorithm[T, E]) Step() (int, error) {
	switch g.state {
	case StateCreated:
		return g.generation, ErrNotInitialized
	case StateDone:
		return g.generation, ErrAlreadyDone
	}
	if g.Done() {
		return g.generation, ErrAlreadyDone
	}

	start := time.Now()
	g.scaling.Apply(g.pop)
	g.pop.Sort()
	if err := g.selector.Update(); err != nil {
		return g.generation, fmt.Errorf("update selector: %w", err)
	}

	n := g.pop.Size()
	next := make([]T, 0, n)
	crossovers, mutations := 0, 0
	for len(next) < n {
		mom, err := g.selector.Select(g.rng)
		if err != nil {
			return g.generation, fmt.Errorf("select parent: %w", err)
		}
		dad, err := g.selector.Select(g.rng)
		if err != nil {
			return g.generation, fmt.Errorf("select parent: %w", err)
		}

		var sis, bro T
		if g.rng.Flip(g.cfg.CrossoverProbability) {
			sis = mom.Crossover(dad, g.rng)
			bro = dad.Crossover(mom, g.rng)
			crossovers++
		} else {
			sis = mom.Clone()
			bro = dad.Clone()
		}
		if g.rng.Flip(g.cfg.MutationProbability) {
			sis.Mutate(g.cfg.MutationProbability, g.rng)
			bro.Mutate(g.cfg.MutationProbability, g.rng)
			mutations++
		}

		sis.Evaluate(g.evalCtx)
		next = append(next, sis)
		if len(next) < n {
			bro.Evaluate(g.evalCtx)
			next = append(next, bro)
		}
	}

	if g.cfg.Elitism {
		if err := g.keepElite(next); err != nil {
			return g.generation, err
		}
	}

	g.pop.Replace(next)
	g.scaling.Apply(g.pop)
	g.pop.Sort()
	g.generation++

	stats, err := g.snapshot(crossovers, mutations, time.Since(start))
	if err != nil {
		return g.generation, err
	}
	g.history = append(g.history, stats)
	if g.observer != nil {
		g.observer.ObserveGeneration(stats)
	}

	g.debug("genetic algorithm step",
		zap.Int("generation", g.generation),
		zap.Float32("best_raw", stats.BestRaw),
		zap.Float64("mean_raw", stats.Population.RawMean),
		zap.Int("crossovers", crossovers),
		zap.Int("mutations", mutations),
	)

	if g.Done() {
		g.state = StateDone
	}
	return g.generation, nil
}

// Done reports whether the run has reached its termination condition.
func (g *SimpleGeneticAlgorithm[T, E]) Done() bool {
	done := g.generation >= g.cfg.MaxGenerations
	if !done && g.terminator != nil && g.state != StateCreated {
		done = g.terminator(g.generation, g.history)
	}
	if done {
		g.debug("genetic algorithm done", zap.Int("generation", g.generation))
	}
	return done
}

// Run initializes the driver if needed and steps until done. ctx is checked
// between steps only.
func (g *SimpleGeneticAlgorithm[T, E]) Run(ctx context.Context) (int, error) {
	if g.state == StateCreated {
		if err := g.Initialize(); err != nil {
			return g.generation, err
		}
	}
	for !g.Done() {
		if err := ctx.Err(); err != nil {
			return g.generation, err
		}
		if _, err := g.Step(); err != nil {
			return g.generation, err
		}
	}
	g.state = StateDone
	return g.generation, nil
}

// keepElite replaces the worst offspring with a copy of the current best
// member when the best is strictly better.
func (g *SimpleGeneticAlgorithm[T, E]) keepElite(next []T) error {
	best, err := g.pop.Best(Raw)
	if err != nil {
		return err
	}
	order := g.pop.Order()
	worst := 0
	for i := 1; i < len(next); i++ {
		if order.Better(next[worst].RawScore(), next[i].RawScore()) {
			worst = i
		}
	}
	if order.Better(best.RawScore(), next[worst].RawScore()) {
		next[worst] = best.Clone()
	}
	return nil
}

func (g *SimpleGeneticAlgorithm[T, E]) snapshot(crossovers, mutations int, elapsed time.Duration) (GenerationStats, error) {
	popStats, err := g.pop.Statistics()
	if err != nil {
		return GenerationStats{}, err
	}
	bestRaw, err := g.pop.Best(Raw)
	if err != nil {
		return GenerationStats{}, err
	}
	bestFit, err := g.pop.Best(Scaled)
	if err != nil {
		return GenerationStats{}, err
	}
	return GenerationStats{
		Generation:  g.generation,
		BestRaw:     bestRaw.RawScore(),
		BestFitness: bestFit.Fitness(),
		Population:  popStats,
		Crossovers:  crossovers,
		Mutations:   mutations,
		Duration:    elapsed,
	}, nil
}
