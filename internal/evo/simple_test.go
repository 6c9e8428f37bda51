package evo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evolva/internal/rng"
)

const testVal float32 = 3.14159

type testOptions = Options[*testIndividual, *evalCounter]

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := NewConfig(100, 0, 0)
	require.NoError(t, err)
	cfg.Seed = 1
	cfg.Flags = FlagDebug
	return cfg
}

func validateSimpleGA(t *testing.T, ga *SimpleGeneticAlgorithm[*testIndividual, *evalCounter]) {
	t.Helper()
	require.NoError(t, ga.Initialize())
	gen, err := ga.Step()
	require.NoError(t, err)
	require.Equal(t, 1, gen)
	require.False(t, ga.Done())
	require.Equal(t, 1, ga.Population().Size())
	best, err := ga.Best()
	require.NoError(t, err)
	require.Equal(t, testVal, best.RawScore())
}

func TestSimpleGAWithInitialPopulation(t *testing.T) {
	initial := NewPopulation([]*testIndividual{newTestIndividual(0, testVal)}, HighIsBest)
	ga, err := NewSimpleGeneticAlgorithm(testConfig(t), testOptions{
		Population: initial,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	validateSimpleGA(t, ga)
}

func TestSimpleGAWithFactory(t *testing.T) {
	factory := FactoryFunc[*testIndividual](func(n int, order SortOrder, _ *rng.Context) (*Population[*testIndividual], error) {
		members := make([]*testIndividual, n)
		for i := range members {
			members[i] = newTestIndividual(i, testVal)
		}
		return NewPopulation(members, order), nil
	})
	ga, err := NewSimpleGeneticAlgorithm(testConfig(t), testOptions{
		Factory:        factory,
		PopulationSize: 1,
	})
	require.NoError(t, err)
	validateSimpleGA(t, ga)
}

func TestSimpleGAMissingPopulationSource(t *testing.T) {
	_, err := NewSimpleGeneticAlgorithm(testConfig(t), testOptions{})
	require.ErrorIs(t, err, ErrEmptyPopulation)
}

func TestSimpleGAFactoryErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	factory := FactoryFunc[*testIndividual](func(int, SortOrder, *rng.Context) (*Population[*testIndividual], error) {
		return nil, boom
	})
	_, err := NewSimpleGeneticAlgorithm(testConfig(t), testOptions{Factory: factory})
	require.ErrorIs(t, err, boom)
}

func TestSimpleGAEmptyInitialPopulation(t *testing.T) {
	empty := NewPopulation[*testIndividual](nil, HighIsBest)
	ga, err := NewSimpleGeneticAlgorithm(testConfig(t), testOptions{Population: empty})
	require.NoError(t, err)
	require.ErrorIs(t, ga.Initialize(), ErrEmptyPopulation)
	require.Equal(t, StateCreated, ga.State())
}

func TestSimpleGARejectsInvalidConfig(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 1)
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "crossover above one", cfg: Config{MaxGenerations: 1, CrossoverProbability: 1.5}, want: ErrInvalidProbability},
		{name: "negative mutation", cfg: Config{MaxGenerations: 1, MutationProbability: -0.1}, want: ErrInvalidProbability},
		{name: "convergence above one", cfg: Config{MaxGenerations: 1, ConvergencePercentage: 2}, want: ErrInvalidProbability},
		{name: "zero generations", cfg: Config{}, want: ErrInvalidGenerations},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSimpleGeneticAlgorithm(tc.cfg, testOptions{Population: pop})
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := NewConfig(10, 0.9, 1.01)
	require.ErrorIs(t, err, ErrInvalidProbability)
}

func TestSimpleGAStepBeforeInitialize(t *testing.T) {
	ga, err := NewSimpleGeneticAlgorithm(testConfig(t), testOptions{Population: newTestPopulation(HighIsBest, 1, 2)})
	require.NoError(t, err)
	_, err = ga.Step()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestSimpleGAAlreadyDone(t *testing.T) {
	cfg := Config{MaxGenerations: 2, CrossoverProbability: 0.9, MutationProbability: 0.1}
	ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{Population: newTestPopulation(HighIsBest, 1, 2, 3, 4)})
	require.NoError(t, err)
	require.NoError(t, ga.Initialize())

	for want := 1; want <= 2; want++ {
		gen, err := ga.Step()
		require.NoError(t, err)
		require.Equal(t, want, gen)
	}
	require.True(t, ga.Done())
	require.Equal(t, StateDone, ga.State())

	gen, err := ga.Step()
	require.ErrorIs(t, err, ErrAlreadyDone)
	require.Equal(t, 2, gen)
}

func TestSimpleGAEvaluatesEveryOffspring(t *testing.T) {
	counter := &evalCounter{}
	cfg := Config{MaxGenerations: 3, CrossoverProbability: 1}
	ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{
		Population:  newTestPopulation(HighIsBest, 1, 2, 3, 4, 5),
		EvalContext: counter,
	})
	require.NoError(t, err)
	require.NoError(t, ga.Initialize())
	require.Equal(t, 5, counter.calls)

	_, err = ga.Step()
	require.NoError(t, err)
	require.Equal(t, 10, counter.calls)
	require.Equal(t, 5, ga.Population().Size())

	history := ga.History()
	require.Len(t, history, 2)
	require.Equal(t, 3, history[1].Crossovers)
}

func TestSimpleGAMutationGate(t *testing.T) {
	cfg := Config{MaxGenerations: 1, MutationProbability: 1}
	pop := newTestPopulation(HighIsBest, 1, 2, 3, 4)
	ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{Population: pop})
	require.NoError(t, err)
	require.NoError(t, ga.Initialize())
	_, err = ga.Step()
	require.NoError(t, err)

	ga.Population().Each(func(_ int, ind *testIndividual) {
		assert.Equal(t, 1, ind.mutations)
	})
	require.Equal(t, 2, ga.History()[1].Mutations)
}

func TestSimpleGAOffspringDoNotAliasParents(t *testing.T) {
	cfg := Config{MaxGenerations: 1}
	pop := newTestPopulation(HighIsBest, 1, 2)
	before := pop.Individuals()
	ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{Population: pop, Selector: NewRankSelector[*testIndividual](nil, Raw)})
	require.NoError(t, err)
	require.NoError(t, ga.Initialize())
	_, err = ga.Step()
	require.NoError(t, err)

	for _, child := range ga.Population().Individuals() {
		for _, parent := range before {
			require.NotSame(t, parent, child)
		}
		require.Equal(t, float32(2), child.RawScore())
	}
}

func TestSimpleGAIsDeterministicForSeed(t *testing.T) {
	run := func() []GenerationStats {
		cfg := Config{MaxGenerations: 10, CrossoverProbability: 0.8, MutationProbability: 0.2, Seed: 99}
		ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{
			Population: newTestPopulation(HighIsBest, 1, 5, 2, 8, 3, 9, 4),
			Selector:   NewTournamentSelector[*testIndividual](nil, Scaled, 2),
		})
		require.NoError(t, err)
		_, err = ga.Run(context.Background())
		require.NoError(t, err)
		history := ga.History()
		for i := range history {
			history[i].Duration = 0
		}
		return history
	}
	require.Equal(t, run(), run())
}

func TestSimpleGAElitismKeepsBest(t *testing.T) {
	for _, minimize := range []bool{false, true} {
		cfg := Config{MaxGenerations: 15, CrossoverProbability: 1, Elitism: true, Minimize: minimize, Seed: 4}
		ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{
			Population: newTestPopulation(HighIsBest, 1, 20, 3, 14, 5, 6),
			Selector:   NewUniformSelector[*testIndividual](nil, Raw),
		})
		require.NoError(t, err)
		_, err = ga.Run(context.Background())
		require.NoError(t, err)

		history := ga.History()
		order := ga.Population().Order()
		for i := 1; i < len(history); i++ {
			if order.Better(history[i-1].BestRaw, history[i].BestRaw) {
				t.Fatalf("minimize=%v: best regressed at generation %d: %f -> %f", minimize, i, history[i-1].BestRaw, history[i].BestRaw)
			}
		}
		want := float32(20)
		if minimize {
			want = 1
		}
		require.Equal(t, want, history[len(history)-1].BestRaw)
	}
}

func TestSimpleGAConvergenceTerminator(t *testing.T) {
	cfg := Config{MaxGenerations: 100, CrossoverProbability: 1, ConvergencePercentage: 0.99, ConvergenceWindow: 3}
	ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{Population: newTestPopulation(HighIsBest, 5, 5, 5)})
	require.NoError(t, err)
	gen, err := ga.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, gen)
	require.True(t, ga.Done())
}

func TestSimpleGAObserverAndCancellation(t *testing.T) {
	var seen []int
	cfg := Config{MaxGenerations: 50, CrossoverProbability: 0.5}
	ctx, cancel := context.WithCancel(context.Background())
	ga, err := NewSimpleGeneticAlgorithm(cfg, testOptions{
		Population: newTestPopulation(HighIsBest, 1, 2, 3),
		Observer: ObserverFunc(func(stats GenerationStats) {
			seen = append(seen, stats.Generation)
			if stats.Generation == 4 {
				cancel()
			}
		}),
	})
	require.NoError(t, err)

	gen, err := ga.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 4, gen)
	require.Equal(t, []int{1, 2, 3, 4}, seen)
}

func TestConvergenceRatio(t *testing.T) {
	require.InDelta(t, 0.5, convergence(5, 10, HighIsBest), 1e-9)
	require.InDelta(t, 0.5, convergence(10, 5, LowIsBest), 1e-9)
	require.Equal(t, 1.0, convergence(0, 0, HighIsBest))
	require.Equal(t, 0.0, convergence(3, 0, HighIsBest))
	require.False(t, TerminateUponConvergence(0.9, 5, HighIsBest)(2, nil))
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "created", StateCreated.String())
	require.Equal(t, "initialized", StateInitialized.String())
	require.Equal(t, "done", StateDone.String())
}
