package evo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"evolva/internal/rng"
)

func TestRankSelectorReturnsBestRawDeterministically(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 3, 7, 1)
	selector := NewRankSelector(pop, Raw)
	require.NoError(t, selector.Update())

	r := rng.New(1)
	for i := 0; i < 20; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		require.Equal(t, float32(7), ind.RawScore())
	}
}

func TestRankSelectorScaledBasisFollowsFitness(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 3.14159, 2.14159)
	pop.Each(func(_ int, ind *testIndividual) { ind.SetFitness(1 / ind.RawScore()) })
	pop.InvalidateFitness()

	selector := NewRankSelector(pop, Scaled)
	require.NoError(t, selector.Update())
	ind, err := selector.Select(nil)
	require.NoError(t, err)
	require.Equal(t, float32(2.14159), ind.RawScore())
}

func TestRankSelectorLowIsBest(t *testing.T) {
	pop := newTestPopulation(LowIsBest, 3, 7, 1)
	selector := NewRankSelector(pop, Raw)
	require.NoError(t, selector.Update())
	ind, err := selector.Select(nil)
	require.NoError(t, err)
	require.Equal(t, float32(1), ind.RawScore())
}

func TestUniformSelectorFrequencies(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 3.14159, 2.14159)
	selector := NewUniformSelector(pop, Raw)
	require.NoError(t, selector.Update())

	r := rng.New(42)
	const draws = 10000
	counts := map[int]int{}
	for i := 0; i < draws; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		counts[ind.id]++
	}
	for id, count := range counts {
		freq := float64(count) / draws
		if math.Abs(freq-0.5) > 0.03 {
			t.Fatalf("member %d frequency %f outside tolerance", id, freq)
		}
	}
	require.Len(t, counts, 2)
}

func TestRouletteWheelSelectorProportionalToScore(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 1, 3)
	selector := NewRouletteWheelSelector(pop, Raw)
	require.NoError(t, selector.Update())

	r := rng.New(7)
	const draws = 20000
	hits := 0
	for i := 0; i < draws; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		if ind.RawScore() == 3 {
			hits++
		}
	}
	freq := float64(hits) / draws
	require.InDelta(t, 0.75, freq, 0.02)
}

func TestRouletteWheelSelectorLowIsBestFavoursLowerScores(t *testing.T) {
	// Inverted weights: 1 -> 3, 3 -> 1.
	pop := newTestPopulation(LowIsBest, 1, 3)
	selector := NewRouletteWheelSelector(pop, Raw)
	require.NoError(t, selector.Update())

	r := rng.New(9)
	const draws = 20000
	hits := 0
	for i := 0; i < draws; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		if ind.RawScore() == 1 {
			hits++
		}
	}
	require.InDelta(t, 0.75, float64(hits)/draws, 0.02)
}

func TestRouletteWheelSelectorZeroScoresAreUniform(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 0, 0)
	selector := NewRouletteWheelSelector(pop, Scaled)
	require.NoError(t, selector.Update())

	r := rng.New(3)
	counts := map[int]int{}
	for i := 0; i < 4000; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		counts[ind.id]++
	}
	require.InDelta(t, 0.5, float64(counts[0])/4000, 0.05)
}

func TestRouletteWheelSelectorRejectsNegativeWeights(t *testing.T) {
	pop := newTestPopulation(HighIsBest, -1, 3)
	selector := NewRouletteWheelSelector(pop, Raw)
	require.ErrorIs(t, selector.Update(), ErrInvalidScore)
}

func TestRouletteWheelSelectorRequiresUpdate(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 1, 3)
	selector := NewRouletteWheelSelector(pop, Scaled)
	r := rng.New(1)

	_, err := selector.Select(r)
	require.ErrorIs(t, err, ErrStaleSelector)

	require.NoError(t, selector.Update())
	_, err = selector.Select(r)
	require.NoError(t, err)

	NoScaling[*testIndividual]{}.Apply(pop)
	_, err = selector.Select(r)
	require.ErrorIs(t, err, ErrStaleSelector)

	require.NoError(t, selector.Update())
	replacement := newTestPopulation(HighIsBest, 2, 2)
	selector.Assign(replacement)
	_, err = selector.Select(r)
	require.ErrorIs(t, err, ErrStaleSelector)
}

func TestTournamentSelectorPicksBestOfSample(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 1, 2, 3, 4, 5, 6, 7, 8)
	selector := NewTournamentSelector(pop, Raw, pop.Size()*4)
	require.NoError(t, selector.Update())

	// With a large tournament the best member is almost always sampled.
	r := rng.New(5)
	best := 0
	for i := 0; i < 200; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		if ind.RawScore() == 8 {
			best++
		}
	}
	require.Greater(t, best, 190)
}

func TestTournamentSelectorSizeOneIsUniform(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 1, 9)
	selector := NewTournamentSelector(pop, Raw, 1)
	r := rng.New(13)
	counts := map[float32]int{}
	for i := 0; i < 4000; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		counts[ind.RawScore()]++
	}
	require.InDelta(t, 0.5, float64(counts[9])/4000, 0.05)
}

func TestTournamentSelectorBiasTowardsBetter(t *testing.T) {
	pop := newTestPopulation(LowIsBest, 1, 2, 3, 4)
	selector := NewTournamentSelector(pop, Raw, 0)
	r := rng.New(17)
	counts := map[float32]int{}
	for i := 0; i < 4000; i++ {
		ind, err := selector.Select(r)
		require.NoError(t, err)
		counts[ind.RawScore()]++
	}
	require.Greater(t, counts[1], counts[2])
	require.Greater(t, counts[2], counts[3])
	require.Greater(t, counts[3], counts[4])
}

func TestSelectorsFailOnEmptyPopulation(t *testing.T) {
	pop := NewPopulation[*testIndividual](nil, HighIsBest)
	r := rng.New(1)
	selectors := []Selector[*testIndividual]{
		NewRankSelector(pop, Raw),
		NewUniformSelector(pop, Raw),
		NewRouletteWheelSelector(pop, Raw),
		NewTournamentSelector(pop, Raw, 2),
	}
	for _, selector := range selectors {
		_, err := selector.Select(r)
		require.ErrorIs(t, err, ErrEmptyPopulation, selector.Name())
	}
}

func TestSelectorsDoNotMutatePopulation(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 4, 1, 3)
	r := rng.New(2)
	selectors := []Selector[*testIndividual]{
		NewRankSelector(pop, Raw),
		NewUniformSelector(pop, Raw),
		NewRouletteWheelSelector(pop, Raw),
		NewTournamentSelector(pop, Raw, 2),
	}
	for _, selector := range selectors {
		require.NoError(t, selector.Update())
		for i := 0; i < 10; i++ {
			_, err := selector.Select(r)
			require.NoError(t, err)
		}
	}
	require.Equal(t, 3, pop.Size())
	pop.Each(func(_ int, ind *testIndividual) {
		require.Equal(t, ind.value, ind.RawScore())
	})
}

func TestRandomSelectorsRequireRandomContext(t *testing.T) {
	pop := newTestPopulation(HighIsBest, 1, 2, 3)
	selectors := []Selector[*testIndividual]{
		NewUniformSelector(pop, Raw),
		NewRouletteWheelSelector(pop, Raw),
		NewTournamentSelector(pop, Raw, 2),
	}
	for _, selector := range selectors {
		require.NoError(t, selector.Update())
		_, err := selector.Select(nil)
		require.ErrorIs(t, err, ErrNoRandomContext, selector.Name())
	}
}
