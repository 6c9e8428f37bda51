package evo

import "evolva/internal/rng"

type evalCounter struct {
	calls int
}

// testIndividual carries a fixed value that becomes its raw score on evaluation.
type testIndividual struct {
	id      int
	value   float32
	raw     float32
	fitness float32

	mutations int
}

func newTestIndividual(id int, raw float32) *testIndividual {
	return &testIndividual{id: id, value: raw, raw: raw, fitness: raw}
}

func (t *testIndividual) RawScore() float32 { return t.raw }
func (t *testIndividual) Fitness() float32 { return t.fitness }
func (t *testIndividual) SetFitness(f float32) { t.fitness = f }
func (t *testIndividual) Mutate(float32, *rng.Context) { t.mutations++ }

func (t *testIndividual) Evaluate(ctx *evalCounter) {
	if ctx != nil {
		ctx.calls++
	}
	t.raw = t.value
}

func (t *testIndividual) Crossover(other *testIndividual, _ *rng.Context) *testIndividual {
	return &testIndividual{id: -1, value: (t.value + other.value) / 2}
}

func (t *testIndividual) Clone() *testIndividual {
	c := *t
	return &c
}

func newTestPopulation(order SortOrder, raws ...float32) *Population[*testIndividual] {
	members := make([]*testIndividual, len(raws))
	for i, raw := range raws {
		members[i] = newTestIndividual(i, raw)
	}
	return NewPopulation(members, order)
}
