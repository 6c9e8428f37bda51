package evo

import "evolva/internal/rng"

// Scored is the part of an individual the population, scaling and selection
// layers depend on. The raw score is fixed once evaluated; fitness is written
// by scaling.
type Scored interface {
	RawScore() float32
	Fitness() float32
	SetFitness(f float32)
}

// Individual is the full capability set the driver needs from an application
// type. T is the implementing type itself (usually a pointer) and E is the
// problem-specific evaluation context.
type Individual[T any, E any] interface {
	Scored
	Evaluate(ctx E)
	Crossover(other T, r *rng.Context) T
	Mutate(p float32, r *rng.Context)
	Clone() T
}

// Factory bootstraps a population of n randomized, evaluated individuals.
type Factory[T Scored] interface {
	RandomPopulation(n int, order SortOrder, r *rng.Context) (*Population[T], error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc[T Scored] func(n int, order SortOrder, r *rng.Context) (*Population[T], error)

func (f FactoryFunc[T]) RandomPopulation(n int, order SortOrder, r *rng.Context) (*Population[T], error) {
	return f(n, order, r)
}
