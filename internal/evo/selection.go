package evo

import (
	"fmt"
	"math"
	"sort"

	"evolva/internal/rng"
)

const DefaultTournamentSize = 3

// Selector samples individuals from the population it is bound to. Update
// must be called after the population's scores or membership change; Select
// never removes the returned member.
type Selector[T Scored] interface {
	Name() string
	Basis() ScoreBasis
	Assign(pop *Population[T])
	Update() error
	Select(r *rng.Context) (T, error)
}

type boundSelector[T Scored] struct {
	pop   *Population[T]
	basis ScoreBasis
}

func (s *boundSelector[T]) Basis() ScoreBasis {
	return s.basis
}

func (s *boundSelector[T]) Assign(pop *Population[T]) {
	s.pop = pop
}

func (s *boundSelector[T]) population() (*Population[T], error) {
	if s.pop == nil || s.pop.Size() == 0 {
		return nil, fmt.Errorf("%w: selector has no members to sample", ErrEmptyPopulation)
	}
	return s.pop, nil
}

// RankSelector always returns the current best member on its basis.
type RankSelector[T Scored] struct {
	boundSelector[T]
}

func NewRankSelector[T Scored](pop *Population[T], basis ScoreBasis) *RankSelector[T] {
	return &RankSelector[T]{boundSelector[T]{pop: pop, basis: basis}}
}

func (*RankSelector[T]) Name() string {
	return "rank"
}

func (s *RankSelector[T]) Update() error {
	if s.pop == nil {
		return nil
	}
	s.pop.SortBy(s.basis)
	return nil
}

func (s *RankSelector[T]) Select(_ *rng.Context) (T, error) {
	pop, err := s.population()
	if err != nil {
		var zero T
		return zero, err
	}
	return pop.IndividualAt(0, s.basis)
}

// UniformSelector ignores scores and picks any member with equal probability.
type UniformSelector[T Scored] struct {
	boundSelector[T]
}

func NewUniformSelector[T Scored](pop *Population[T], basis ScoreBasis) *UniformSelector[T] {
	return &UniformSelector[T]{boundSelector[T]{pop: pop, basis: basis}}
}

func (*UniformSelector[T]) Name() string {
	return "uniform"
}

func (*UniformSelector[T]) Update() error {
	return nil
}

func (s *UniformSelector[T]) Select(r *rng.Context) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNoRandomContext
	}
	pop, err := s.population()
	if err != nil {
		return zero, err
	}
	return pop.members[r.Intn(pop.Size())], nil
}

// RouletteWheelSelector picks members with probability proportional to their
// score on the bound basis. Under LowIsBest weights are inverted as
// max+min-score so lower scores get the larger share.
type RouletteWheelSelector[T Scored] struct {
	boundSelector[T]

	cumulative []float64
	members    []T
	version    uint64
	tablePop   *Population[T]
}

func NewRouletteWheelSelector[T Scored](pop *Population[T], basis ScoreBasis) *RouletteWheelSelector[T] {
	return &RouletteWheelSelector[T]{boundSelector: boundSelector[T]{pop: pop, basis: basis}}
}

func (*RouletteWheelSelector[T]) Name() string {
	return "roulette"
}

func (s *RouletteWheelSelector[T]) Assign(pop *Population[T]) {
	s.boundSelector.Assign(pop)
	s.cumulative = nil
	s.members = nil
}

// Update rebuilds the cumulative-probability table over the basis ordering.
func (s *RouletteWheelSelector[T]) Update() error {
	s.cumulative = nil
	s.members = nil
	pop, err := s.population()
	if err != nil {
		return err
	}

	n := pop.Size()
	members := make([]T, n)
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		ind, err := pop.IndividualAt(i, s.basis)
		if err != nil {
			return err
		}
		members[i] = ind
		w := float64(scoreOf(s.basis, ind))
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: non-finite %s score at rank %d", ErrInvalidScore, s.basis, i)
		}
		weights[i] = w
	}

	if pop.Order() == LowIsBest {
		// Ordering is ascending, so the extremes sit at both ends.
		hi, lo := weights[n-1], weights[0]
		for i := range weights {
			weights[i] = hi + lo - weights[i]
		}
	}

	total := 0.0
	for i, w := range weights {
		if w < 0 {
			return fmt.Errorf("%w: negative %s weight %f at rank %d", ErrInvalidScore, s.basis, w, i)
		}
		total += w
	}

	cumulative := make([]float64, n)
	if total == 0 {
		// All weights zero: every member gets an equal share.
		for i := range cumulative {
			cumulative[i] = float64(i+1) / float64(n)
		}
	} else {
		running := 0.0
		for i, w := range weights {
			running += w
			cumulative[i] = running / total
		}
	}
	cumulative[n-1] = 1

	s.cumulative = cumulative
	s.members = members
	s.version = pop.Version()
	s.tablePop = pop
	return nil
}

func (s *RouletteWheelSelector[T]) Select(r *rng.Context) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNoRandomContext
	}
	pop, err := s.population()
	if err != nil {
		return zero, err
	}
	if s.cumulative == nil || s.tablePop != pop || s.version != pop.Version() {
		return zero, ErrStaleSelector
	}

	u := r.Float64()
	i := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > u
	})
	if i >= len(s.members) {
		i = len(s.members) - 1
	}
	return s.members[i], nil
}

// TournamentSelector samples Size members uniformly with replacement and
// returns the best of them on the bound basis.
type TournamentSelector[T Scored] struct {
	boundSelector[T]
	Size int
}

func NewTournamentSelector[T Scored](pop *Population[T], basis ScoreBasis, size int) *TournamentSelector[T] {
	return &TournamentSelector[T]{boundSelector: boundSelector[T]{pop: pop, basis: basis}, Size: size}
}

func (*TournamentSelector[T]) Name() string {
	return "tournament"
}

func (*TournamentSelector[T]) Update() error {
	return nil
}

func (s *TournamentSelector[T]) Select(r *rng.Context) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNoRandomContext
	}
	pop, err := s.population()
	if err != nil {
		return zero, err
	}

	size := s.Size
	if size <= 0 {
		size = DefaultTournamentSize
	}

	n := pop.Size()
	best := pop.members[r.Intn(n)]
	for i := 1; i < size; i++ {
		candidate := pop.members[r.Intn(n)]
		if pop.order.Better(scoreOf(s.basis, candidate), scoreOf(s.basis, best)) {
			best = candidate
		}
	}
	return best, nil
}
