package evo

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SortOrder decides whether ascending or descending scores are best.
type SortOrder int

const (
	HighIsBest SortOrder = iota
	LowIsBest
)

func (o SortOrder) String() string {
	switch o {
	case HighIsBest:
		return "high_is_best"
	case LowIsBest:
		return "low_is_best"
	default:
		return fmt.Sprintf("sort_order(%d)", int(o))
	}
}

// Better reports whether a is strictly better than b under o.
func (o SortOrder) Better(a, b float32) bool {
	if o == LowIsBest {
		return a < b
	}
	return a > b
}

// ScoreBasis selects which score an ordering or selector works on.
type ScoreBasis int

const (
	Raw ScoreBasis = iota
	Scaled
)

func (b ScoreBasis) String() string {
	switch b {
	case Raw:
		return "raw"
	case Scaled:
		return "scaled"
	default:
		return fmt.Sprintf("score_basis(%d)", int(b))
	}
}

func scoreOf[T Scored](basis ScoreBasis, ind T) float32 {
	if basis == Scaled {
		return ind.Fitness()
	}
	return ind.RawScore()
}

// Population owns an ordered sequence of individuals and lazily maintains two
// independent orderings over it, one by raw score and one by fitness.
// Orderings are index permutations; sorting never moves or rescores members.
type Population[T Scored] struct {
	members []T
	order   SortOrder

	rawIdx    []int
	fitIdx    []int
	rawSorted bool
	fitSorted bool

	// version changes whenever membership, order or fitness values change.
	version uint64
}

// PopulationStats summarises raw and scaled scores.
type PopulationStats struct {
	Size          int     `json:"size"`
	RawMin        float64 `json:"raw_min"`
	RawMax        float64 `json:"raw_max"`
	RawMean       float64 `json:"raw_mean"`
	RawStdDev     float64 `json:"raw_std_dev"`
	FitnessMin    float64 `json:"fitness_min"`
	FitnessMax    float64 `json:"fitness_max"`
	FitnessMean   float64 `json:"fitness_mean"`
	FitnessStdDev float64 `json:"fitness_std_dev"`
}

// NewPopulation takes ownership of individuals. No sorting happens here.
func NewPopulation[T Scored](individuals []T, order SortOrder) *Population[T] {
	return &Population[T]{
		members: individuals,
		order:   order,
	}
}

func (p *Population[T]) Size() int {
	return len(p.members)
}

func (p *Population[T]) Order() SortOrder {
	return p.order
}

// SetOrder changes the preferred direction and invalidates both orderings.
func (p *Population[T]) SetOrder(order SortOrder) {
	if p.order == order {
		return
	}
	p.order = order
	p.invalidate()
}

// Version identifies the current membership and score state.
func (p *Population[T]) Version() uint64 {
	return p.version
}

// Individuals returns a copy of the members in insertion order.
func (p *Population[T]) Individuals() []T {
	out := make([]T, len(p.members))
	copy(out, p.members)
	return out
}

// Each visits every member once in insertion order.
func (p *Population[T]) Each(fn func(i int, ind T)) {
	for i, ind := range p.members {
		fn(i, ind)
	}
}

// Replace swaps in a new member set, discarding the old one.
func (p *Population[T]) Replace(individuals []T) {
	p.members = individuals
	p.invalidate()
}

// InvalidateFitness must be called after fitness values are written outside a
// Scaling. Scaling implementations call it themselves.
func (p *Population[T]) InvalidateFitness() {
	p.fitSorted = false
	p.version++
}

func (p *Population[T]) invalidate() {
	p.rawSorted = false
	p.fitSorted = false
	p.version++
}

func (p *Population[T]) SortByRaw() {
	p.rawIdx = p.sortedIndex(Raw, p.rawIdx)
	p.rawSorted = true
}

func (p *Population[T]) SortByFitness() {
	p.fitIdx = p.sortedIndex(Scaled, p.fitIdx)
	p.fitSorted = true
}

// Sort refreshes both orderings.
func (p *Population[T]) Sort() {
	p.SortByRaw()
	p.SortByFitness()
}

// SortBy refreshes the ordering for one basis.
func (p *Population[T]) SortBy(basis ScoreBasis) {
	if basis == Scaled {
		p.SortByFitness()
		return
	}
	p.SortByRaw()
}

// Sorted reports whether the ordering for basis is current.
func (p *Population[T]) Sorted(basis ScoreBasis) bool {
	if basis == Scaled {
		return p.fitSorted
	}
	return p.rawSorted
}

func (p *Population[T]) sortedIndex(basis ScoreBasis, buf []int) []int {
	n := len(p.members)
	if cap(buf) < n {
		buf = make([]int, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = i
	}
	// Stable so equal scores keep insertion order.
	sort.SliceStable(buf, func(i, j int) bool {
		return p.order.Better(scoreOf(basis, p.members[buf[i]]), scoreOf(basis, p.members[buf[j]]))
	})
	return buf
}

func (p *Population[T]) ordering(basis ScoreBasis) []int {
	if !p.Sorted(basis) {
		p.SortBy(basis)
	}
	if basis == Scaled {
		return p.fitIdx
	}
	return p.rawIdx
}

// Best returns the best member on basis, sorting first if the ordering is stale.
func (p *Population[T]) Best(basis ScoreBasis) (T, error) {
	var zero T
	if len(p.members) == 0 {
		return zero, fmt.Errorf("%w: best by %s", ErrEmptyPopulation, basis)
	}
	return p.members[p.ordering(basis)[0]], nil
}

// Worst returns the worst member on basis, sorting first if the ordering is stale.
func (p *Population[T]) Worst(basis ScoreBasis) (T, error) {
	var zero T
	if len(p.members) == 0 {
		return zero, fmt.Errorf("%w: worst by %s", ErrEmptyPopulation, basis)
	}
	idx := p.ordering(basis)
	return p.members[idx[len(idx)-1]], nil
}

// IndividualAt returns the member ranked index on basis, best first.
func (p *Population[T]) IndividualAt(index int, basis ScoreBasis) (T, error) {
	var zero T
	if index < 0 || index >= len(p.members) {
		return zero, fmt.Errorf("%w: index=%d size=%d", ErrIndexOutOfRange, index, len(p.members))
	}
	return p.members[p.ordering(basis)[index]], nil
}

// Statistics summarises the current raw and fitness scores.
func (p *Population[T]) Statistics() (PopulationStats, error) {
	n := len(p.members)
	if n == 0 {
		return PopulationStats{}, ErrEmptyPopulation
	}
	raw := make([]float64, n)
	fit := make([]float64, n)
	for i, ind := range p.members {
		raw[i] = float64(ind.RawScore())
		fit[i] = float64(ind.Fitness())
	}

	out := PopulationStats{Size: n}
	out.RawMin, out.RawMax = minMax(raw)
	out.FitnessMin, out.FitnessMax = minMax(fit)
	out.RawMean, out.RawStdDev = meanStdDev(raw)
	out.FitnessMean, out.FitnessStdDev = meanStdDev(fit)
	return out, nil
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) < 2 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
