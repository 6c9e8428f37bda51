package tsp

import (
	"fmt"

	"evolva/internal/evo"
	"evolva/internal/rng"
)

// Tour is a permutation of city indices. Its raw score is the closed-loop
// length, so runs over tours minimise.
type Tour struct {
	order   []int
	raw     float32
	fitness float32
}

var _ evo.Individual[*Tour, *Problem] = (*Tour)(nil)

func NewTour(order []int) *Tour {
	return &Tour{order: append([]int(nil), order...)}
}

func RandomTour(n int, r *rng.Context) *Tour {
	return &Tour{order: r.Perm(n)}
}

func (t *Tour) Order() []int {
	return append([]int(nil), t.order...)
}

func (t *Tour) Len() int {
	return len(t.order)
}

func (t *Tour) String() string {
	return fmt.Sprintf("tour%v (%.3f)", t.order, t.raw)
}

func (t *Tour) RawScore() float32 { return t.raw }

func (t *Tour) Fitness() float32 { return t.fitness }

func (t *Tour) SetFitness(f float32) { t.fitness = f }

func (t *Tour) Evaluate(p *Problem) {
	t.raw = p.length(t.order)
}

// Crossover is order crossover (OX1): a random segment is copied from t and
// the remaining cities are filled in the order they appear in other,
// starting after the segment.
func (t *Tour) Crossover(other *Tour, r *rng.Context) *Tour {
	n := len(t.order)
	if n < 2 || len(other.order) != n {
		return t.Clone()
	}

	// Segment [a, b) is never empty.
	a := r.Intn(n)
	b := r.IntRange(a+1, n)

	child := make([]int, n)
	used := make([]bool, n)
	for i := a; i < b; i++ {
		child[i] = t.order[i]
		used[t.order[i]] = true
	}
	pos := b % n
	for i := 0; i < n; i++ {
		city := other.order[(b+i)%n]
		if used[city] {
			continue
		}
		child[pos] = city
		used[city] = true
		pos = (pos + 1) % n
		if pos == a {
			pos = b % n
		}
	}
	return &Tour{order: child}
}

// Mutate swaps each position with a random other position with probability p.
func (t *Tour) Mutate(p float32, r *rng.Context) {
	n := len(t.order)
	if n < 2 {
		return
	}
	for i := range t.order {
		if !r.Flip(p) {
			continue
		}
		j := r.Intn(n - 1)
		if j >= i {
			j++
		}
		t.order[i], t.order[j] = t.order[j], t.order[i]
	}
}

func (t *Tour) Clone() *Tour {
	return &Tour{
		order:   append([]int(nil), t.order...),
		raw:     t.raw,
		fitness: t.fitness,
	}
}

// Factory builds random tours for a problem.
type Factory struct {
	Problem *Problem
}

var _ evo.Factory[*Tour] = Factory{}

func (f Factory) RandomPopulation(n int, order evo.SortOrder, r *rng.Context) (*evo.Population[*Tour], error) {
	if f.Problem == nil {
		return nil, fmt.Errorf("tsp factory has no problem")
	}
	tours := make([]*Tour, n)
	for i := range tours {
		tours[i] = RandomTour(f.Problem.Size(), r)
	}
	return evo.NewPopulation(tours, order), nil
}
