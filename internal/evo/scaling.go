package evo

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

const DefaultLinearMultiplier float32 = 2.0

// Scaling turns raw scores into fitness scores across a population. It visits
// every member exactly once and never reorders or resizes the population.
type Scaling[T Scored] interface {
	Name() string
	Apply(pop *Population[T])
}

// NoScaling copies raw into fitness.
type NoScaling[T Scored] struct{}

func (NoScaling[T]) Name() string {
	return "none"
}

func (NoScaling[T]) Apply(pop *Population[T]) {
	pop.Each(func(_ int, ind T) {
		ind.SetFitness(ind.RawScore())
	})
	pop.InvalidateFitness()
}

// LinearScaling applies fitness = a*raw + b with coefficients derived from the
// population's raw extremes (Goldberg). The average is the midpoint
// (max-min)/2, not the arithmetic mean. Use NewLinearScaling; of the struct
// literals only the zero Multiplier (meaning DefaultLinearMultiplier) is valid.
// Apply falls back to identity with a warning for an invalid multiplier.
type LinearScaling[T Scored] struct {
	Multiplier float32
	Logger     *zap.Logger
}

func NewLinearScaling[T Scored](multiplier float32) (*LinearScaling[T], error) {
	if !(multiplier > 1) {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidMultiplier, multiplier)
	}
	return &LinearScaling[T]{Multiplier: multiplier}, nil
}

func (s *LinearScaling[T]) Name() string {
	return "linear"
}

func (s *LinearScaling[T]) multiplier() float32 {
	if s.Multiplier == 0 {
		return DefaultLinearMultiplier
	}
	return s.Multiplier
}

// Prescale computes the linear coefficients. It returns ErrDegenerateScaling
// when the coefficients cannot be computed.
func (s *LinearScaling[T]) Prescale(hi, lo, avg float32) (a, b float32, err error) {
	m := s.multiplier()
	if !(m > 1) {
		return 0, 0, fmt.Errorf("%w: got %f", ErrInvalidMultiplier, m)
	}
	if hi == lo {
		return 0, 0, fmt.Errorf("%w: all raw scores equal %f", ErrDegenerateScaling, hi)
	}

	var delta float32
	if lo > (m*avg-hi)/(m-1) {
		delta = hi - avg
		if delta == 0 {
			return 0, 0, fmt.Errorf("%w: max equals avg", ErrDegenerateScaling)
		}
		a = (m - 1) * avg / delta
		b = avg * (hi - m*avg) / delta
	} else {
		delta = avg - lo
		if delta == 0 {
			return 0, 0, fmt.Errorf("%w: avg equals min", ErrDegenerateScaling)
		}
		a = avg / delta
		b = -lo * avg / delta
	}
	if !finite(a) || !finite(b) {
		return 0, 0, fmt.Errorf("%w: a=%f b=%f", ErrDegenerateScaling, a, b)
	}
	return a, b, nil
}

// Apply scales fitness in place. Degenerate populations fall back to identity
// scaling so a converged run keeps going.
func (s *LinearScaling[T]) Apply(pop *Population[T]) {
	if pop.Size() == 0 {
		return
	}
	best, _ := pop.Best(Raw)
	worst, _ := pop.Worst(Raw)
	hi := best.RawScore()
	lo := worst.RawScore()
	if pop.Order() == LowIsBest {
		hi, lo = lo, hi
	}
	avg := (hi - lo) / 2

	a, b, err := s.Prescale(hi, lo, avg)
	if err != nil {
		s.logFallback(err)
		a, b = 1, 0
	}

	pop.Each(func(_ int, ind T) {
		ind.SetFitness(a*ind.RawScore() + b)
	})
	pop.InvalidateFitness()
}

// logFallback reports an identity fallback. A degenerate population is
// expected near convergence; an invalid multiplier is a configuration error.
func (s *LinearScaling[T]) logFallback(err error) {
	if s.Logger == nil {
		return
	}
	if errors.Is(err, ErrInvalidMultiplier) {
		s.Logger.Warn("linear scaling multiplier invalid, using identity", zap.Float32("multiplier", s.Multiplier), zap.Error(err))
		return
	}
	s.Logger.Debug("linear scaling fell back to identity", zap.Error(err))
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
