package evo

import (
	"fmt"
	"math"
)

// Flags toggles driver diagnostics.
type Flags uint32

const (
	FlagDebug Flags = 1 << iota
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

const (
	DefaultPopulationSize    = 30
	DefaultConvergenceWindow = 20
)

// Config is fixed for the duration of a run.
type Config struct {
	MaxGenerations       int
	CrossoverProbability float32
	MutationProbability  float32
	Minimize             bool
	Flags                Flags

	// Seed builds the driver's random context when none is injected.
	Seed int64
	// Elitism carries the best member into the next generation.
	Elitism bool
	// ConvergencePercentage enables convergence termination when > 0.
	ConvergencePercentage float32
	ConvergenceWindow     int
}

// NewConfig returns a validated configuration with the remaining fields at
// their zero values.
func NewConfig(maxGenerations int, crossover, mutation float32) (Config, error) {
	cfg := Config{
		MaxGenerations:       maxGenerations,
		CrossoverProbability: crossover,
		MutationProbability:  mutation,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxGenerations <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidGenerations, c.MaxGenerations)
	}
	if !validProbability(c.CrossoverProbability) {
		return fmt.Errorf("%w: crossover=%f", ErrInvalidProbability, c.CrossoverProbability)
	}
	if !validProbability(c.MutationProbability) {
		return fmt.Errorf("%w: mutation=%f", ErrInvalidProbability, c.MutationProbability)
	}
	if !validProbability(c.ConvergencePercentage) {
		return fmt.Errorf("%w: convergence=%f", ErrInvalidProbability, c.ConvergencePercentage)
	}
	if c.ConvergenceWindow < 0 {
		return fmt.Errorf("convergence window must be >= 0: got %d", c.ConvergenceWindow)
	}
	return nil
}

// SortOrder maps the minimize flag onto a population sort order.
func (c Config) SortOrder() SortOrder {
	if c.Minimize {
		return LowIsBest
	}
	return HighIsBest
}

func validProbability(p float32) bool {
	if math.IsNaN(float64(p)) {
		return false
	}
	return p >= 0 && p <= 1
}
