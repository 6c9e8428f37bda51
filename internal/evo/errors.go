package evo

import "errors"

var (
	ErrEmptyPopulation    = errors.New("empty population")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrInvalidProbability = errors.New("probability must be in [0, 1]")
	ErrInvalidGenerations = errors.New("max generations must be > 0")
	ErrDegenerateScaling  = errors.New("degenerate scaling")
	ErrInvalidMultiplier  = errors.New("linear scaling multiplier must be > 1")
	ErrAlreadyDone        = errors.New("genetic algorithm already done")
	ErrNotInitialized     = errors.New("genetic algorithm not initialized")
	ErrInvalidScore       = errors.New("invalid score for selection")
	ErrStaleSelector      = errors.New("selector not updated for current population")
	ErrUnknownScheme      = errors.New("unknown scheme")
	ErrNoRandomContext    = errors.New("random context is required")
)
