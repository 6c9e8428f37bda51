package evo

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type SelectionScheme string

const (
	SelectionRank       SelectionScheme = "rank"
	SelectionUniform    SelectionScheme = "uniform"
	SelectionRoulette   SelectionScheme = "roulette"
	SelectionTournament SelectionScheme = "tournament"
)

type ScalingScheme string

const (
	ScalingNone   ScalingScheme = "none"
	ScalingLinear ScalingScheme = "linear"
)

var selectionSchemes = map[string]SelectionScheme{
	"rank":           SelectionRank,
	"uniform":        SelectionUniform,
	"roulette":       SelectionRoulette,
	"roulette-wheel": SelectionRoulette,
	"tournament":     SelectionTournament,
}

var scalingSchemes = map[string]ScalingScheme{
	"":       ScalingNone,
	"none":   ScalingNone,
	"noop":   ScalingNone,
	"linear": ScalingLinear,
}

func ParseSelectionScheme(name string) (SelectionScheme, error) {
	scheme, ok := selectionSchemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: selection %q", ErrUnknownScheme, name)
	}
	return scheme, nil
}

func ParseScalingScheme(name string) (ScalingScheme, error) {
	scheme, ok := scalingSchemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: scaling %q", ErrUnknownScheme, name)
	}
	return scheme, nil
}

func ParseScoreBasis(name string) (ScoreBasis, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "raw":
		return Raw, nil
	case "", "scaled", "fitness":
		return Scaled, nil
	default:
		return Raw, fmt.Errorf("%w: score basis %q", ErrUnknownScheme, name)
	}
}

// ListSelectionSchemes returns the canonical selection scheme names.
func ListSelectionSchemes() []string {
	return canonicalNames(selectionSchemes)
}

// ListScalingSchemes returns the canonical scaling scheme names.
func ListScalingSchemes() []string {
	return canonicalNames(scalingSchemes)
}

func canonicalNames[S ~string](schemes map[string]S) []string {
	seen := make(map[string]struct{}, len(schemes))
	for _, scheme := range schemes {
		seen[string(scheme)] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSelector builds an unbound selector for scheme. The driver binds it with
// Assign. tournamentSize only applies to tournament selection.
func NewSelector[T Scored](scheme SelectionScheme, basis ScoreBasis, tournamentSize int) (Selector[T], error) {
	switch scheme {
	case SelectionRank:
		return NewRankSelector[T](nil, basis), nil
	case SelectionUniform:
		return NewUniformSelector[T](nil, basis), nil
	case SelectionRoulette:
		return NewRouletteWheelSelector[T](nil, basis), nil
	case SelectionTournament:
		return NewTournamentSelector[T](nil, basis, tournamentSize), nil
	default:
		return nil, fmt.Errorf("%w: selection %q", ErrUnknownScheme, scheme)
	}
}

func NewScaling[T Scored](scheme ScalingScheme, multiplier float32, logger *zap.Logger) (Scaling[T], error) {
	switch scheme {
	case ScalingNone:
		return NoScaling[T]{}, nil
	case ScalingLinear:
		if multiplier == 0 {
			multiplier = DefaultLinearMultiplier
		}
		scaling, err := NewLinearScaling[T](multiplier)
		if err != nil {
			return nil, err
		}
		scaling.Logger = logger
		return scaling, nil
	default:
		return nil, fmt.Errorf("%w: scaling %q", ErrUnknownScheme, scheme)
	}
}
