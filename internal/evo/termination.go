package evo

// Terminator decides whether a run should stop early. history holds one entry
// per completed generation, index 0 being the initialized population.
type Terminator func(generation int, history []GenerationStats) bool

// TerminateUponConvergence stops when the best raw score window generations
// ago, relative to the current best, reaches percentage. The ratio is taken so
// that it never exceeds 1 while the run keeps improving.
func TerminateUponConvergence(percentage float32, window int, order SortOrder) Terminator {
	if window <= 0 {
		window = DefaultConvergenceWindow
	}
	return func(generation int, history []GenerationStats) bool {
		if generation < window || len(history) <= generation {
			return false
		}
		return convergence(history[generation-window].BestRaw, history[generation].BestRaw, order) >= float64(percentage)
	}
}

func convergence(previous, current float32, order SortOrder) float64 {
	num, den := float64(previous), float64(current)
	if order == LowIsBest {
		num, den = den, num
	}
	if den == 0 {
		if num == 0 {
			return 1
		}
		return 0
	}
	return num / den
}
