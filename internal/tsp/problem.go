package tsp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"evolva/internal/rng"
)

// Name identifies the problem in run records.
const Name = "tsp"

var ErrTooFewCities = errors.New("tsp needs at least two cities")

type City struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Problem is a symmetric euclidean travelling-salesman instance. It is safe
// for concurrent evaluation.
type Problem struct {
	cities []City
	dist   [][]float64

	cache  *lru.Cache[string, float32]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewProblem precomputes the distance matrix. cacheSize <= 0 disables the
// tour length cache.
func NewProblem(cities []City, cacheSize int) (*Problem, error) {
	if len(cities) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCities, len(cities))
	}
	p := &Problem{
		cities: append([]City(nil), cities...),
		dist:   make([][]float64, len(cities)),
	}
	for i := range cities {
		p.dist[i] = make([]float64, len(cities))
		for j := range cities {
			p.dist[i][j] = math.Hypot(cities[i].X-cities[j].X, cities[i].Y-cities[j].Y)
		}
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create tour cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// RandomProblem scatters n cities uniformly over a width x height plane.
func RandomProblem(n int, width, height float64, r *rng.Context, cacheSize int) (*Problem, error) {
	cities := make([]City, n)
	for i := range cities {
		cities[i] = City{X: r.Float64() * width, Y: r.Float64() * height}
	}
	return NewProblem(cities, cacheSize)
}

func (p *Problem) Size() int {
	return len(p.cities)
}

func (p *Problem) Distance(i, j int) float64 {
	return p.dist[i][j]
}

// TourLength is the closed-loop length of order.
func (p *Problem) TourLength(order []int) float64 {
	if len(order) < 2 {
		return 0
	}
	total := 0.0
	prev := order[len(order)-1]
	for _, city := range order {
		total += p.dist[prev][city]
		prev = city
	}
	return total
}

// ValidTour reports whether order visits every city exactly once.
func (p *Problem) ValidTour(order []int) bool {
	if len(order) != len(p.cities) {
		return false
	}
	seen := make([]bool, len(order))
	for _, city := range order {
		if city < 0 || city >= len(seen) || seen[city] {
			return false
		}
		seen[city] = true
	}
	return true
}

// CacheStats returns evaluation cache hits and misses so far.
func (p *Problem) CacheStats() (hits, misses uint64) {
	return p.hits.Load(), p.misses.Load()
}

func (p *Problem) length(order []int) float32 {
	if p.cache == nil {
		p.misses.Add(1)
		return float32(p.TourLength(order))
	}
	key := fingerprint(order)
	if length, ok := p.cache.Get(key); ok {
		p.hits.Add(1)
		return length
	}
	p.misses.Add(1)
	length := float32(p.TourLength(order))
	p.cache.Add(key, length)
	return length
}

// fingerprint is identical for every rotation and reflection of a cycle: it
// starts at the smallest city and walks towards its smaller neighbour.
func fingerprint(order []int) string {
	n := len(order)
	if n == 0 {
		return ""
	}
	start := 0
	for i, city := range order {
		if city < order[start] {
			start = i
		}
	}
	step := 1
	if order[(start+n-1)%n] < order[(start+1)%n] {
		step = n - 1
	}
	buf := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(order[(start+i*step)%n]), 10)
	}
	return string(buf)
}
