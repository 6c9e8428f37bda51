// Package rng provides the explicit random source threaded through every
// evolutionary operation. There is no package-level generator: callers own a
// Context and pass it down.
//
// A Context is not safe for concurrent use. Independent runs derive their own
// stream with Derive.
package rng

import "math/rand"

// DefaultSeed replaces a zero seed so that the zero value stays reproducible.
const DefaultSeed int64 = 1

type Context struct {
	seed int64
	r    *rand.Rand
}

func New(seed int64) *Context {
	if seed == 0 {
		seed = DefaultSeed
	}
	return &Context{
		seed: seed,
		r:    rand.New(rand.NewSource(seed)),
	}
}

func (c *Context) Seed() int64 {
	return c.seed
}

// Float32 returns a uniform value in [0, 1).
func (c *Context) Float32() float32 {
	return c.r.Float32()
}

// Float64 returns a uniform value in [0, 1).
func (c *Context) Float64() float64 {
	return c.r.Float64()
}

// Intn returns a uniform value in [0, n). It panics if n <= 0, like math/rand.
func (c *Context) Intn(n int) int {
	return c.r.Intn(n)
}

// IntRange returns a uniform value in [lo, hi].
func (c *Context) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + c.r.Intn(hi-lo+1)
}

func (c *Context) Perm(n int) []int {
	return c.r.Perm(n)
}

func (c *Context) Shuffle(n int, swap func(i, j int)) {
	c.r.Shuffle(n, swap)
}

// Flip returns true with probability p.
func (c *Context) Flip(p float32) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return c.r.Float32() < p
}

// Derive returns an independent deterministic stream for the given stream id.
// One value is consumed from the parent so consecutive derivations differ even
// for the same stream id.
func (c *Context) Derive(stream uint64) *Context {
	return New(deriveSeed(c.r.Int63(), stream))
}

// deriveSeed mixes a parent seed with a stream id using the SplitMix64 finalizer.
func deriveSeed(parent int64, stream uint64) int64 {
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	s := int64(x)
	if s == 0 {
		s = DefaultSeed
	}
	return s
}
