package crossfilter

import (
	"sort"
)

// Bucket is one group entry
type Bucket struct {
	Key   float64 `json:"key"`
	Value float64 `json:"value"`
}

// Group aggregates a dimension's records per bucket key
type Group[T any] struct {
	dim     *Dimension[T]
	keys    []float64 // distinct bucket keys, ascending
	bucket  []int32   // bucket position per record id
	weights []float64 // reducer weight per record id
	values  []float64 // aggregate per bucket position
}

func (g *Group[T]) add(id uint32) {
	g.values[g.bucket[id]] += g.weights[id]
}

func (g *Group[T]) remove(id uint32) {
	g.values[g.bucket[id]] -= g.weights[id]
}

// Dimension returns the dimension the group belongs to
func (g *Group[T]) Dimension() *Dimension[T] {
	return g.dim
}

// All returns every bucket in ascending key order
func (g *Group[T]) All() []Bucket {
	g.dim.cf.mu.RLock()
	defer g.dim.cf.mu.RUnlock()
	return g.all()
}

func (g *Group[T]) all() []Bucket {
	out := make([]Bucket, len(g.keys))
	for i, k := range g.keys {
		out[i] = Bucket{Key: k, Value: g.values[i]}
	}
	return out
}

// Map returns the buckets keyed by bucket key
func (g *Group[T]) Map() map[float64]float64 {
	g.dim.cf.mu.RLock()
	defer g.dim.cf.mu.RUnlock()

	out := make(map[float64]float64, len(g.keys))
	for i, k := range g.keys {
		out[k] = g.values[i]
	}
	return out
}

// Value returns the aggregate of one bucket
func (g *Group[T]) Value(key float64) (float64, bool) {
	g.dim.cf.mu.RLock()
	defer g.dim.cf.mu.RUnlock()

	i := sort.SearchFloat64s(g.keys, key)
	if i == len(g.keys) || g.keys[i] != key {
		return 0, false
	}
	return g.values[i], true
}

// Size returns the number of buckets
func (g *Group[T]) Size() int {
	return len(g.keys)
}

// Total returns the sum over all buckets
func (g *Group[T]) Total() float64 {
	g.dim.cf.mu.RLock()
	defer g.dim.cf.mu.RUnlock()

	var sum float64
	for _, v := range g.values {
		sum += v
	}
	return sum
}

// Top returns up to k buckets with the largest values. Ties keep key order.
func (g *Group[T]) Top(k int) []Bucket {
	g.dim.cf.mu.RLock()
	buckets := g.all()
	g.dim.cf.mu.RUnlock()

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Value > buckets[j].Value
	})
	if k < 0 {
		k = 0
	}
	if k < len(buckets) {
		buckets = buckets[:k]
	}
	return buckets
}
