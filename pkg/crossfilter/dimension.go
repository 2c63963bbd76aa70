package crossfilter

import (
	"fmt"
	"math"
	"sort"
)

// Dimension is one filterable projection of the records
type Dimension[T any] struct {
	cf     *Crossfilter[T]
	name   string
	bit    uint64
	keys   []float64
	index  *index
	filter *Range
	groups []*Group[T]
}

// Name returns the registration name
func (d *Dimension[T]) Name() string {
	return d.name
}

// Key returns the projected key of record id
func (d *Dimension[T]) Key(id int) float64 {
	return d.keys[id]
}

// Filter returns a copy of the active range, or nil when unfiltered
func (d *Dimension[T]) Filter() *Range {
	d.cf.mu.RLock()
	defer d.cf.mu.RUnlock()

	if d.filter == nil {
		return nil
	}
	r := *d.filter
	return &r
}

// SetFilter restricts the dimension to r. A nil r clears the filter. An
// invalid range returns a *ValidationError and leaves the filter unchanged.
func (d *Dimension[T]) SetFilter(r *Range) error {
	cf := d.cf
	cf.writeMu.Lock()
	defer cf.writeMu.Unlock()

	cf.mu.Lock()
	changed, err := cf.setFilter(d, r)
	ev := Event{
		Dimension: d.name,
		Filter:    d.filter,
		Selected:  int(cf.selected.GetCardinality()),
		Version:   cf.version,
	}
	if ev.Filter != nil {
		copied := *ev.Filter
		ev.Filter = &copied
	}
	cf.mu.Unlock()

	if err != nil {
		return err
	}
	if changed {
		cf.notify(ev)
	}
	return nil
}

// FilterRange restricts the dimension to keys in [lo, hi)
func (d *Dimension[T]) FilterRange(lo, hi float64) error {
	return d.SetFilter(&Range{Lo: lo, Hi: hi})
}

// FilterExact restricts the dimension to keys equal to v
func (d *Dimension[T]) FilterExact(v float64) error {
	return d.SetFilter(&Range{Lo: v, Hi: math.Nextafter(v, math.Inf(1))})
}

// ClearFilter removes the dimension's filter
func (d *Dimension[T]) ClearFilter() {
	// A nil range always validates.
	_ = d.SetFilter(nil)
}

// Top returns up to n records accepted by every filter, largest key first.
func (d *Dimension[T]) Top(n int) []T {
	d.cf.mu.RLock()
	defer d.cf.mu.RUnlock()

	var out []T
	if n <= 0 {
		return out
	}
	d.index.descend(func(id uint32) bool {
		if d.cf.selected.Contains(id) {
			out = append(out, d.cf.records[id])
		}
		return len(out) < n
	})
	return out
}

// Bottom returns up to n records accepted by every filter, smallest key first.
func (d *Dimension[T]) Bottom(n int) []T {
	d.cf.mu.RLock()
	defer d.cf.mu.RUnlock()

	var out []T
	if n <= 0 {
		return out
	}
	d.index.ascend(func(id uint32) bool {
		if d.cf.selected.Contains(id) {
			out = append(out, d.cf.records[id])
		}
		return len(out) < n
	})
	return out
}

// GroupOption configures a Group over records of type T
type GroupOption[T any] func(*groupOptions[T])

type groupOptions[T any] struct {
	round  func(float64) float64
	reduce func(T) float64
}

// WithRound buckets keys through round, e.g. math.Floor.
func WithRound[T any](round func(float64) float64) GroupOption[T] {
	return func(o *groupOptions[T]) {
		o.round = round
	}
}

// WithReducer sums weight(record) per bucket instead of counting records.
func WithReducer[T any](weight func(T) float64) GroupOption[T] {
	return func(o *groupOptions[T]) {
		o.reduce = weight
	}
}

// Group creates a group over the dimension's keys. Its buckets count the
// records accepted by every other dimension's filter.
func (d *Dimension[T]) Group(opts ...GroupOption[T]) (*Group[T], error) {
	var o groupOptions[T]
	for _, opt := range opts {
		opt(&o)
	}

	cf := d.cf
	cf.writeMu.Lock()
	defer cf.writeMu.Unlock()
	cf.mu.Lock()
	defer cf.mu.Unlock()

	n := len(d.keys)
	rounded := make([]float64, n)
	for id, k := range d.keys {
		if o.round != nil {
			k = o.round(k)
			if math.IsNaN(k) || math.IsInf(k, 0) {
				return nil, &ConfigurationError{
					Dimension: d.name,
					Err:       fmt.Errorf("%w after rounding record %d", ErrNonFiniteKey, id),
				}
			}
		}
		rounded[id] = k
	}

	keys := append([]float64(nil), rounded...)
	sort.Float64s(keys)
	var distinct []float64
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			distinct = append(distinct, k)
		}
	}

	g := &Group[T]{
		dim:     d,
		keys:    distinct,
		bucket:  make([]int32, n),
		weights: make([]float64, n),
		values:  make([]float64, len(distinct)),
	}
	for id := 0; id < n; id++ {
		g.bucket[id] = int32(sort.SearchFloat64s(distinct, rounded[id]))
		if o.reduce != nil {
			g.weights[id] = o.reduce(cf.records[id])
		} else {
			g.weights[id] = 1
		}
		if cf.masks[id]&^d.bit == 0 {
			g.add(uint32(id))
		}
	}

	d.groups = append(d.groups, g)
	return g, nil
}
