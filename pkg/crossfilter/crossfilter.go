// Package crossfilter indexes one record set along several dimensions and keeps
// every dimension's groups consistent with the filters set on all the others.
//
// Each dimension owns one bit of a per-record rejection mask. A record is
// selected when its mask is zero, and it counts towards a group of dimension d
// when its mask is zero ignoring d's bit. A filter change only touches the
// records whose key lies in the symmetric difference of the old and new range.
package crossfilter

import (
	"fmt"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"
)

// MaxDimensions is the number of dimensions a Crossfilter can hold
const MaxDimensions = 64

// Event describes an applied filter change
type Event struct {
	Dimension string `json:"dimension"`
	Filter    *Range `json:"filter"`
	Selected  int    `json:"selected"`
	Version   uint64 `json:"version"`
}

type listener struct {
	id uint64
	fn func(Event)
}

// Crossfilter coordinates the dimensions of one record set
type Crossfilter[T any] struct {
	// writeMu serializes filter changes together with their notifications.
	writeMu sync.Mutex
	mu      sync.RWMutex

	records  []T
	masks    []uint64
	selected *roaring.Bitmap

	dims   []*Dimension[T]
	byName map[string]*Dimension[T]

	listeners  []listener
	listenerID uint64
	version    uint64

	logger *zap.Logger
}

// Option configures a Crossfilter
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger filter changes are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a Crossfilter over records. The slice is not copied and must not
// be modified afterwards.
func New[T any](records []T, opts ...Option) *Crossfilter[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	selected := roaring.NewBitmap()
	for id := range records {
		selected.Add(uint32(id))
	}

	return &Crossfilter[T]{
		records:  records,
		masks:    make([]uint64, len(records)),
		selected: selected,
		byName:   make(map[string]*Dimension[T]),
		logger:   o.logger,
	}
}

// Dimension registers a new dimension keyed by key. It starts unfiltered.
func (cf *Crossfilter[T]) Dimension(name string, key func(T) float64) (*Dimension[T], error) {
	cf.writeMu.Lock()
	defer cf.writeMu.Unlock()
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if name == "" {
		return nil, &ConfigurationError{Dimension: name, Err: fmt.Errorf("name is required")}
	}
	if _, exists := cf.byName[name]; exists {
		return nil, &ConfigurationError{Dimension: name, Err: ErrDuplicateDimension}
	}
	if len(cf.dims) >= MaxDimensions {
		return nil, &ConfigurationError{Dimension: name, Err: ErrTooManyDimensions}
	}

	keys := make([]float64, len(cf.records))
	for id, rec := range cf.records {
		k := key(rec)
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return nil, &ConfigurationError{
				Dimension: name,
				Err:       fmt.Errorf("%w for record %d", ErrNonFiniteKey, id),
			}
		}
		keys[id] = k
	}

	d := &Dimension[T]{
		cf:    cf,
		name:  name,
		bit:   uint64(1) << uint(len(cf.dims)),
		keys:  keys,
		index: newIndex(keys),
	}
	cf.dims = append(cf.dims, d)
	cf.byName[name] = d

	cf.logger.Debug("Registered dimension", zap.String("dimension", name), zap.Int("records", len(keys)))
	return d, nil
}

// Lookup returns the dimension registered under name
func (cf *Crossfilter[T]) Lookup(name string) (*Dimension[T], error) {
	cf.mu.RLock()
	defer cf.mu.RUnlock()

	d, ok := cf.byName[name]
	if !ok {
		return nil, &ConfigurationError{Dimension: name, Err: ErrUnknownDimension}
	}
	return d, nil
}

// Dimensions returns the registered dimension names in registration order
func (cf *Crossfilter[T]) Dimensions() []string {
	cf.mu.RLock()
	defer cf.mu.RUnlock()

	names := make([]string, len(cf.dims))
	for i, d := range cf.dims {
		names[i] = d.name
	}
	return names
}

// SetFilter sets or, with a nil range, clears the filter of the named dimension.
func (cf *Crossfilter[T]) SetFilter(name string, r *Range) error {
	d, err := cf.Lookup(name)
	if err != nil {
		return err
	}
	return d.SetFilter(r)
}

// ClearAll clears every dimension's filter
func (cf *Crossfilter[T]) ClearAll() {
	cf.mu.RLock()
	dims := append([]*Dimension[T](nil), cf.dims...)
	cf.mu.RUnlock()

	for _, d := range dims {
		d.ClearFilter()
	}
}

// Size returns the number of records, regardless of filters
func (cf *Crossfilter[T]) Size() int {
	return len(cf.records)
}

// FilterAll returns the number of records accepted by every active filter
func (cf *Crossfilter[T]) FilterAll() int {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return int(cf.selected.GetCardinality())
}

// Selected returns the records accepted by every active filter, in load order
func (cf *Crossfilter[T]) Selected() []T {
	cf.mu.RLock()
	defer cf.mu.RUnlock()

	ids := cf.selected.ToArray()
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = cf.records[id]
	}
	return out
}

// Version increases with every applied filter change
func (cf *Crossfilter[T]) Version() uint64 {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.version
}

// Read runs fn with filter changes held off, so every read inside fn sees the
// same version. fn must not change filters and Read must not be called from
// a change listener.
func (cf *Crossfilter[T]) Read(fn func()) {
	cf.writeMu.Lock()
	defer cf.writeMu.Unlock()
	fn()
}

// OnChange registers fn to be called after every applied filter change. fn
// runs synchronously before the call that changed the filter returns, and
// must not change filters itself. The returned function unregisters fn.
func (cf *Crossfilter[T]) OnChange(fn func(Event)) func() {
	cf.mu.Lock()
	cf.listenerID++
	id := cf.listenerID
	cf.listeners = append(cf.listeners, listener{id: id, fn: fn})
	cf.mu.Unlock()

	return func() {
		cf.mu.Lock()
		defer cf.mu.Unlock()
		for i, l := range cf.listeners {
			if l.id == id {
				cf.listeners = append(cf.listeners[:i:i], cf.listeners[i+1:]...)
				return
			}
		}
	}
}

// setFilter applies r to d. Both locks must be held by the caller.
func (cf *Crossfilter[T]) setFilter(d *Dimension[T], r *Range) (bool, error) {
	if r != nil {
		if err := r.Validate(); err != nil {
			return false, &ValidationError{Dimension: d.name, Range: *r, Err: err}
		}
	}
	if sameFilter(d.filter, r) {
		return false, nil
	}

	oldLo, oldHi := bounds(d.filter)
	newLo, newHi := bounds(r)

	changed := 0
	for _, span := range symmetricDifference(oldLo, oldHi, newLo, newHi) {
		d.index.ascendRange(span[0], span[1], func(id uint32, key float64) {
			cf.toggle(d, id, key >= newLo && key < newHi)
			changed++
		})
	}

	if r != nil {
		copied := *r
		d.filter = &copied
	} else {
		d.filter = nil
	}
	cf.version++

	cf.logger.Debug("Applied filter",
		zap.String("dimension", d.name),
		zap.Stringer("range", rangeStringer{d.filter}),
		zap.Int("changed", changed),
		zap.Uint64("selected", cf.selected.GetCardinality()))
	return true, nil
}

// toggle moves record id in or out of d's accepted set and updates every
// aggregate that depends on it.
func (cf *Crossfilter[T]) toggle(d *Dimension[T], id uint32, accepted bool) {
	old := cf.masks[id]
	if accepted {
		cf.masks[id] = old &^ d.bit
	} else {
		cf.masks[id] = old | d.bit
	}

	rest := old &^ d.bit
	for _, e := range cf.dims {
		if e == d || rest&^e.bit != 0 {
			continue
		}
		for _, g := range e.groups {
			if accepted {
				g.add(id)
			} else {
				g.remove(id)
			}
		}
	}

	if rest == 0 {
		if accepted {
			cf.selected.Add(id)
		} else {
			cf.selected.Remove(id)
		}
	}
}

// notify delivers ev to a snapshot of the listeners. writeMu must be held.
func (cf *Crossfilter[T]) notify(ev Event) {
	cf.mu.RLock()
	ls := append([]listener(nil), cf.listeners...)
	cf.mu.RUnlock()

	for _, l := range ls {
		l.fn(ev)
	}
}

type rangeStringer struct{ r *Range }

func (s rangeStringer) String() string {
	if s.r == nil {
		return "all"
	}
	return s.r.String()
}
