// Package dashboard wires a sleep record store into a crossfilter with one
// chart per dimension, the way the linked histograms present them.
package dashboard

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vjranagit/sleepfilter/pkg/crossfilter"
	"github.com/vjranagit/sleepfilter/pkg/records"
	"github.com/vjranagit/sleepfilter/pkg/types"
)

// Chart names
const (
	ChartPillow     = "pillow"
	ChartWake       = "wake"
	ChartHours      = "hours"
	ChartAwakenings = "awakenings"
	ChartWeekday    = "weekday"
	ChartZQ         = "zq"
	ChartDate       = "date"
)

// DefaultListSize is the number of nights in the detail list
const DefaultListSize = 50

// ErrTooManyFilters is returned by ApplyFilters when given more ranges than charts.
var ErrTooManyFilters = errors.New("more filters than charts")

type (
	// Crossfilter over sleep records
	Crossfilter = crossfilter.Crossfilter[types.Record]
	// Dimension of sleep records
	Dimension = crossfilter.Dimension[types.Record]
	// Group of sleep records
	Group = crossfilter.Group[types.Record]
)

// Chart is one brushable histogram
type Chart struct {
	Name   string
	Domain [2]float64

	dim   *Dimension
	group *Group
	round func(float64) float64
}

// Dimension returns the chart's dimension
func (c *Chart) Dimension() *Dimension { return c.dim }

// Group returns the chart's group
func (c *Chart) Group() *Group { return c.group }

// Buckets returns the chart's bars in ascending key order
func (c *Chart) Buckets() []crossfilter.Bucket { return c.group.All() }

// Filter returns the chart's active range
func (c *Chart) Filter() *crossfilter.Range { return c.dim.Filter() }

// Dashboard holds the crossfilter and its charts
type Dashboard struct {
	cf     *Crossfilter
	charts []*Chart
	byName map[string]*Chart
	date   *Dimension
	loc    *time.Location
	logger *zap.Logger
}

type options struct {
	loc    *time.Location
	logger *zap.Logger
}

// Option configures a Dashboard
type Option func(*options)

// WithLocation sets the time zone used for day boundaries and clock hours.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type chartDef struct {
	name   string
	key    func(types.Record) float64
	round  func(float64) float64 // group bucketing
	domain [2]float64
}

// New builds the dashboard's seven charts over store
func New(store *records.Store, opts ...Option) (*Dashboard, error) {
	o := options{loc: time.Local, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	loc := o.loc

	recs := store.All()
	db := &Dashboard{
		cf:     crossfilter.New(recs, crossfilter.WithLogger(o.logger)),
		byName: make(map[string]*Chart),
		loc:    loc,
		logger: o.logger,
	}

	defs := []chartDef{
		{name: ChartPillow, key: func(r types.Record) float64 { return clockHours(r.Pillow.In(loc)) }, round: math.Floor, domain: [2]float64{0, 24}},
		{name: ChartWake, key: func(r types.Record) float64 { return clockHours(r.Wake.In(loc)) }, round: math.Floor, domain: [2]float64{0, 24}},
		{name: ChartHours, key: func(r types.Record) float64 { return r.Hours }, round: math.Floor, domain: [2]float64{0, 11}},
		{name: ChartAwakenings, key: func(r types.Record) float64 { return float64(r.Awakenings) }, domain: [2]float64{0, 12}},
		{name: ChartWeekday, key: func(r types.Record) float64 { return float64(r.DayOfWeek) }, domain: [2]float64{0, 7}},
		{name: ChartZQ, key: func(r types.Record) float64 { return r.ZQ }, domain: [2]float64{30, 110}},
		{name: ChartDate, key: func(r types.Record) float64 { return float64(floorDay(r.Date.In(loc)).Unix()) }, domain: dateExtent(recs, loc)},
	}

	for _, def := range defs {
		dim, err := db.cf.Dimension(def.name, def.key)
		if err != nil {
			return nil, fmt.Errorf("failed to create dimension: %w", err)
		}

		var gopts []crossfilter.GroupOption[types.Record]
		if def.round != nil {
			gopts = append(gopts, crossfilter.WithRound[types.Record](def.round))
		}
		group, err := dim.Group(gopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create group: %w", err)
		}

		c := &Chart{Name: def.name, Domain: def.domain, dim: dim, group: group}
		if def.name == ChartDate {
			db.date = dim
			c.round = func(v float64) float64 { return roundDay(v, loc) }
		}
		db.charts = append(db.charts, c)
		db.byName[def.name] = c
	}

	o.logger.Info("Dashboard ready", zap.Int("records", db.cf.Size()), zap.Int("charts", len(db.charts)))
	return db, nil
}

// Crossfilter returns the underlying crossfilter
func (db *Dashboard) Crossfilter() *Crossfilter { return db.cf }

// Charts returns the charts in display order
func (db *Dashboard) Charts() []*Chart {
	return append([]*Chart(nil), db.charts...)
}

// Chart returns the named chart
func (db *Dashboard) Chart(name string) (*Chart, error) {
	c, ok := db.byName[name]
	if !ok {
		return nil, &crossfilter.ConfigurationError{Dimension: name, Err: crossfilter.ErrUnknownDimension}
	}
	return c, nil
}

// Brush applies a brush extent to the named chart. The extent is rounded the
// way the chart rounds its bars; an empty extent clears the filter.
func (db *Dashboard) Brush(name string, lo, hi float64) error {
	c, err := db.Chart(name)
	if err != nil {
		return err
	}
	r, err := crossfilter.NewRange(lo, hi)
	if err != nil {
		return &crossfilter.ValidationError{Dimension: name, Range: crossfilter.Range{Lo: lo, Hi: hi}, Err: err}
	}
	if c.round != nil {
		r.Lo, r.Hi = roundBound(c.round, r.Lo), roundBound(c.round, r.Hi)
	}
	if r.Empty() {
		c.dim.ClearFilter()
		return nil
	}
	return c.dim.FilterRange(r.Lo, r.Hi)
}

// Reset clears the named chart's filter
func (db *Dashboard) Reset(name string) error {
	c, err := db.Chart(name)
	if err != nil {
		return err
	}
	c.dim.ClearFilter()
	return nil
}

// ApplyFilters sets the filters of the charts by position; nil clears. All
// ranges are validated before any is applied.
func (db *Dashboard) ApplyFilters(filters []*crossfilter.Range) error {
	if len(filters) > len(db.charts) {
		return fmt.Errorf("%w: got %d, have %d charts", ErrTooManyFilters, len(filters), len(db.charts))
	}
	for i, r := range filters {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			return &crossfilter.ValidationError{Dimension: db.charts[i].Name, Range: *r, Err: err}
		}
	}

	for i, r := range filters {
		if err := db.charts[i].dim.SetFilter(r); err != nil {
			return err
		}
	}
	return nil
}

// Total returns the number of nights in the dataset
func (db *Dashboard) Total() int { return db.cf.Size() }

// Selected returns the number of nights passing every filter
func (db *Dashboard) Selected() int { return db.cf.FilterAll() }

// OnChange subscribes to filter changes
func (db *Dashboard) OnChange(fn func(crossfilter.Event)) func() {
	return db.cf.OnChange(fn)
}

// roundBound leaves open bounds open
func roundBound(round func(float64) float64, v float64) float64 {
	if math.IsInf(v, 0) {
		return v
	}
	return round(v)
}

func clockHours(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

func floorDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// roundDay rounds unix seconds to the nearest local midnight
func roundDay(v float64, loc *time.Location) float64 {
	t := time.Unix(int64(math.Floor(v)), 0).In(loc)
	start := floorDay(t)
	next := start.AddDate(0, 0, 1)
	if t.Sub(start) < next.Sub(t) {
		return float64(start.Unix())
	}
	return float64(next.Unix())
}

func dateExtent(recs []types.Record, loc *time.Location) [2]float64 {
	if len(recs) == 0 {
		return [2]float64{}
	}
	lo, hi := recs[0].Date, recs[0].Date
	for _, r := range recs[1:] {
		if r.Date.Before(lo) {
			lo = r.Date
		}
		if r.Date.After(hi) {
			hi = r.Date
		}
	}
	return [2]float64{float64(floorDay(lo.In(loc)).Unix()), float64(floorDay(hi.In(loc)).Unix())}
}
