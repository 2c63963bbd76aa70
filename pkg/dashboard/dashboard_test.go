package dashboard

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/sleepfilter/pkg/crossfilter"
	"github.com/vjranagit/sleepfilter/pkg/records"
	"github.com/vjranagit/sleepfilter/pkg/types"
)

func ip(v int) *int { return &v }

// rawNight builds an entry for March <d>, 2011 with bedtime at bedHour:30
// and a rise time of 07:00 the next morning.
func rawNight(d, bedHour int, minutes float64, awakenings int, zq float64) types.RawEntry {
	return types.RawEntry{Data: types.RawNight{
		StartDate:  &types.RawDate{Year: ip(2011), Month: ip(2), Day: ip(d)},
		BedTime:    &types.RawDate{Year: ip(2011), Month: ip(2), Day: ip(d), Hour: ip(bedHour), Minute: ip(30), Second: ip(0)},
		RiseTime:   &types.RawDate{Year: ip(2011), Month: ip(2), Day: ip(d + 1), Hour: ip(7), Minute: ip(0), Second: ip(0)},
		Awakenings: awakenings,
		TotalZ:     minutes,
		ZQ:         zq,
	}}
}

func newTestDashboard(t *testing.T) *Dashboard {
	t.Helper()
	store, report := records.Load([]types.RawEntry{
		rawNight(7, 22, 360, 1, 70), // Monday, 6h
		rawNight(8, 23, 450, 3, 90), // Tuesday, 7.5h
		rawNight(9, 21, 480, 0, 95), // Wednesday, 8h
		rawNight(9, 21, 300, 0, 50), // duplicate date, dropped
	}, records.WithLocation(time.UTC))
	require.Equal(t, 1, report.Duplicates)

	db, err := New(store, WithLocation(time.UTC))
	require.NoError(t, err)
	return db
}

func TestNewBuildsCharts(t *testing.T) {
	db := newTestDashboard(t)

	var names []string
	for _, c := range db.Charts() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{ChartPillow, ChartWake, ChartHours, ChartAwakenings, ChartWeekday, ChartZQ, ChartDate}, names)
	assert.Equal(t, names, db.Crossfilter().Dimensions())

	assert.Equal(t, 3, db.Total())
	assert.Equal(t, 3, db.Selected())
	for _, c := range db.Charts() {
		assert.Equal(t, 3.0, c.Group().Total(), c.Name)
	}

	pillow, err := db.Chart(ChartPillow)
	require.NoError(t, err)
	assert.Equal(t, []crossfilter.Bucket{{Key: 21, Value: 1}, {Key: 22, Value: 1}, {Key: 23, Value: 1}}, pillow.Buckets())
	assert.Equal(t, 22.5, pillow.Dimension().Key(0))

	date, _ := db.Chart(ChartDate)
	first := float64(time.Date(2011, 3, 7, 0, 0, 0, 0, time.UTC).Unix())
	last := float64(time.Date(2011, 3, 9, 0, 0, 0, 0, time.UTC).Unix())
	assert.Equal(t, [2]float64{first, last}, date.Domain)
	assert.Equal(t, time.Date(2011, 3, 7, 0, 0, 0, 0, time.UTC), db.DayTime(first))
}

func TestBrushHoursUpdatesOtherCharts(t *testing.T) {
	db := newTestDashboard(t)

	require.NoError(t, db.Brush(ChartHours, 7, 9))
	assert.Equal(t, 2, db.Selected())

	weekday, _ := db.Chart(ChartWeekday)
	assert.Equal(t, map[float64]float64{1: 0, 2: 1, 3: 1}, weekday.Group().Map())

	hours, _ := db.Chart(ChartHours)
	assert.Equal(t, 3.0, hours.Group().Total())
	assert.Equal(t, &crossfilter.Range{Lo: 7, Hi: 9}, hours.Filter())
}

func TestBrushDateRoundsToDays(t *testing.T) {
	db := newTestDashboard(t)

	// 8 March 10:00 rounds down to 8 March, 9 March 13:00 rounds up to 10 March.
	lo := float64(time.Date(2011, 3, 8, 10, 0, 0, 0, time.UTC).Unix())
	hi := float64(time.Date(2011, 3, 9, 13, 0, 0, 0, time.UTC).Unix())
	require.NoError(t, db.Brush(ChartDate, lo, hi))

	date, _ := db.Chart(ChartDate)
	assert.Equal(t, &crossfilter.Range{
		Lo: float64(time.Date(2011, 3, 8, 0, 0, 0, 0, time.UTC).Unix()),
		Hi: float64(time.Date(2011, 3, 10, 0, 0, 0, 0, time.UTC).Unix()),
	}, date.Filter())
	assert.Equal(t, 2, db.Selected())

	// An extent that rounds to a single point is an empty brush.
	near := float64(time.Date(2011, 3, 8, 1, 0, 0, 0, time.UTC).Unix())
	require.NoError(t, db.Brush(ChartDate, near, near+60))
	assert.Nil(t, date.Filter())
	assert.Equal(t, 3, db.Selected())
}

func TestBrushErrors(t *testing.T) {
	db := newTestDashboard(t)

	err := db.Brush("nope", 0, 1)
	var cerr *crossfilter.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(db.Reset("nope"), crossfilter.ErrUnknownDimension))

	err = db.Brush(ChartZQ, 100, 40)
	var verr *crossfilter.ValidationError
	assert.True(t, errors.As(err, &verr))

	err = db.Brush(ChartDate, math.NaN(), 0)
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, 3, db.Selected())
}

func TestBrushOpenBound(t *testing.T) {
	db := newTestDashboard(t)

	from := float64(time.Date(2011, 3, 8, 23, 0, 0, 0, time.UTC).Unix())
	require.NoError(t, db.Brush(ChartDate, from, math.Inf(1)))

	date, _ := db.Chart(ChartDate)
	assert.Equal(t, &crossfilter.Range{
		Lo: float64(time.Date(2011, 3, 9, 0, 0, 0, 0, time.UTC).Unix()),
		Hi: math.Inf(1),
	}, date.Filter())
	assert.Equal(t, 1, db.Selected())
}

func TestApplyFiltersAndReset(t *testing.T) {
	db := newTestDashboard(t)

	// Position 2 is hours, 5 is zq.
	filters := make([]*crossfilter.Range, 6)
	filters[2] = &crossfilter.Range{Lo: 7, Hi: 9}
	filters[5] = &crossfilter.Range{Lo: 92, Hi: 100}
	require.NoError(t, db.ApplyFilters(filters))
	assert.Equal(t, 1, db.Selected())

	// An invalid range anywhere aborts before anything is applied.
	bad := make([]*crossfilter.Range, 6)
	bad[5] = &crossfilter.Range{Lo: 50, Hi: 10}
	err := db.ApplyFilters(bad)
	var verr *crossfilter.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ChartZQ, verr.Dimension)
	assert.Equal(t, 1, db.Selected())

	err = db.ApplyFilters(make([]*crossfilter.Range, 8))
	assert.True(t, errors.Is(err, ErrTooManyFilters))

	require.NoError(t, db.Reset(ChartZQ))
	assert.Equal(t, 2, db.Selected())

	require.NoError(t, db.ApplyFilters(make([]*crossfilter.Range, 7)))
	assert.Equal(t, 3, db.Selected())
}

func TestNights(t *testing.T) {
	db := newTestDashboard(t)

	nights := db.Nights(DefaultListSize)
	require.Len(t, nights, 3)
	assert.Equal(t, "March 09, 2011", nights[0].Date)
	assert.Equal(t, "09:30 PM", nights[0].Pillow)
	assert.Equal(t, "07:00 AM", nights[0].Wake)
	assert.Equal(t, "8.00 hours", nights[0].Hours)
	assert.True(t, nights[0].Good)
	assert.True(t, nights[1].Good)
	assert.False(t, nights[2].Good)

	require.NoError(t, db.Brush(ChartAwakenings, 1, 12))
	nights = db.Nights(1)
	require.Len(t, nights, 1)
	assert.Equal(t, "March 08, 2011", nights[0].Date)
}

func TestSummaryAndOnChange(t *testing.T) {
	db := newTestDashboard(t)

	var events []crossfilter.Event
	unsubscribe := db.OnChange(func(ev crossfilter.Event) { events = append(events, ev) })
	defer unsubscribe()

	require.NoError(t, db.Brush(ChartWeekday, 2, 4))
	s := db.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Selected)
	assert.Equal(t, uint64(1), s.Version)
	require.Len(t, s.Charts, 7)
	assert.Equal(t, ChartWeekday, s.Charts[4].Name)
	assert.Equal(t, &crossfilter.Range{Lo: 2, Hi: 4}, s.Charts[4].Filter)

	require.Len(t, events, 1)
	assert.Equal(t, ChartWeekday, events[0].Dimension)
}
