package storage

import (
	"fmt"
	"time"

	"github.com/vjranagit/sleepfilter/pkg/types"
)

// Column names inside a snapshot payload
const (
	colIndex       = "index"
	colDate        = "date"
	colPillow      = "pillow"
	colWake        = "wake"
	colAwakenings  = "awakenings"
	colDayOfWeek   = "dayOfWeek"
	colHours       = "hours"
	colZQ          = "zq"
	colMorningFeel = "morningFeel"
	colTimeInWake  = "timeInWake"
)

// intEncodings picks each integer column's layout. Index counts up by one and
// weekday cycles, so plain deltas repeat; the timestamps advance about a day
// per night, so their deltas of deltas stay near zero.
var intEncodings = map[string]IntEncoding{
	colIndex:      IntDelta,
	colDate:       IntDeltaOfDelta,
	colPillow:     IntDeltaOfDelta,
	colWake:       IntDeltaOfDelta,
	colAwakenings: IntRaw,
	colDayOfWeek:  IntDelta,
}

// encodeRecords splits records into compressed columns
func (c *Compressor) encodeRecords(recs []types.Record) (map[string][]byte, error) {
	n := len(recs)
	ints := map[string][]int64{
		colIndex:      make([]int64, n),
		colDate:       make([]int64, n),
		colPillow:     make([]int64, n),
		colWake:       make([]int64, n),
		colAwakenings: make([]int64, n),
		colDayOfWeek:  make([]int64, n),
	}
	floats := map[string][]float64{
		colHours:       make([]float64, n),
		colZQ:          make([]float64, n),
		colMorningFeel: make([]float64, n),
		colTimeInWake:  make([]float64, n),
	}

	for i, r := range recs {
		ints[colIndex][i] = int64(r.Index)
		ints[colDate][i] = r.Date.Unix()
		ints[colPillow][i] = r.Pillow.Unix()
		ints[colWake][i] = r.Wake.Unix()
		ints[colAwakenings][i] = int64(r.Awakenings)
		ints[colDayOfWeek][i] = int64(r.DayOfWeek)
		floats[colHours][i] = r.Hours
		floats[colZQ][i] = r.ZQ
		floats[colMorningFeel][i] = r.MorningFeel
		floats[colTimeInWake][i] = r.TimeInWake
	}

	cols := make(map[string][]byte, len(ints)+len(floats))
	for name, col := range ints {
		data, err := c.CompressInts(col, intEncodings[name])
		if err != nil {
			return nil, fmt.Errorf("failed to compress %s: %w", name, err)
		}
		cols[name] = data
	}
	for name, col := range floats {
		data, err := c.CompressFloats(col)
		if err != nil {
			return nil, fmt.Errorf("failed to compress %s: %w", name, err)
		}
		cols[name] = data
	}
	return cols, nil
}

// decodeRecords rebuilds count records from compressed columns
func (c *Compressor) decodeRecords(cols map[string][]byte, count int, loc *time.Location) ([]types.Record, error) {
	ints := make(map[string][]int64)
	for _, name := range []string{colIndex, colDate, colPillow, colWake, colAwakenings, colDayOfWeek} {
		col, err := c.DecompressInts(cols[name], count)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", name, err)
		}
		if len(col) != count {
			return nil, fmt.Errorf("column %s has %d values, want %d", name, len(col), count)
		}
		ints[name] = col
	}

	floats := make(map[string][]float64)
	for _, name := range []string{colHours, colZQ, colMorningFeel, colTimeInWake} {
		col, err := c.DecompressFloats(cols[name], count)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", name, err)
		}
		if len(col) != count {
			return nil, fmt.Errorf("column %s has %d values, want %d", name, len(col), count)
		}
		floats[name] = col
	}

	recs := make([]types.Record, count)
	for i := range recs {
		recs[i] = types.Record{
			Index:       int(ints[colIndex][i]),
			Date:        time.Unix(ints[colDate][i], 0).In(loc),
			Pillow:      time.Unix(ints[colPillow][i], 0).In(loc),
			Wake:        time.Unix(ints[colWake][i], 0).In(loc),
			Awakenings:  int(ints[colAwakenings][i]),
			DayOfWeek:   int(ints[colDayOfWeek][i]),
			Hours:       floats[colHours][i],
			ZQ:          floats[colZQ][i],
			MorningFeel: floats[colMorningFeel][i],
			TimeInWake:  floats[colTimeInWake][i],
		}
	}
	return recs, nil
}
