package records

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vjranagit/sleepfilter/pkg/types"
)

// MalformedRecordError is reported for a raw entry that could not be parsed.
type MalformedRecordError struct {
	Index int
	Field string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("entry %d: %s is missing year, month or day", e.Index, e.Field)
}

// LoadReport describes what happened to the raw entries during Load
type LoadReport struct {
	Entries    int
	Loaded     int
	Duplicates int
	Malformed  []*MalformedRecordError
}

// Err combines every malformed entry into a single error, or nil.
func (r *LoadReport) Err() error {
	var err error
	for _, m := range r.Malformed {
		err = multierr.Append(err, m)
	}
	return err
}

// Store holds the immutable, deduplicated records of a dataset
type Store struct {
	records []types.Record
}

type loadOptions struct {
	loc    *time.Location
	logger *zap.Logger
}

// Option configures Load
type Option func(*loadOptions)

// WithLocation sets the time zone dates are constructed in.
func WithLocation(loc *time.Location) Option {
	return func(o *loadOptions) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLogger sets the logger used to report skipped entries.
func WithLogger(logger *zap.Logger) Option {
	return func(o *loadOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Load parses raw entries into a Store. Malformed entries are skipped and
// entries whose start date was already seen are dropped; the first one wins.
func Load(entries []types.RawEntry, opts ...Option) (*Store, *LoadReport) {
	o := loadOptions{loc: time.Local, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	report := &LoadReport{Entries: len(entries)}
	seen := make(map[int64]struct{}, len(entries))
	recs := make([]types.Record, 0, len(entries))

	for i, entry := range entries {
		rec, err := parseEntry(i, &entry.Data, o.loc)
		if err != nil {
			report.Malformed = append(report.Malformed, err)
			o.logger.Debug("Skipping malformed entry", zap.Int("index", i), zap.String("field", err.Field))
			continue
		}

		key := rec.Date.UnixNano()
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		recs = append(recs, rec)
	}

	report.Loaded = len(recs)
	if len(report.Malformed) > 0 || report.Duplicates > 0 {
		o.logger.Info("Dataset loaded with skipped entries",
			zap.Int("loaded", report.Loaded),
			zap.Int("malformed", len(report.Malformed)),
			zap.Int("duplicates", report.Duplicates))
	}

	return &Store{records: recs}, report
}

// FromRecords wraps already parsed records, e.g. ones read back from a snapshot.
// Duplicate dates are dropped the same way Load drops them.
func FromRecords(recs []types.Record) *Store {
	seen := make(map[int64]struct{}, len(recs))
	out := make([]types.Record, 0, len(recs))
	for _, r := range recs {
		key := r.Date.UnixNano()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return &Store{records: out}
}

// Size returns the number of records, regardless of any filter
func (s *Store) Size() int {
	return len(s.records)
}

// All returns a copy of the records in load order
func (s *Store) All() []types.Record {
	out := make([]types.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the record at position i
func (s *Store) Get(i int) (types.Record, bool) {
	if i < 0 || i >= len(s.records) {
		return types.Record{}, false
	}
	return s.records[i], true
}

func parseEntry(i int, d *types.RawNight, loc *time.Location) (types.Record, *MalformedRecordError) {
	date, ok := parseDate(d.StartDate, loc)
	if !ok {
		return types.Record{}, &MalformedRecordError{Index: i, Field: "startDate"}
	}
	pillow, ok := parseDate(d.BedTime, loc)
	if !ok {
		return types.Record{}, &MalformedRecordError{Index: i, Field: "bedTime"}
	}
	wake, ok := parseDate(d.RiseTime, loc)
	if !ok {
		return types.Record{}, &MalformedRecordError{Index: i, Field: "riseTime"}
	}

	return types.Record{
		Index:       i,
		Date:        date,
		Pillow:      pillow,
		Wake:        wake,
		Awakenings:  d.Awakenings,
		Hours:       d.TotalZ / 60,
		ZQ:          d.ZQ,
		DayOfWeek:   int(date.Weekday()),
		MorningFeel: d.MorningFeel,
		TimeInWake:  d.TimeInWake,
	}, nil
}

// parseDate builds a time from a raw date. The time of day is only used
// when hour, minute and second are all present.
func parseDate(d *types.RawDate, loc *time.Location) (time.Time, bool) {
	if d == nil || d.Year == nil || d.Month == nil || d.Day == nil {
		return time.Time{}, false
	}

	month := time.Month(*d.Month + 1)
	if d.Hour != nil && d.Minute != nil && d.Second != nil {
		return time.Date(*d.Year, month, *d.Day, *d.Hour, *d.Minute, *d.Second, 0, loc), true
	}
	return time.Date(*d.Year, month, *d.Day, 0, 0, 0, 0, loc), true
}
