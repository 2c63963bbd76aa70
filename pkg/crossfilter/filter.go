package crossfilter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Range is a half-open key interval [Lo, Hi)
type Range struct {
	Lo float64
	Hi float64
}

// NewRange returns a validated range
func NewRange(lo, hi float64) (*Range, error) {
	r := Range{Lo: lo, Hi: hi}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the bounds
func (r Range) Validate() error {
	if math.IsNaN(r.Lo) || math.IsNaN(r.Hi) {
		return fmt.Errorf("%w: NaN bound", ErrInvalidRange)
	}
	if r.Lo > r.Hi {
		return fmt.Errorf("%w: lo %g is greater than hi %g", ErrInvalidRange, r.Lo, r.Hi)
	}
	return nil
}

// Contains reports whether v falls in [Lo, Hi)
func (r Range) Contains(v float64) bool {
	return v >= r.Lo && v < r.Hi
}

// Empty reports whether the range accepts nothing
func (r Range) Empty() bool {
	return r.Lo >= r.Hi
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g)", r.Lo, r.Hi)
}

type jsonRange struct {
	Lo *float64 `json:"lo"`
	Hi *float64 `json:"hi"`
}

// MarshalJSON encodes an open bound as null
func (r Range) MarshalJSON() ([]byte, error) {
	var out jsonRange
	if !math.IsInf(r.Lo, 0) {
		out.Lo = &r.Lo
	}
	if !math.IsInf(r.Hi, 0) {
		out.Hi = &r.Hi
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a null or missing bound as open
func (r *Range) UnmarshalJSON(data []byte) error {
	var in jsonRange
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Lo, r.Hi = math.Inf(-1), math.Inf(1)
	if in.Lo != nil {
		r.Lo = *in.Lo
	}
	if in.Hi != nil {
		r.Hi = *in.Hi
	}
	return nil
}

// ParseRange parses "lo:hi". Either side may be left blank for an open bound.
func ParseRange(s string) (*Range, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q is not of the form lo:hi", ErrInvalidRange, s)
	}

	l, h := math.Inf(-1), math.Inf(1)
	var err error
	if lo = strings.TrimSpace(lo); lo != "" {
		if l, err = strconv.ParseFloat(lo, 64); err != nil {
			return nil, fmt.Errorf("%w: lo: %v", ErrInvalidRange, err)
		}
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		if h, err = strconv.ParseFloat(hi, 64); err != nil {
			return nil, fmt.Errorf("%w: hi: %v", ErrInvalidRange, err)
		}
	}
	return NewRange(l, h)
}

// bounds returns the accepted interval, all finite keys when unset
func bounds(r *Range) (float64, float64) {
	if r == nil {
		return math.Inf(-1), math.Inf(1)
	}
	return r.Lo, r.Hi
}

func sameFilter(a, b *Range) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// symmetricDifference returns the intervals holding keys accepted by exactly
// one of [a0, a1) and [b0, b1).
func symmetricDifference(a0, a1, b0, b1 float64) [][2]float64 {
	if math.Max(a0, b0) < math.Min(a1, b1) {
		return [][2]float64{
			{math.Min(a0, b0), math.Max(a0, b0)},
			{math.Min(a1, b1), math.Max(a1, b1)},
		}
	}
	return [][2]float64{{a0, a1}, {b0, b1}}
}
