package types

import "time"

// RawDate is a calendar date as exported by the sleep tracker.
// Month is zero-based. Hour, Minute and Second are optional.
type RawDate struct {
	Year   *int `json:"year"`
	Month  *int `json:"month"`
	Day    *int `json:"day"`
	Hour   *int `json:"hour,omitempty"`
	Minute *int `json:"minute,omitempty"`
	Second *int `json:"second,omitempty"`
}

// RawNight holds the nested data block of a raw entry
type RawNight struct {
	StartDate   *RawDate `json:"startDate"`
	BedTime     *RawDate `json:"bedTime"`
	RiseTime    *RawDate `json:"riseTime"`
	Awakenings  int      `json:"awakenings"`
	TotalZ      float64  `json:"totalZ"`
	ZQ          float64  `json:"zq"`
	MorningFeel float64  `json:"morningFeel"`
	TimeInWake  float64  `json:"timeInWake"`
}

// RawEntry represents one element of the input array
type RawEntry struct {
	Data RawNight `json:"data"`
}

// Record represents one sleep session
type Record struct {
	Index       int       `json:"index"`
	Date        time.Time `json:"date"`
	Pillow      time.Time `json:"pillow"`
	Wake        time.Time `json:"wake"`
	Awakenings  int       `json:"awakenings"`
	Hours       float64   `json:"hours"`
	ZQ          float64   `json:"zq"`
	DayOfWeek   int       `json:"dayOfWeek"`
	MorningFeel float64   `json:"morningFeel"`
	TimeInWake  float64   `json:"timeInWake"`
}
