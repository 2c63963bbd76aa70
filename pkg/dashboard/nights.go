package dashboard

import (
	"fmt"
	"time"

	"github.com/vjranagit/sleepfilter/pkg/crossfilter"
	"github.com/vjranagit/sleepfilter/pkg/types"
)

// GoodHours is the sleep duration at which a night is marked good
const GoodHours = 7.5

// Night is one row of the detail list
type Night struct {
	Date   string       `json:"date"`
	Pillow string       `json:"pillow"`
	Wake   string       `json:"wake"`
	Hours  string       `json:"hours"`
	Good   bool         `json:"good"`
	Record types.Record `json:"record"`
}

// Nights returns up to n selected nights, most recent first
func (db *Dashboard) Nights(n int) []Night {
	recs := db.date.Top(n)
	out := make([]Night, len(recs))
	for i, r := range recs {
		out[i] = Night{
			Date:   r.Date.In(db.loc).Format("January 02, 2006"),
			Pillow: r.Pillow.In(db.loc).Format("03:04 PM"),
			Wake:   r.Wake.In(db.loc).Format("03:04 PM"),
			Hours:  fmt.Sprintf("%.2f hours", r.Hours),
			Good:   r.Hours >= GoodHours,
			Record: r,
		}
	}
	return out
}

// ChartSummary is a chart's state at one version
type ChartSummary struct {
	Name    string               `json:"name"`
	Domain  [2]float64           `json:"domain"`
	Filter  *crossfilter.Range   `json:"filter"`
	Buckets []crossfilter.Bucket `json:"buckets"`
}

// Summary is everything a view needs to redraw
type Summary struct {
	Total    int            `json:"total"`
	Selected int            `json:"selected"`
	Version  uint64         `json:"version"`
	Charts   []ChartSummary `json:"charts"`
}

// Summary captures the current totals and every chart's buckets. It must not
// be called from a change listener; listeners read the charts directly.
func (db *Dashboard) Summary() Summary {
	var s Summary
	db.cf.Read(func() {
		s = Summary{
			Total:    db.Total(),
			Selected: db.Selected(),
			Version:  db.cf.Version(),
			Charts:   make([]ChartSummary, len(db.charts)),
		}
		for i, c := range db.charts {
			s.Charts[i] = ChartSummary{
				Name:    c.Name,
				Domain:  c.Domain,
				Filter:  c.Filter(),
				Buckets: c.Buckets(),
			}
		}
	})
	return s
}

// DayTime converts a date chart key back to a time
func (db *Dashboard) DayTime(key float64) time.Time {
	return time.Unix(int64(key), 0).In(db.loc)
}
