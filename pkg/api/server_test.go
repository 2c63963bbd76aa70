package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/sleepfilter/pkg/crossfilter"
	"github.com/vjranagit/sleepfilter/pkg/dashboard"
	"github.com/vjranagit/sleepfilter/pkg/records"
	"github.com/vjranagit/sleepfilter/pkg/types"
)

func record(i, day int, hours float64, zq float64) types.Record {
	date := time.Date(2011, 3, day, 0, 0, 0, 0, time.UTC)
	pillow := date.Add(22 * time.Hour)
	return types.Record{
		Index:     i,
		Date:      date,
		Pillow:    pillow,
		Wake:      pillow.Add(time.Duration(hours * float64(time.Hour))),
		Hours:     hours,
		ZQ:        zq,
		DayOfWeek: int(date.Weekday()),
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store := records.FromRecords([]types.Record{
		record(0, 7, 6, 70),
		record(1, 8, 7.5, 90),
		record(2, 9, 8, 95),
	})
	db, err := dashboard.New(store, dashboard.WithLocation(time.UTC))
	require.NoError(t, err)

	s := NewServer(Config{Addr: ":0", CacheSize: 4}, db, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop(context.Background())
	})
	return s, ts
}

func do(t *testing.T, method, url string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthAndCharts(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 3, health.Records)
	assert.Equal(t, 4, health.Cache.Capacity)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/charts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var charts []chartResponse
	require.NoError(t, json.Unmarshal(body, &charts))
	require.Len(t, charts, 7)
	assert.Equal(t, dashboard.ChartPillow, charts[0].Name)
	assert.Nil(t, charts[2].Filter)
}

func TestSetAndClearFilter(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodPut, ts.URL+"/api/v1/charts/hours/filter?range=7:9", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var total totalResponse
	require.NoError(t, json.Unmarshal(body, &total))
	assert.Equal(t, totalResponse{Size: 3, Selected: 2, Version: 1}, total)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/charts/weekday/groups", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buckets []crossfilter.Bucket
	require.NoError(t, json.Unmarshal(body, &buckets))
	assert.Equal(t, []crossfilter.Bucket{{Key: 1, Value: 0}, {Key: 2, Value: 1}, {Key: 3, Value: 1}}, buckets)

	// Open upper bound
	resp, body = do(t, http.MethodPut, ts.URL+"/api/v1/charts/zq/filter?range=92:", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &total))
	assert.Equal(t, 1, total.Selected)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/charts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"filter":{"lo":92,"hi":null}`)

	resp, body = do(t, http.MethodDelete, ts.URL+"/api/v1/charts/hours/filter", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &total))
	assert.Equal(t, 1, total.Selected)

	resp, body = do(t, http.MethodDelete, ts.URL+"/api/v1/filters", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &total))
	assert.Equal(t, 3, total.Selected)
}

func TestFilterErrors(t *testing.T) {
	s, ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"inverted range", http.MethodPut, "/api/v1/charts/hours/filter?range=9:7", "", http.StatusBadRequest},
		{"malformed range", http.MethodPut, "/api/v1/charts/hours/filter?range=abc", "", http.StatusBadRequest},
		{"unknown chart", http.MethodPut, "/api/v1/charts/mood/filter?range=1:2", "", http.StatusNotFound},
		{"unknown groups", http.MethodGet, "/api/v1/charts/mood/groups", "", http.StatusNotFound},
		{"too many filters", http.MethodPost, "/api/v1/filters", "[null,null,null,null,null,null,null,null]", http.StatusBadRequest},
		{"invalid bulk range", http.MethodPost, "/api/v1/filters", `[null,null,{"lo":9,"hi":7}]`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/v1/filters", "{", http.StatusBadRequest},
		{"bad list size", http.MethodGet, "/api/v1/nights?n=0", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}

	// Rejected changes leave the state untouched
	assert.Equal(t, 3, s.db.Selected())
	assert.Equal(t, uint64(0), s.db.Crossfilter().Version())
}

func TestApplyFilters(t *testing.T) {
	_, ts := newTestServer(t)

	body := `[null,null,{"lo":7,"hi":9},null,null,{"lo":92}]`
	resp, data := do(t, http.MethodPost, ts.URL+"/api/v1/filters", bytes.NewBufferString(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var total totalResponse
	require.NoError(t, json.Unmarshal(data, &total))
	assert.Equal(t, 1, total.Selected)

	resp, data = do(t, http.MethodGet, ts.URL+"/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary dashboard.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 1, summary.Selected)
	assert.Equal(t, total.Version, summary.Version)
	require.Len(t, summary.Charts, 7)
	assert.Equal(t, &crossfilter.Range{Lo: 7, Hi: 9}, summary.Charts[2].Filter)
}

func TestNightsCached(t *testing.T) {
	s, ts := newTestServer(t)

	var out nightsResponse
	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/nights?n=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Nights, 2)
	assert.Equal(t, "March 09, 2011", out.Nights[0].Date)

	do(t, http.MethodGet, ts.URL+"/api/v1/nights?n=2", nil)
	assert.Equal(t, uint64(1), s.CacheStats().Hits)

	// A filter change moves to a new version
	do(t, http.MethodPut, ts.URL+"/api/v1/charts/hours/filter?range=:7", nil)
	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/nights", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, uint64(1), out.Version)
	require.Len(t, out.Nights, 1)
	assert.Equal(t, "March 07, 2011", out.Nights[0].Date)
	assert.Equal(t, uint64(1), s.CacheStats().Hits)

	resp, body = do(t, http.MethodGet, ts.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, uint64(1), health.Version)
	assert.Equal(t, 2, health.Cache.Size)
	assert.Equal(t, uint64(1), health.Cache.Hits)
	assert.Equal(t, uint64(2), health.Cache.Misses)
	assert.InDelta(t, 1.0/3, health.Cache.HitRate, 1e-9)

	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sleepfilter_cache_hits_total{cache="nights"} 1`)
	assert.Contains(t, string(body), `sleepfilter_cache_misses_total{cache="nights"} 2`)
	assert.Contains(t, string(body), `sleepfilter_cache_entries{cache="nights"} 2`)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	do(t, http.MethodPut, ts.URL+"/api/v1/charts/hours/filter?range=7:9", nil)
	do(t, http.MethodPut, ts.URL+"/api/v1/charts/hours/filter?range=9:7", nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sleepfilter_filter_changes_total{action="set",dimension="hours"} 1`)
	assert.Contains(t, string(body), `sleepfilter_filter_errors_total{kind="validation"} 1`)
	assert.Contains(t, string(body), "sleepfilter_selected_records 2")
	assert.Contains(t, string(body), "sleepfilter_records 3")
}

func TestStream(t *testing.T) {
	s, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello crossfilter.Event
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, crossfilter.Event{Selected: 3}, hello)
	require.Equal(t, 1, s.hub.size())

	do(t, http.MethodPut, ts.URL+"/api/v1/charts/hours/filter?range=7:9", nil)

	var ev crossfilter.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "hours", ev.Dimension)
	assert.Equal(t, &crossfilter.Range{Lo: 7, Hi: 9}, ev.Filter)
	assert.Equal(t, 2, ev.Selected)
	assert.Equal(t, uint64(1), ev.Version)
}
