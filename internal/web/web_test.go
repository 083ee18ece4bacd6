package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttcal/internal/config"
	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
	"ttcal/internal/model"
	"ttcal/internal/output"
	"ttcal/internal/pipeline"
	"ttcal/internal/timetable"
)

var (
	unit = model.UnitKey{Course: "btech", Semester: "sem1", Phase: "phase1"}
	ist  = time.FixedZone("IST", 19800)
	now  = time.Date(2026, 10, 16, 10, 0, 0, 0, ist)
)

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) Run(context.Context) (*pipeline.Summary, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &pipeline.Summary{CacheVersion: "v2026.10.16.10.00.00", Units: 1, Batches: 1, Changed: 1}, nil
}

// seed writes a metadata document, one batch schedule and its feed.
func seed(t *testing.T, root string) {
	t.Helper()
	classes := timetable.NewDaySchedule()
	classes["Monday"] = []timetable.ScheduleEntry{{
		Start: "09:00 AM", End: "10:00 AM", Day: "monday", Subject: "Programming", SubjectCode: "CS101",
		Teacher: "Dr. A", Batches: []string{"E1"}, Venue: "G1", Type: "lecture",
	}}
	s := timetable.BatchSchedule{Unit: unit, Batch: "E1", CacheVersion: "v2026.10.16.10.00.00", Classes: classes}

	w := output.NewWriter(root)
	require.NoError(t, w.WriteResult(&timetable.Result{
		CacheVersion: s.CacheVersion,
		Metadata: timetable.Metadata{
			CacheVersion: s.CacheVersion,
			Courses:      []timetable.Ref{{ID: "btech", Name: "B.Tech"}},
		},
		Units: []timetable.UnitSchedule{{Key: unit, Batches: []string{"E1"}, Schedules: []timetable.BatchSchedule{s}}},
	}))

	m, err := ics.NewMaterializer(ics.DefaultFeedOptions())
	require.NoError(t, err)
	feed, _ := m.Materialize(s, now)
	_, err = w.WriteFeed(feed)
	require.NoError(t, err)
}

func newTestServer(t *testing.T, mutate func(*config.Config), ref Refresher) *httptest.Server {
	t.Helper()
	appLog.SetOutput(io.Discard)
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	seed(t, cfg.OutputDir)

	s, err := NewServer(cfg, ref, timetable.FixedClock{At: now})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp, body := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestDocuments(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	resp, body := get(t, ts, "/api/metadata")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Contains(t, body, `"cacheVersion":"v2026.10.16.10.00.00"`)

	resp, body = get(t, ts, "/api/classes/btech/sem1/phase1/e1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s timetable.BatchSchedule
	require.NoError(t, json.Unmarshal([]byte(body), &s))
	require.Len(t, s.Classes["Monday"], 1)
	assert.Equal(t, "CS101", s.Classes["Monday"][0].SubjectCode)

	resp, body = get(t, ts, "/ical/btech/sem1/phase1/e1.ics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, body, "UID:btech_sem1_phase1_e1_Monday_09:00 AM_CS101")
}

func TestNotFoundAndBadPaths(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		path string
		code int
	}{
		{"/api/classes/btech/sem1/phase1/e9", http.StatusNotFound},
		{"/ical/btech/sem1/phase1/e9.ics", http.StatusNotFound},
		{"/ical/btech/sem1/phase1/e1.json", http.StatusNotFound},
		{"/api/occurrences/btech/sem1/phase1/e9", http.StatusNotFound},
		{"/api/classes/btech/sem1/phase1/.hidden", http.StatusBadRequest},
		{"/ical/btech/sem1/phase1/..ics", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := get(t, ts, tt.path)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestOccurrences(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	resp, body := get(t, ts, "/api/occurrences/btech/sem1/phase1/e1?days=7")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out occurrencesResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Len(t, out.Occurrences, 1)
	occ := out.Occurrences[0]
	assert.Equal(t, "btech_sem1_phase1_e1_Monday_09:00 AM_CS101", occ.UID)
	assert.True(t, occ.Start.Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, ist)), occ.Start)
	assert.Equal(t, "Asia/Kolkata", out.TimeZone)

	// Three weeks of a weekly class.
	_, body = get(t, ts, "/api/occurrences/btech/sem1/phase1/e1?days=21")
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Len(t, out.Occurrences, 3)

	// Nonsense falls back to the default window.
	_, body = get(t, ts, "/api/occurrences/btech/sem1/phase1/e1?days=abc")
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Len(t, out.Occurrences, 1)
}

func TestRefresh(t *testing.T) {
	ref := &stubRefresher{}
	ts := newTestServer(t, nil, ref)

	resp, err := http.Post(ts.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out refreshResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "v2026.10.16.10.00.00", out.CacheVersion)
	assert.Equal(t, 1, out.FeedsChanged)
	assert.Equal(t, 1, ref.calls)

	getResp, _ := get(t, ts, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestRefreshFailures(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp, err := http.Post(ts.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ts = newTestServer(t, nil, &stubRefresher{err: errors.New("boom")})
	resp, err = http.Post(ts.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	}, nil)

	resp, _ := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, ts, "/api/metadata")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `realm="ttcal"`)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/metadata", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	req.SetBasicAuth("admin", "wrong")
	bad, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "ab"))
}
