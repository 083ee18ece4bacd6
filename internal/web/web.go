package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"ttcal/internal/config"
	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
	"ttcal/internal/model"
	"ttcal/internal/output"
	"ttcal/internal/pipeline"
	"ttcal/internal/timetable"
)

const (
	defaultOccurrenceDays = 7
	maxOccurrenceDays     = 366
	occurrenceCacheTTL    = 30 * time.Second
)

// Refresher runs a generation on demand.
type Refresher interface {
	Run(ctx context.Context) (*pipeline.Summary, error)
}

// Server exposes the generated documents and feeds over HTTP.
type Server struct {
	cfg       *config.Config
	root      string
	loc       *time.Location
	clock     timetable.Clock
	refresher Refresher
	mux       *http.ServeMux

	// expanded occurrences keyed by feed path and window; an entry is stale
	// once the feed file's mtime moves or the TTL passes.
	occMu    sync.RWMutex
	occCache map[string]occurrenceCacheEntry
}

type occurrenceCacheEntry struct {
	resp      occurrencesResponse
	modTime   time.Time
	updatedAt time.Time
}

// NewServer builds a server over cfg.OutputDir. refresher may be nil, in
// which case POST /api/refresh answers 503.
func NewServer(cfg *config.Config, refresher Refresher, clock timetable.Clock) (*Server, error) {
	loc, err := cfg.FeedOptions().Location()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timetable.SystemClock{}
	}
	s := &Server{
		cfg:       cfg,
		root:      cfg.OutputDir,
		loc:       loc,
		clock:     clock,
		refresher: refresher,
		mux:       http.NewServeMux(),
		occCache:  make(map[string]occurrenceCacheEntry),
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the server's handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects every path except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ttcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, refresher Refresher) error {
	s, err := NewServer(cfg, refresher, nil)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/metadata", s.handleMetadata)
	s.mux.HandleFunc("GET /api/classes/{course}/{semester}/{phase}/{batch}", s.handleClasses)
	s.mux.HandleFunc("GET /api/occurrences/{course}/{semester}/{phase}/{batch}", s.handleOccurrences)
	s.mux.HandleFunc("GET /ical/{course}/{semester}/{phase}/{file}", s.handleFeed)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, output.MetadataFile, "application/json; charset=utf-8")
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	unit, batch, ok := unitFromPath(r, r.PathValue("batch"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.serveFile(w, r, output.BatchFile(unit, batch), "application/json; charset=utf-8")
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	batch, found := strings.CutSuffix(file, ".ics")
	if !found {
		http.NotFound(w, r)
		return
	}
	unit, batch, ok := unitFromPath(r, batch)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.serveFile(w, r, output.FeedFile(unit, batch), "text/calendar; charset=utf-8")
}

// serveFile serves rel from the output root with conditional-request support.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, rel, contentType string) {
	f, err := os.Open(filepath.Join(s.root, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		appLog.Error("open output file failed", err, "path", rel)
		writeError(w, http.StatusInternalServerError, "failed to read document")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read document")
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, filepath.Base(rel), info.ModTime(), f)
}

type occurrencesResponse struct {
	Occurrences []ics.Instance `json:"occurrences"`
	Truncated   []string       `json:"truncated_uids,omitempty"`
	RangeStart  time.Time      `json:"range_start"`
	RangeEnd    time.Time      `json:"range_end"`
	TimeZone    string         `json:"timezone"`
}

// handleOccurrences expands a batch feed into dated classes.
//
// GET /api/occurrences/{course}/{semester}/{phase}/{batch}?days=7
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	unit, batch, ok := unitFromPath(r, r.PathValue("batch"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	days := parseIntDefault(r.URL.Query().Get("days"), defaultOccurrenceDays)
	if days <= 0 {
		days = defaultOccurrenceDays
	}
	if days > maxOccurrenceDays {
		days = maxOccurrenceDays
	}

	rel := output.FeedFile(unit, batch)
	path := filepath.Join(s.root, rel)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read feed")
		return
	}

	now := s.clock.Now()
	key := rel + "?days=" + strconv.Itoa(days)
	s.occMu.RLock()
	ce, hit := s.occCache[key]
	s.occMu.RUnlock()
	if hit && ce.modTime.Equal(info.ModTime()) && now.Sub(ce.updatedAt) < occurrenceCacheTTL {
		writeJSON(w, http.StatusOK, ce.resp)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read feed")
		return
	}
	defer f.Close()

	slots, err := ics.ParseFeed(f, s.loc)
	if err != nil {
		appLog.Error("api occurrences: parse failed", err, "path", rel)
		writeError(w, http.StatusInternalServerError, "failed to parse feed")
		return
	}

	start := now.In(s.loc)
	end := start.AddDate(0, 0, days)
	res, err := ics.Expand(slots, ics.ExpandConfig{RangeStart: start, RangeEnd: end, Location: s.loc})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to expand feed")
		return
	}

	resp := occurrencesResponse{
		Occurrences: res.Instances,
		Truncated:   res.Truncated,
		RangeStart:  start,
		RangeEnd:    end,
		TimeZone:    s.cfg.Timezone.TZID,
	}
	appLog.Debug("api occurrences", "path", rel, "days", days, "count", len(res.Instances))

	s.occMu.Lock()
	s.occCache[key] = occurrenceCacheEntry{resp: resp, modTime: info.ModTime(), updatedAt: now}
	s.occMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	CacheVersion string `json:"cacheVersion"`
	Units        int    `json:"units"`
	Batches      int    `json:"batches"`
	FeedsChanged int    `json:"feeds_changed"`
	Diagnostics  int    `json:"diagnostics"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	sum, err := s.refresher.Run(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	s.occMu.Lock()
	s.occCache = make(map[string]occurrenceCacheEntry)
	s.occMu.Unlock()

	writeJSON(w, http.StatusOK, refreshResponse{
		CacheVersion: sum.CacheVersion,
		Units:        sum.Units,
		Batches:      sum.Batches,
		FeedsChanged: sum.Changed,
		Diagnostics:  len(sum.Diagnostics),
	})
}

// unitFromPath validates the path segments of a batch route.
func unitFromPath(r *http.Request, batch string) (model.UnitKey, string, bool) {
	unit := model.UnitKey{
		Course:   r.PathValue("course"),
		Semester: r.PathValue("semester"),
		Phase:    r.PathValue("phase"),
	}
	for _, seg := range []string{unit.Course, unit.Semester, unit.Phase, batch} {
		if !validSegment(seg) {
			return model.UnitKey{}, "", false
		}
	}
	return unit, batch, true
}

func validSegment(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
