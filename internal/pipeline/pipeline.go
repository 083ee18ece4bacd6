package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ttcal/internal/config"
	"ttcal/internal/curriculum"
	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
	"ttcal/internal/output"
	"ttcal/internal/source"
	"ttcal/internal/timetable"
)

// Summary describes one finished generation run.
type Summary struct {
	CacheVersion string
	Units        int
	Batches      int
	Feeds        int
	Changed      int
	Diagnostics  timetable.Diagnostics
}

// Runner performs generation runs. Runs are serialized; a run started while
// another is in progress waits for it.
type Runner struct {
	cfg   *config.Config
	clock timetable.Clock

	mu   sync.Mutex
	last *Summary
}

func NewRunner(cfg *config.Config, clock timetable.Clock) *Runner {
	if clock == nil {
		clock = timetable.SystemClock{}
	}
	return &Runner{cfg: cfg, clock: clock}
}

// Last returns the summary of the most recent successful run, or nil.
func (r *Runner) Last() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run discovers units, resolves every schedule, materializes one feed per
// batch and writes everything under the output directory. Per-unit and
// per-event problems are logged and returned as diagnostics; only
// configuration, I/O and serialization failures abort the run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.cfg
	names, err := curriculum.Load(cfg.CurriculumFile)
	if err != nil {
		return nil, err
	}
	layout, err := source.Discover(cfg.SourceDir)
	if err != nil {
		return nil, err
	}
	for _, ru := range cfg.Remote {
		layout.Add(ru.Course, ru.CourseName, ru.Semester, ru.Phase, source.Document{URL: ru.URL})
	}
	layout.Sort()

	mat, err := ics.NewMaterializer(cfg.FeedOptions())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// The clock is read once; the cache version and every feed anchor derive from it.
	now := r.clock.Now()
	loader := source.NewLoader(layout, source.NewFetcher(cfg.CacheDir, nil), names)
	asm := timetable.NewAssembler(loader, timetable.FixedClock{At: now}, cfg.Workers)

	appLog.Info("generation start", "units", layout.Len(), "source_dir", cfg.SourceDir, "remote", len(cfg.Remote))
	res, err := asm.Assemble(ctx, layout.Courses())
	if err != nil {
		return nil, err
	}

	w := output.NewWriter(cfg.OutputDir)
	if err := w.WriteResult(res); err != nil {
		return nil, err
	}

	sum := &Summary{
		CacheVersion: res.CacheVersion,
		Units:        len(res.Units),
		Diagnostics:  res.Diagnostics,
	}
	for _, s := range res.Schedules() {
		sum.Batches++
		feed, diags := mat.Materialize(s, now)
		sum.Diagnostics = append(sum.Diagnostics, diags...)

		rs, err := w.WriteFeed(feed)
		if err != nil {
			return nil, err
		}
		sum.Feeds++
		if rs.Changed() {
			sum.Changed++
			appLog.Info("feed changed", "path", rs.Path, "added", len(rs.Added), "removed", len(rs.Removed), "kept", len(rs.Kept))
		}
	}

	logDiagnostics(sum.Diagnostics)
	appLog.Info("generation done",
		"cache_version", sum.CacheVersion,
		"units", sum.Units,
		"batches", sum.Batches,
		"feeds_changed", sum.Changed,
		"diagnostics", len(sum.Diagnostics),
	)
	r.last = sum
	return sum, nil
}

func logDiagnostics(ds timetable.Diagnostics) {
	for _, d := range ds {
		kv := []any{
			"kind", string(d.Kind),
			"course", d.Unit.Course,
			"semester", d.Unit.Semester,
			"phase", d.Unit.Phase,
		}
		if d.Batch != "" {
			kv = append(kv, "batch", d.Batch)
		}
		if d.Code != "" {
			kv = append(kv, "code", d.Code)
		}

		switch d.Kind {
		case timetable.DiagSourceError, timetable.DiagMalformedTime, timetable.DiagMalformedRecord:
			appLog.Error("generation degraded", errors.New(d.Detail), kv...)
		default:
			appLog.Info("generation note", append(kv, "detail", d.Detail)...)
		}
	}
}
