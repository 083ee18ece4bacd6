package timetable

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"ttcal/internal/model"
)

// Ref is an {id, name} pair in the metadata tree.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Course, Semester and Phase describe which units exist, typically as found
// on disk by the source package.
type Course struct {
	ID        string
	Name      string
	Semesters []Semester
}

type Semester struct {
	ID     string
	Name   string
	Phases []Phase
}

type Phase struct {
	ID   string
	Name string
}

// EventSource yields the parsed event records of one unit. It returns an
// error wrapping ErrMissingSource when the unit has no document; any error
// degrades that unit to an empty schedule.
type EventSource interface {
	Events(ctx context.Context, key model.UnitKey) ([]*model.Event, Diagnostics, error)
}

// Metadata is the catalog document listing every course, semester, phase and batch.
type Metadata struct {
	CacheVersion string                                `json:"cacheVersion"`
	Courses      []Ref                                 `json:"courses"`
	Semesters    map[string][]Ref                      `json:"semesters"`
	Phases       map[string]map[string][]Ref           `json:"phases"`
	Batches      map[string]map[string]map[string][]Ref `json:"batches"`
}

// BatchSchedule is the day-keyed schedule document of one batch.
type BatchSchedule struct {
	Unit  model.UnitKey `json:"-"`
	Batch string        `json:"-"`

	CacheVersion string      `json:"cacheVersion"`
	Classes      DaySchedule `json:"classes"`
}

// BatchID is the lowercase batch identifier used in keys and paths.
func (s BatchSchedule) BatchID() string {
	return strings.ToLower(s.Batch)
}

// Key is "course_semester_phase_batch".
func (s BatchSchedule) Key() string {
	return s.Unit.String() + "_" + s.BatchID()
}

// UnitSchedule holds everything resolved for one unit.
type UnitSchedule struct {
	Key       model.UnitKey
	Batches   []string
	Electives []ScheduleEntry
	Schedules []BatchSchedule
}

// BuildUnit resolves one unit: batch universe, elective expansion, and a
// seven-day schedule per batch. It does not modify events.
func BuildUnit(key model.UnitKey, events []*model.Event, cacheVersion string) (UnitSchedule, Diagnostics) {
	universe := ResolveBatches(events)
	expanded, diags := ExpandElectives(key, events, universe)
	diags = append(diags, batchCollisions(key, universe)...)
	electives := ElectiveEntries(expanded)

	unit := UnitSchedule{
		Key:       key,
		Batches:   universe,
		Electives: electives,
		Schedules: make([]BatchSchedule, 0, len(universe)),
	}
	for _, batch := range universe {
		classes := NewDaySchedule()
		for _, wd := range model.Weekdays {
			day := wd.String()
			entries := FilterOrdinary(events, batch, day)
			entries = append(entries, FilterElectives(electives, batch, day)...)
			classes[day] = entries
		}
		unit.Schedules = append(unit.Schedules, BatchSchedule{
			Unit:         key,
			Batch:        batch,
			CacheVersion: cacheVersion,
			Classes:      classes,
		})
	}
	return unit, diags
}

// batchCollisions reports batches whose ids differ only in case. They
// share a lowercase id, so their keys and files overlap.
func batchCollisions(key model.UnitKey, universe []string) Diagnostics {
	var diags Diagnostics
	first := make(map[string]string, len(universe))
	for _, b := range universe {
		id := strings.ToLower(b)
		prev, ok := first[id]
		if !ok {
			first[id] = b
			continue
		}
		diags = append(diags, Diagnostic{
			Kind:   DiagBatchCollision,
			Unit:   key,
			Batch:  b,
			Detail: fmt.Sprintf("batch %q shares id %q with %q", b, id, prev),
		})
	}
	return diags
}

// Result is the output of one assembly run.
type Result struct {
	CacheVersion string
	Metadata     Metadata
	Units        []UnitSchedule
	Diagnostics  Diagnostics
}

// Schedules returns every batch schedule in course, semester, phase, batch order.
func (r *Result) Schedules() []BatchSchedule {
	out := make([]BatchSchedule, 0)
	for _, u := range r.Units {
		out = append(out, u.Schedules...)
	}
	return out
}

// Assembler runs BuildUnit across every unit of a course tree.
type Assembler struct {
	Source EventSource
	Clock  Clock
	// Workers bounds how many units are resolved concurrently. Units share
	// no state, so any value gives the same result.
	Workers int
}

func NewAssembler(src EventSource, clock Clock, workers int) *Assembler {
	if clock == nil {
		clock = SystemClock{}
	}
	if workers <= 0 {
		workers = 1
	}
	return &Assembler{Source: src, Clock: clock, Workers: workers}
}

type unitOutcome struct {
	resolved bool
	unit     UnitSchedule
	diags    Diagnostics
}

// Assemble resolves every unit and builds the metadata tree. The cache
// version is taken from the clock once, at the start of the run.
//
// Units whose source is missing or fails to load are left out of the
// metadata and produce no schedules. Only context cancellation is returned
// as an error.
func (a *Assembler) Assemble(ctx context.Context, courses []Course) (*Result, error) {
	version := CacheVersion(a.Clock.Now())

	keys := make([]model.UnitKey, 0)
	for _, c := range courses {
		for _, s := range c.Semesters {
			for _, p := range s.Phases {
				keys = append(keys, model.UnitKey{Course: c.ID, Semester: s.ID, Phase: p.ID})
			}
		}
	}

	outcomes := make([]unitOutcome, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = a.resolveUnit(gctx, key, version)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		CacheVersion: version,
		Metadata: Metadata{
			CacheVersion: version,
			Courses:      make([]Ref, 0, len(courses)),
			Semesters:    make(map[string][]Ref),
			Phases:       make(map[string]map[string][]Ref),
			Batches:      make(map[string]map[string]map[string][]Ref),
		},
	}
	md := &res.Metadata

	i := 0
	for _, c := range courses {
		md.Courses = append(md.Courses, Ref{ID: c.ID, Name: c.Name})
		md.Semesters[c.ID] = make([]Ref, 0, len(c.Semesters))
		md.Phases[c.ID] = make(map[string][]Ref)
		md.Batches[c.ID] = make(map[string]map[string][]Ref)

		for _, s := range c.Semesters {
			md.Semesters[c.ID] = append(md.Semesters[c.ID], Ref{ID: s.ID, Name: s.Name})
			md.Phases[c.ID][s.ID] = make([]Ref, 0, len(s.Phases))
			md.Batches[c.ID][s.ID] = make(map[string][]Ref)

			for _, p := range s.Phases {
				out := outcomes[i]
				i++
				res.Diagnostics = append(res.Diagnostics, out.diags...)
				if !out.resolved {
					continue
				}
				md.Phases[c.ID][s.ID] = append(md.Phases[c.ID][s.ID], Ref{ID: p.ID, Name: p.Name})
				refs := make([]Ref, 0, len(out.unit.Batches))
				for _, b := range out.unit.Batches {
					refs = append(refs, Ref{ID: strings.ToLower(b), Name: b})
				}
				md.Batches[c.ID][s.ID][p.ID] = refs
				res.Units = append(res.Units, out.unit)
			}
		}
	}
	return res, nil
}

func (a *Assembler) resolveUnit(ctx context.Context, key model.UnitKey, version string) unitOutcome {
	events, diags, err := a.Source.Events(ctx, key)
	if err != nil {
		kind := DiagSourceError
		if errors.Is(err, ErrMissingSource) {
			kind = DiagMissingSource
		}
		return unitOutcome{
			diags: append(diags, Diagnostic{Kind: kind, Unit: key, Detail: err.Error()}),
		}
	}
	unit, unitDiags := BuildUnit(key, events, version)
	return unitOutcome{
		resolved: true,
		unit:     unit,
		diags:    append(diags, unitDiags...),
	}
}
