package timetable

import (
	"context"
	"time"

	"ttcal/internal/model"
)

func clock(h, m int) model.WallClock { return model.WallClock{Hour: h, Minute: m} }

func lecture(code string, day time.Weekday, start, end model.WallClock, batches ...string) *model.Event {
	return &model.Event{
		Code:      code,
		Type:      "lecture",
		Day:       day,
		Period:    model.Period{Start: start, End: end},
		Classroom: "G1",
		Lecturers: []string{"Dr. A", "Dr. B"},
		Batches:   batches,
	}
}

func elective(code string, day time.Weekday, start, end model.WallClock, categories []string, batches ...string) *model.Event {
	return &model.Event{
		Code:      code,
		Type:      "elective",
		Day:       day,
		Period:    model.Period{Start: start, End: end},
		Classroom: "CS1",
		Lecturers: []string{"Dr. C"},
		Batches:   batches,
		Elective:  &model.Elective{BatchCategories: categories, Category: "DE-1"},
	}
}

// scenarioEvents is the unit used throughout: one ordinary Monday lecture
// for E1, one Monday elective offered to category E, and an E2-only lab.
func scenarioEvents() []*model.Event {
	return []*model.Event{
		lecture("CS101", time.Monday, clock(9, 0), clock(10, 0), "E1"),
		elective("DE101", time.Monday, clock(10, 0), clock(11, 0), []string{"E"}),
		lecture("CS171", time.Tuesday, clock(14, 0), clock(16, 0), "E2"),
	}
}

type stubSource struct {
	units map[model.UnitKey][]*model.Event
	errs  map[model.UnitKey]error
}

func (s *stubSource) Events(_ context.Context, key model.UnitKey) ([]*model.Event, Diagnostics, error) {
	if err, ok := s.errs[key]; ok {
		return nil, nil, err
	}
	evs, ok := s.units[key]
	if !ok {
		return nil, nil, ErrMissingSource
	}
	return evs, nil, nil
}
