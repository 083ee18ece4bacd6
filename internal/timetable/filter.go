package timetable

import (
	"strings"

	"ttcal/internal/model"
)

// FilterOrdinary returns the ordinary events of events that include batch
// and, if day is not empty, fall on day (case-insensitive weekday name).
// An empty batch matches nothing. Input order is preserved.
func FilterOrdinary(events []*model.Event, batch, day string) []ScheduleEntry {
	out := make([]ScheduleEntry, 0)
	if batch == "" {
		return out
	}
	for _, ev := range events {
		if ev == nil || ev.Kind() != model.KindOrdinary {
			continue
		}
		if !containsBatch(ev.Batches, batch) {
			continue
		}
		if day != "" && !strings.EqualFold(ev.Day.String(), day) {
			continue
		}
		out = append(out, NewEntry(ev))
	}
	return out
}

// ElectiveEntries projects already expanded electives into entries once per
// unit, so that FilterElectives can run per batch and day without
// re-expanding.
func ElectiveEntries(expanded []*model.Event) []ScheduleEntry {
	out := make([]ScheduleEntry, 0, len(expanded))
	for _, ev := range expanded {
		if ev == nil || ev.Kind() != model.KindElective {
			continue
		}
		out = append(out, NewEntry(ev))
	}
	return out
}

// FilterElectives selects elective entries for batch and optional day with
// the same rules as FilterOrdinary.
func FilterElectives(entries []ScheduleEntry, batch, day string) []ScheduleEntry {
	out := make([]ScheduleEntry, 0)
	if batch == "" {
		return out
	}
	for _, e := range entries {
		if !e.IsElective {
			continue
		}
		if day != "" && !strings.EqualFold(e.Day, day) {
			continue
		}
		if !e.HasBatch(batch) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func containsBatch(batches []string, batch string) bool {
	for _, b := range batches {
		if b == batch {
			return true
		}
	}
	return false
}
