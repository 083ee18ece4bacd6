package timetable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ttcal/internal/model"
)

// ScheduleEntry is the serialized view of one event for one batch and day.
type ScheduleEntry struct {
	IsElective  bool     `json:"is_elective"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Day         string   `json:"day"`
	Subject     string   `json:"subject"`
	SubjectCode string   `json:"subjectcode"`
	Teacher     string   `json:"teacher"`
	Batches     []string `json:"batches"`
	Venue       string   `json:"venue"`
	Type        string   `json:"type"`
	Category    string   `json:"category,omitempty"`
}

// NewEntry projects an event into a ScheduleEntry.
func NewEntry(ev *model.Event) ScheduleEntry {
	e := ScheduleEntry{
		IsElective:  ev.Kind() == model.KindElective,
		Start:       ev.Period.Start.Format12h(),
		End:         ev.Period.End.Format12h(),
		Day:         strings.ToLower(ev.Day.String()),
		Subject:     ev.DisplayName(),
		SubjectCode: ev.Code,
		Teacher:     strings.Join(ev.Lecturers, ", "),
		Batches:     append(make([]string, 0, len(ev.Batches)), ev.Batches...),
		Venue:       ev.Classroom,
		Type:        ev.Type,
	}
	if ev.Elective != nil {
		e.Category = ev.Elective.Category
	}
	return e
}

// HasBatch reports exact, case-sensitive membership.
func (e ScheduleEntry) HasBatch(batch string) bool {
	for _, b := range e.Batches {
		if b == batch {
			return true
		}
	}
	return false
}

// DaySchedule maps capitalized weekday names to the entries of that day.
type DaySchedule map[string][]ScheduleEntry

// NewDaySchedule returns a schedule with all seven weekdays present and empty.
func NewDaySchedule() DaySchedule {
	d := make(DaySchedule, len(model.Weekdays))
	for _, wd := range model.Weekdays {
		d[wd.String()] = []ScheduleEntry{}
	}
	return d
}

// MarshalJSON writes the weekdays Monday first instead of alphabetically.
// Days outside the week, if any, follow in map order sorted by name.
func (d DaySchedule) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(day string, entries []ScheduleEntry) error {
		if entries == nil {
			entries = []ScheduleEntry{}
		}
		k, err := json.Marshal(day)
		if err != nil {
			return err
		}
		v, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	known := make(map[string]bool, len(model.Weekdays))
	for _, wd := range model.Weekdays {
		known[wd.String()] = true
		entries, ok := d[wd.String()]
		if !ok {
			continue
		}
		if err := write(wd.String(), entries); err != nil {
			return nil, fmt.Errorf("%w: day %s: %v", ErrSerialization, wd, err)
		}
	}
	extra := make([]string, 0)
	for day := range d {
		if !known[day] {
			extra = append(extra, day)
		}
	}
	sort.Strings(extra)
	for _, day := range extra {
		if err := write(day, d[day]); err != nil {
			return nil, fmt.Errorf("%w: day %s: %v", ErrSerialization, day, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
