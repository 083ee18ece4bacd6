package timetable

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttcal/internal/model"
)

func TestFilterOrdinary(t *testing.T) {
	events := append([]*model.Event{nil}, scenarioEvents()...)

	got := FilterOrdinary(events, "E1", "Monday")
	require.Len(t, got, 1)
	e := got[0]
	assert.False(t, e.IsElective)
	assert.Equal(t, "09:00 AM", e.Start)
	assert.Equal(t, "10:00 AM", e.End)
	assert.Equal(t, "monday", e.Day)
	assert.Equal(t, "CS101", e.Subject)
	assert.Equal(t, "CS101", e.SubjectCode)
	assert.Equal(t, "Dr. A, Dr. B", e.Teacher)
	assert.Equal(t, []string{"E1"}, e.Batches)
	assert.Equal(t, "G1", e.Venue)
	assert.Equal(t, "lecture", e.Type)
	assert.Empty(t, e.Category)
}

func TestFilterOrdinaryRules(t *testing.T) {
	events := scenarioEvents()

	assert.Len(t, FilterOrdinary(events, "E1", "monday"), 1, "day is case-insensitive")
	assert.Len(t, FilterOrdinary(events, "E1", "MONDAY"), 1)
	assert.Empty(t, FilterOrdinary(events, "e1", "Monday"), "batch is case-sensitive")
	assert.Empty(t, FilterOrdinary(events, "", "Monday"), "no batch matches nothing")
	assert.Empty(t, FilterOrdinary(events, "E1", "Tuesday"))
	assert.NotNil(t, FilterOrdinary(events, "", ""))

	// Electives never come out of the ordinary entry point, even when the
	// batch is declared on them.
	withDeclared := []*model.Event{elective("DE1", time.Monday, clock(9, 0), clock(10, 0), nil, "E1")}
	assert.Empty(t, FilterOrdinary(withDeclared, "E1", ""))
}

func TestFilterWithoutDayIsUnionOfDays(t *testing.T) {
	events := []*model.Event{
		lecture("A", time.Monday, clock(9, 0), clock(10, 0), "E1"),
		lecture("B", time.Wednesday, clock(9, 0), clock(10, 0), "E1", "E2"),
		lecture("C", time.Friday, clock(9, 0), clock(10, 0), "E2"),
		lecture("D", time.Friday, clock(11, 0), clock(12, 0), "E1"),
	}
	all := FilterOrdinary(events, "E1", "")
	codes := make([]string, 0, len(all))
	for _, e := range all {
		codes = append(codes, e.SubjectCode)
		assert.True(t, e.HasBatch("E1"))
	}
	assert.Equal(t, []string{"A", "B", "D"}, codes, "input order is kept")

	perDay := 0
	for _, wd := range model.Weekdays {
		perDay += len(FilterOrdinary(events, "E1", wd.String()))
	}
	assert.Equal(t, len(all), perDay)
}

func TestFilterNeverReturnsOtherBatches(t *testing.T) {
	events := scenarioEvents()
	expanded, _ := ExpandElectives(model.UnitKey{}, events, ResolveBatches(events))
	electives := ElectiveEntries(expanded)

	for _, batch := range []string{"E1", "E2", "E3", "O1"} {
		for _, e := range FilterOrdinary(events, batch, "") {
			assert.True(t, e.HasBatch(batch))
		}
		for _, e := range FilterElectives(electives, batch, "") {
			assert.True(t, e.HasBatch(batch))
			assert.True(t, e.IsElective)
		}
	}
}

func TestElectiveEntries(t *testing.T) {
	events := scenarioEvents()
	expanded, _ := ExpandElectives(model.UnitKey{}, events, []string{"E1", "E2"})
	entries := ElectiveEntries(append(expanded, events[0], nil))

	require.Len(t, entries, 1)
	e := entries[0]
	assert.True(t, e.IsElective)
	assert.Equal(t, "DE-1", e.Category)
	assert.Equal(t, []string{"E1", "E2"}, e.Batches)
	assert.Equal(t, "10:00 AM", e.Start)
	assert.Equal(t, "11:00 AM", e.End)
}

// The scenario from the design document: E1 sees both Monday sessions, E2
// only the elective reached through category "E".
func TestEndToEndScenario(t *testing.T) {
	events := scenarioEvents()[:2]
	events = append(events, lecture("CS102", time.Tuesday, clock(9, 0), clock(10, 0), "E2"))

	universe := ResolveBatches(events)
	require.Equal(t, []string{"E1", "E2"}, universe)

	expanded, diags := ExpandElectives(model.UnitKey{}, events, universe)
	assert.Empty(t, diags)
	electives := ElectiveEntries(expanded)

	e1 := append(FilterOrdinary(events, "E1", "Monday"), FilterElectives(electives, "E1", "Monday")...)
	require.Len(t, e1, 2)
	assert.Equal(t, "CS101", e1[0].SubjectCode)
	assert.Equal(t, "DE101", e1[1].SubjectCode)

	e2 := append(FilterOrdinary(events, "E2", "Monday"), FilterElectives(electives, "E2", "Monday")...)
	require.Len(t, e2, 1)
	assert.Equal(t, "DE101", e2[0].SubjectCode)
	assert.Equal(t, []string{"E1", "E2"}, e2[0].Batches)
}

func TestScheduleJSONRoundTrip(t *testing.T) {
	unit, _ := BuildUnit(model.UnitKey{Course: "btech", Semester: "sem1", Phase: "phase1"}, scenarioEvents(), "v2026.10.16.09.00.00")
	require.NotEmpty(t, unit.Schedules)

	for _, s := range unit.Schedules {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var back BatchSchedule
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, s.CacheVersion, back.CacheVersion)
		assert.Equal(t, s.Classes, back.Classes)
	}
}

func TestDayScheduleMarshalOrder(t *testing.T) {
	d := NewDaySchedule()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Monday":[],"Tuesday":[],"Wednesday":[],"Thursday":[],"Friday":[],"Saturday":[],"Sunday":[]}`,
		string(data))
}
