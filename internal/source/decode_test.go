package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttcal/internal/curriculum"
	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

var testKey = model.UnitKey{Course: "btech", Semester: "sem3", Phase: "phase1"}

const yamlDoc = `
- kind: lecture
  code: 15B11CI311
  day: monday
  start: "09:00"
  end: "09:50"
  classroom: G1
  lecturers: [Dr. A, " Dr. B "]
  batches: [E1, E2]
- null
- kind: elective
  code: DE101
  name: Cloud Computing
  day: Monday
  start: 10:00 AM
  end: 10:50 AM
  classroom: CS1
  batch_categories: [E]
  category: DE-1
- kind: lab
  code: CS171
  day: Tuesday
  start: "2:00 PM"
  end: "1:00 PM"
- kind: lab
  code: CS172
  day: Funday
  start: "14:00"
  end: "16:00"
- kind: tutorial
  day: Friday
  start: "14:00"
  end: "15:00"
`

func TestDecodeYAML(t *testing.T) {
	names := curriculum.New(map[string]string{"15B11CI311": "Data Structures"})
	events, diags, err := Decode(testKey, []byte(yamlDoc), names)
	require.NoError(t, err)

	require.Len(t, events, 3)
	lec := events[0]
	require.NotNil(t, lec)
	assert.Equal(t, model.KindOrdinary, lec.Kind())
	assert.Equal(t, "Data Structures", lec.Name, "name filled from the curriculum")
	assert.Equal(t, time.Monday, lec.Day)
	assert.Equal(t, model.Period{Start: model.WallClock{Hour: 9}, End: model.WallClock{Hour: 9, Minute: 50}}, lec.Period)
	assert.Equal(t, []string{"Dr. A", "Dr. B"}, lec.Lecturers)
	assert.Equal(t, []string{"E1", "E2"}, lec.Batches)

	assert.Nil(t, events[1], "null entries stay nil")

	el := events[2]
	require.NotNil(t, el)
	assert.Equal(t, model.KindElective, el.Kind())
	assert.Equal(t, "Cloud Computing", el.Name)
	assert.Empty(t, el.Batches)
	assert.Equal(t, []string{"E"}, el.Elective.BatchCategories)
	assert.Equal(t, "DE-1", el.Elective.Category)

	require.Len(t, diags, 3)
	assert.Equal(t, timetable.DiagMalformedTime, diags[0].Kind)
	assert.Equal(t, "CS171", diags[0].Code)
	assert.Equal(t, timetable.DiagMalformedRecord, diags[1].Kind)
	assert.Equal(t, "CS172", diags[1].Code)
	assert.Equal(t, timetable.DiagMalformedRecord, diags[2].Kind)
	assert.Equal(t, testKey, diags[2].Unit)
}

func TestDecodeJSONWithEventsKey(t *testing.T) {
	doc := `{"events": [` +
		`{"kind": "Lab", "code": "CS171", "day": "TUESDAY", "start": "14:00", "end": "16:00", "batches": ["E2"]},` +
		`{"code": "CS101", "day": "monday", "start": "09:00", "end": "10:00", "batches": ["E1"]}` +
		`]}`
	events, diags, err := Decode(testKey, []byte(doc), nil)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, events, 2)
	assert.Equal(t, "lab", events[0].Type)
	assert.Equal(t, "lecture", events[1].Type, "kind defaults to lecture")
	assert.Equal(t, "CS101", events[1].DisplayName(), "unknown code falls back to itself")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode(testKey, []byte("events: {not: [a list"), nil)
	assert.Error(t, err)

	events, diags, err := Decode(testKey, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, diags)
}
