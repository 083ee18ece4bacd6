package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttcal/internal/timetable"
)

func TestParseFeedRoundTrip(t *testing.T) {
	s := mondaySchedule()
	s.Classes["Thursday"] = []timetable.ScheduleEntry{{
		Start: "02:00 PM", End: "04:00 PM", Subject: "Networks; Lab", SubjectCode: "CS171",
		Teacher: "Dr. C", Batches: []string{"E1"}, Venue: "CL-2", Type: "lab",
	}}
	feed, _ := newMaterializer(t).Materialize(s, time.Date(2026, 10, 16, 10, 0, 0, 0, ist))
	data, err := feed.Serialize()
	require.NoError(t, err)

	got, err := ParseFeed(bytes.NewReader(data), ist)
	require.NoError(t, err)
	require.Len(t, got, len(feed.Occurrences))

	for i, want := range feed.Occurrences {
		assert.Equal(t, want.UID, got[i].UID)
		assert.Equal(t, want.Summary, got[i].Summary)
		assert.Equal(t, want.Description, got[i].Description)
		assert.Equal(t, want.Location, got[i].Location)
		assert.Equal(t, want.RRule, got[i].RRule)
		assert.Equal(t, want.Day, got[i].Day)
		assert.True(t, want.Start.Equal(got[i].Start), "start %s != %s", want.Start, got[i].Start)
		assert.True(t, want.End.Equal(got[i].End))
	}

	uids, err := FeedUIDs(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, feed.UIDs(), uids)
}

func TestParseFeedSkipsEventsWithoutUID(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"DTSTART:20261019T033000Z",
		"DTEND:20261019T043000Z",
		"SUMMARY:no uid",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ok",
		"DTSTART:20261019T033000Z",
		"DTEND:20261019T043000Z",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, err := ParseFeed(strings.NewReader(body), ist)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].UID)
	assert.Equal(t, time.UTC, got[0].Start.Location())
	assert.Equal(t, "2026-10-19T09:00:00+05:30", got[0].Start.In(ist).Format(time.RFC3339))
}
