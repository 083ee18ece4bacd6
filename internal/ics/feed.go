package ics

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

const (
	localTimeLayout = "20060102T150405"

	// vtimezoneEpoch is the DTSTART of the single STANDARD observance. The
	// zone never changes offset, so any fixed date in the past will do.
	vtimezoneEpoch = "19700101T000000"

	propGoogleReminders = ical.ComponentProperty("X-GOOGLE-DEFAULT-REMINDERS")
	propLicLocation     = ical.ComponentProperty("X-LIC-LOCATION")
	propRelCalID        = "X-WR-RELCALID"
)

var ErrBadOffset = errors.New("ics: malformed utc offset")

// FeedOptions holds the feed-level settings shared by every batch.
type FeedOptions struct {
	TZID      string
	TZName    string
	UTCOffset string // "+05:30"
	TermWeeks int

	Product                 string
	NamePrefix              string
	DisableDefaultReminders bool
}

func DefaultFeedOptions() FeedOptions {
	return FeedOptions{
		TZID:                    "Asia/Kolkata",
		TZName:                  "IST",
		UTCOffset:               "+05:30",
		TermWeeks:               16,
		Product:                 "JIIT Planner",
		NamePrefix:              "JIIT",
		DisableDefaultReminders: true,
	}
}

// ParseUTCOffset accepts "+05:30", "+0530" or "-03" and returns seconds east of UTC.
func ParseUTCOffset(s string) (int, error) {
	v := strings.TrimSpace(s)
	if len(v) < 2 || (v[0] != '+' && v[0] != '-') {
		return 0, fmt.Errorf("%w: %q", ErrBadOffset, s)
	}
	sign := 1
	if v[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(v[1:], ":", "")
	if len(digits) != 2 && len(digits) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrBadOffset, s)
	}
	h, err := strconv.Atoi(digits[:2])
	if err != nil || h > 14 {
		return 0, fmt.Errorf("%w: %q", ErrBadOffset, s)
	}
	m := 0
	if len(digits) == 4 {
		m, err = strconv.Atoi(digits[2:])
		if err != nil || m > 59 {
			return 0, fmt.Errorf("%w: %q", ErrBadOffset, s)
		}
	}
	return sign * (h*3600 + m*60), nil
}

// formatOffset renders seconds east of UTC as "+0530".
func formatOffset(sec int) string {
	sign := '+'
	if sec < 0 {
		sign = '-'
		sec = -sec
	}
	return fmt.Sprintf("%c%02d%02d", sign, sec/3600, (sec%3600)/60)
}

// Location returns the fixed zone described by the options. The zone has
// no daylight-saving rules, so no tzdata is needed.
func (o FeedOptions) Location() (*time.Location, error) {
	sec, err := ParseUTCOffset(o.UTCOffset)
	if err != nil {
		return nil, err
	}
	return time.FixedZone(o.TZName, sec), nil
}

// NextWeekday returns the date of the next wd strictly after from's calendar
// day, at midnight in from's location. A Monday yields the following Monday.
func NextWeekday(from time.Time, wd time.Weekday) time.Time {
	ahead := int(wd) - int(from.Weekday())
	if ahead <= 0 {
		ahead += 7
	}
	y, m, d := from.Date()
	return time.Date(y, m, d+ahead, 0, 0, 0, 0, from.Location())
}

// UID builds the identity of one weekly slot. It depends only on the unit,
// batch, day, start time and subject code, so regenerating a feed from
// unchanged data keeps every UID.
func UID(unit model.UnitKey, batch string, day time.Weekday, start model.WallClock, code string) string {
	return strings.Join([]string{
		unit.Course, unit.Semester, unit.Phase, strings.ToLower(batch),
		day.String(), start.Format12h(), code,
	}, "_")
}

// FeedPath is "{course}/{semester}/{phase}/{batch}.ics", relative to the feed root.
func FeedPath(unit model.UnitKey, batch string) string {
	return path.Join(unit.Course, unit.Semester, unit.Phase, strings.ToLower(batch)+".ics")
}

// Occurrence is one weekly class slot of a batch feed.
type Occurrence struct {
	UID         string
	Day         time.Weekday
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Location    string
	RRule       string
}

// Feed is the materialized calendar of one batch.
type Feed struct {
	Unit        model.UnitKey
	Batch       string
	GeneratedAt time.Time
	Occurrences []Occurrence

	opts   FeedOptions
	offset string
}

func (f *Feed) Path() string {
	return FeedPath(f.Unit, f.Batch)
}

// UIDs lists the feed's occurrence identities in feed order.
func (f *Feed) UIDs() []string {
	out := make([]string, 0, len(f.Occurrences))
	for _, o := range f.Occurrences {
		out = append(out, o.UID)
	}
	return out
}

// Materializer turns batch schedules into weekly recurring feeds.
type Materializer struct {
	opts   FeedOptions
	loc    *time.Location
	offset string
	rule   string
}

func NewMaterializer(opts FeedOptions) (*Materializer, error) {
	if opts.TermWeeks <= 0 {
		return nil, fmt.Errorf("ics: term weeks must be positive, got %d", opts.TermWeeks)
	}
	sec, err := ParseUTCOffset(opts.UTCOffset)
	if err != nil {
		return nil, err
	}
	ro := rrule.ROption{Freq: rrule.WEEKLY, Count: opts.TermWeeks}
	return &Materializer{
		opts:   opts,
		loc:    time.FixedZone(opts.TZName, sec),
		offset: formatOffset(sec),
		rule:   ro.RRuleString(),
	}, nil
}

// Location is the fixed zone every occurrence is expressed in.
func (m *Materializer) Location() *time.Location {
	return m.loc
}

// Materialize builds the feed of one batch. Anchors are computed from now,
// converted to the feed zone. Entries whose start or end cannot be parsed
// are dropped and reported; everything else is kept. Entries that share a
// UID are kept and reported.
func (m *Materializer) Materialize(s timetable.BatchSchedule, now time.Time) (*Feed, timetable.Diagnostics) {
	today := now.In(m.loc)
	feed := &Feed{
		Unit:        s.Unit,
		Batch:       s.Batch,
		GeneratedAt: now,
		Occurrences: make([]Occurrence, 0),
		opts:        m.opts,
		offset:      m.offset,
	}
	var diags timetable.Diagnostics
	seen := make(map[string]bool)

	for _, wd := range model.Weekdays {
		entries := dayEntries(s.Classes, wd)
		if len(entries) == 0 {
			continue
		}
		anchor := NextWeekday(today, wd)
		for _, e := range entries {
			occ, err := m.occurrence(s, wd, anchor, e)
			if err != nil {
				diags = append(diags, timetable.Diagnostic{
					Kind:   timetable.DiagMalformedTime,
					Unit:   s.Unit,
					Batch:  s.Batch,
					Code:   e.SubjectCode,
					Detail: err.Error(),
				})
				continue
			}
			if seen[occ.UID] {
				diags = append(diags, timetable.Diagnostic{
					Kind:   timetable.DiagDuplicateUID,
					Unit:   s.Unit,
					Batch:  s.Batch,
					Code:   e.SubjectCode,
					Detail: "uid " + occ.UID + " emitted more than once",
				})
			}
			seen[occ.UID] = true
			feed.Occurrences = append(feed.Occurrences, occ)
		}
	}
	return feed, diags
}

// dayEntries collects the entries filed under wd. Day keys are matched
// case-insensitively; keys that are not weekdays are ignored.
func dayEntries(classes timetable.DaySchedule, wd time.Weekday) []timetable.ScheduleEntry {
	keys := make([]string, 0, len(classes))
	for k := range classes {
		if strings.EqualFold(k, wd.String()) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out []timetable.ScheduleEntry
	for _, k := range keys {
		out = append(out, classes[k]...)
	}
	return out
}

func (m *Materializer) occurrence(s timetable.BatchSchedule, wd time.Weekday, anchor time.Time, e timetable.ScheduleEntry) (Occurrence, error) {
	start, err := model.ParseWallClock(e.Start)
	if err != nil {
		return Occurrence{}, err
	}
	end, err := model.ParseWallClock(e.End)
	if err != nil {
		return Occurrence{}, err
	}
	period, err := model.NewPeriod(start, end)
	if err != nil {
		return Occurrence{}, err
	}

	return Occurrence{
		UID:         UID(s.Unit, s.Batch, wd, period.Start, e.SubjectCode),
		Day:         wd,
		Start:       period.Start.On(anchor, m.loc),
		End:         period.End.On(anchor, m.loc),
		Summary:     fmt.Sprintf("%s (%s)", e.Subject, e.SubjectCode),
		Description: describe(e),
		Location:    e.Venue,
		RRule:       m.rule,
	}, nil
}

func describe(e timetable.ScheduleEntry) string {
	lines := []string{
		"Subject: " + e.Subject,
		"Subject Code: " + e.SubjectCode,
		"Teacher: " + e.Teacher,
		"Venue: " + e.Venue,
		"Type: " + e.Type,
		"Batches: " + strings.Join(e.Batches, ", "),
	}
	return strings.Join(lines, "\n")
}

// Name is the calendar display name, e.g. "JIIT BTECH SEM3 PHASE1 E1 Timetable".
func (f *Feed) Name() string {
	parts := []string{f.Unit.Course, f.Unit.Semester, f.Unit.Phase, f.Batch}
	for i, p := range parts {
		parts[i] = strings.ToUpper(p)
	}
	name := strings.Join(parts, " ") + " Timetable"
	if f.opts.NamePrefix != "" {
		name = f.opts.NamePrefix + " " + name
	}
	return name
}

// Calendar builds the VCALENDAR document: header, one VTIMEZONE and one
// VEVENT per occurrence.
func (f *Feed) Calendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(fmt.Sprintf("-//%s//Timetable %s %s %s %s//EN",
		f.opts.Product, f.Unit.Course, f.Unit.Semester, f.Unit.Phase, strings.ToLower(f.Batch)))
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(f.Name())
	cal.SetXWRTimezone(f.opts.TZID)
	relID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(f.Path()))
	cal.CalendarProperties = append(cal.CalendarProperties, ical.CalendarProperty{
		BaseProperty: ical.BaseProperty{IANAToken: propRelCalID, Value: relID.String()},
	})

	tz := cal.AddTimezone(f.opts.TZID)
	tz.AddProperty(propLicLocation, f.opts.TZID)
	std := tz.AddStandard()
	std.AddProperty(ical.ComponentProperty(ical.PropertyTzname), f.opts.TZName)
	std.AddProperty(ical.ComponentPropertyDtStart, vtimezoneEpoch)
	std.AddProperty(ical.ComponentProperty(ical.PropertyTzoffsetfrom), f.offset)
	std.AddProperty(ical.ComponentProperty(ical.PropertyTzoffsetto), f.offset)

	for _, o := range f.Occurrences {
		ev := cal.AddEvent(o.UID)
		ev.SetDtStampTime(f.GeneratedAt)
		ev.SetProperty(ical.ComponentPropertyDtStart, o.Start.Format(localTimeLayout), ical.WithTZID(f.opts.TZID))
		ev.SetProperty(ical.ComponentPropertyDtEnd, o.End.Format(localTimeLayout), ical.WithTZID(f.opts.TZID))
		ev.SetSummary(o.Summary)
		ev.SetDescription(o.Description)
		ev.SetLocation(o.Location)
		if f.opts.DisableDefaultReminders {
			ev.AddProperty(propGoogleReminders, "false")
		}
		ev.AddRrule(o.RRule)
	}
	return cal
}

// Serialize renders the feed with CRLF line endings. Failures wrap
// timetable.ErrSerialization.
func (f *Feed) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Calendar().SerializeTo(&buf, ical.WithNewLineWindows); err != nil {
		return nil, fmt.Errorf("%w: feed %s: %v", timetable.ErrSerialization, f.Path(), err)
	}
	return buf.Bytes(), nil
}
