package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedTime  = errors.New("malformed time value")
	ErrUnknownWeekday = errors.New("unknown weekday")
)

// Kind partitions event records into ordinary sessions and electives.
type Kind int

const (
	KindOrdinary Kind = iota
	KindElective
)

func (k Kind) String() string {
	if k == KindElective {
		return "elective"
	}
	return "ordinary"
}

// WallClock is a time of day without a date.
type WallClock struct {
	Hour   int
	Minute int
}

var wallClockLayouts = []string{
	"15:04",
	"15:04:05",
	"03:04 PM",
	"3:04 PM",
	"03:04PM",
	"3:04PM",
	"03:04 pm",
	"3:04 pm",
}

// ParseWallClock accepts 24-hour ("09:00", "14:30:00") and 12-hour ("09:00 AM", "2:30PM") forms.
func ParseWallClock(s string) (WallClock, error) {
	v := strings.TrimSpace(s)
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return WallClock{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return WallClock{}, fmt.Errorf("%w: %q", ErrMalformedTime, s)
}

// Format12h renders the clock as "09:00 AM", the form used in schedule documents.
func (c WallClock) Format12h() string {
	return time.Date(2000, 1, 1, c.Hour, c.Minute, 0, 0, time.UTC).Format("03:04 PM")
}

// Minutes returns minutes since midnight.
func (c WallClock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c WallClock) Before(o WallClock) bool {
	return c.Minutes() < o.Minutes()
}

// On combines the clock with the calendar date of day, in loc.
func (c WallClock) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// Period is a start/end pair within one day. Start is strictly before End.
type Period struct {
	Start WallClock
	End   WallClock
}

// NewPeriod validates start < end.
func NewPeriod(start, end WallClock) (Period, error) {
	if !start.Before(end) {
		return Period{}, fmt.Errorf("%w: start %s is not before end %s", ErrMalformedTime, start.Format12h(), end.Format12h())
	}
	return Period{Start: start, End: end}, nil
}

// Weekdays is the fixed Monday..Sunday iteration order used by schedules and feeds.
var Weekdays = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

// ParseWeekday maps a case-insensitive English weekday name to time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, d := range Weekdays {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, s)
}

// Elective carries the fields only elective records have.
type Elective struct {
	// BatchCategories are prefixes matched against the unit's batch universe.
	BatchCategories []string
	// Category is the elective grouping label, e.g. "DE-2".
	Category string
}

// Event is one scheduled session of a unit, as produced by the timetable parser.
// Elective is nil for ordinary sessions.
type Event struct {
	Code      string
	Name      string
	Type      string
	Day       time.Weekday
	Period    Period
	Classroom string
	Lecturers []string
	Batches   []string

	Elective *Elective
}

func (e *Event) Kind() Kind {
	if e.Elective != nil {
		return KindElective
	}
	return KindOrdinary
}

// DisplayName is Name, falling back to Code.
func (e *Event) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Code
}

// WithBatches returns a copy of e whose batch set is replaced.
// Slices are copied so the original record is never shared.
func (e *Event) WithBatches(batches []string) *Event {
	cp := *e
	cp.Batches = append([]string(nil), batches...)
	cp.Lecturers = append([]string(nil), e.Lecturers...)
	if e.Elective != nil {
		el := *e.Elective
		el.BatchCategories = append([]string(nil), e.Elective.BatchCategories...)
		cp.Elective = &el
	}
	return &cp
}

// UnitKey identifies one timetable document scope.
type UnitKey struct {
	Course   string
	Semester string
	Phase    string
}

// String renders "course_semester_phase", the key used in combined documents.
func (k UnitKey) String() string {
	return k.Course + "_" + k.Semester + "_" + k.Phase
}

// SemesterID and PhaseID build the "sem3" / "phase1" identifiers.
func SemesterID(n string) string { return "sem" + n }
func PhaseID(n string) string    { return "phase" + n }

// ParseIndex extracts the numeric part of ids such as "sem3"; ok is false if there is none.
func ParseIndex(id string) (int, bool) {
	i := strings.IndexFunc(id, func(r rune) bool { return r >= '0' && r <= '9' })
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return 0, false
	}
	return n, true
}
