package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "ttcal/internal/log"
)

// ParseFeed reads a feed previously written by Feed.Serialize back into
// occurrences. Local DTSTART/DTEND values are interpreted in loc, which
// must be the zone the feed was written with; UTC values keep their zone.
//
// A VEVENT that cannot be read is logged and skipped.
func ParseFeed(r io.Reader, loc *time.Location) ([]Occurrence, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("ics: parse feed: %w", err)
	}

	out := make([]Occurrence, 0)
	for _, ve := range cal.Events() {
		occ, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "uid", occ.UID)
			continue
		}
		out = append(out, occ)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Occurrence, error) {
	var out Occurrence

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	start, err := propTime(ve, ical.ComponentPropertyDtStart, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := propTime(ve, ical.ComponentPropertyDtEnd, loc)
	if err != nil {
		return out, fmt.Errorf("DTEND: %w", err)
	}
	out.Start, out.End = start, end
	out.Day = start.Weekday()
	return out, nil
}

// propTime reads a DATE-TIME property without going through the library's
// TZID lookup, which needs tzdata for names such as Asia/Kolkata.
func propTime(ve *ical.VEvent, prop ical.ComponentProperty, loc *time.Location) (time.Time, error) {
	p := ve.GetProperty(prop)
	if p == nil {
		return time.Time{}, errors.New("missing")
	}
	v := strings.TrimSpace(p.Value)
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	return time.ParseInLocation(localTimeLayout, v, loc)
}

// FeedUIDs returns the UIDs of a serialized feed in document order.
func FeedUIDs(r io.Reader) ([]string, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("ics: parse feed: %w", err)
	}
	out := make([]string, 0)
	for _, ve := range cal.Events() {
		if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
			out = append(out, p.Value)
		}
	}
	return out, nil
}
