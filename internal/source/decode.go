package source

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"ttcal/internal/curriculum"
	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

const kindElective = "elective"

// record is one entry of an event-record document. JSON documents decode
// through the same YAML decoder.
type record struct {
	Kind            string   `yaml:"kind"`
	Code            string   `yaml:"code"`
	Name            string   `yaml:"name"`
	Day             string   `yaml:"day"`
	Start           string   `yaml:"start"`
	End             string   `yaml:"end"`
	Classroom       string   `yaml:"classroom"`
	Lecturers       []string `yaml:"lecturers"`
	Batches         []string `yaml:"batches"`
	BatchCategories []string `yaml:"batch_categories"`
	Category        string   `yaml:"category"`
}

// document accepts either a bare list of records or {events: [...]}.
type document struct {
	Events []*record `yaml:"events"`
}

// Decode parses an event-record document of unit key. A null entry stays a
// nil event so that downstream filters see it and skip it. Records with a
// malformed time or weekday, or without a code, are dropped and reported.
// Empty names are filled from names when the code is known there.
func Decode(key model.UnitKey, data []byte, names *curriculum.Catalog) ([]*model.Event, timetable.Diagnostics, error) {
	recs, err := decodeRecords(data)
	if err != nil {
		return nil, nil, fmt.Errorf("source: decode %s: %w", key, err)
	}

	events := make([]*model.Event, 0, len(recs))
	var diags timetable.Diagnostics
	for i, r := range recs {
		if r == nil {
			events = append(events, nil)
			continue
		}
		ev, err := r.event(names)
		if err != nil {
			kind := timetable.DiagMalformedRecord
			if errors.Is(err, model.ErrMalformedTime) {
				kind = timetable.DiagMalformedTime
			}
			diags = append(diags, timetable.Diagnostic{
				Kind:   kind,
				Unit:   key,
				Code:   r.Code,
				Detail: fmt.Sprintf("record %d: %v", i, err),
			})
			continue
		}
		events = append(events, ev)
	}
	return events, diags, nil
}

func decodeRecords(data []byte) ([]*record, error) {
	var list []*record
	listErr := yaml.Unmarshal(data, &list)
	if listErr == nil {
		return list, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, listErr
	}
	return doc.Events, nil
}

func (r *record) event(names *curriculum.Catalog) (*model.Event, error) {
	code := strings.TrimSpace(r.Code)
	if code == "" {
		return nil, errors.New("missing code")
	}
	day, err := model.ParseWeekday(r.Day)
	if err != nil {
		return nil, err
	}
	start, err := model.ParseWallClock(r.Start)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseWallClock(r.End)
	if err != nil {
		return nil, err
	}
	period, err := model.NewPeriod(start, end)
	if err != nil {
		return nil, err
	}

	kind := strings.ToLower(strings.TrimSpace(r.Kind))
	if kind == "" {
		kind = "lecture"
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name, _ = names.Lookup(code)
	}

	ev := &model.Event{
		Code:      code,
		Name:      name,
		Type:      kind,
		Day:       day,
		Period:    period,
		Classroom: strings.TrimSpace(r.Classroom),
		Lecturers: trimAll(r.Lecturers),
		Batches:   trimAll(r.Batches),
	}
	if kind == kindElective {
		ev.Elective = &model.Elective{
			BatchCategories: trimAll(r.BatchCategories),
			Category:        strings.TrimSpace(r.Category),
		}
	}
	return ev, nil
}

// trimAll trims every element and drops empty ones.
func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
