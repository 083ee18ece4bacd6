package timetable

import (
	"strings"

	"ttcal/internal/model"
)

// PrefixBatches returns the members of universe starting with prefix
// (exact, case-sensitive), in universe order.
func PrefixBatches(universe []string, prefix string) []string {
	out := make([]string, 0)
	for _, b := range universe {
		if strings.HasPrefix(b, prefix) {
			out = append(out, b)
		}
	}
	return out
}

// ExpandElective computes an elective's effective batch set: its declared
// batches plus every universe batch matching one of its categories. When
// that union is empty the elective is offered to the whole universe and
// fallback is true.
//
// The input is not modified. Expanding an already expanded record yields
// the same set.
func ExpandElective(ev *model.Event, universe []string) (expanded *model.Event, fallback bool) {
	seen := make(map[string]struct{}, len(ev.Batches))
	set := make([]string, 0, len(ev.Batches))
	add := func(b string) {
		if _, ok := seen[b]; ok {
			return
		}
		seen[b] = struct{}{}
		set = append(set, b)
	}

	for _, b := range ev.Batches {
		add(b)
	}
	if ev.Elective != nil {
		for _, cat := range ev.Elective.BatchCategories {
			for _, b := range PrefixBatches(universe, cat) {
				add(b)
			}
		}
	}

	// TODO: once every category is curated, drop electives that resolve to
	// nothing instead of applying them to the whole unit.
	if len(set) == 0 {
		set = append(set, universe...)
		fallback = true
	}
	SortBatches(set)
	return ev.WithBatches(set), fallback
}

// ExpandElectives expands every elective record of a unit, in input order.
// Ordinary and nil records are skipped. Records that needed the fallback
// are reported as diagnostics.
func ExpandElectives(key model.UnitKey, events []*model.Event, universe []string) ([]*model.Event, Diagnostics) {
	out := make([]*model.Event, 0)
	var diags Diagnostics
	for _, ev := range events {
		if ev == nil || ev.Kind() != model.KindElective {
			continue
		}
		expanded, fallback := ExpandElective(ev, universe)
		if fallback {
			diags = append(diags, Diagnostic{
				Kind:   DiagElectiveFallback,
				Unit:   key,
				Code:   ev.Code,
				Detail: "no batch resolved from categories; offered to all batches",
			})
		}
		out = append(out, expanded)
	}
	return out, diags
}
