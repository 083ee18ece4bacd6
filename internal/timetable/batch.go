package timetable

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"ttcal/internal/model"
)

// SplitBatch splits a batch identifier at its first digit: "E10" -> ("E", 10).
// Identifiers without digits sort as (id, 0). Only the leading run of digits
// after the prefix is parsed.
func SplitBatch(id string) (string, int) {
	i := strings.IndexFunc(id, unicode.IsDigit)
	if i < 0 {
		return id, 0
	}
	j := i
	for j < len(id) && id[j] >= '0' && id[j] <= '9' {
		j++
	}
	n, err := strconv.Atoi(id[i:j])
	if err != nil {
		return id[:i], 0
	}
	return id[:i], n
}

// CompareBatches orders by (prefix, number), so E2 < E10 < O1. Identifiers
// equal under that key fall back to plain string order to keep the order total.
func CompareBatches(a, b string) int {
	pa, na := SplitBatch(a)
	pb, nb := SplitBatch(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	if na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// SortBatches sorts ids in place by CompareBatches.
func SortBatches(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return CompareBatches(ids[i], ids[j]) < 0
	})
}

// ResolveBatches returns the sorted universe of batches declared by the
// ordinary events of one unit. Electives do not contribute: their membership
// is derived from this universe.
func ResolveBatches(events []*model.Event) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, ev := range events {
		if ev == nil || ev.Kind() != model.KindOrdinary {
			continue
		}
		for _, b := range ev.Batches {
			if b == "" {
				continue
			}
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			out = append(out, b)
		}
	}
	SortBatches(out)
	return out
}
