package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "ttcal/internal/log"
)

const defaultMaxInstancesPerSlot = 500

// Instance is one dated class of a weekly slot.
type Instance struct {
	UID      string    `json:"uid"`
	Summary  string    `json:"summary"`
	Location string    `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	// RangeStart and RangeEnd are inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// Location is the zone instances are reported in. Nil keeps each
	// slot's own zone.
	Location *time.Location

	// MaxInstancesPerSlot caps a single slot; zero means defaultMaxInstancesPerSlot.
	MaxInstancesPerSlot int
}

// ExpandResult carries the instances sorted by start, then UID.
type ExpandResult struct {
	Instances []Instance
	// Truncated lists UIDs that hit MaxInstancesPerSlot.
	Truncated []string
}

// Expand turns weekly slots into dated instances inside the configured range.
// A slot without a rule yields its own start if it falls in range. A slot
// whose rule cannot be parsed is logged and skipped.
func Expand(occs []Occurrence, cfg ExpandConfig) (ExpandResult, error) {
	var res ExpandResult
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return res, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxInstancesPerSlot <= 0 {
		cfg.MaxInstancesPerSlot = defaultMaxInstancesPerSlot
	}

	res.Instances = make([]Instance, 0)
	for _, o := range occs {
		starts, err := slotStarts(o, cfg)
		if err != nil {
			appLog.Error("expand: failed to parse RRULE", err, "uid", o.UID, "rrule", o.RRule)
			continue
		}
		if len(starts) > cfg.MaxInstancesPerSlot {
			starts = starts[:cfg.MaxInstancesPerSlot]
			res.Truncated = append(res.Truncated, o.UID)
		}
		dur := o.End.Sub(o.Start)
		for _, s := range starts {
			if cfg.Location != nil {
				s = s.In(cfg.Location)
			}
			res.Instances = append(res.Instances, Instance{
				UID:      o.UID,
				Summary:  o.Summary,
				Location: o.Location,
				Start:    s,
				End:      s.Add(dur),
			})
		}
	}

	sort.SliceStable(res.Instances, func(i, j int) bool {
		a, b := res.Instances[i], res.Instances[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.UID < b.UID
	})
	return res, nil
}

func slotStarts(o Occurrence, cfg ExpandConfig) ([]time.Time, error) {
	if o.RRule == "" {
		if o.Start.Before(cfg.RangeStart) || o.Start.After(cfg.RangeEnd) {
			return nil, nil
		}
		return []time.Time{o.Start}, nil
	}

	r, err := rrule.StrToRRule(o.RRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(o.Start)

	loc := o.Start.Location()
	return r.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true), nil
}
