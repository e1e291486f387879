package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	contractx "github.com/cobsystems/careflow/agent/contract"
)

const (
	defaultNumBefore = 2
	defaultNumAfter  = 2
)

// Resolver answers availability questions against a slot store: exact-time
// matches, filtered candidate listings, and the expanding-window search for
// nearest alternatives when a requested time is taken.
type Resolver struct {
	store     Store
	numBefore int
	numAfter  int
}

type ResolverOption func(*Resolver)

// WithAlternativeCounts overrides how many alternatives are offered on each
// side of the requested time.
func WithAlternativeCounts(before, after int) ResolverOption {
	return func(r *Resolver) {
		if before >= 0 {
			r.numBefore = before
		}
		if after >= 0 {
			r.numAfter = after
		}
	}
}

func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     store,
		numBefore: defaultNumBefore,
		numAfter:  defaultNumAfter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindExact returns the earliest available slot whose time-of-day equals
// target (HH:MM:SS) under the query's filters, or nil when none matches.
func (r *Resolver) FindExact(ctx context.Context, q Query, target string) (*Slot, error) {
	slots, err := r.FindCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].TimeOfDay() == target {
			return &slots[i], nil
		}
	}
	return nil, nil
}

// FindCandidates lists available slots for the query, ordered by datetime
// ascending.
func (r *Resolver) FindCandidates(ctx context.Context, q Query) ([]Slot, error) {
	slots, err := r.store.ListAvailable(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrAvailabilityQuery, err)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Datetime < slots[j].Datetime })
	return slots, nil
}

// FindAlternatives searches for slots near target (HH:MM:SS) on the query's
// date, widening the window only when the narrower one is empty:
// target±2h, then target±4h, then the whole day. The widest non-empty set is
// ranked by distance from the target and partitioned into up to numBefore
// strictly-before and numAfter strictly-after slots, returned in that order.
func (r *Resolver) FindAlternatives(ctx context.Context, q Query, target string) ([]Slot, error) {
	targetDT, err := time.Parse(DatetimeLayout, q.Date+" "+target)
	if err != nil {
		return nil, fmt.Errorf("%w: parse target time %q: %v", contractx.ErrValidation, target, err)
	}

	var slots []Slot
	for _, window := range []time.Duration{2 * time.Hour, 4 * time.Hour, 0} {
		wq := q
		if window > 0 {
			wq.StartTime = clampTimeOfDay(targetDT.Add(-window), targetDT)
			wq.EndTime = clampTimeOfDay(targetDT.Add(window), targetDT)
		} else {
			wq.StartTime = ""
			wq.EndTime = ""
		}
		slots, err = r.FindCandidates(ctx, wq)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			break
		}
	}
	if len(slots) == 0 {
		return nil, nil
	}

	type ranked struct {
		slot Slot
		diff time.Duration
	}
	var before, after []ranked
	for _, s := range slots {
		at, err := s.At()
		if err != nil {
			continue
		}
		switch {
		case at.Before(targetDT):
			before = append(before, ranked{s, targetDT.Sub(at)})
		case at.After(targetDT):
			after = append(after, ranked{s, at.Sub(targetDT)})
		}
	}
	sort.Slice(before, func(i, j int) bool { return before[i].diff < before[j].diff })
	sort.Slice(after, func(i, j int) bool { return after[i].diff < after[j].diff })

	if len(before) > r.numBefore {
		before = before[:r.numBefore]
	}
	if len(after) > r.numAfter {
		after = after[:r.numAfter]
	}

	out := make([]Slot, 0, len(before)+len(after))
	for _, b := range before {
		out = append(out, b.slot)
	}
	for _, a := range after {
		out = append(out, a.slot)
	}
	return out, nil
}

// clampTimeOfDay converts t to an HH:MM:SS bound, clamped to the day that
// holds ref so a ±window never leaks into the neighbouring day.
func clampTimeOfDay(t, ref time.Time) string {
	dayStart := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Second)
	if t.Before(dayStart) {
		t = dayStart
	}
	if t.After(dayEnd) {
		t = dayEnd
	}
	return t.Format(TimeLayout)
}
