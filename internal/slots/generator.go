package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/clinicflow/schedcore/internal/availability"
)

// GenerateOptions controls one generation run. From and To name the first
// and last calendar days of the range; both are included.
type GenerateOptions struct {
	From            time.Time
	To              time.Time
	AppointmentType string
	IncludeWeekends bool

	// Now anchors "today" handling and the lead-time window. Callers pass
	// time.Now() outside tests.
	Now time.Time
}

// Generate expands a provider's availability rule into candidate slots for
// a date range. The result is chronological. Candidates overlapping a
// blocked interval or one of the existing slots are discarded.
//
// Weekend days with no configured template entry are skipped unless
// IncludeWeekends is set, in which case the first enabled weekday's hours
// are used as the template for that day.
func Generate(rule *availability.Rule, existing []Slot, opts GenerateOptions) ([]Candidate, error) {
	apptType := rule.AppointmentType(opts.AppointmentType)
	if apptType == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAppointmentType, opts.AppointmentType)
	}

	from := startOfDay(opts.From)
	to := startOfDay(opts.To)
	if to.Before(from) {
		return nil, fmt.Errorf("slots: range end %s before start %s", opts.To.Format(time.DateOnly), opts.From.Format(time.DateOnly))
	}

	// The advance-booking policy caps how far into the future slots exist.
	if max := rule.Policy.MaxAdvanceBookingDays; max > 0 {
		horizon := startOfDay(opts.Now).AddDate(0, 0, max)
		if to.After(horizon) {
			to = horizon
		}
	}

	step := apptType.DurationMinutes + bufferMinutes(apptType, rule.Policy)
	duration := time.Duration(apptType.DurationMinutes) * time.Minute

	var out []Candidate
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		entry := templateFor(rule, day, opts.IncludeWeekends)
		if entry == nil {
			continue
		}

		startMin, err := entry.StartTime.Minutes()
		if err != nil {
			return nil, err
		}
		endMin, err := entry.EndTime.Minutes()
		if err != nil {
			return nil, err
		}

		if sameDay(day, opts.Now) {
			adjusted, ok := adjustTodayStart(startMin, endMin, apptType.DurationMinutes, rule.Policy.MinLeadTimeHours, opts.Now)
			if !ok {
				continue
			}
			startMin = adjusted
		} else if day.Before(startOfDay(opts.Now)) {
			continue
		}

		var dayCandidates []Candidate
		for _, w := range dayWindows(apptType, startMin, endMin) {
			cursor := day.Add(time.Duration(w.start) * time.Minute)
			windowEnd := day.Add(time.Duration(w.end) * time.Minute)
			for !cursor.Add(duration).After(windowEnd) {
				candidate := Candidate{Start: cursor, End: cursor.Add(duration)}
				if !blockedOverlap(rule.BlockedIntervals, candidate) && !existingOverlap(existing, candidate) {
					dayCandidates = append(dayCandidates, candidate)
				}
				cursor = cursor.Add(time.Duration(step) * time.Minute)
			}
		}
		out = append(out, dedupeOverlaps(dayCandidates)...)
	}
	return out, nil
}

// dedupeOverlaps drops candidates overlapping an earlier one. Restriction
// windows may themselves overlap; the earlier window wins.
func dedupeOverlaps(cs []Candidate) []Candidate {
	if len(cs) < 2 {
		return cs
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].Start.Before(cs[j].Start) })
	out := cs[:1]
	for _, c := range cs[1:] {
		if c.Start.Before(out[len(out)-1].End) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// bufferMinutes resolves which buffer pair applies: the appointment type's
// own buffers when either is set, the provider policy's otherwise.
func bufferMinutes(at *availability.AppointmentType, policy availability.BookingPolicy) int {
	if at.BufferBefore > 0 || at.BufferAfter > 0 {
		return at.BufferBefore + at.BufferAfter
	}
	return policy.BufferTimeBefore + policy.BufferTimeAfter
}

func templateFor(rule *availability.Rule, day time.Time, includeWeekends bool) *availability.TemplateEntry {
	dow := int(day.Weekday())
	if entry := rule.EntryFor(dow); entry != nil {
		return entry
	}
	if includeWeekends && (dow == 0 || dow == 6) {
		return rule.FirstEnabledWeekday()
	}
	return nil
}

// adjustTodayStart moves today's first slot past now + lead time, rounded
// up to the next multiple of the appointment duration counted from
// midnight so slot boundaries stay aligned with other days. Returns false
// when the adjusted start reaches the end of the working day.
func adjustTodayStart(startMin, endMin, durationMin, leadHours int, now time.Time) (int, bool) {
	earliest := now.Add(time.Duration(leadHours) * time.Hour)
	if !sameDay(now, earliest) {
		return 0, false
	}
	earliestMin := earliest.Hour()*60 + earliest.Minute()
	if earliest.Second() > 0 || earliest.Nanosecond() > 0 {
		earliestMin++
	}
	if earliestMin <= startMin {
		return startMin, true
	}
	aligned := ((earliestMin + durationMin - 1) / durationMin) * durationMin
	if aligned >= endMin {
		return 0, false
	}
	return aligned, true
}

type window struct {
	start, end int
}

// dayWindows returns the minute ranges slots may occupy: the intersection
// of each restriction window with the day's effective range, or the whole
// effective range when the type has no restrictions.
func dayWindows(at *availability.AppointmentType, startMin, endMin int) []window {
	if len(at.Restrictions) == 0 {
		return []window{{start: startMin, end: endMin}}
	}
	var out []window
	for _, r := range at.Restrictions {
		rs, err := r.StartTime.Minutes()
		if err != nil {
			continue
		}
		re, err := r.EndTime.Minutes()
		if err != nil {
			continue
		}
		s := maxInt(rs, startMin)
		e := minInt(re, endMin)
		if s < e {
			out = append(out, window{start: s, end: e})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func blockedOverlap(blocked []availability.BlockedInterval, c Candidate) bool {
	for _, b := range blocked {
		if b.Overlaps(c.Start, c.End) {
			return true
		}
	}
	return false
}

func existingOverlap(existing []Slot, c Candidate) bool {
	for i := range existing {
		if existing[i].Overlaps(c.Start, c.End) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
