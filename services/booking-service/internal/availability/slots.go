package availability

import (
	"fmt"
	"time"
)

// Slot is one bookable interval within a single day, expressed as minutes
// from midnight. Slots produced by the resolver are always available; taken
// slots are filtered out by a separate layer (see ExcludeBusy).
type Slot struct {
	StartMinute int
	EndMinute   int
}

// Window is a contiguous availability window within a single day.
type Window struct {
	StartMinute int
	EndMinute   int
}

// Interval is a concrete busy period (an existing booking).
// Intervals are half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// TileWindow fills a window with consecutive slots of durationMinutes,
// starting at the window start. A slot is emitted only if it fits entirely
// inside the window; a trailing remainder shorter than the duration is
// discarded, never truncated.
func TileWindow(w Window, durationMinutes int) []Slot {
	if durationMinutes <= 0 {
		return nil
	}
	var slots []Slot
	for cur := w.StartMinute; cur+durationMinutes <= w.EndMinute; cur += durationMinutes {
		slots = append(slots, Slot{StartMinute: cur, EndMinute: cur + durationMinutes})
	}
	return slots
}

// ExcludeBusy removes slots that overlap any busy interval. day anchors the
// slots' minute offsets to concrete times; it must be midnight in the same
// location as the busy intervals.
func ExcludeBusy(day time.Time, slots []Slot, busy []Interval) []Slot {
	if len(busy) == 0 {
		return slots
	}
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		start := day.Add(time.Duration(s.StartMinute) * time.Minute)
		end := day.Add(time.Duration(s.EndMinute) * time.Minute)
		if !overlapsAny(start, end, busy) {
			out = append(out, s)
		}
	}
	return out
}

// ContainsSlot reports whether [startMinute, endMinute) is one of the given
// slots. Booking creation uses this to reject requests that do not line up
// with the template's slot grid.
func ContainsSlot(slots []Slot, startMinute, endMinute int) bool {
	for _, s := range slots {
		if s.StartMinute == startMinute && s.EndMinute == endMinute {
			return true
		}
	}
	return false
}

// Clock renders a minute-of-day offset as "HH:MM:SS".
func Clock(minute int) string {
	return fmt.Sprintf("%02d:%02d:00", minute/60, minute%60)
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
