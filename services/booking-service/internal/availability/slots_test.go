package availability

import (
	"testing"
	"time"
)

func TestTileWindow_ExactTiling(t *testing.T) {
	slots := TileWindow(Window{StartMinute: 9 * 60, EndMinute: 12 * 60}, 30)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	if slots[0].StartMinute != 540 || slots[0].EndMinute != 570 {
		t.Fatalf("unexpected first slot: %+v", slots[0])
	}
	if slots[5].StartMinute != 690 || slots[5].EndMinute != 720 {
		t.Fatalf("unexpected last slot: %+v", slots[5])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].StartMinute != slots[i-1].EndMinute {
			t.Fatalf("gap between slot %d and %d", i-1, i)
		}
	}
}

func TestTileWindow_DiscardsPartialTrailingSlot(t *testing.T) {
	// 09:00-11:00 with 45-minute slots: 09:00-09:45 and 09:45-10:30 fit;
	// 10:30-11:15 would overflow the window and must not be emitted.
	slots := TileWindow(Window{StartMinute: 9 * 60, EndMinute: 11 * 60}, 45)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[1].StartMinute != 585 || slots[1].EndMinute != 630 {
		t.Fatalf("unexpected second slot: %+v", slots[1])
	}
}

func TestTileWindow_Boundaries(t *testing.T) {
	one := TileWindow(Window{StartMinute: 600, EndMinute: 630}, 30)
	if len(one) != 1 {
		t.Fatalf("window of exactly one duration: expected 1 slot, got %d", len(one))
	}
	none := TileWindow(Window{StartMinute: 600, EndMinute: 629}, 30)
	if len(none) != 0 {
		t.Fatalf("window shorter than duration: expected 0 slots, got %d", len(none))
	}
}

func TestTileWindow_NonPositiveDuration(t *testing.T) {
	if got := TileWindow(Window{StartMinute: 540, EndMinute: 720}, 0); got != nil {
		t.Fatalf("expected nil for zero duration, got %v", got)
	}
	if got := TileWindow(Window{StartMinute: 540, EndMinute: 720}, -15); got != nil {
		t.Fatalf("expected nil for negative duration, got %v", got)
	}
}

func TestExcludeBusy(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := TileWindow(Window{StartMinute: 9 * 60, EndMinute: 11 * 60}, 30)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	free := ExcludeBusy(day, slots, busy)
	if len(free) != 2 {
		t.Fatalf("expected 2 free slots, got %d", len(free))
	}
	if free[0].StartMinute != 600 || free[1].StartMinute != 630 {
		t.Fatalf("unexpected free slots: %+v", free)
	}
}

func TestExcludeBusy_TouchingIntervalsDoNotOverlap(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := []Slot{{StartMinute: 540, EndMinute: 570}}

	// Busy block starts exactly when the slot ends.
	busy := []Interval{{Start: day.Add(570 * time.Minute), End: day.Add(600 * time.Minute)}}
	if got := ExcludeBusy(day, slots, busy); len(got) != 1 {
		t.Fatalf("back-to-back busy interval should not exclude the slot")
	}
}

func TestContainsSlot(t *testing.T) {
	slots := TileWindow(Window{StartMinute: 540, EndMinute: 660}, 30)
	if !ContainsSlot(slots, 600, 630) {
		t.Fatalf("expected 10:00-10:30 to be on the grid")
	}
	if ContainsSlot(slots, 615, 645) {
		t.Fatalf("off-grid interval must not match")
	}
	if ContainsSlot(slots, 600, 660) {
		t.Fatalf("double-length interval must not match")
	}
}

func TestClock(t *testing.T) {
	cases := map[int]string{
		0:   "00:00:00",
		540: "09:00:00",
		585: "09:45:00",
		719: "11:59:00",
	}
	for minute, want := range cases {
		if got := Clock(minute); got != want {
			t.Fatalf("Clock(%d) = %q, want %q", minute, got, want)
		}
	}
}
