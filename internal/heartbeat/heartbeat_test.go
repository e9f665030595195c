package heartbeat

import (
	"testing"
	"time"
)

func TestWithinActiveHoursUnconfiguredIsAlwaysActive(t *testing.T) {
	h := &Heartbeat{}
	if !h.withinActiveHours(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)) {
		t.Fatal("expected always active when no window is configured")
	}
}

func TestWithinActiveHoursSimpleWindow(t *testing.T) {
	h := &Heartbeat{cfg: Config{ActiveStart: "09:00", ActiveEnd: "17:00"}}
	if !h.withinActiveHours(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 12:00 to be within 09:00-17:00")
	}
	if h.withinActiveHours(time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 20:00 to be outside 09:00-17:00")
	}
}

func TestWithinActiveHoursMidnightWrap(t *testing.T) {
	h := &Heartbeat{cfg: Config{ActiveStart: "22:00", ActiveEnd: "06:00"}}
	if !h.withinActiveHours(time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)) {
		t.Fatal("expected 23:30 to be within a 22:00-06:00 wraparound window")
	}
	if !h.withinActiveHours(time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 05:00 to be within a 22:00-06:00 wraparound window")
	}
	if h.withinActiveHours(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("expected noon to be outside a 22:00-06:00 wraparound window")
	}
}

func TestParseHHMM(t *testing.T) {
	if m, ok := parseHHMM("09:30"); !ok || m != 9*60+30 {
		t.Fatalf("parseHHMM(09:30) = %d, %v", m, ok)
	}
	if _, ok := parseHHMM("not-a-time"); ok {
		t.Fatal("expected parse failure for malformed input")
	}
}
