package tour

import (
	"testing"
	"time"
)

func TestTimerPauses(t *testing.T) {
	events := []TimerEvent{
		{Time: at(-30)},             // stopped before the tour
		{Time: at(5), Start: true},  // closes a pause clipped to start
		{Time: at(20)},              // stop
		{Time: at(25)},              // repeated stop is ignored
		{Time: at(40), Start: true}, // start
		{Time: at(90)},              // left open
	}
	windows := TimerPauses{}.Pauses(events, t0, at(100))
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %+v", windows)
	}
	want := []time.Duration{5 * time.Second, 20 * time.Second, 10 * time.Second}
	for i, w := range windows {
		if w.Duration() != want[i] {
			t.Fatalf("window %d = %s, want %s", i, w.Duration(), want[i])
		}
	}
	if got := PausedDuration(windows); got != 35*time.Second {
		t.Fatalf("paused = %s", got)
	}
}
