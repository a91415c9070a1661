package tour

import "time"

// PauseDetector turns the timer events of a tour into pause windows inside
// [start, end].
type PauseDetector interface {
	Pauses(events []TimerEvent, start, end time.Time) []PauseWindow
}

// TimerPauses opens a pause on every timer stop and closes it on the next
// timer start. A pause still open at the end of the tour closes at end.
type TimerPauses struct{}

// Pauses implements PauseDetector.
func (TimerPauses) Pauses(events []TimerEvent, start, end time.Time) []PauseWindow {
	var (
		out     []PauseWindow
		open    bool
		stopped time.Time
	)
	for _, ev := range events {
		switch {
		case !ev.Start && !open:
			open = true
			stopped = ev.Time
		case ev.Start && open:
			open = false
			if w, ok := clipPause(stopped, ev.Time, start, end); ok {
				out = append(out, w)
			}
		}
	}
	if open {
		if w, ok := clipPause(stopped, end, start, end); ok {
			out = append(out, w)
		}
	}
	return out
}

func clipPause(from, to, start, end time.Time) (PauseWindow, bool) {
	if from.Before(start) {
		from = start
	}
	if to.After(end) {
		to = end
	}
	if !to.After(from) {
		return PauseWindow{}, false
	}
	return PauseWindow{Start: from, End: to}, true
}

// PausedDuration sums the length of the windows.
func PausedDuration(windows []PauseWindow) time.Duration {
	var total time.Duration
	for _, w := range windows {
		total += w.Duration()
	}
	return total
}
