package tour

import "time"

// FallbackGearValue replaces gear values whose rear teeth count is zero.
// Some firmware reports the first gear change of a ride that way. It reads as
// front 1/1, rear 1/1.
const FallbackGearValue uint32 = 0x01010101

// RearGearNum returns the rear gear number of a packed gear value.
func RearGearNum(v uint32) uint8 { return uint8(v) }

// RearGearTeeth returns the rear gear teeth of a packed gear value.
func RearGearTeeth(v uint32) uint8 { return uint8(v >> 8) }

// FrontGearNum returns the front gear number of a packed gear value.
func FrontGearNum(v uint32) uint8 { return uint8(v >> 16) }

// FrontGearTeeth returns the front gear teeth of a packed gear value.
func FrontGearTeeth(v uint32) uint8 { return uint8(v >> 24) }

// PackGear builds a packed gear value.
func PackGear(frontNum, frontTeeth, rearNum, rearTeeth uint8) uint32 {
	return uint32(rearNum) | uint32(rearTeeth)<<8 | uint32(frontNum)<<16 | uint32(frontTeeth)<<24
}

// GearRatio returns front teeth / rear teeth, or 0 for an unusable value.
func GearRatio(v uint32) float64 {
	rear := RearGearTeeth(v)
	if rear == 0 {
		return 0
	}
	return float64(FrontGearTeeth(v)) / float64(rear)
}

func normalizeGear(v uint32) uint32 {
	if RearGearTeeth(v) == 0 {
		return FallbackGearValue
	}
	return v
}

// ReconcileGears clips an ordered gear change list to [start, end]. The last
// change before start is carried forward to start, changes after end are
// dropped, and a closing event at end repeats the last gear so the timeline
// covers the whole tour.
func ReconcileGears(events []GearEvent, start, end time.Time) []GearEvent {
	if len(events) == 0 {
		return nil
	}

	out := make([]GearEvent, 0, len(events)+2)
	var (
		pending    GearEvent
		hasPending bool
	)
	for _, ev := range events {
		ev.Value = normalizeGear(ev.Value)
		if ev.Time.Before(start) {
			pending = ev
			hasPending = true
			continue
		}
		if ev.Time.After(end) {
			continue
		}
		if hasPending {
			out = append(out, GearEvent{Time: start, Value: pending.Value})
			hasPending = false
		}
		out = append(out, ev)
	}

	// Every change happened before the tour started: that gear was used for
	// the whole tour.
	if len(out) == 0 && hasPending {
		out = append(out, GearEvent{Time: start, Value: pending.Value})
	}
	if len(out) == 0 {
		return nil
	}

	if lastEv := out[len(out)-1]; lastEv.Time.Before(end) {
		out = append(out, GearEvent{Time: end, Value: lastEv.Value})
	}
	return out
}
