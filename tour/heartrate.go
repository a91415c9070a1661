package tour

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lucasjlepore/fit-tours/message"
)

// DefaultHeartRateTolerance is how far a beat-to-beat heart-rate sample may be
// from a record and still fill that record's pulse.
const DefaultHeartRateTolerance = time.Second

const (
	fractionalTimestampScale = 32768.0
	eventTimestampScale      = 1024.0
	// event_timestamp is a 32-bit counter in 1/1024 s.
	eventTimestampRollover = 4294967296.0 / eventTimestampScale
	// event_timestamp_12 carries the low 12 bits of the counter.
	eventTimestamp12Mask = 0xFFF
)

// heartRateClock converts the event timestamp counters of hr messages into
// absolute time. Every hr message that carries a timestamp re-anchors the
// clock; messages without one are placed relative to the last anchor.
type heartRateClock struct {
	anchored  bool
	base      time.Time
	baseEvent float64

	// lastEvent is the last full event_timestamp, in 1/1024 s. Packed
	// event_timestamp_12 values extend it.
	lastEvent uint32
}

func (h *heartRateClock) samples(m message.Message) ([]HeartRateSample, error) {
	bpm, hasBPM := m.Floats(message.HeartRateFilteredBPM)
	if !hasBPM {
		if m.Has(message.HeartRateEventTimestamp) || m.Has(message.HeartRateEventTimestamp12) {
			return nil, fmt.Errorf("%w: hr message has event timestamps but no filtered_bpm", ErrProtocol)
		}
		return nil, nil
	}
	events, err := h.eventTimes(m, len(bpm))
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	if m.HasTimestamp() {
		base := m.Timestamp
		if frac, ok := m.Float(message.HeartRateFractionalTimestamp); ok {
			base = base.Add(secondsDuration(frac / fractionalTimestampScale))
		}
		h.base = base
		h.baseEvent = events[0]
		h.anchored = true
	}
	if !h.anchored {
		return nil, nil
	}

	out := make([]HeartRateSample, 0, len(events))
	for i, ev := range events {
		if bpm[i] <= 0 || bpm[i] >= math.MaxUint8 {
			continue
		}
		delta := ev - h.baseEvent
		if delta < -eventTimestampRollover/2 {
			delta += eventTimestampRollover
		} else if delta > eventTimestampRollover/2 {
			delta -= eventTimestampRollover
		}
		out = append(out, HeartRateSample{
			Time: h.base.Add(secondsDuration(delta)),
			BPM:  bpm[i],
		})
	}
	return out, nil
}

// eventTimes returns n event times in seconds, read from event_timestamp or,
// when that is absent, expanded from the packed event_timestamp_12 values.
func (h *heartRateClock) eventTimes(m message.Message, n int) ([]float64, error) {
	if raw, ok := m.Floats(message.HeartRateEventTimestamp); ok {
		if len(raw) != n {
			return nil, fmt.Errorf("%w: hr message has %d filtered_bpm values and %d event timestamps",
				ErrProtocol, n, len(raw))
		}
		events := make([]float64, n)
		for i, v := range raw {
			if v < math.MaxUint32 {
				h.lastEvent = uint32(v)
			}
			events[i] = v / eventTimestampScale
		}
		return events, nil
	}

	packed, ok := packedBytes(m, message.HeartRateEventTimestamp12)
	if !ok || len(packed)*8 < n*12 {
		return nil, fmt.Errorf("%w: hr message has %d filtered_bpm values and %d event timestamps",
			ErrProtocol, n, len(packed)*8/12)
	}
	events := make([]float64, n)
	for i := range events {
		v := unpack12(packed, i)
		h.lastEvent += (v - h.lastEvent) & eventTimestamp12Mask
		events[i] = float64(h.lastEvent) / eventTimestampScale
	}
	return events, nil
}

// packedBytes returns a byte array field, whether it was decoded as bytes or
// as an array of uint8 values.
func packedBytes(m message.Message, field uint8) ([]byte, bool) {
	if b, ok := m.Fields[field].([]byte); ok {
		return b, true
	}
	vals, ok := m.Floats(field)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = byte(v)
	}
	return out, true
}

// unpack12 returns the i-th little-endian 12-bit value of b.
func unpack12(b []byte, i int) uint32 {
	bit := i * 12
	j := bit / 8
	if bit%8 == 0 {
		return uint32(b[j]) | uint32(b[j+1]&0x0F)<<8
	}
	return uint32(b[j]>>4) | uint32(b[j+1])<<4
}

// AlignHeartRate writes each sample into the pulse of the nearest slice
// within tolerance, unless that slice already has a pulse from its record.
// It returns the number of slices filled.
func AlignHeartRate(slices []TimeSlice, samples []HeartRateSample, tolerance time.Duration) int {
	if len(slices) == 0 || len(samples) == 0 {
		return 0
	}
	if tolerance <= 0 {
		tolerance = DefaultHeartRateTolerance
	}

	filled := 0
	for _, s := range samples {
		idx := nearestSlice(slices, s.Time)
		if absDuration(slices[idx].Time.Sub(s.Time)) > tolerance {
			continue
		}
		if IsSet(slices[idx].Pulse) {
			continue
		}
		slices[idx].Pulse = s.BPM
		filled++
	}
	return filled
}

func nearestSlice(slices []TimeSlice, t time.Time) int {
	idx := sort.Search(len(slices), func(i int) bool {
		return !slices[i].Time.Before(t)
	})
	if idx == len(slices) {
		return len(slices) - 1
	}
	if idx > 0 && t.Sub(slices[idx-1].Time) < slices[idx].Time.Sub(t) {
		return idx - 1
	}
	return idx
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
