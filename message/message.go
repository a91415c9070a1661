package message

import (
	"fmt"
	"time"
)

// DeviceEpochOffset is the number of seconds between the Unix epoch and the
// FIT device epoch (1989-12-31T00:00:00Z).
const DeviceEpochOffset int64 = 631065600

// Kind identifies which decoded FIT message a Message carries.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSession
	KindLap
	KindRecord
	KindEvent
	KindLength
	KindHeartRate
	KindDeviceInfo
	KindSport
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindSession:    "session",
	KindLap:        "lap",
	KindRecord:     "record",
	KindEvent:      "event",
	KindLength:     "length",
	KindHeartRate:  "hr",
	KindDeviceInfo: "device_info",
	KindSport:      "sport",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KindForGlobal maps a FIT global message number onto a Kind.
func KindForGlobal(global uint16) Kind {
	switch global {
	case 18:
		return KindSession
	case 19:
		return KindLap
	case 20:
		return KindRecord
	case 21:
		return KindEvent
	case 101:
		return KindLength
	case 132:
		return KindHeartRate
	case 23:
		return KindDeviceInfo
	case 12:
		return KindSport
	default:
		return KindUnknown
	}
}

// Message is one decoded FIT data message. Fields only holds values that were
// present and not at their FIT invalid sentinel.
type Message struct {
	Kind      Kind
	Global    uint16
	Timestamp time.Time
	Fields    map[uint8]any

	// Session optionally pins the message to a tour context. Empty means the
	// accumulator routes it to the implicit current session.
	Session string

	// RecordIndex is the position of the record in the source file.
	RecordIndex int
}

// New returns a message of the given kind with an empty field map.
func New(kind Kind, ts time.Time) Message {
	return Message{Kind: kind, Timestamp: ts, Fields: make(map[uint8]any)}
}

// With sets a field and returns the message, for building messages in tests
// and adapters.
func (m Message) With(field uint8, v any) Message {
	if m.Fields == nil {
		m.Fields = make(map[uint8]any)
	}
	m.Fields[field] = v
	return m
}

// DeviceTime converts raw seconds since the device epoch into UTC.
func DeviceTime(raw uint32) time.Time {
	return time.Unix(int64(raw)+DeviceEpochOffset, 0).UTC()
}

// DeviceSeconds is the inverse of DeviceTime.
func DeviceSeconds(t time.Time) uint32 {
	return uint32(t.Unix() - DeviceEpochOffset)
}

// HasTimestamp reports whether the message carries a usable timestamp.
func (m Message) HasTimestamp() bool {
	return !m.Timestamp.IsZero()
}

// Has reports whether a field is present.
func (m Message) Has(field uint8) bool {
	_, ok := m.Fields[field]
	return ok
}

// Float returns a numeric field as float64.
func (m Message) Float(field uint8) (float64, bool) {
	v, ok := m.Fields[field]
	if !ok {
		return 0, false
	}
	return floatAny(v)
}

// Int returns a numeric field as int64.
func (m Message) Int(field uint8) (int64, bool) {
	f, ok := m.Float(field)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Uint returns a numeric field as uint32.
func (m Message) Uint(field uint8) (uint32, bool) {
	v, ok := m.Fields[field]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case uint8:
		return uint32(x), true
	case uint16:
		return uint32(x), true
	case uint32:
		return x, true
	case uint64:
		return uint32(x), true
	}
	f, ok := floatAny(v)
	if !ok || f < 0 {
		return 0, false
	}
	return uint32(f), true
}

// String returns a string field.
func (m Message) String(field uint8) (string, bool) {
	v, ok := m.Fields[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Time returns a device-epoch timestamp field as UTC time.
func (m Message) Time(field uint8) (time.Time, bool) {
	v, ok := m.Fields[field]
	if !ok {
		return time.Time{}, false
	}
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), !x.IsZero()
	case uint32:
		return DeviceTime(x), true
	}
	return time.Time{}, false
}

// Floats returns an array field as float64 values. A scalar is returned as a
// one-element slice.
func (m Message) Floats(field uint8) ([]float64, bool) {
	v, ok := m.Fields[field]
	if !ok {
		return nil, false
	}
	switch x := v.(type) {
	case []any:
		out := make([]float64, 0, len(x))
		for _, e := range x {
			f, ok := floatAny(e)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	case []float64:
		return append([]float64(nil), x...), true
	case []uint32:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, true
	case []uint8:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, true
	}
	f, ok := floatAny(v)
	if !ok {
		return nil, false
	}
	return []float64{f}, true
}

func floatAny(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
