package message

import (
	"testing"
	"time"
)

func TestDeviceTimeUsesFITEpoch(t *testing.T) {
	got := DeviceTime(0)
	want := time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DeviceTime(0) = %v, want %v", got, want)
	}
	ts := time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)
	if back := DeviceTime(DeviceSeconds(ts)); !back.Equal(ts) {
		t.Fatalf("round trip mismatch: %v != %v", back, ts)
	}
}

func TestAccessorsConvertDecodedTypes(t *testing.T) {
	m := New(KindRecord, time.Unix(0, 0)).
		With(RecordPower, uint16(245)).
		With(RecordAltitude, uint16(3000)).
		With(RecordTemperature, int8(-4)).
		With(DeviceInfoProductName, "HRM-Pro").
		With(HeartRateFilteredBPM, []any{uint8(120), uint8(121)})

	if v, ok := m.Float(RecordPower); !ok || v != 245 {
		t.Fatalf("power = %v/%v", v, ok)
	}
	if v, ok := m.Scaled(RecordAltitude, 5, 500); !ok || v != 100 {
		t.Fatalf("altitude = %v/%v, want 100", v, ok)
	}
	if v, ok := m.Int(RecordTemperature); !ok || v != -4 {
		t.Fatalf("temperature = %v/%v", v, ok)
	}
	if s, ok := m.String(DeviceInfoProductName); !ok || s != "HRM-Pro" {
		t.Fatalf("product name = %q/%v", s, ok)
	}
	vals, ok := m.Floats(HeartRateFilteredBPM)
	if !ok || len(vals) != 2 || vals[1] != 121 {
		t.Fatalf("filtered bpm = %v/%v", vals, ok)
	}
	if _, ok := m.Float(RecordCadence); ok {
		t.Fatal("absent field reported present")
	}
}

func TestKindForGlobal(t *testing.T) {
	cases := map[uint16]Kind{18: KindSession, 19: KindLap, 20: KindRecord, 21: KindEvent, 101: KindLength, 132: KindHeartRate, 23: KindDeviceInfo, 12: KindSport, 0: KindUnknown}
	for global, want := range cases {
		if got := KindForGlobal(global); got != want {
			t.Errorf("KindForGlobal(%d) = %s, want %s", global, got, want)
		}
	}
}
