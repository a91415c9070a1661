package tour

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lucasjlepore/fit-tours/message"
)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func record(sec int) message.Message {
	return message.New(message.KindRecord, at(sec))
}

func handleAll(t *testing.T, acc *Accumulator, msgs ...message.Message) {
	t.Helper()
	for i, m := range msgs {
		if err := acc.Handle(m); err != nil {
			t.Fatalf("Handle(#%d %s): %v", i, m.Kind, err)
		}
	}
}

func endOne(t *testing.T, acc *Accumulator) Result {
	t.Helper()
	results, err := acc.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 tour, got %d", len(results))
	}
	return results[0]
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestAccumulatorDuplicateRecordsMerge(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc,
		record(0).With(message.RecordDistance, uint32(0)),
		record(1).With(message.RecordHeartRate, uint8(101)),
		record(1).With(message.RecordAltitude, uint16(3250)).With(message.RecordHeartRate, uint8(99)),
		record(2).With(message.RecordDistance, uint32(1000)),
	)
	res := endOne(t, acc)

	slices := res.Tour.Slices
	if len(slices) != 3 {
		t.Fatalf("expected 3 slices, got %d", len(slices))
	}
	if slices[1].Pulse != 101 {
		t.Fatalf("first duplicate value must win: pulse %v", slices[1].Pulse)
	}
	if slices[1].Altitude != 150 {
		t.Fatalf("altitude = %v, want 150", slices[1].Altitude)
	}
	for i := 1; i < len(slices); i++ {
		if !slices[i-1].Time.Before(slices[i].Time) {
			t.Fatalf("slices not strictly increasing at %d", i)
		}
	}
}

func TestAccumulatorFirstSpeedUnset(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc,
		record(0).With(message.RecordSpeed, uint16(9000)),
		record(1).With(message.RecordSpeed, uint16(5000)),
	)
	res := endOne(t, acc)
	if IsSet(res.Tour.Slices[0].Speed) {
		t.Fatalf("first slice speed = %v, want unset", res.Tour.Slices[0].Speed)
	}
	if res.Tour.Slices[1].Speed != 5 {
		t.Fatalf("second slice speed = %v, want 5", res.Tour.Slices[1].Speed)
	}
}

func TestAccumulatorRejectsBackwardRecord(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc, record(0), record(5))
	if err := acc.Handle(record(3)); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for backward record, got %v", err)
	}
	if err := acc.Handle(message.Message{Kind: message.KindRecord}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for record without timestamp, got %v", err)
	}
	handleAll(t, acc, record(6))

	res := endOne(t, acc)
	if len(res.Tour.Slices) != 3 {
		t.Fatalf("expected skipped record to be dropped, got %d slices", len(res.Tour.Slices))
	}
}

func TestAccumulatorSessionStartFallback(t *testing.T) {
	logger, logs := bufferLogger()
	acc := New(Options{Logger: logger})
	start := at(-3600)
	handleAll(t, acc, message.New(message.KindSession, at(0)).
		With(message.SessionStartTime, message.DeviceSeconds(start)))

	res := endOne(t, acc)
	if !res.Tour.Start.Equal(start) {
		t.Fatalf("start = %s, want session start %s", res.Tour.Start, start)
	}
	if !strings.Contains(logs.String(), "using session start time") || !strings.Contains(logs.String(), "level=INFO") {
		t.Fatalf("expected informational fallback log, got:\n%s", logs.String())
	}
}

func TestAccumulatorWallClockFallback(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	acc := New(Options{Now: func() time.Time { return now }})
	handleAll(t, acc, message.New(message.KindSession, time.Time{}).
		With(message.SessionSport, uint8(1)))

	res := endOne(t, acc)
	if !res.Tour.Start.Equal(now) {
		t.Fatalf("start = %s, want %s", res.Tour.Start, now)
	}
}

func TestAccumulatorDiscardsEmptyContext(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc, message.New(message.KindDeviceInfo, at(0)).
		With(message.DeviceInfoSerialNumber, uint32(42)))
	results, err := acc.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no tours, got %d", len(results))
	}
}

func summarySession(start, end int) message.Message {
	return message.New(message.KindSession, at(end)).
		With(message.SessionStartTime, message.DeviceSeconds(at(start))).
		With(message.SessionTotalElapsedTime, uint32((end-start)*1000)).
		With(message.SessionSport, uint8(2))
}

func TestAccumulatorSummaryFirstSingleTour(t *testing.T) {
	acc := New(Options{})
	msgs := []message.Message{
		message.New(message.KindDeviceInfo, at(0)).
			With(message.DeviceInfoDeviceIndex, uint8(message.DeviceIndexCreator)).
			With(message.DeviceInfoSerialNumber, uint32(42)),
		summarySession(0, 5),
		message.New(message.KindLap, at(5)).With(message.LapStartTime, message.DeviceSeconds(at(0))),
	}
	for i := 0; i <= 5; i++ {
		msgs = append(msgs, record(i))
	}
	handleAll(t, acc, msgs...)

	res := endOne(t, acc)
	if len(res.Tour.Slices) != 6 {
		t.Fatalf("slices = %d, want 6", len(res.Tour.Slices))
	}
	if res.Tour.Sport != SportName(2) {
		t.Fatalf("sport = %q", res.Tour.Sport)
	}
	if want := DuplicateKey(at(0), 0, 42); res.Key != want {
		t.Fatalf("key = %q, want %q", res.Key, want)
	}
}

func TestAccumulatorSummaryFirstTwoTours(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc,
		summarySession(0, 5),
		record(0), record(1), record(2), record(3), record(4), record(5),
		summarySession(100, 102),
		record(100), record(101), record(102),
	)
	results, err := acc.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 tours, got %d", len(results))
	}
	if len(results[0].Tour.Slices) != 6 || len(results[1].Tour.Slices) != 3 {
		t.Fatalf("slices split %d/%d, want 6/3", len(results[0].Tour.Slices), len(results[1].Tour.Slices))
	}
	if !results[1].Tour.Start.Equal(at(100)) {
		t.Fatalf("second start = %s", results[1].Tour.Start)
	}
}

func TestAccumulatorTrailingLapStaysWithTour(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc,
		record(0), record(1), record(2),
		message.New(message.KindSession, at(2)).With(message.SessionSport, uint8(1)),
		message.New(message.KindLap, at(2)).With(message.LapStartTime, message.DeviceSeconds(at(0))),
	)
	results, err := acc.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 tour, got %d", len(results))
	}
}

func TestAccumulatorImplicitMultiSession(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc,
		record(0), record(1), record(2),
		message.New(message.KindSession, at(2)).With(message.SessionSport, uint8(1)),
		message.New(message.KindDeviceInfo, at(2)).With(message.DeviceInfoBatteryLevel, uint8(70)),
		record(100), record(101),
		message.New(message.KindSession, at(101)).With(message.SessionSport, uint8(2)),
	)
	results, err := acc.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 tours, got %d", len(results))
	}
	if results[0].Token == results[1].Token {
		t.Fatalf("tours share token %q", results[0].Token)
	}
	if len(results[0].Tour.Slices) != 3 || len(results[1].Tour.Slices) != 2 {
		t.Fatalf("slices split %d/%d, want 3/2", len(results[0].Tour.Slices), len(results[1].Tour.Slices))
	}
	if results[0].Tour.Sport != SportName(1) || results[1].Tour.Sport != SportName(2) {
		t.Fatalf("sports = %q/%q", results[0].Tour.Sport, results[1].Tour.Sport)
	}
	if len(results[0].Tour.BatteryTimes) != 1 {
		t.Fatalf("trailing device_info must stay with its tour")
	}
}

func TestAccumulatorExplicitSessions(t *testing.T) {
	acc := New(Options{})
	a := func(m message.Message) message.Message { m.Session = "a"; return m }
	b := func(m message.Message) message.Message { m.Session = "b"; return m }
	handleAll(t, acc, a(record(0)), b(record(0)), a(record(1)), b(record(1)),
		b(record(2).With(message.RecordDistance, uint32(500))))

	cur, ok := acc.Current()
	if !ok || cur.Token != "b" {
		t.Fatalf("current context = %v, want b", cur)
	}

	res, err := acc.FinalizeSession("a")
	if err != nil {
		t.Fatalf("FinalizeSession(a): %v", err)
	}
	if len(res.Tour.Slices) != 2 {
		t.Fatalf("session a slices = %d, want 2", len(res.Tour.Slices))
	}
	if err := acc.Handle(a(record(5))); !errors.Is(err, ErrContextFinalized) {
		t.Fatalf("expected ErrContextFinalized, got %v", err)
	}
	if _, err := acc.FinalizeSession("a"); !errors.Is(err, ErrContextFinalized) {
		t.Fatalf("expected ErrContextFinalized on second finalize, got %v", err)
	}

	results, err := acc.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if len(results) != 2 || len(results[1].Tour.Slices) != 3 {
		t.Fatalf("unexpected results after End: %d", len(results))
	}
	if err := acc.Handle(record(10)); !errors.Is(err, ErrContextFinalized) {
		t.Fatalf("expected ErrContextFinalized after End, got %v", err)
	}
}

func TestContextStateMachine(t *testing.T) {
	c := newTourContext("x")
	if err := c.beginRecord(t0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("beginRecord from empty: %v", err)
	}
	if err := c.initializeIfNeeded(); err != nil || c.State() != StateInitialized {
		t.Fatalf("initialize: %v state %s", err, c.State())
	}
	if err := c.initializeIfNeeded(); err != nil || c.State() != StateInitialized {
		t.Fatalf("initialize must be idempotent: %v state %s", err, c.State())
	}
	if err := c.finalizeRecord(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("finalizeRecord without open record: %v", err)
	}
	if err := c.beginRecord(t0); err != nil || c.State() != StateRecordOpen {
		t.Fatalf("beginRecord: %v state %s", err, c.State())
	}
	if err := c.beginRecord(t0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("nested beginRecord: %v", err)
	}
	if err := c.close(); err != nil || c.State() != StateFinalized {
		t.Fatalf("close with open record: %v state %s", err, c.State())
	}
	if len(c.slices) != 1 {
		t.Fatalf("open record must be committed on close")
	}
	if err := c.initializeIfNeeded(); !errors.Is(err, ErrContextFinalized) {
		t.Fatalf("initialize after finalize: %v", err)
	}
}

func TestAccumulatorReimport(t *testing.T) {
	msgs := []message.Message{
		message.New(message.KindDeviceInfo, at(0)).With(message.DeviceInfoSerialNumber, uint32(3991234)),
		record(0).With(message.RecordDistance, uint32(0)),
		record(1).With(message.RecordDistance, uint32(450)),
	}

	first := New(Options{})
	handleAll(t, first, msgs...)
	res := endOne(t, first)
	if res.Reimport || res.Tour == nil {
		t.Fatalf("first import must create a tour")
	}
	if want := DuplicateKey(t0, 4.5, 3991234); res.Key != want {
		t.Fatalf("key = %q, want %q", res.Key, want)
	}

	second := New(Options{Existing: NewKeySet(res.Key)})
	handleAll(t, second, msgs...)
	again := endOne(t, second)
	if !again.Reimport || again.Tour != nil {
		t.Fatalf("second import must be a re-import without a new tour")
	}
	if again.Key != res.Key {
		t.Fatalf("re-import key %q differs from %q", again.Key, res.Key)
	}
}

func TestAccumulatorMarkersGearsAndPauses(t *testing.T) {
	acc := New(Options{})
	g := PackGear(2, 50, 4, 17)
	msgs := []message.Message{
		message.New(message.KindEvent, at(-5)).
			With(message.EventEvent, uint8(message.EventRearGearChange)).
			With(message.EventData, g),
		message.New(message.KindEvent, at(0)).
			With(message.EventEvent, uint8(message.EventTimer)).
			With(message.EventEventType, uint8(message.EventTypeStart)),
	}
	for i := 0; i <= 60; i++ {
		msgs = append(msgs, record(i))
	}
	msgs = append(msgs,
		message.New(message.KindEvent, at(20)).
			With(message.EventEvent, uint8(message.EventTimer)).
			With(message.EventEventType, uint8(message.EventTypeStop)),
		message.New(message.KindEvent, at(30)).
			With(message.EventEvent, uint8(message.EventTimer)).
			With(message.EventEventType, uint8(message.EventTypeStart)),
		message.New(message.KindLap, at(30)),
		message.New(message.KindLap, at(65)),
	)
	handleAll(t, acc, msgs...)
	res := endOne(t, acc)
	tour := res.Tour

	if len(tour.Gears) != 2 || !tour.Gears[0].Time.Equal(t0) || !tour.Gears[1].Time.Equal(at(60)) {
		t.Fatalf("gears = %+v", tour.Gears)
	}
	if len(tour.Markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(tour.Markers))
	}
	if tour.Markers[0].SerieIndex != 30 || tour.Markers[1].SerieIndex != 60 {
		t.Fatalf("marker indices = %d, %d", tour.Markers[0].SerieIndex, tour.Markers[1].SerieIndex)
	}
	if tour.Markers[1].Time.After(tour.End) {
		t.Fatalf("marker time %s outside tour", tour.Markers[1].Time)
	}
	if res.Derived.PausedSeconds != 10 || res.Derived.RecordedSeconds != 50 {
		t.Fatalf("paused/recorded = %v/%v, want 10/50", res.Derived.PausedSeconds, res.Derived.RecordedSeconds)
	}
}

func TestAccumulatorSensorsAndBattery(t *testing.T) {
	acc := New(Options{LogSensors: true})
	handleAll(t, acc,
		message.New(message.KindDeviceInfo, at(0)).
			With(message.DeviceInfoDeviceIndex, uint8(0)).
			With(message.DeviceInfoManufacturer, uint16(1)).
			With(message.DeviceInfoProduct, uint16(3843)).
			With(message.DeviceInfoSerialNumber, uint32(1234)).
			With(message.DeviceInfoProductName, "Edge 540").
			With(message.DeviceInfoBatteryLevel, uint8(90)),
		message.New(message.KindDeviceInfo, at(0)).
			With(message.DeviceInfoDeviceIndex, uint8(1)).
			With(message.DeviceInfoDeviceType, uint8(120)).
			With(message.DeviceInfoBatteryStatus, uint8(2)),
		record(0), record(1), record(2),
		message.New(message.KindDeviceInfo, at(2)).
			With(message.DeviceInfoBatteryLevel, uint8(80)),
		message.New(message.KindDeviceInfo, at(2)).
			With(message.DeviceInfoDeviceIndex, uint8(1)).
			With(message.DeviceInfoBatteryStatus, uint8(4)),
		message.New(message.KindDeviceInfo, at(500)).
			With(message.DeviceInfoBatteryLevel, uint8(10)),
	)
	res := endOne(t, acc)
	sensors := res.Tour.Sensors
	if len(sensors) != 2 || sensors[0].DeviceIndex != 0 || sensors[1].DeviceIndex != 1 {
		t.Fatalf("sensors = %+v", sensors)
	}
	creator := sensors[0]
	if creator.BatteryLevelStart != 90 || creator.BatteryLevelEnd != 10 {
		t.Fatalf("creator battery = %v..%v", creator.BatteryLevelStart, creator.BatteryLevelEnd)
	}
	if creator.DeviceName != "Edge 540" || creator.SensorKey != "1:3843:1234" {
		t.Fatalf("creator = %+v", creator)
	}
	if sensors[1].BatteryStatusStart != 2 || sensors[1].BatteryStatusEnd != 4 {
		t.Fatalf("status = %d..%d", sensors[1].BatteryStatusStart, sensors[1].BatteryStatusEnd)
	}
	if IsSet(sensors[1].BatteryLevelStart) {
		t.Fatalf("missing battery level must stay unset")
	}

	// the sample at 500s lies outside the tour
	if len(res.Tour.BatteryTimes) != 2 || res.Tour.BatteryTimes[1] != 2 || res.Tour.BatteryPercent[1] != 80 {
		t.Fatalf("battery series = %v / %v", res.Tour.BatteryTimes, res.Tour.BatteryPercent)
	}
	if len(res.SensorUpdates) != 1 || res.SensorUpdates[0].SensorKey != "1:3843:1234" {
		t.Fatalf("sensor updates = %+v", res.SensorUpdates)
	}
}

func TestAccumulatorHeartRateAlignment(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc,
		record(0), record(1), record(2).With(message.RecordHeartRate, uint8(140)),
		message.New(message.KindHeartRate, at(0)).
			With(message.HeartRateFilteredBPM, []uint8{120, 121, 122}).
			With(message.HeartRateEventTimestamp, []uint32{1024 * 100, 1024 * 101, 1024 * 102}),
	)
	res := endOne(t, acc)
	got := []float64{res.Tour.Slices[0].Pulse, res.Tour.Slices[1].Pulse, res.Tour.Slices[2].Pulse}
	want := []float64{120, 121, 140}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pulse = %v, want %v", got, want)
		}
	}
	if res.Derived.AlignedHeartRate != 2 {
		t.Fatalf("aligned = %d, want 2", res.Derived.AlignedHeartRate)
	}
}

func TestAccumulatorHeartRatePackedFollowUp(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc,
		record(0), record(1), record(2),
		message.New(message.KindHeartRate, at(0)).
			With(message.HeartRateFilteredBPM, []uint8{120}).
			With(message.HeartRateEventTimestamp, []uint32{1024}),
		message.New(message.KindHeartRate, time.Time{}).
			With(message.HeartRateFilteredBPM, []uint8{121, 122}).
			With(message.HeartRateEventTimestamp12, []byte{0x00, 0x08, 0xC0}),
	)
	res := endOne(t, acc)
	for i, want := range []float64{120, 121, 122} {
		if got := res.Tour.Slices[i].Pulse; got != want {
			t.Fatalf("slice %d pulse = %v, want %v", i, got, want)
		}
	}
	if res.Derived.AlignedHeartRate != 3 {
		t.Fatalf("aligned = %d, want 3", res.Derived.AlignedHeartRate)
	}
}

func TestAccumulatorHeartRateMismatch(t *testing.T) {
	acc := New(Options{})
	handleAll(t, acc, record(0))
	err := acc.Handle(message.New(message.KindHeartRate, at(0)).
		With(message.HeartRateFilteredBPM, []uint8{120, 121}).
		With(message.HeartRateEventTimestamp, []uint32{1024}))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	handleAll(t, acc, record(1))
	if res := endOne(t, acc); len(res.Tour.Slices) != 2 {
		t.Fatalf("stream must continue after a protocol violation")
	}
}

func TestAccumulatorTitleAndTourType(t *testing.T) {
	acc := New(Options{
		TitleFromFileName: true,
		FileName:          "/data/Morning_Ride.fit",
		TourTypeMode:      BySportAndProfile,
	})
	handleAll(t, acc,
		message.New(message.KindSport, time.Time{}).
			With(message.SportSport, uint8(2)).
			With(message.SportName, "Road"),
		record(0), record(1),
		message.New(message.KindSession, at(1)).With(message.SessionSport, uint8(2)),
	)
	res := endOne(t, acc)
	if res.Tour.Title != "Morning_Ride" {
		t.Fatalf("title = %q", res.Tour.Title)
	}
	if want := SportName(2) + " / Road"; res.Tour.TourType != want {
		t.Fatalf("tour type = %q, want %q", res.Tour.TourType, want)
	}
}
