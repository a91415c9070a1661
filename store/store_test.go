package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasjlepore/fit-tours/tour"
)

var t0 = time.Date(2024, 5, 4, 8, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "data", "tours.db"),
	}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testResult(pulse bool) *tour.Result {
	slices := make([]tour.TimeSlice, 3)
	for i := range slices {
		sl := tour.NewTimeSlice(t0.Add(time.Duration(i) * time.Second))
		sl.Distance = float64(i * 5)
		sl.Power = 200
		if pulse {
			sl.Pulse = float64(120 + i)
		}
		slices[i] = *sl
	}
	derived := tour.Derived{RecordedSeconds: 2, AlignedHeartRate: 0}
	if pulse {
		derived.PulseSerie = []float64{120, 121, 122}
		derived.AlignedHeartRate = 3
	}
	return &tour.Result{
		Token:   "session-1",
		Key:     tour.DuplicateKey(t0, 10, 3991234),
		Derived: derived,
		Tour: &tour.Tour{
			Title:          "Morning Ride",
			Start:          t0,
			End:            t0.Add(2 * time.Second),
			Sport:          "cycling",
			TourType:       "cycling",
			DistanceMeters: 10,
			ElapsedSeconds: 2,
			Slices:         slices,
			Markers: []tour.LapMarker{
				{Time: t0.Add(2 * time.Second), Label: "1", SerieIndex: 2, RelativeTime: 2},
			},
			Gears: []tour.GearEvent{{Time: t0, Value: tour.FallbackGearValue}},
			Sensors: []tour.SensorValue{{
				SensorKey:           "1:2:3",
				DeviceIndex:         1,
				DeviceType:          "heart_rate",
				BatteryLevelStart:   tour.Unset,
				BatteryLevelEnd:     tour.Unset,
				BatteryVoltageStart: 2.9,
				BatteryVoltageEnd:   2.8,
			}},
			Derived: derived,
		},
		SensorUpdates: []tour.SensorUpdate{{SensorKey: "1:2:3", DeviceType: "heart_rate"}},
	}
}

// TestPersistCreatesTour verifies that a new result is stored with its parts.
func TestPersistCreatesTour(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	res := testResult(true)

	out, err := s.Persist(ctx, res)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if !out.Created || out.Merged || out.SamplesStored != 3 {
		t.Fatalf("outcome = %+v", out)
	}

	stored, err := s.Tour(ctx, res.Key)
	if err != nil {
		t.Fatalf("tour: %v", err)
	}
	if stored.ID != out.TourID || stored.Title != "Morning Ride" || stored.TourType != "cycling" {
		t.Fatalf("stored = %+v", stored)
	}
	if !stored.Start.Equal(t0) || stored.Samples != 3 || stored.AlignedHeartRate != 3 {
		t.Fatalf("stored = %+v", stored)
	}

	samples, err := s.Samples(ctx, out.TourID)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 3 || samples[2].Distance != 10 || samples[1].Pulse != 121 {
		t.Fatalf("samples = %+v", samples)
	}
	if tour.IsSet(samples[0].Altitude) {
		t.Fatalf("altitude should come back unset, got %v", samples[0].Altitude)
	}

	typ, name, err := s.Sensor(ctx, "1:2:3")
	if err != nil || typ != "heart_rate" || name != "" {
		t.Fatalf("sensor = %q %q %v", typ, name, err)
	}

	exists, err := s.TourExists(ctx, res.Key)
	if err != nil || !exists {
		t.Fatalf("TourExists = %v, %v", exists, err)
	}
	keys, err := s.TourKeys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != res.Key {
		t.Fatalf("TourKeys = %v, %v", keys, err)
	}
}

// TestPersistReimportMergesDerived verifies that importing the same tour twice
// keeps one stored tour and fills only missing pulse values.
func TestPersistReimportMergesDerived(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	first, err := s.Persist(ctx, testResult(false))
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	again := testResult(true)
	again.Reimport = true
	again.Tour = nil
	out, err := s.Persist(ctx, again)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if out.Created || !out.Merged || out.TourID != first.TourID || out.PulseMerged != 3 {
		t.Fatalf("outcome = %+v", out)
	}

	keys, _ := s.TourKeys(ctx)
	if len(keys) != 1 {
		t.Fatalf("expected one stored tour, got %d", len(keys))
	}
	stored, _ := s.Tour(ctx, again.Key)
	if stored.AlignedHeartRate != 3 {
		t.Fatalf("aligned hr = %d, want 3", stored.AlignedHeartRate)
	}
	samples, _ := s.Samples(ctx, first.TourID)
	if samples[0].Pulse != 120 {
		t.Fatalf("pulse not merged: %+v", samples[0])
	}

	// a second merge finds nothing left to fill
	out, err = s.Persist(ctx, again)
	if err != nil || out.PulseMerged != 0 {
		t.Fatalf("second merge = %+v, %v", out, err)
	}
}

// TestPersistReimportCountMismatch verifies that the pulse serie is not merged
// when the stored sample count differs.
func TestPersistReimportCountMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	if _, err := s.Persist(ctx, testResult(false)); err != nil {
		t.Fatalf("persist: %v", err)
	}

	again := testResult(true)
	again.Tour = nil
	again.Derived.PulseSerie = []float64{120, 121}
	out, err := s.Persist(ctx, again)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if !out.Merged || out.PulseMerged != 0 {
		t.Fatalf("outcome = %+v", out)
	}
}

// TestPersistReimportUnknown verifies that a re-import result without a tour
// fails when nothing is stored under its key.
func TestPersistReimportUnknown(t *testing.T) {
	s := openTest(t)
	res := testResult(false)
	res.Tour = nil
	if _, err := s.Persist(context.Background(), res); err == nil {
		t.Fatal("expected error")
	}
}

// TestApplySensorUpdatesBackfillsOnly verifies that stored type and name are
// filled once and never replaced.
func TestApplySensorUpdatesBackfillsOnly(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if err := s.ApplySensorUpdates(ctx, []tour.SensorUpdate{
		{SensorKey: "9:9:9", DeviceType: "bike_power"},
		{SensorKey: ""},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.ApplySensorUpdates(ctx, []tour.SensorUpdate{
		{SensorKey: "9:9:9", DeviceType: "heart_rate", DeviceName: "Vector 3"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	typ, name, err := s.Sensor(ctx, "9:9:9")
	if err != nil {
		t.Fatalf("sensor: %v", err)
	}
	if typ != "bike_power" || name != "Vector 3" {
		t.Fatalf("sensor = %q %q", typ, name)
	}
}

// TestResolveTourType verifies that tour types are created once.
func TestResolveTourType(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	a, err := s.ResolveTourType(ctx, "cycling / road")
	if err != nil || a == "" {
		t.Fatalf("resolve = %q, %v", a, err)
	}
	b, err := s.ResolveTourType(ctx, "cycling / road")
	if err != nil || a != b {
		t.Fatalf("second resolve = %q, %v; want %q", b, err, a)
	}
	if id, err := s.ResolveTourType(ctx, ""); err != nil || id != "" {
		t.Fatalf("empty name = %q, %v", id, err)
	}
}

func TestRebind(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	if got := s.rebind(`SELECT a FROM t WHERE b = ? AND c = ?`); got != `SELECT a FROM t WHERE b = $1 AND c = $2` {
		t.Fatalf("rebind = %q", got)
	}
	s.driver = DriverSQLite
	if got := s.rebind(`WHERE b = ?`); got != `WHERE b = ?` {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"}, nil); err == nil {
		t.Fatal("expected error")
	}
}
