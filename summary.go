package fittours

import (
	"math"
	"time"

	"github.com/lucasjlepore/fit-tours/tour"
)

// TourSummary is the compact description of an imported tour printed after
// an import.
type TourSummary struct {
	Title            string    `json:"title"`
	TourType         string    `json:"tour_type"`
	StartTime        time.Time `json:"start_time"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
	RecordedSeconds  float64   `json:"recorded_seconds"`
	PausedSeconds    float64   `json:"paused_seconds"`
	DistanceMeters   float64   `json:"distance_meters"`
	ElevationGainM   float64   `json:"elevation_gain_m"`
	ElevationLossM   float64   `json:"elevation_loss_m"`
	Samples          int       `json:"samples"`
	Laps             int       `json:"laps"`
	GearChanges      int       `json:"gear_changes"`
	SwimLengths      int       `json:"swim_lengths"`
	Sensors          int       `json:"sensors"`
	AlignedHeartRate int       `json:"aligned_heart_rate"`
	AvgPowerWatts    float64   `json:"avg_power_watts"`
	MaxPowerWatts    float64   `json:"max_power_watts"`
	AvgHeartRate     float64   `json:"avg_heart_rate_bpm"`
	MaxHeartRate     float64   `json:"max_heart_rate_bpm"`
	AvgSpeedMps      float64   `json:"avg_speed_mps"`
	MaxSpeedMps      float64   `json:"max_speed_mps"`
	BatteryStart     float64   `json:"battery_start_pct,omitempty"`
	BatteryEnd       float64   `json:"battery_end_pct,omitempty"`
}

// Summarize describes t.
func Summarize(t *tour.Tour) TourSummary {
	if t == nil {
		return TourSummary{}
	}
	s := TourSummary{
		Title:            t.Title,
		TourType:         t.TourType,
		StartTime:        t.Start,
		ElapsedSeconds:   safePositive(t.ElapsedSeconds),
		RecordedSeconds:  safePositive(t.Derived.RecordedSeconds),
		PausedSeconds:    safePositive(t.Derived.PausedSeconds),
		DistanceMeters:   safePositive(t.DistanceMeters),
		ElevationGainM:   t.Derived.ElevationGainM,
		ElevationLossM:   t.Derived.ElevationLossM,
		Samples:          len(t.Slices),
		Laps:             len(t.Markers),
		GearChanges:      len(t.Gears),
		SwimLengths:      len(t.SwimLengths),
		Sensors:          len(t.Sensors),
		AlignedHeartRate: t.Derived.AlignedHeartRate,
	}

	var power, hr, speed []float64
	for _, sl := range t.Slices {
		if tour.IsSet(sl.Power) {
			power = append(power, sl.Power)
		}
		if tour.IsSet(sl.Pulse) {
			hr = append(hr, sl.Pulse)
		}
		if tour.IsSet(sl.Speed) {
			speed = append(speed, sl.Speed)
		}
	}
	s.AvgPowerWatts, s.MaxPowerWatts = average(power), maxValue(power)
	s.AvgHeartRate, s.MaxHeartRate = average(hr), maxValue(hr)
	s.MaxSpeedMps = maxValue(speed)
	if s.RecordedSeconds > 0 && s.DistanceMeters > 0 {
		s.AvgSpeedMps = s.DistanceMeters / s.RecordedSeconds
	} else {
		s.AvgSpeedMps = average(speed)
	}

	if n := len(t.BatteryPercent); n > 0 {
		s.BatteryStart, s.BatteryEnd = t.BatteryPercent[0], t.BatteryPercent[n-1]
	}
	return s
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func maxValue(values []float64) float64 {
	max := 0.0
	found := false
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}
