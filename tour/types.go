package tour

import (
	"errors"
	"time"
)

var (
	// ErrContextFinalized is returned for messages that target a tour
	// context which was already finalized.
	ErrContextFinalized = errors.New("tour context already finalized")

	// ErrProtocol marks a malformed message that was skipped.
	ErrProtocol = errors.New("protocol violation")

	// ErrInvalidState is returned for a lifecycle transition that is not
	// allowed from the context's current state.
	ErrInvalidState = errors.New("invalid tour context state")
)

// LapMarker is a lap boundary positioned on the tour's time-series.
type LapMarker struct {
	Time         time.Time `json:"time"`
	Label        string    `json:"label"`
	SerieIndex   int       `json:"serie_index"`
	RelativeTime float64   `json:"relative_time_s"`
}

// GearEvent is a gear change; Value packs
// rearNum | rearTeeth<<8 | frontNum<<16 | frontTeeth<<24.
type GearEvent struct {
	Time  time.Time `json:"time"`
	Value uint32    `json:"value"`
}

// SwimLength is one pool length of a swim.
type SwimLength struct {
	Start          time.Time `json:"start"`
	RelativeStart  float64   `json:"relative_start_s"`
	ElapsedSeconds float64   `json:"elapsed_s"`
	Strokes        int       `json:"strokes"`
	StrokeStyle    int       `json:"stroke_style"`
	Cadence        float64   `json:"cadence"`
	Active         bool      `json:"active"`
}

// BatterySample is the recording device's battery level at a point in time.
type BatterySample struct {
	Time    time.Time
	Percent float64
}

// TimerEvent is a timer start or stop reported by the device.
type TimerEvent struct {
	Time  time.Time
	Start bool
}

// PauseWindow is a closed interval during which the timer was stopped.
type PauseWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the window length.
func (p PauseWindow) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// HeartRateSample is one beat-aligned value from an hr message.
type HeartRateSample struct {
	Time time.Time
	BPM  float64
}

// SessionInfo holds what the session message reported.
type SessionInfo struct {
	Seen           bool
	StartTime      time.Time
	EndTime        time.Time
	Sport          string
	SubSport       string
	ProfileName    string
	DistanceMeters float64
	ElapsedSeconds float64
	TimerSeconds   float64
}

// SportInfo holds what the sport (activity profile) message reported.
type SportInfo struct {
	Sport       string
	SubSport    string
	ProfileName string
}

// Derived are the values recomputed on every import. On re-import they are
// the only thing merged into the stored tour.
type Derived struct {
	ElevationGainM   float64   `json:"elevation_gain_m"`
	ElevationLossM   float64   `json:"elevation_loss_m"`
	RecordedSeconds  float64   `json:"recorded_s"`
	PausedSeconds    float64   `json:"paused_s"`
	AlignedHeartRate int       `json:"aligned_heart_rate"`
	PulseSerie       []float64 `json:"pulse_serie,omitempty"`
}

// Tour is a finalized tour ready for persistence.
type Tour struct {
	Title          string        `json:"title"`
	FileName       string        `json:"file_name,omitempty"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	Sport          string        `json:"sport"`
	SubSport       string        `json:"sub_sport"`
	ProfileName    string        `json:"profile_name,omitempty"`
	TourType       string        `json:"tour_type,omitempty"`
	DistanceMeters float64       `json:"distance_m"`
	ElapsedSeconds float64       `json:"elapsed_s"`
	Slices         []TimeSlice   `json:"slices"`
	Markers        []LapMarker   `json:"markers,omitempty"`
	Gears          []GearEvent   `json:"gears,omitempty"`
	SwimLengths    []SwimLength  `json:"swim_lengths,omitempty"`
	Sensors        []SensorValue `json:"sensors,omitempty"`
	BatteryTimes   []float64     `json:"battery_times_s,omitempty"`
	BatteryPercent []float64     `json:"battery_percent,omitempty"`
	Pauses         []PauseWindow `json:"pauses,omitempty"`
	Derived        Derived       `json:"derived"`
}

// Result is what finalizing one tour context produces.
type Result struct {
	Token         string
	Key           string
	Reimport      bool
	Tour          *Tour
	Derived       Derived
	SensorUpdates []SensorUpdate
}
