package tour

import (
	"math"
	"time"
)

// Unset marks a TimeSlice scalar the device never supplied. It is distinct
// from zero so the duplicate merge can tell "missing" from "reported as 0".
const Unset = -math.MaxFloat64

// IsSet reports whether v holds a supplied value.
func IsSet(v float64) bool {
	return v != Unset
}

// TimeSlice is one reconstructed sample of a tour.
type TimeSlice struct {
	Time        time.Time `json:"time"`
	Altitude    float64   `json:"altitude_m"`
	Distance    float64   `json:"distance_m"`
	Cadence     float64   `json:"cadence_rpm"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Power       float64   `json:"power_w"`
	Pulse       float64   `json:"pulse_bpm"`
	Speed       float64   `json:"speed_mps"`
	Temperature float64   `json:"temperature_c"`
}

// NewTimeSlice returns a slice at t with every scalar unset.
func NewTimeSlice(t time.Time) *TimeSlice {
	return &TimeSlice{
		Time:        t,
		Altitude:    Unset,
		Distance:    Unset,
		Cadence:     Unset,
		Latitude:    Unset,
		Longitude:   Unset,
		Power:       Unset,
		Pulse:       Unset,
		Speed:       Unset,
		Temperature: Unset,
	}
}

func (s *TimeSlice) scalars() []*float64 {
	return []*float64{
		&s.Altitude,
		&s.Distance,
		&s.Cadence,
		&s.Latitude,
		&s.Longitude,
		&s.Power,
		&s.Pulse,
		&s.Speed,
		&s.Temperature,
	}
}

// FillUnset copies every scalar of other into s where s is still unset.
// Values already set on s win.
func (s *TimeSlice) FillUnset(other *TimeSlice) {
	dst := s.scalars()
	src := other.scalars()
	for i := range dst {
		if !IsSet(*dst[i]) && IsSet(*src[i]) {
			*dst[i] = *src[i]
		}
	}
}

// HasPosition reports whether both coordinates are set.
func (s TimeSlice) HasPosition() bool {
	return IsSet(s.Latitude) && IsSet(s.Longitude)
}

func relativeSeconds(t, start time.Time) float64 {
	return t.Sub(start).Seconds()
}
