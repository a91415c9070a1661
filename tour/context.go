package tour

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lucasjlepore/fit-tours/message"
)

// State is the lifecycle state of a TourContext.
type State uint8

const (
	StateEmpty State = iota
	StateInitialized
	StateRecordOpen
	StateRecordClosed
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInitialized:
		return "initialized"
	case StateRecordOpen:
		return "record-open"
	case StateRecordClosed:
		return "record-closed"
	case StateFinalized:
		return "finalized"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// TourContext is one tour under construction.
type TourContext struct {
	Token string
	state State

	slices  []TimeSlice
	current *TimeSlice

	markers   []*LapMarker
	gears     []GearEvent
	lengths   []SwimLength
	battery   []BatterySample
	sensors   map[uint8]*SensorImport
	timers    []TimerEvent
	heartRate []HeartRateSample
	hrClock   heartRateClock

	session SessionInfo
	sport   SportInfo
}

func newTourContext(token string) *TourContext {
	return &TourContext{
		Token:   token,
		sensors: make(map[uint8]*SensorImport),
	}
}

// State returns the context's lifecycle state.
func (c *TourContext) State() State {
	return c.state
}

// Slices returns the committed time-series.
func (c *TourContext) Slices() []TimeSlice {
	return c.slices
}

// previous returns the last committed slice, or nil.
func (c *TourContext) previous() *TimeSlice {
	if len(c.slices) == 0 {
		return nil
	}
	return &c.slices[len(c.slices)-1]
}

// sessionEnd returns the end of the merged session window, or the zero time
// when no session message carried a time.
func (c *TourContext) sessionEnd() time.Time {
	end := c.session.EndTime
	if !c.session.StartTime.IsZero() && c.session.ElapsedSeconds > 0 {
		if e := c.session.StartTime.Add(secondsDuration(c.session.ElapsedSeconds)); e.After(end) {
			end = e
		}
	}
	return end
}

func (c *TourContext) empty() bool {
	return len(c.slices) == 0 && !c.session.Seen && len(c.lengths) == 0 &&
		len(c.markers) == 0 && len(c.gears) == 0
}

func (c *TourContext) initializeIfNeeded() error {
	switch c.state {
	case StateEmpty:
		c.state = StateInitialized
		return nil
	case StateFinalized:
		return fmt.Errorf("%w: %s", ErrContextFinalized, c.Token)
	default:
		return nil
	}
}

func (c *TourContext) beginRecord(t time.Time) error {
	switch c.state {
	case StateInitialized, StateRecordClosed:
		c.current = NewTimeSlice(t)
		c.state = StateRecordOpen
		return nil
	case StateFinalized:
		return fmt.Errorf("%w: %s", ErrContextFinalized, c.Token)
	default:
		return fmt.Errorf("%w: begin record in state %s", ErrInvalidState, c.state)
	}
}

// finalizeRecord commits the current slice. A slice with the same timestamp
// as the previous one is not appended: it only fills the previous slice's
// unset fields.
func (c *TourContext) finalizeRecord() error {
	if c.state != StateRecordOpen || c.current == nil {
		return fmt.Errorf("%w: finalize record in state %s", ErrInvalidState, c.state)
	}
	if prev := c.previous(); prev != nil && prev.Time.Equal(c.current.Time) {
		prev.FillUnset(c.current)
	} else {
		c.slices = append(c.slices, *c.current)
	}
	c.current = nil
	c.state = StateRecordClosed
	return nil
}

// close moves the context to Finalized, committing a record left open.
func (c *TourContext) close() error {
	switch c.state {
	case StateRecordOpen:
		if err := c.finalizeRecord(); err != nil {
			return err
		}
	case StateInitialized, StateRecordClosed:
	case StateFinalized:
		return fmt.Errorf("%w: %s", ErrContextFinalized, c.Token)
	default:
		return fmt.Errorf("%w: finalize session in state %s", ErrInvalidState, c.state)
	}
	c.state = StateFinalized
	return nil
}

func (c *TourContext) applyRecord(m message.Message) error {
	if !m.HasTimestamp() {
		return fmt.Errorf("%w: record %d has no timestamp", ErrProtocol, m.RecordIndex)
	}
	if prev := c.previous(); prev != nil && m.Timestamp.Before(prev.Time) {
		return fmt.Errorf("%w: record %d at %s precedes %s", ErrProtocol,
			m.RecordIndex, m.Timestamp.Format(time.RFC3339), prev.Time.Format(time.RFC3339))
	}
	if err := c.beginRecord(m.Timestamp); err != nil {
		return err
	}
	fillSlice(c.current, m)
	return c.finalizeRecord()
}

func fillSlice(s *TimeSlice, m message.Message) {
	if v, ok := m.Degrees(message.RecordPositionLat); ok {
		s.Latitude = v
	}
	if v, ok := m.Degrees(message.RecordPositionLong); ok {
		s.Longitude = v
	}
	if v, ok := m.Scaled(message.RecordEnhancedAltitude, 5, 500); ok {
		s.Altitude = v
	} else if v, ok := m.Scaled(message.RecordAltitude, 5, 500); ok {
		s.Altitude = v
	}
	if v, ok := m.Float(message.RecordHeartRate); ok {
		s.Pulse = v
	}
	if v, ok := m.Float(message.RecordCadence); ok {
		s.Cadence = v
	}
	if v, ok := m.Scaled(message.RecordDistance, 100, 0); ok {
		s.Distance = v
	}
	if v, ok := m.Scaled(message.RecordEnhancedSpeed, 1000, 0); ok {
		s.Speed = v
	} else if v, ok := m.Scaled(message.RecordSpeed, 1000, 0); ok {
		s.Speed = v
	}
	if v, ok := m.Float(message.RecordPower); ok {
		s.Power = v
	}
	if v, ok := m.Float(message.RecordTemperature); ok {
		s.Temperature = v
	}
}

func (c *TourContext) applyLap(m message.Message) {
	if !m.HasTimestamp() {
		return
	}
	c.markers = append(c.markers, &LapMarker{
		Time:  m.Timestamp,
		Label: strconv.Itoa(len(c.markers) + 1),
	})
}

func (c *TourContext) applyEvent(m message.Message) {
	event, ok := m.Uint(message.EventEvent)
	if !ok || !m.HasTimestamp() {
		return
	}
	switch event {
	case message.EventTimer:
		eventType, ok := m.Uint(message.EventEventType)
		if !ok {
			return
		}
		switch eventType {
		case message.EventTypeStart:
			c.timers = append(c.timers, TimerEvent{Time: m.Timestamp, Start: true})
		case message.EventTypeStop, message.EventTypeStopAll,
			message.EventTypeStopDisable, message.EventTypeStopDisAll:
			c.timers = append(c.timers, TimerEvent{Time: m.Timestamp})
		}
	case message.EventFrontGearChange, message.EventRearGearChange:
		if v, ok := m.Uint(message.EventData); ok {
			c.gears = append(c.gears, GearEvent{Time: m.Timestamp, Value: v})
		}
	}
}

func (c *TourContext) applyLength(m message.Message) {
	start, ok := m.Time(message.LengthStartTime)
	if !ok {
		if !m.HasTimestamp() {
			return
		}
		start = m.Timestamp
	}
	l := SwimLength{Start: start}
	if v, ok := m.Scaled(message.LengthTotalElapsedTime, 1000, 0); ok {
		l.ElapsedSeconds = v
	}
	if v, ok := m.Int(message.LengthTotalStrokes); ok {
		l.Strokes = int(v)
	}
	if v, ok := m.Int(message.LengthSwimStroke); ok {
		l.StrokeStyle = int(v)
	}
	if v, ok := m.Float(message.LengthAvgSwimmingCadence); ok {
		l.Cadence = v
	}
	if v, ok := m.Uint(message.LengthLengthType); ok {
		l.Active = v == message.LengthTypeActive
	} else {
		l.Active = l.Strokes > 0
	}
	c.lengths = append(c.lengths, l)
}

// applySession merges a session message. Files that write several session
// messages for one implicit tour keep the earliest start, the latest end and
// the summed totals.
func (c *TourContext) applySession(m message.Message) {
	c.session.Seen = true
	if v, ok := m.Time(message.SessionStartTime); ok {
		if c.session.StartTime.IsZero() || v.Before(c.session.StartTime) {
			c.session.StartTime = v
		}
	}
	if m.HasTimestamp() && m.Timestamp.After(c.session.EndTime) {
		c.session.EndTime = m.Timestamp
	}
	if v, ok := m.Uint(message.SessionSport); ok && c.session.Sport == "" {
		c.session.Sport = SportName(uint8(v))
	}
	if v, ok := m.Uint(message.SessionSubSport); ok && c.session.SubSport == "" {
		c.session.SubSport = SubSportName(uint8(v))
	}
	if v, ok := m.String(message.SessionProfileName); ok && c.session.ProfileName == "" {
		c.session.ProfileName = v
	}
	if v, ok := m.Scaled(message.SessionTotalDistance, 100, 0); ok {
		c.session.DistanceMeters += v
	}
	if v, ok := m.Scaled(message.SessionTotalElapsedTime, 1000, 0); ok {
		c.session.ElapsedSeconds += v
	}
	if v, ok := m.Scaled(message.SessionTotalTimerTime, 1000, 0); ok {
		c.session.TimerSeconds += v
	}
}

func (c *TourContext) applySport(m message.Message) {
	if v, ok := m.Uint(message.SportSport); ok {
		c.sport.Sport = SportName(uint8(v))
	}
	if v, ok := m.Uint(message.SportSubSport); ok {
		c.sport.SubSport = SubSportName(uint8(v))
	}
	if v, ok := m.String(message.SportName); ok {
		c.sport.ProfileName = v
	}
}

func (c *TourContext) applyDeviceInfo(m message.Message) {
	index := uint8(message.DeviceIndexCreator)
	if v, ok := m.Uint(message.DeviceInfoDeviceIndex); ok {
		index = uint8(v)
	}
	s, ok := c.sensors[index]
	if !ok {
		s = newSensorImport(index)
		c.sensors[index] = s
	}
	s.merge(m)

	if index != message.DeviceIndexCreator || !m.HasTimestamp() {
		return
	}
	if v, ok := m.Float(message.DeviceInfoBatteryLevel); ok {
		c.battery = append(c.battery, BatterySample{Time: m.Timestamp, Percent: v})
	}
}

func (c *TourContext) applyHeartRate(m message.Message) error {
	samples, err := c.hrClock.samples(m)
	if err != nil {
		return err
	}
	c.heartRate = append(c.heartRate, samples...)
	return nil
}

func (c *TourContext) creatorSerial() uint32 {
	if s, ok := c.sensors[message.DeviceIndexCreator]; ok {
		return s.SerialNumber
	}
	return 0
}
