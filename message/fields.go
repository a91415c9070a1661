package message

// Field numbers of the FIT profile messages the importer reads. Values arrive
// raw (unscaled); use Scaled for the fields that carry a scale/offset.
const (
	FieldTimestamp    uint8 = 253
	FieldMessageIndex uint8 = 254
)

// session (18)
const (
	SessionStartTime        uint8 = 2
	SessionSport            uint8 = 5
	SessionSubSport         uint8 = 6
	SessionTotalElapsedTime uint8 = 7
	SessionTotalTimerTime   uint8 = 8
	SessionTotalDistance    uint8 = 9
	SessionProfileName      uint8 = 110
)

// lap (19)
const (
	LapStartTime  uint8 = 2
	LapLapTrigger uint8 = 24
)

// record (20)
const (
	RecordPositionLat      uint8 = 0
	RecordPositionLong     uint8 = 1
	RecordAltitude         uint8 = 2
	RecordHeartRate        uint8 = 3
	RecordCadence          uint8 = 4
	RecordDistance         uint8 = 5
	RecordSpeed            uint8 = 6
	RecordPower            uint8 = 7
	RecordTemperature      uint8 = 13
	RecordEnhancedSpeed    uint8 = 73
	RecordEnhancedAltitude uint8 = 78
)

// event (21)
const (
	EventEvent     uint8 = 0
	EventEventType uint8 = 1
	EventData      uint8 = 3
)

// Event values of EventEvent.
const (
	EventTimer            = 0
	EventFrontGearChange  = 42
	EventRearGearChange   = 43
	EventTypeStart        = 0
	EventTypeStop         = 1
	EventTypeStopAll      = 4
	EventTypeStopDisable  = 8
	EventTypeStopDisAll   = 9
	LengthTypeActive      = 1
	DeviceIndexCreator    = 0
	semicirclesPerDegrees = 2147483648.0 / 180.0
)

// length (101)
const (
	LengthStartTime          uint8 = 2
	LengthTotalElapsedTime   uint8 = 3
	LengthTotalTimerTime     uint8 = 4
	LengthTotalStrokes       uint8 = 5
	LengthSwimStroke         uint8 = 7
	LengthAvgSwimmingCadence uint8 = 9
	LengthLengthType         uint8 = 12
)

// hr (132)
const (
	HeartRateFractionalTimestamp uint8 = 0
	HeartRateFilteredBPM         uint8 = 6
	HeartRateEventTimestamp      uint8 = 9
	HeartRateEventTimestamp12    uint8 = 10
)

// device_info (23)
const (
	DeviceInfoDeviceIndex     uint8 = 0
	DeviceInfoDeviceType      uint8 = 1
	DeviceInfoManufacturer    uint8 = 2
	DeviceInfoSerialNumber    uint8 = 3
	DeviceInfoProduct         uint8 = 4
	DeviceInfoSoftwareVersion uint8 = 5
	DeviceInfoBatteryVoltage  uint8 = 10
	DeviceInfoBatteryStatus   uint8 = 11
	DeviceInfoProductName     uint8 = 27
	DeviceInfoBatteryLevel    uint8 = 32
)

// sport (12)
const (
	SportSport    uint8 = 0
	SportSubSport uint8 = 1
	SportName     uint8 = 3
)

// Scaled returns a numeric field as value/scale - offset.
func (m Message) Scaled(field uint8, scale, offset float64) (float64, bool) {
	v, ok := m.Float(field)
	if !ok {
		return 0, false
	}
	if scale == 0 {
		scale = 1
	}
	return v/scale - offset, true
}

// Degrees returns a semicircle position field in degrees.
func (m Message) Degrees(field uint8) (float64, bool) {
	v, ok := m.Float(field)
	if !ok {
		return 0, false
	}
	return v / semicirclesPerDegrees, true
}
