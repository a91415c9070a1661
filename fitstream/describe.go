package fitstream

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lucasjlepore/fit-tours/message"
	"github.com/tormoder/fit"
)

type fieldSemantic struct {
	name   string
	units  string
	scaler func(float64) float64
}

func scaleBy(scale, offset float64) func(float64) float64 {
	return func(v float64) float64 {
		return v/scale - offset
	}
}

func semicircles(v float64) float64 {
	return v * 180 / 2147483648.0
}

var semanticsByMessage = map[uint16]map[uint8]fieldSemantic{
	0: { // file_id
		0: {name: "type"},
		1: {name: "manufacturer"},
		2: {name: "product"},
		3: {name: "serial_number"},
		4: {name: "time_created", units: "s_since_fit_epoch"},
		8: {name: "product_name"},
	},
	12: { // sport
		message.SportSport:    {name: "sport"},
		message.SportSubSport: {name: "sub_sport"},
		message.SportName:     {name: "name"},
	},
	18: { // session
		message.SessionStartTime:        {name: "start_time", units: "s_since_fit_epoch"},
		message.SessionSport:            {name: "sport"},
		message.SessionSubSport:         {name: "sub_sport"},
		message.SessionTotalElapsedTime: {name: "total_elapsed_time", units: "s", scaler: scaleBy(1000, 0)},
		message.SessionTotalTimerTime:   {name: "total_timer_time", units: "s", scaler: scaleBy(1000, 0)},
		message.SessionTotalDistance:    {name: "total_distance", units: "m", scaler: scaleBy(100, 0)},
		message.SessionProfileName:      {name: "sport_profile_name"},
	},
	19: { // lap
		message.LapStartTime:  {name: "start_time", units: "s_since_fit_epoch"},
		message.LapLapTrigger: {name: "lap_trigger"},
	},
	20: { // record
		message.RecordPositionLat:      {name: "position_lat", units: "deg", scaler: semicircles},
		message.RecordPositionLong:     {name: "position_long", units: "deg", scaler: semicircles},
		message.RecordAltitude:         {name: "altitude", units: "m", scaler: scaleBy(5, 500)},
		message.RecordHeartRate:        {name: "heart_rate", units: "bpm"},
		message.RecordCadence:          {name: "cadence", units: "rpm"},
		message.RecordDistance:         {name: "distance", units: "m", scaler: scaleBy(100, 0)},
		message.RecordSpeed:            {name: "speed", units: "m/s", scaler: scaleBy(1000, 0)},
		message.RecordPower:            {name: "power", units: "w"},
		message.RecordTemperature:      {name: "temperature", units: "c"},
		message.RecordEnhancedSpeed:    {name: "enhanced_speed", units: "m/s", scaler: scaleBy(1000, 0)},
		message.RecordEnhancedAltitude: {name: "enhanced_altitude", units: "m", scaler: scaleBy(5, 500)},
	},
	21: { // event
		message.EventEvent:     {name: "event"},
		message.EventEventType: {name: "event_type"},
		message.EventData:      {name: "data"},
	},
	23: { // device_info
		message.DeviceInfoDeviceIndex:     {name: "device_index"},
		message.DeviceInfoDeviceType:      {name: "device_type"},
		message.DeviceInfoManufacturer:    {name: "manufacturer"},
		message.DeviceInfoSerialNumber:    {name: "serial_number"},
		message.DeviceInfoProduct:         {name: "product"},
		message.DeviceInfoSoftwareVersion: {name: "software_version", scaler: scaleBy(100, 0)},
		message.DeviceInfoBatteryVoltage:  {name: "battery_voltage", units: "v", scaler: scaleBy(256, 0)},
		message.DeviceInfoBatteryStatus:   {name: "battery_status"},
		message.DeviceInfoProductName:     {name: "product_name"},
		message.DeviceInfoBatteryLevel:    {name: "battery_level", units: "%"},
	},
	101: { // length
		message.LengthStartTime:          {name: "start_time", units: "s_since_fit_epoch"},
		message.LengthTotalElapsedTime:   {name: "total_elapsed_time", units: "s", scaler: scaleBy(1000, 0)},
		message.LengthTotalTimerTime:     {name: "total_timer_time", units: "s", scaler: scaleBy(1000, 0)},
		message.LengthTotalStrokes:       {name: "total_strokes", units: "strokes"},
		message.LengthSwimStroke:         {name: "swim_stroke"},
		message.LengthAvgSwimmingCadence: {name: "avg_swimming_cadence", units: "strokes/min"},
		message.LengthLengthType:         {name: "length_type"},
	},
	132: { // hr
		message.HeartRateFractionalTimestamp: {name: "fractional_timestamp", units: "s", scaler: scaleBy(32768, 0)},
		message.HeartRateFilteredBPM:         {name: "filtered_bpm", units: "bpm"},
		message.HeartRateEventTimestamp:      {name: "event_timestamp", units: "s", scaler: scaleBy(1024, 0)},
		message.HeartRateEventTimestamp12:    {name: "event_timestamp_12"},
	},
}

func semanticForField(global uint16, field uint8) fieldSemantic {
	if field == message.FieldMessageIndex {
		return fieldSemantic{name: "message_index"}
	}
	if m, ok := semanticsByMessage[global]; ok {
		if s, ok := m[field]; ok {
			return s
		}
	}
	return fieldSemantic{name: fmt.Sprintf("field_%d", field)}
}

// MessageName returns the FIT profile name of a global message number.
func MessageName(global uint16) string {
	name := fmt.Sprint(fit.MesgNum(global))
	if strings.HasPrefix(name, "MesgNum(") {
		return fmt.Sprintf("global_%d", global)
	}
	return name
}

// FieldValue is one described field of a message.
type FieldValue struct {
	Num    uint8  `json:"num"`
	Name   string `json:"name"`
	Units  string `json:"units,omitempty"`
	Raw    any    `json:"raw"`
	Scaled any    `json:"scaled,omitempty"`
}

// Described is a message with its fields named and scaled, for dumps.
type Described struct {
	RecordIndex int          `json:"record_index"`
	Global      uint16       `json:"global"`
	Message     string       `json:"message"`
	Kind        string       `json:"kind"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	Fields      []FieldValue `json:"fields"`
}

// Describe names and scales the fields of m. Fields are ordered by number.
func Describe(m message.Message) Described {
	d := Described{
		RecordIndex: m.RecordIndex,
		Global:      m.Global,
		Message:     MessageName(m.Global),
		Kind:        m.Kind.String(),
		Fields:      make([]FieldValue, 0, len(m.Fields)),
	}
	if m.HasTimestamp() {
		ts := m.Timestamp.UTC()
		d.Timestamp = &ts
	}

	nums := make([]int, 0, len(m.Fields))
	for n := range m.Fields {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)

	for _, n := range nums {
		num := uint8(n)
		sem := semanticForField(m.Global, num)
		fv := FieldValue{Num: num, Name: sem.name, Units: sem.units, Raw: printable(m.Fields[num])}
		switch {
		case sem.units == "s_since_fit_epoch":
			if t, ok := m.Time(num); ok {
				fv.Scaled = t.UTC().Format(time.RFC3339)
			}
		case sem.scaler != nil:
			if v, ok := m.Float(num); ok {
				fv.Scaled = sem.scaler(v)
			}
		}
		d.Fields = append(d.Fields, fv)
	}
	return d
}

// printable keeps byte arrays readable in JSON.
func printable(v any) any {
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("%x", b)
	}
	return v
}
