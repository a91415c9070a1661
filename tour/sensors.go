package tour

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lucasjlepore/fit-tours/message"
	"github.com/tormoder/fit"
)

// SensorImport accumulates every device_info message seen for one device
// index. Later messages only fill in what is still unknown, except the
// battery end values which track the most recent report.
type SensorImport struct {
	DeviceIndex     uint8
	DeviceType      string
	DeviceName      string
	Manufacturer    uint16
	Product         uint16
	SerialNumber    uint32
	SoftwareVersion float64

	BatteryLevelStart   float64
	BatteryLevelEnd     float64
	BatteryVoltageStart float64
	BatteryVoltageEnd   float64
	// 0 means no status reported.
	BatteryStatusStart uint8
	BatteryStatusEnd   uint8

	FirstSeen time.Time
	LastSeen  time.Time
}

func newSensorImport(index uint8) *SensorImport {
	return &SensorImport{
		DeviceIndex:         index,
		BatteryLevelStart:   Unset,
		BatteryLevelEnd:     Unset,
		BatteryVoltageStart: Unset,
		BatteryVoltageEnd:   Unset,
	}
}

func (s *SensorImport) merge(m message.Message) {
	if m.HasTimestamp() {
		if s.FirstSeen.IsZero() || m.Timestamp.Before(s.FirstSeen) {
			s.FirstSeen = m.Timestamp
		}
		if m.Timestamp.After(s.LastSeen) {
			s.LastSeen = m.Timestamp
		}
	}

	if v, ok := m.Uint(message.DeviceInfoManufacturer); ok && s.Manufacturer == 0 {
		s.Manufacturer = uint16(v)
	}
	if v, ok := m.Uint(message.DeviceInfoProduct); ok && s.Product == 0 {
		s.Product = uint16(v)
	}
	if v, ok := m.Uint(message.DeviceInfoSerialNumber); ok && s.SerialNumber == 0 {
		s.SerialNumber = v
	}
	if v, ok := m.Scaled(message.DeviceInfoSoftwareVersion, 100, 0); ok && s.SoftwareVersion == 0 {
		s.SoftwareVersion = v
	}
	if v, ok := m.Uint(message.DeviceInfoDeviceType); ok && s.DeviceType == "" {
		s.DeviceType = deviceTypeName(uint8(v))
	}
	if s.DeviceName == "" {
		if name, ok := m.String(message.DeviceInfoProductName); ok {
			s.DeviceName = strings.TrimSpace(name)
		}
	}

	if v, ok := m.Float(message.DeviceInfoBatteryLevel); ok {
		if !IsSet(s.BatteryLevelStart) {
			s.BatteryLevelStart = v
		}
		s.BatteryLevelEnd = v
	}
	if v, ok := m.Scaled(message.DeviceInfoBatteryVoltage, 256, 0); ok {
		if !IsSet(s.BatteryVoltageStart) {
			s.BatteryVoltageStart = v
		}
		s.BatteryVoltageEnd = v
	}
	if v, ok := m.Uint(message.DeviceInfoBatteryStatus); ok && v > 0 {
		if s.BatteryStatusStart == 0 {
			s.BatteryStatusStart = uint8(v)
		}
		s.BatteryStatusEnd = uint8(v)
	}
}

// Key identifies the physical device across tours. It is empty when the
// device did not report a serial number.
func (s *SensorImport) Key() string {
	if s.SerialNumber == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d:%d", s.Manufacturer, s.Product, s.SerialNumber)
}

func (s *SensorImport) displayName() string {
	if s.DeviceName != "" {
		return s.DeviceName
	}
	if s.Manufacturer == 0 {
		return ""
	}
	return fmt.Sprintf("%s %d", fit.Manufacturer(s.Manufacturer), s.Product)
}

func deviceTypeName(v uint8) string {
	return fmt.Sprint(fit.AntplusDeviceType(v))
}

// SensorValue is a stitched sensor attached to a tour.
type SensorValue struct {
	SensorKey           string  `json:"sensor_key,omitempty"`
	DeviceIndex         uint8   `json:"device_index"`
	DeviceType          string  `json:"device_type,omitempty"`
	DeviceName          string  `json:"device_name,omitempty"`
	SoftwareVersion     float64 `json:"software_version,omitempty"`
	BatteryLevelStart   float64 `json:"battery_level_start"`
	BatteryLevelEnd     float64 `json:"battery_level_end"`
	BatteryVoltageStart float64 `json:"battery_voltage_start"`
	BatteryVoltageEnd   float64 `json:"battery_voltage_end"`
	BatteryStatusStart  uint8   `json:"battery_status_start,omitempty"`
	BatteryStatusEnd    uint8   `json:"battery_status_end,omitempty"`
}

// SensorUpdate asks the persistence layer to backfill the key fields of a
// stored sensor when they are still empty there.
type SensorUpdate struct {
	SensorKey  string
	DeviceType string
	DeviceName string
}

// StitchSensors orders the imported sensors by device index and first
// message time and derives the tour's sensor values plus the backfill
// requests for stored sensors.
func StitchSensors(imports map[uint8]*SensorImport) ([]SensorValue, []SensorUpdate) {
	if len(imports) == 0 {
		return nil, nil
	}
	ordered := make([]*SensorImport, 0, len(imports))
	for _, s := range imports {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].DeviceIndex != ordered[j].DeviceIndex {
			return ordered[i].DeviceIndex < ordered[j].DeviceIndex
		}
		return ordered[i].FirstSeen.Before(ordered[j].FirstSeen)
	})

	values := make([]SensorValue, 0, len(ordered))
	updates := make([]SensorUpdate, 0, len(ordered))
	for _, s := range ordered {
		name := s.displayName()
		values = append(values, SensorValue{
			SensorKey:           s.Key(),
			DeviceIndex:         s.DeviceIndex,
			DeviceType:          s.DeviceType,
			DeviceName:          name,
			SoftwareVersion:     s.SoftwareVersion,
			BatteryLevelStart:   s.BatteryLevelStart,
			BatteryLevelEnd:     s.BatteryLevelEnd,
			BatteryVoltageStart: s.BatteryVoltageStart,
			BatteryVoltageEnd:   s.BatteryVoltageEnd,
			BatteryStatusStart:  s.BatteryStatusStart,
			BatteryStatusEnd:    s.BatteryStatusEnd,
		})
		if key := s.Key(); key != "" && (s.DeviceType != "" || name != "") {
			updates = append(updates, SensorUpdate{
				SensorKey:  key,
				DeviceType: s.DeviceType,
				DeviceName: name,
			})
		}
	}
	return values, updates
}

// BatterySeries converts battery samples inside [start, end] into parallel
// tour-relative time and percentage series.
func BatterySeries(samples []BatterySample, start, end time.Time) ([]float64, []float64) {
	times := make([]float64, 0, len(samples))
	percent := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Time.Before(start) || s.Time.After(end) {
			continue
		}
		times = append(times, relativeSeconds(s.Time, start))
		percent = append(percent, s.Percent)
	}
	if len(times) == 0 {
		return nil, nil
	}
	return times, percent
}
