// Package export writes a tour's time-series to CSV or parquet.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lucasjlepore/fit-tours/tour"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Sample is one exported row. Missing values are nil.
type Sample struct {
	TSUTCISO     string
	ElapsedS     float64
	LatitudeDeg  *float64
	LongitudeDeg *float64
	AltitudeM    *float64
	DistanceM    *float64
	SpeedMPS     *float64
	HRBPM        *float64
	CadenceRPM   *float64
	PowerW       *float64
	TemperatureC *float64
	GradePct     *float64
	Paused       bool
}

// Samples converts the tour's slices into export rows.
func Samples(t *tour.Tour) []Sample {
	if t == nil || len(t.Slices) == 0 {
		return nil
	}
	start := t.Slices[0].Time
	out := make([]Sample, 0, len(t.Slices))
	for i, s := range t.Slices {
		row := Sample{
			TSUTCISO:     s.Time.UTC().Format(time.RFC3339),
			ElapsedS:     s.Time.Sub(start).Seconds(),
			LatitudeDeg:  valuePtr(s.Latitude),
			LongitudeDeg: valuePtr(s.Longitude),
			AltitudeM:    valuePtr(s.Altitude),
			DistanceM:    valuePtr(s.Distance),
			SpeedMPS:     valuePtr(s.Speed),
			HRBPM:        valuePtr(s.Pulse),
			CadenceRPM:   valuePtr(s.Cadence),
			PowerW:       valuePtr(s.Power),
			TemperatureC: valuePtr(s.Temperature),
			Paused:       paused(t.Pauses, s.Time),
		}
		if i > 0 {
			row.GradePct = grade(t.Slices[i-1], s)
		}
		out = append(out, row)
	}
	return out
}

// grade is the altitude change over the distance covered since prev, in percent.
func grade(prev, cur tour.TimeSlice) *float64 {
	if !tour.IsSet(prev.Altitude) || !tour.IsSet(cur.Altitude) ||
		!tour.IsSet(prev.Distance) || !tour.IsSet(cur.Distance) {
		return nil
	}
	d := cur.Distance - prev.Distance
	if d < 1 {
		return nil
	}
	g := (cur.Altitude - prev.Altitude) / d * 100
	return &g
}

func paused(pauses []tour.PauseWindow, t time.Time) bool {
	for _, p := range pauses {
		if t.After(p.Start) && t.Before(p.End) {
			return true
		}
	}
	return false
}

// FileName returns the export file name of a tour.
func FileName(t *tour.Tour, format string) string {
	title := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, t.Title)
	if title == "" {
		title = "tour"
	}
	return fmt.Sprintf("%s_%s.%s", t.Start.UTC().Format("20060102T150405Z"), title, extension(format))
}

// NormalizeFormat lowercases format and defaults it to csv.
func NormalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatParquet:
		return format, nil
	}
	return "", fmt.Errorf("unsupported format %q (expected csv|parquet)", format)
}

func extension(format string) string {
	if format == FormatParquet {
		return "parquet"
	}
	return "csv"
}

// WriteTour writes the tour's samples into dir and a JSON sidecar with the
// tour's markers, gears and sensors. It returns the samples path.
func WriteTour(dir, format string, t *tour.Tour) (string, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName(t, format))
	if err := WriteSamples(path, format, t); err != nil {
		return "", err
	}
	meta := *t
	meta.Slices = nil
	meta.Derived.PulseSerie = nil
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if err := writeJSON(sidecar, meta); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(sidecar), err)
	}
	return path, nil
}

// WriteSamples writes the tour's samples to path in the given format.
func WriteSamples(path, format string, t *tour.Tour) error {
	format, err := NormalizeFormat(format)
	if err != nil {
		return err
	}
	samples := Samples(t)
	if len(samples) == 0 {
		return fmt.Errorf("tour %q has no samples", t.Title)
	}
	switch format {
	case FormatParquet:
		if err := writeParquet(path, samples); err != nil {
			return fmt.Errorf("write samples parquet: %w", err)
		}
	default:
		if err := writeCSV(path, samples); err != nil {
			return fmt.Errorf("write samples csv: %w", err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var csvHeader = []string{
	"ts_utc_iso", "elapsed_s", "latitude_deg", "longitude_deg", "altitude_m", "distance_m",
	"speed_mps", "hr_bpm", "cadence_rpm", "power_w", "temperature_c", "grade_pct", "paused",
}

func writeCSV(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			s.TSUTCISO,
			formatFloat(s.ElapsedS),
			formatFloatPtr(s.LatitudeDeg),
			formatFloatPtr(s.LongitudeDeg),
			formatFloatPtr(s.AltitudeM),
			formatFloatPtr(s.DistanceM),
			formatFloatPtr(s.SpeedMPS),
			formatFloatPtr(s.HRBPM),
			formatFloatPtr(s.CadenceRPM),
			formatFloatPtr(s.PowerW),
			formatFloatPtr(s.TemperatureC),
			formatFloatPtr(s.GradePct),
			strconv.FormatBool(s.Paused),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

type parquetRow struct {
	TSUTCISO     string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS     float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	LatitudeDeg  float64 `parquet:"name=latitude_deg, type=DOUBLE"`
	LongitudeDeg float64 `parquet:"name=longitude_deg, type=DOUBLE"`
	AltitudeM    float64 `parquet:"name=altitude_m, type=DOUBLE"`
	DistanceM    float64 `parquet:"name=distance_m, type=DOUBLE"`
	SpeedMPS     float64 `parquet:"name=speed_mps, type=DOUBLE"`
	HRBPM        float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	CadenceRPM   float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	PowerW       float64 `parquet:"name=power_w, type=DOUBLE"`
	TemperatureC float64 `parquet:"name=temperature_c, type=DOUBLE"`
	GradePct     float64 `parquet:"name=grade_pct, type=DOUBLE"`
	Paused       bool    `parquet:"name=paused, type=BOOLEAN"`
}

func toParquetRow(s Sample) parquetRow {
	return parquetRow{
		TSUTCISO:     s.TSUTCISO,
		ElapsedS:     s.ElapsedS,
		LatitudeDeg:  valueOrNaN(s.LatitudeDeg),
		LongitudeDeg: valueOrNaN(s.LongitudeDeg),
		AltitudeM:    valueOrNaN(s.AltitudeM),
		DistanceM:    valueOrNaN(s.DistanceM),
		SpeedMPS:     valueOrNaN(s.SpeedMPS),
		HRBPM:        valueOrNaN(s.HRBPM),
		CadenceRPM:   valueOrNaN(s.CadenceRPM),
		PowerW:       valueOrNaN(s.PowerW),
		TemperatureC: valueOrNaN(s.TemperatureC),
		GradePct:     valueOrNaN(s.GradePct),
		Paused:       s.Paused,
	}
}

// marshalParquet encodes samples as a parquet file held in memory.
func marshalParquet(samples []Sample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		if err := pw.Write(toParquetRow(s)); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return fw.Bytes(), nil
}

func writeParquet(path string, samples []Sample) error {
	data, err := marshalParquet(samples)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func valuePtr(v float64) *float64 {
	if !tour.IsSet(v) {
		return nil
	}
	out := v
	return &out
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
