package fittours

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// BuildImportNotes turns a file report into a short text summary.
func BuildImportNotes(r *FileReport) string {
	if r == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", filepath.Base(r.File))
	if r.Decode != nil {
		fmt.Fprintf(
			&b,
			"Decoded %d data messages (%d definitions)",
			r.Decode.DataMessages,
			r.Decode.Definitions,
		)
		if r.Decode.Rejected > 0 {
			fmt.Fprintf(&b, ", skipped %d malformed", r.Decode.Rejected)
		}
		b.WriteByte('\n')
	}
	if len(r.Tours) == 0 {
		b.WriteString("No tour data found.\n")
		return strings.TrimSpace(b.String())
	}

	for _, tr := range r.Tours {
		b.WriteByte('\n')
		if tr.Tour == nil {
			fmt.Fprintf(&b, "Tour %s: already imported, derived values merged into %s\n", tr.Key, tr.TourID)
			continue
		}
		writeTourNotes(&b, tr)
	}
	return strings.TrimSpace(b.String())
}

func writeTourNotes(b *strings.Builder, tr TourReport) {
	s := Summarize(tr.Tour)

	fmt.Fprintf(b, "Tour: %s", s.Title)
	if s.TourType != "" {
		fmt.Fprintf(b, " (%s)", s.TourType)
	}
	b.WriteByte('\n')
	if !s.StartTime.IsZero() {
		fmt.Fprintf(b, "Start: %s\n", s.StartTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(
		b,
		"Duration %s (recorded %s, paused %s) | Distance %.1f km | Elevation +%.0f/-%.0f m\n",
		formatDuration(s.ElapsedSeconds),
		formatDuration(s.RecordedSeconds),
		formatDuration(s.PausedSeconds),
		s.DistanceMeters/1000.0,
		s.ElevationGainM,
		s.ElevationLossM,
	)
	fmt.Fprintf(
		b,
		"Samples %d | Laps %d | Gear changes %d | Swim lengths %d | Sensors %d\n",
		s.Samples,
		s.Laps,
		s.GearChanges,
		s.SwimLengths,
		s.Sensors,
	)
	if s.AvgPowerWatts > 0 || s.AvgHeartRate > 0 {
		fmt.Fprintf(
			b,
			"Power %.0f avg / %.0f max W | HR %.0f avg / %.0f max bpm | Speed %.1f avg / %.1f max km/h\n",
			s.AvgPowerWatts,
			s.MaxPowerWatts,
			s.AvgHeartRate,
			s.MaxHeartRate,
			mpsToKmh(s.AvgSpeedMps),
			mpsToKmh(s.MaxSpeedMps),
		)
	}
	if s.AlignedHeartRate > 0 {
		fmt.Fprintf(b, "Heart rate aligned from hr messages: %d samples\n", s.AlignedHeartRate)
	}
	if s.BatteryStart > 0 || s.BatteryEnd > 0 {
		fmt.Fprintf(b, "Battery %.0f%% -> %.0f%%\n", s.BatteryStart, s.BatteryEnd)
	}
	if tr.ExportPath != "" {
		fmt.Fprintf(b, "Exported: %s\n", tr.ExportPath)
	}
}

// BuildStatsNotes summarizes a whole import run.
func BuildStatsNotes(s Stats) string {
	return fmt.Sprintf(
		"Files %d imported, %d failed | Tours %d created, %d merged | Samples %d | Skipped messages %d | Exported %d",
		s.FilesProcessed,
		s.FilesErrored,
		s.ToursCreated,
		s.ToursMerged,
		s.SamplesStored,
		s.MessagesRejected,
		s.Exported,
	)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	s := int(math.Round(seconds))
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

func mpsToKmh(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v * 3.6
}
