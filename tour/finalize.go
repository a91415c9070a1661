package tour

import (
	"path/filepath"
	"strings"
	"time"
)

const defaultTitle = "tour"

func (a *Accumulator) finalize(c *TourContext) *Result {
	slices := c.slices
	// The first record's speed is not trusted.
	if len(slices) > 0 {
		slices[0].Speed = Unset
	}

	start, end := a.tourWindow(c)
	pauses := a.opts.Pauses.Pauses(c.timers, start, end)
	paused := PausedDuration(pauses)

	derived := Derived{
		AlignedHeartRate: AlignHeartRate(slices, c.heartRate, a.opts.HeartRateTolerance),
		PausedSeconds:    paused.Seconds(),
		RecordedSeconds:  (end.Sub(start) - paused).Seconds(),
	}
	derived.ElevationGainM, derived.ElevationLossM = elevation(slices)
	derived.PulseSerie = pulseSerie(slices)

	distance := c.session.DistanceMeters
	if distance <= 0 {
		distance = lastDistance(slices)
	}
	key := DuplicateKey(start, distance, c.creatorSerial())
	res := &Result{Token: c.Token, Key: key, Derived: derived}

	if a.opts.Existing.TourExists(key) || a.imported.TourExists(key) {
		a.log.Info("tour already imported, merging derived values",
			"session", c.Token, "key", key)
		res.Reimport = true
		return res
	}
	a.imported.Add(key)

	sensors, updates := StitchSensors(c.sensors)
	if a.opts.LogSensors {
		for _, s := range sensors {
			a.log.Info("sensor",
				"session", c.Token,
				"device_index", s.DeviceIndex,
				"type", s.DeviceType,
				"name", s.DeviceName,
				"key", s.SensorKey,
				"battery_start", s.BatteryLevelStart,
				"battery_end", s.BatteryLevelEnd)
		}
	}
	batteryTimes, batteryPercent := BatterySeries(c.battery, start, end)

	names := a.typeNames(c)
	t := &Tour{
		Title:          a.title(names),
		FileName:       a.opts.FileName,
		Start:          start,
		End:            end,
		Sport:          names.Sport,
		SubSport:       names.SubSport,
		ProfileName:    names.ProfileName,
		TourType:       ClassifyTourType(a.opts.TourTypeMode, names),
		DistanceMeters: distance,
		ElapsedSeconds: c.session.ElapsedSeconds,
		Slices:         slices,
		Markers:        a.markers(c, start, end),
		Gears:          ReconcileGears(c.gears, start, end),
		SwimLengths:    clipLengths(c.lengths, start, end),
		Sensors:        sensors,
		BatteryTimes:   batteryTimes,
		BatteryPercent: batteryPercent,
		Pauses:         pauses,
		Derived:        derived,
	}
	if t.ElapsedSeconds <= 0 {
		t.ElapsedSeconds = end.Sub(start).Seconds()
	}

	res.Tour = t
	res.SensorUpdates = updates
	return res
}

// tourWindow returns the tour's [start, end]. Without time data it falls back
// to the session start time and then to the current time.
func (a *Accumulator) tourWindow(c *TourContext) (time.Time, time.Time) {
	if n := len(c.slices); n > 0 {
		return c.slices[0].Time, c.slices[n-1].Time
	}

	var start time.Time
	if !c.session.StartTime.IsZero() {
		start = c.session.StartTime
		a.log.Info("no time data, using session start time",
			"session", c.Token, "start", start)
	} else {
		start = a.opts.Now().UTC().Truncate(time.Second)
		a.log.Info("no time data and no session start time, using current time",
			"session", c.Token, "start", start)
	}

	end := start
	if c.session.EndTime.After(end) {
		end = c.session.EndTime
	}
	if e := start.Add(secondsDuration(c.session.ElapsedSeconds)); e.After(end) {
		end = e
	}
	return start, end
}

func (a *Accumulator) markers(c *TourContext, start, end time.Time) []LapMarker {
	placed := PlaceMarkers(c.slices, start, c.markers, a.opts.Markers)
	if len(c.markers) > 0 && len(placed) == 0 && len(c.slices) == 0 {
		a.log.Info("no time data, dropping lap markers",
			"session", c.Token, "markers", len(c.markers))
	}
	if len(placed) == 0 {
		return nil
	}
	out := make([]LapMarker, 0, len(placed))
	for _, m := range placed {
		lm := *m
		if lm.Time.After(end) {
			lm.Time = end
		}
		if lm.Time.Before(start) {
			lm.Time = start
		}
		out = append(out, lm)
	}
	return out
}

func (a *Accumulator) typeNames(c *TourContext) TourTypeNames {
	names := TourTypeNames{
		Sport:              c.session.Sport,
		SubSport:           c.session.SubSport,
		ProfileName:        c.sport.ProfileName,
		SessionProfileName: c.session.ProfileName,
	}
	if names.Sport == "" {
		names.Sport = c.sport.Sport
	}
	if names.SubSport == "" {
		names.SubSport = c.sport.SubSport
	}
	return names
}

func (a *Accumulator) title(names TourTypeNames) string {
	if a.opts.TitleFromFileName && a.opts.FileName != "" {
		base := filepath.Base(a.opts.FileName)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	switch {
	case names.ProfileName != "":
		return names.ProfileName
	case names.Sport != "":
		return names.Sport
	default:
		return defaultTitle
	}
}

func clipLengths(lengths []SwimLength, start, end time.Time) []SwimLength {
	var out []SwimLength
	for _, l := range lengths {
		if l.Start.Before(start) || l.Start.After(end) {
			continue
		}
		l.RelativeStart = relativeSeconds(l.Start, start)
		out = append(out, l)
	}
	return out
}

func elevation(slices []TimeSlice) (gain, loss float64) {
	prev := Unset
	for _, s := range slices {
		if !IsSet(s.Altitude) {
			continue
		}
		if IsSet(prev) {
			if d := s.Altitude - prev; d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		prev = s.Altitude
	}
	return gain, loss
}

func lastDistance(slices []TimeSlice) float64 {
	for i := len(slices) - 1; i >= 0; i-- {
		if IsSet(slices[i].Distance) {
			return slices[i].Distance
		}
	}
	return 0
}

// pulseSerie returns the per-slice pulse, or nil when no slice has one.
func pulseSerie(slices []TimeSlice) []float64 {
	out := make([]float64, len(slices))
	found := false
	for i, s := range slices {
		out[i] = s.Pulse
		if IsSet(s.Pulse) {
			found = true
		}
	}
	if !found {
		return nil
	}
	return out
}
