package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lucasjlepore/fit-tours/tour"
)

// Outcome reports what Persist did with a result.
type Outcome struct {
	TourID        string
	Created       bool
	Merged        bool
	PulseMerged   int
	SamplesStored int
}

// StoredTour is the summary row of a persisted tour.
type StoredTour struct {
	ID               string
	Key              string
	Title            string
	TourType         string
	Start            time.Time
	End              time.Time
	DistanceMeters   float64
	RecordedSeconds  float64
	PausedSeconds    float64
	AlignedHeartRate int
	Samples          int
}

// extras holds the tour parts that are stored as one JSON document.
type extras struct {
	SwimLengths    []tour.SwimLength  `json:"swim_lengths,omitempty"`
	Pauses         []tour.PauseWindow `json:"pauses,omitempty"`
	BatteryTimes   []float64          `json:"battery_times_s,omitempty"`
	BatteryPercent []float64          `json:"battery_percent,omitempty"`
}

// TourKeys returns the duplicate key of every stored tour.
func (s *Store) TourKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dup_key FROM tours`)
	if err != nil {
		return nil, fmt.Errorf("querying tour keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning tour key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TourExists reports whether a tour with the duplicate key is stored.
func (s *Store) TourExists(ctx context.Context, key string) (bool, error) {
	_, err := s.tourID(ctx, s.db, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s *Store) tourID(ctx context.Context, q execer, key string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, s.rebind(`SELECT id FROM tours WHERE dup_key = ?`), key).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("looking up tour %s: %w", key, err)
	}
	return id, err
}

// ResolveTourType returns the id of the named tour type, creating it when it
// does not exist. An empty name resolves to "".
func (s *Store) ResolveTourType(ctx context.Context, name string) (string, error) {
	return s.resolveTourType(ctx, s.db, name)
}

func (s *Store) resolveTourType(ctx context.Context, q execer, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	var id string
	err := q.QueryRowContext(ctx, s.rebind(`SELECT id FROM tour_types WHERE name = ?`), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("looking up tour type %q: %w", name, err)
	}

	id = uuid.New().String()
	if _, err := q.ExecContext(ctx, s.rebind(`INSERT INTO tour_types (id, name) VALUES (?, ?)`), id, name); err != nil {
		return "", fmt.Errorf("creating tour type %q: %w", name, err)
	}
	s.log.Info("created tour type", "name", name, "id", id)
	return id, nil
}

// ApplySensorUpdates registers each sensor key and fills its type and name
// where the stored values are still empty. Stored values are never replaced.
func (s *Store) ApplySensorUpdates(ctx context.Context, updates []tour.SensorUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.applySensorUpdates(ctx, tx, updates); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) applySensorUpdates(ctx context.Context, q execer, updates []tour.SensorUpdate) error {
	for _, u := range updates {
		if u.SensorKey == "" {
			continue
		}
		if _, err := q.ExecContext(ctx, s.rebind(
			`INSERT INTO sensors (sensor_key, device_type, device_name) VALUES (?, '', '')
			 ON CONFLICT (sensor_key) DO NOTHING`), u.SensorKey); err != nil {
			return fmt.Errorf("registering sensor %s: %w", u.SensorKey, err)
		}
		if u.DeviceType != "" {
			if _, err := q.ExecContext(ctx, s.rebind(
				`UPDATE sensors SET device_type = ? WHERE sensor_key = ? AND device_type = ''`),
				u.DeviceType, u.SensorKey); err != nil {
				return fmt.Errorf("updating sensor %s type: %w", u.SensorKey, err)
			}
		}
		if u.DeviceName != "" {
			if _, err := q.ExecContext(ctx, s.rebind(
				`UPDATE sensors SET device_name = ? WHERE sensor_key = ? AND device_name = ''`),
				u.DeviceName, u.SensorKey); err != nil {
				return fmt.Errorf("updating sensor %s name: %w", u.SensorKey, err)
			}
		}
	}
	return nil
}

// Persist stores a finalized result. A result whose key is already stored
// only merges the derived values into the stored tour.
func (s *Store) Persist(ctx context.Context, res *tour.Result) (Outcome, error) {
	if res == nil {
		return Outcome{}, fmt.Errorf("persisting tour: nil result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.tourID(ctx, tx, res.Key)
	var out Outcome
	switch {
	case err == nil:
		out, err = s.merge(ctx, tx, id, res.Derived)
	case errors.Is(err, sql.ErrNoRows):
		if res.Tour == nil {
			return Outcome{}, fmt.Errorf("persisting tour %s: re-import of a tour that is not stored", res.Key)
		}
		out, err = s.create(ctx, tx, res)
	}
	if err != nil {
		return Outcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("committing tour %s: %w", res.Key, err)
	}
	return out, nil
}

func (s *Store) create(ctx context.Context, tx *sql.Tx, res *tour.Result) (Outcome, error) {
	t := res.Tour
	typeID, err := s.resolveTourType(ctx, tx, t.TourType)
	if err != nil {
		return Outcome{}, err
	}
	extra, err := json.Marshal(extras{
		SwimLengths:    t.SwimLengths,
		Pauses:         t.Pauses,
		BatteryTimes:   t.BatteryTimes,
		BatteryPercent: t.BatteryPercent,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding tour extras: %w", err)
	}

	id := uuid.New().String()
	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO tours (id, dup_key, title, file_name, start_time, end_time,
			sport, sub_sport, profile_name, tour_type_id, distance_m, elapsed_s,
			recorded_s, paused_s, elevation_gain_m, elevation_loss_m, aligned_hr,
			extras_json, imported_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, res.Key, t.Title, t.FileName, formatTime(t.Start), formatTime(t.End),
		t.Sport, t.SubSport, t.ProfileName, nullString(typeID), t.DistanceMeters, t.ElapsedSeconds,
		t.Derived.RecordedSeconds, t.Derived.PausedSeconds, t.Derived.ElevationGainM, t.Derived.ElevationLossM,
		t.Derived.AlignedHeartRate, string(extra), now, now,
	); err != nil {
		return Outcome{}, fmt.Errorf("inserting tour %s: %w", res.Key, err)
	}

	if err := s.insertSamples(ctx, tx, id, t.Slices); err != nil {
		return Outcome{}, err
	}
	for i, m := range t.Markers {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO tour_markers (tour_id, idx, time, label, serie_index, relative_s)
			VALUES (?, ?, ?, ?, ?, ?)`),
			id, i, formatTime(m.Time), m.Label, m.SerieIndex, m.RelativeTime); err != nil {
			return Outcome{}, fmt.Errorf("inserting marker %d: %w", i, err)
		}
	}
	for i, g := range t.Gears {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO tour_gears (tour_id, idx, time, value) VALUES (?, ?, ?, ?)`),
			id, i, formatTime(g.Time), int64(g.Value)); err != nil {
			return Outcome{}, fmt.Errorf("inserting gear %d: %w", i, err)
		}
	}
	for i, sv := range t.Sensors {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO tour_sensors (tour_id, idx, sensor_key, device_index, device_type, device_name,
				software_version, battery_level_start, battery_level_end,
				battery_voltage_start, battery_voltage_end, battery_status_start, battery_status_end)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id, i, nullString(sv.SensorKey), int(sv.DeviceIndex), sv.DeviceType, sv.DeviceName,
			nullFloat(sv.SoftwareVersion), nullFloat(sv.BatteryLevelStart), nullFloat(sv.BatteryLevelEnd),
			nullFloat(sv.BatteryVoltageStart), nullFloat(sv.BatteryVoltageEnd),
			nullStatus(sv.BatteryStatusStart), nullStatus(sv.BatteryStatusEnd)); err != nil {
			return Outcome{}, fmt.Errorf("inserting sensor %d: %w", i, err)
		}
	}
	if err := s.applySensorUpdates(ctx, tx, res.SensorUpdates); err != nil {
		return Outcome{}, err
	}

	s.log.Info("stored tour", "id", id, "key", res.Key, "title", t.Title, "samples", len(t.Slices))
	return Outcome{TourID: id, Created: true, SamplesStored: len(t.Slices)}, nil
}

func (s *Store) insertSamples(ctx context.Context, tx *sql.Tx, tourID string, slices []tour.TimeSlice) error {
	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO tour_samples (tour_id, idx, time, altitude, distance, cadence,
			latitude, longitude, power, pulse, speed, temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()

	for i, sl := range slices {
		if _, err := stmt.ExecContext(ctx, tourID, i, formatTime(sl.Time),
			nullFloat(sl.Altitude), nullFloat(sl.Distance), nullFloat(sl.Cadence),
			nullFloat(sl.Latitude), nullFloat(sl.Longitude), nullFloat(sl.Power),
			nullFloat(sl.Pulse), nullFloat(sl.Speed), nullFloat(sl.Temperature)); err != nil {
			return fmt.Errorf("inserting sample %d: %w", i, err)
		}
	}
	return nil
}

// merge updates the derived columns of a stored tour. The pulse serie is only
// merged into samples that have no pulse, and only when the sample counts agree.
func (s *Store) merge(ctx context.Context, tx *sql.Tx, tourID string, d tour.Derived) (Outcome, error) {
	if _, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE tours SET recorded_s = ?, paused_s = ?, elevation_gain_m = ?,
			elevation_loss_m = ?, aligned_hr = ?, updated_at = ?
		WHERE id = ?`),
		d.RecordedSeconds, d.PausedSeconds, d.ElevationGainM, d.ElevationLossM,
		d.AlignedHeartRate, formatTime(time.Now()), tourID); err != nil {
		return Outcome{}, fmt.Errorf("merging derived values into %s: %w", tourID, err)
	}
	out := Outcome{TourID: tourID, Merged: true}
	if len(d.PulseSerie) == 0 {
		return out, nil
	}

	var count int
	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM tour_samples WHERE tour_id = ?`),
		tourID).Scan(&count); err != nil {
		return Outcome{}, fmt.Errorf("counting samples of %s: %w", tourID, err)
	}
	if count != len(d.PulseSerie) {
		s.log.Warn("sample count changed, not merging pulse",
			"tour", tourID, "stored", count, "imported", len(d.PulseSerie))
		return out, nil
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		UPDATE tour_samples SET pulse = ? WHERE tour_id = ? AND idx = ? AND pulse IS NULL`))
	if err != nil {
		return Outcome{}, fmt.Errorf("preparing pulse merge: %w", err)
	}
	defer stmt.Close()
	for i, p := range d.PulseSerie {
		if !tour.IsSet(p) {
			continue
		}
		r, err := stmt.ExecContext(ctx, p, tourID, i)
		if err != nil {
			return Outcome{}, fmt.Errorf("merging pulse %d: %w", i, err)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			out.PulseMerged += int(n)
		}
	}
	return out, nil
}

// Tour returns the stored tour with the duplicate key.
func (s *Store) Tour(ctx context.Context, key string) (*StoredTour, error) {
	var (
		t          StoredTour
		start, end string
		typeName   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT t.id, t.dup_key, t.title, tt.name, t.start_time, t.end_time,
			t.distance_m, t.recorded_s, t.paused_s, t.aligned_hr,
			(SELECT COUNT(*) FROM tour_samples s WHERE s.tour_id = t.id)
		FROM tours t LEFT JOIN tour_types tt ON tt.id = t.tour_type_id
		WHERE t.dup_key = ?`), key).Scan(
		&t.ID, &t.Key, &t.Title, &typeName, &start, &end,
		&t.DistanceMeters, &t.RecordedSeconds, &t.PausedSeconds, &t.AlignedHeartRate, &t.Samples)
	if err != nil {
		return nil, fmt.Errorf("loading tour %s: %w", key, err)
	}
	t.TourType = typeName.String
	if t.Start, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return nil, fmt.Errorf("parsing start of %s: %w", key, err)
	}
	if t.End, err = time.Parse(time.RFC3339Nano, end); err != nil {
		return nil, fmt.Errorf("parsing end of %s: %w", key, err)
	}
	return &t, nil
}

// Samples returns the stored time-series of a tour in order. Missing values
// come back as tour.Unset.
func (s *Store) Samples(ctx context.Context, tourID string) ([]tour.TimeSlice, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT time, altitude, distance, cadence, latitude, longitude, power, pulse, speed, temperature
		FROM tour_samples WHERE tour_id = ? ORDER BY idx`), tourID)
	if err != nil {
		return nil, fmt.Errorf("querying samples of %s: %w", tourID, err)
	}
	defer rows.Close()

	var out []tour.TimeSlice
	for rows.Next() {
		var (
			ts   string
			vals [9]sql.NullFloat64
		)
		if err := rows.Scan(&ts, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4],
			&vals[5], &vals[6], &vals[7], &vals[8]); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing sample time: %w", err)
		}
		sl := tour.NewTimeSlice(t)
		dst := []*float64{&sl.Altitude, &sl.Distance, &sl.Cadence, &sl.Latitude,
			&sl.Longitude, &sl.Power, &sl.Pulse, &sl.Speed, &sl.Temperature}
		for i, v := range vals {
			if v.Valid {
				*dst[i] = v.Float64
			}
		}
		out = append(out, *sl)
	}
	return out, rows.Err()
}

// Sensor returns the stored type and name of a sensor key.
func (s *Store) Sensor(ctx context.Context, key string) (deviceType, deviceName string, err error) {
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT device_type, device_name FROM sensors WHERE sensor_key = ?`), key).Scan(&deviceType, &deviceName)
	if err != nil {
		return "", "", fmt.Errorf("loading sensor %s: %w", key, err)
	}
	return deviceType, deviceName, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullFloat(v float64) any {
	if !tour.IsSet(v) {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullStatus(v uint8) any {
	if v == 0 {
		return nil
	}
	return int(v)
}
