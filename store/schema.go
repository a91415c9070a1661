package store

// schema is valid for both SQLite and PostgreSQL. Times are stored as
// RFC 3339 text and ids as UUID text so no driver-specific types are needed.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tour_types (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS tours (
		id               TEXT PRIMARY KEY,
		dup_key          TEXT NOT NULL UNIQUE,
		title            TEXT NOT NULL,
		file_name        TEXT NOT NULL DEFAULT '',
		start_time       TEXT NOT NULL,
		end_time         TEXT NOT NULL,
		sport            TEXT NOT NULL DEFAULT '',
		sub_sport        TEXT NOT NULL DEFAULT '',
		profile_name     TEXT NOT NULL DEFAULT '',
		tour_type_id     TEXT REFERENCES tour_types(id),
		distance_m       DOUBLE PRECISION NOT NULL DEFAULT 0,
		elapsed_s        DOUBLE PRECISION NOT NULL DEFAULT 0,
		recorded_s       DOUBLE PRECISION NOT NULL DEFAULT 0,
		paused_s         DOUBLE PRECISION NOT NULL DEFAULT 0,
		elevation_gain_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		elevation_loss_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		aligned_hr       INTEGER NOT NULL DEFAULT 0,
		extras_json      TEXT NOT NULL DEFAULT '{}',
		imported_at      TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tour_samples (
		tour_id     TEXT NOT NULL REFERENCES tours(id),
		idx         INTEGER NOT NULL,
		time        TEXT NOT NULL,
		altitude    DOUBLE PRECISION,
		distance    DOUBLE PRECISION,
		cadence     DOUBLE PRECISION,
		latitude    DOUBLE PRECISION,
		longitude   DOUBLE PRECISION,
		power       DOUBLE PRECISION,
		pulse       DOUBLE PRECISION,
		speed       DOUBLE PRECISION,
		temperature DOUBLE PRECISION,
		PRIMARY KEY (tour_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS tour_markers (
		tour_id     TEXT NOT NULL REFERENCES tours(id),
		idx         INTEGER NOT NULL,
		time        TEXT NOT NULL,
		label       TEXT NOT NULL,
		serie_index INTEGER NOT NULL,
		relative_s  DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (tour_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS tour_gears (
		tour_id TEXT NOT NULL REFERENCES tours(id),
		idx     INTEGER NOT NULL,
		time    TEXT NOT NULL,
		value   BIGINT NOT NULL,
		PRIMARY KEY (tour_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS sensors (
		sensor_key  TEXT PRIMARY KEY,
		device_type TEXT NOT NULL DEFAULT '',
		device_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS tour_sensors (
		tour_id               TEXT NOT NULL REFERENCES tours(id),
		idx                   INTEGER NOT NULL,
		sensor_key            TEXT,
		device_index          INTEGER NOT NULL,
		device_type           TEXT NOT NULL DEFAULT '',
		device_name           TEXT NOT NULL DEFAULT '',
		software_version      DOUBLE PRECISION,
		battery_level_start   DOUBLE PRECISION,
		battery_level_end     DOUBLE PRECISION,
		battery_voltage_start DOUBLE PRECISION,
		battery_voltage_end   DOUBLE PRECISION,
		battery_status_start  INTEGER,
		battery_status_end    INTEGER,
		PRIMARY KEY (tour_id, idx)
	)`,
}
