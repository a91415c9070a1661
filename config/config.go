package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lucasjlepore/fit-tours/tour"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Import ImportConfig `yaml:"import"`
	Store  StoreConfig  `yaml:"store"`
	Export ExportConfig `yaml:"export"`
	Log    LogConfig    `yaml:"log"`
}

type ImportConfig struct {
	IgnoreLastMarker  bool          `yaml:"ignore_last_marker"`
	IgnoreLastSlices  int           `yaml:"ignore_last_slices"`
	TourTypeMode      string        `yaml:"tour_type_mode"`
	TitleFromFileName bool          `yaml:"title_from_filename"`
	LogSensors        bool          `yaml:"log_sensors"`
	HRAlignTolerance  time.Duration `yaml:"hr_align_tolerance"`
	SkipChecksum      bool          `yaml:"skip_checksum"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ExportConfig struct {
	Format string `yaml:"format"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			IgnoreLastSlices: 10,
			TourTypeMode:     string(tour.DefaultTourTypeMode),
			HRAlignTolerance: tour.DefaultHeartRateTolerance,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "fittours.db",
		},
		Export: ExportConfig{Format: "csv"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads config from a YAML file on top of Default, then applies
// environment variable overrides. A missing file is not an error. Env vars use
// the prefix FITTOURS_:
//
//	FITTOURS_IGNORE_LAST_MARKER, FITTOURS_IGNORE_LAST_SLICES,
//	FITTOURS_TOUR_TYPE_MODE, FITTOURS_TITLE_FROM_FILENAME,
//	FITTOURS_LOG_SENSORS, FITTOURS_HR_ALIGN_TOLERANCE, FITTOURS_SKIP_CHECKSUM,
//	FITTOURS_STORE_DRIVER, FITTOURS_STORE_DSN,
//	FITTOURS_EXPORT_FORMAT, FITTOURS_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok, err := envBool("FITTOURS_IGNORE_LAST_MARKER"); err != nil {
		return err
	} else if ok {
		cfg.Import.IgnoreLastMarker = v
	}
	if v := os.Getenv("FITTOURS_IGNORE_LAST_SLICES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FITTOURS_IGNORE_LAST_SLICES: invalid integer %q", v)
		}
		cfg.Import.IgnoreLastSlices = n
	}
	if v := os.Getenv("FITTOURS_TOUR_TYPE_MODE"); v != "" {
		cfg.Import.TourTypeMode = v
	}
	if v, ok, err := envBool("FITTOURS_TITLE_FROM_FILENAME"); err != nil {
		return err
	} else if ok {
		cfg.Import.TitleFromFileName = v
	}
	if v, ok, err := envBool("FITTOURS_LOG_SENSORS"); err != nil {
		return err
	} else if ok {
		cfg.Import.LogSensors = v
	}
	if v := os.Getenv("FITTOURS_HR_ALIGN_TOLERANCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FITTOURS_HR_ALIGN_TOLERANCE: invalid duration %q", v)
		}
		cfg.Import.HRAlignTolerance = d
	}
	if v, ok, err := envBool("FITTOURS_SKIP_CHECKSUM"); err != nil {
		return err
	} else if ok {
		cfg.Import.SkipChecksum = v
	}
	if v := os.Getenv("FITTOURS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("FITTOURS_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("FITTOURS_EXPORT_FORMAT"); v != "" {
		cfg.Export.Format = v
	}
	if v := os.Getenv("FITTOURS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// envBool reads a boolean env var. set is false when the variable is empty.
func envBool(key string) (v, set bool, err error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false, nil
	}
	v, err = strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return v, true, nil
}

func (c *Config) validate() error {
	if c.Import.IgnoreLastSlices < 0 {
		return fmt.Errorf("import.ignore_last_slices must not be negative")
	}
	if _, err := tour.ParseTourTypeMode(c.Import.TourTypeMode); err != nil {
		return fmt.Errorf("import.tour_type_mode: %w", err)
	}
	if c.Import.HRAlignTolerance < 0 {
		return fmt.Errorf("import.hr_align_tolerance must not be negative")
	}
	switch c.Store.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("store.driver must be sqlite or pgx, got %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	switch strings.ToLower(c.Export.Format) {
	case "", "csv", "parquet":
	default:
		return fmt.Errorf("export.format must be csv or parquet, got %q", c.Export.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// TourOptions returns the accumulator options the import settings select.
func (c ImportConfig) TourOptions() tour.Options {
	mode, _ := tour.ParseTourTypeMode(c.TourTypeMode)
	return tour.Options{
		Markers: tour.MarkerPolicy{
			IgnoreLastMarker: c.IgnoreLastMarker,
			IgnoreLastSlices: c.IgnoreLastSlices,
		},
		TourTypeMode:       mode,
		TitleFromFileName:  c.TitleFromFileName,
		LogSensors:         c.LogSensors,
		HeartRateTolerance: c.HRAlignTolerance,
	}
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
