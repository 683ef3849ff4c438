// Package config loads doccore settings from an optional YAML file layered
// under DOCCORE_* environment variables.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Driver identifies a document store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
	DriverS3       Driver = "s3"       // S3-compatible bucket
)

var drivers = []Driver{DriverMemory, DriverSQLite, DriverPostgres, DriverS3}

// Exporter names the metrics recorder wired into the service.
type Exporter string

const (
	ExporterExpvar     Exporter = "expvar"
	ExporterPrometheus Exporter = "prometheus"
	ExporterNone       Exporter = "none"
)

var exporters = []Exporter{ExporterExpvar, ExporterPrometheus, ExporterNone}

// Config is the root configuration document.
type Config struct {
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
	Session Session `yaml:"session"`
	Metrics Metrics `yaml:"metrics"`
}

// Storage selects and configures the document store.
type Storage struct {
	Driver      Driver `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	S3          S3     `yaml:"s3"`
}

// S3 configures the S3 document store. Credentials come from the AWS
// default chain unless both keys are set.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	PathStyle       bool   `yaml:"path_style"`
	PageSize        int32  `yaml:"page_size"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Session configures sessions opened by the service.
type Session struct {
	ExactlyOnceLoads bool `yaml:"exactly_once_loads"`
	LoadConcurrency  int  `yaml:"load_concurrency"`
}

// Metrics selects the operation metrics exporter. Textfile, when set with
// the prometheus exporter, receives the registry in text exposition format
// when the service closes.
type Metrics struct {
	Exporter Exporter `yaml:"exporter"`
	Textfile string   `yaml:"textfile"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: Storage{Driver: DriverSQLite, SQLitePath: "doccore.db"},
		Log:     Log{Level: "info", Format: "text"},
		Session: Session{LoadConcurrency: 8},
		Metrics: Metrics{Exporter: ExporterExpvar},
	}
}

// Load reads path (skipped when empty), then applies environment overrides.
//
//	DOCCORE_STORAGE_DRIVER: memory|sqlite|postgres|s3 (default sqlite)
//	DOCCORE_SQLITE_PATH: path to sqlite file (default ./doccore.db)
//	DOCCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	DOCCORE_S3_BUCKET, DOCCORE_S3_REGION, DOCCORE_S3_ENDPOINT, DOCCORE_S3_PREFIX,
//	DOCCORE_S3_PATH_STYLE, DOCCORE_S3_PAGE_SIZE
//	DOCCORE_LOG_LEVEL, DOCCORE_LOG_FORMAT
//	DOCCORE_EXACTLY_ONCE_LOADS, DOCCORE_LOAD_CONCURRENCY
//	DOCCORE_METRICS_EXPORTER: expvar|prometheus|none (default expvar)
//	DOCCORE_METRICS_TEXTFILE
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
		if err != nil {
			return Config{}, zerr.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, zerr.With(zerr.Wrap(err, "failed to parse config file"), "path", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DOCCORE_SQLITE_PATH":      &c.Storage.SQLitePath,
		"DOCCORE_POSTGRES_DSN":     &c.Storage.PostgresDSN,
		"DOCCORE_S3_BUCKET":        &c.Storage.S3.Bucket,
		"DOCCORE_S3_REGION":        &c.Storage.S3.Region,
		"DOCCORE_S3_ENDPOINT":      &c.Storage.S3.Endpoint,
		"DOCCORE_S3_PREFIX":        &c.Storage.S3.Prefix,
		"DOCCORE_LOG_LEVEL":        &c.Log.Level,
		"DOCCORE_LOG_FORMAT":       &c.Log.Format,
		"DOCCORE_METRICS_TEXTFILE": &c.Metrics.Textfile,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	if v, ok := lookup("DOCCORE_STORAGE_DRIVER"); ok {
		c.Storage.Driver = Driver(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup("DOCCORE_METRICS_EXPORTER"); ok {
		c.Metrics.Exporter = Exporter(strings.ToLower(strings.TrimSpace(v)))
	}
	bools := map[string]*bool{
		"DOCCORE_S3_PATH_STYLE":      &c.Storage.S3.PathStyle,
		"DOCCORE_EXACTLY_ONCE_LOADS": &c.Session.ExactlyOnceLoads,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "invalid boolean environment variable"), "name", name)
		}
		*dst = b
	}
	if v, ok := lookup("DOCCORE_LOAD_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "invalid integer environment variable"), "name", "DOCCORE_LOAD_CONCURRENCY")
		}
		c.Session.LoadConcurrency = n
	}
	if v, ok := lookup("DOCCORE_S3_PAGE_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "invalid integer environment variable"), "name", "DOCCORE_S3_PAGE_SIZE")
		}
		c.Storage.S3.PageSize = int32(n)
	}
	return nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if !slices.Contains(drivers, c.Storage.Driver) {
		return zerr.With(zerr.New("unknown storage driver"), "driver", string(c.Storage.Driver))
	}
	if c.Storage.Driver == DriverS3 && c.Storage.S3.Bucket == "" {
		return zerr.New("s3 bucket required for s3 driver")
	}
	if !slices.Contains(exporters, c.Metrics.Exporter) {
		return zerr.With(zerr.New("unknown metrics exporter"), "exporter", string(c.Metrics.Exporter))
	}
	if c.Metrics.Textfile != "" && c.Metrics.Exporter != ExporterPrometheus {
		return zerr.With(zerr.New("metrics textfile requires the prometheus exporter"), "exporter", string(c.Metrics.Exporter))
	}
	if c.Session.LoadConcurrency < 1 {
		return zerr.With(zerr.New("load concurrency must be positive"), "load_concurrency", c.Session.LoadConcurrency)
	}
	return nil
}
