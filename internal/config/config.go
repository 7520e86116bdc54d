// Package config provides the layered configuration for kvmix: defaults, then
// a YAML or JSON file, then KVMIX_ environment variables, then command-line
// flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	kverrors "github.com/arkilian/kvmix/internal/errors"
	"github.com/arkilian/kvmix/internal/workload"
)

// Table kinds.
const (
	TableShardMap = "shardmap"
	TableBadger   = "badger"
	TableSQLite   = "sqlite"
	TableRemote   = "remote"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Storage types for archived reports.
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the complete kvmix configuration.
type Config struct {
	Workload WorkloadConfig `json:"workload" yaml:"workload"`
	Table    TableConfig    `json:"table" yaml:"table"`
	Report   ReportConfig   `json:"report" yaml:"report"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Serve    ServeConfig    `json:"serve" yaml:"serve"`
}

// WorkloadConfig is the operation mix and sizing of one run.
type WorkloadConfig struct {
	Reads   uint `json:"reads" yaml:"reads" validate:"max=100"`
	Inserts uint `json:"inserts" yaml:"inserts" validate:"max=100"`
	Erases  uint `json:"erases" yaml:"erases" validate:"max=100"`
	Updates uint `json:"updates" yaml:"updates" validate:"max=100"`
	Upserts uint `json:"upserts" yaml:"upserts" validate:"max=100"`

	// InitialCapacity is the table capacity as a power of two.
	InitialCapacity uint `json:"initial_capacity" yaml:"initial_capacity" validate:"max=48"`

	// Prefill is the percentage of the initial capacity filled before timing.
	Prefill uint `json:"prefill" yaml:"prefill" validate:"max=100"`

	// TotalOps is the number of timed operations as a percentage of the
	// initial capacity. It may exceed 100.
	TotalOps uint `json:"total_ops" yaml:"total_ops" validate:"max=32768"`

	Threads int `json:"num_threads" yaml:"num_threads" validate:"min=1"`

	// Seed makes the schedule shuffle reproducible. Zero means unseeded.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// TableConfig selects and configures the store under test.
type TableConfig struct {
	Kind string `json:"kind" yaml:"kind" validate:"oneof=shardmap badger sqlite remote"`

	// KeyType applies to shardmap only; the other stores are byte-keyed.
	KeyType string `json:"key_type" yaml:"key_type" validate:"oneof=uint64 string bytes"`

	ValueSize int `json:"value_size" yaml:"value_size" validate:"min=0,max=1048576"`

	// Shards is the shardmap shard count. Zero picks one from GOMAXPROCS.
	Shards int `json:"shards" yaml:"shards" validate:"min=0"`

	// Path is the database directory (badger) or file (sqlite).
	Path string `json:"path" yaml:"path"`

	InMemory     bool `json:"in_memory" yaml:"in_memory"`
	SyncWrites   bool `json:"sync_writes" yaml:"sync_writes"`
	MaxOpenConns int  `json:"max_open_conns" yaml:"max_open_conns" validate:"min=0"`

	RemoteAddr  string        `json:"remote_addr" yaml:"remote_addr"`
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout" validate:"min=0"`
}

// ReportConfig controls how results are printed and archived.
type ReportConfig struct {
	Format   string        `json:"format" yaml:"format" validate:"oneof=text json"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Compress bool          `json:"compress" yaml:"compress"`
}

// StorageConfig holds report archive storage configuration.
type StorageConfig struct {
	// Type is the storage type: none, local, s3
	Type string `json:"type" yaml:"type" validate:"oneof=none local s3"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every archived object path
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// MetricsConfig controls the Prometheus textfile dump of run results.
type MetricsConfig struct {
	Textfile string `json:"textfile" yaml:"textfile"`
}

// ServeConfig holds the listen addresses of the remote table server.
type ServeConfig struct {
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr" validate:"required"`
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
}

var validate = validator.New()

// DefaultConfig returns the configuration used when nothing overrides it.
// The mix is all zeros, so a run must set percentages explicitly.
func DefaultConfig() *Config {
	return &Config{
		Workload: WorkloadConfig{
			InitialCapacity: 25,
			TotalOps:        90,
			Threads:         runtime.NumCPU(),
		},
		Table: TableConfig{
			Kind:      TableShardMap,
			KeyType:   "uint64",
			ValueSize: 8,
			InMemory:  true,
		},
		Report: ReportConfig{
			Format: FormatText,
			Storage: StorageConfig{
				Type:   StorageNone,
				Prefix: "runs",
			},
		},
		Serve: ServeConfig{
			GRPCAddr: ":9090",
			HTTPAddr: ":9091",
		},
	}
}

// Validate checks field ranges and the cross-field rules, returning the first
// problem as a ConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return kverrors.Wrap(kverrors.ErrCategoryConfiguration, kverrors.CodeInvalidField, "invalid configuration", err)
	}

	if err := c.Workload.Mix().Validate(); err != nil {
		return err
	}

	switch c.Table.Kind {
	case TableBadger, TableSQLite:
		if !c.Table.InMemory && c.Table.Path == "" {
			return kverrors.NewConfigurationError(kverrors.CodeInvalidField,
				fmt.Sprintf("table.path is required for an on-disk %s table", c.Table.Kind))
		}
	case TableRemote:
		if c.Table.RemoteAddr == "" {
			return kverrors.NewConfigurationError(kverrors.CodeInvalidField,
				"table.remote_addr is required for a remote table")
		}
	}

	switch c.Report.Storage.Type {
	case StorageLocal:
		if c.Report.Storage.Path == "" {
			return kverrors.NewConfigurationError(kverrors.CodeInvalidField,
				"report.storage.path is required when storage type is local")
		}
	case StorageS3:
		if c.Report.Storage.S3.Bucket == "" {
			return kverrors.NewConfigurationError(kverrors.CodeInvalidField,
				"report.storage.s3.bucket is required when storage type is s3")
		}
	}
	return nil
}

// fieldError maps one validator failure to the matching configuration code.
func fieldError(fe validator.FieldError) error {
	ns := fe.Namespace()
	code := kverrors.CodeInvalidField
	switch {
	case fe.StructField() == "Threads":
		code = kverrors.CodeInvalidThreads
	case fe.StructField() == "InitialCapacity":
		code = kverrors.CodeInvalidCapacity
	case strings.HasPrefix(ns, "Config.Workload."):
		code = kverrors.CodePercentOutOfRange
	}

	msg := fmt.Sprintf("%s fails %q", ns, fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s fails %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value())
	}
	return kverrors.NewConfigurationError(code, msg).
		WithDetails(map[string]interface{}{"field": ns, "rule": fe.Tag()})
}

// Mix returns the operation percentages.
func (w WorkloadConfig) Mix() workload.Mix {
	return workload.Mix{
		Reads:   w.Reads,
		Inserts: w.Inserts,
		Erases:  w.Erases,
		Updates: w.Updates,
		Upserts: w.Upserts,
	}
}

// RunConfig converts the workload section to a run configuration.
func (c *Config) RunConfig() workload.Config {
	return workload.Config{
		Mix:              c.Workload.Mix(),
		CapacityExponent: c.Workload.InitialCapacity,
		PrefillPercent:   c.Workload.Prefill,
		TotalOpsPercent:  c.Workload.TotalOps,
		Threads:          c.Workload.Threads,
	}
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.ErrCategoryConfiguration, kverrors.CodeConfigLoad,
			"failed to read config file", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, kverrors.Wrap(kverrors.ErrCategoryConfiguration, kverrors.CodeConfigLoad,
				"failed to parse YAML config", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, kverrors.Wrap(kverrors.ErrCategoryConfiguration, kverrors.CodeConfigLoad,
				"failed to parse JSON config", err)
		}
	default:
		return nil, kverrors.NewConfigurationError(kverrors.CodeConfigLoad,
			fmt.Sprintf("unsupported config file format: %s", ext))
	}

	return cfg, nil
}

// envUint, envInt and envBool record the first unparsable variable in *errp.
func envUint(name string, dst *uint, errp *error) {
	if v := os.Getenv(name); v != "" {
		n, err := strconv.ParseUint(v, 10, 0)
		if err != nil {
			setEnvErr(errp, name, err)
			return
		}
		*dst = uint(n)
	}
}

func envInt(name string, dst *int, errp *error) {
	if v := os.Getenv(name); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			setEnvErr(errp, name, err)
			return
		}
		*dst = n
	}
}

func envBool(name string, dst *bool, errp *error) {
	if v := os.Getenv(name); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			setEnvErr(errp, name, err)
			return
		}
		*dst = b
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setEnvErr(errp *error, name string, err error) {
	if *errp == nil {
		*errp = kverrors.Wrap(kverrors.ErrCategoryConfiguration, kverrors.CodeConfigLoad,
			fmt.Sprintf("invalid value for %s", name), err)
	}
}

// LoadFromEnv overrides cfg from environment variables with the KVMIX_
// prefix. It applies every parsable variable and reports the first one that
// could not be parsed.
func LoadFromEnv(cfg *Config) error {
	var err error

	w := &cfg.Workload
	envUint("KVMIX_READS", &w.Reads, &err)
	envUint("KVMIX_INSERTS", &w.Inserts, &err)
	envUint("KVMIX_ERASES", &w.Erases, &err)
	envUint("KVMIX_UPDATES", &w.Updates, &err)
	envUint("KVMIX_UPSERTS", &w.Upserts, &err)
	envUint("KVMIX_INITIAL_CAPACITY", &w.InitialCapacity, &err)
	envUint("KVMIX_PREFILL", &w.Prefill, &err)
	envUint("KVMIX_TOTAL_OPS", &w.TotalOps, &err)
	envInt("KVMIX_NUM_THREADS", &w.Threads, &err)
	if v := os.Getenv("KVMIX_SEED"); v != "" {
		if n, perr := strconv.ParseUint(v, 10, 64); perr == nil {
			w.Seed = n
		} else {
			setEnvErr(&err, "KVMIX_SEED", perr)
		}
	}

	t := &cfg.Table
	envString("KVMIX_TABLE", &t.Kind)
	envString("KVMIX_KEY_TYPE", &t.KeyType)
	envInt("KVMIX_VALUE_SIZE", &t.ValueSize, &err)
	envInt("KVMIX_SHARDS", &t.Shards, &err)
	envString("KVMIX_TABLE_PATH", &t.Path)
	envBool("KVMIX_TABLE_IN_MEMORY", &t.InMemory, &err)
	envBool("KVMIX_TABLE_SYNC_WRITES", &t.SyncWrites, &err)
	envInt("KVMIX_TABLE_MAX_OPEN_CONNS", &t.MaxOpenConns, &err)
	envString("KVMIX_REMOTE_ADDR", &t.RemoteAddr)
	if v := os.Getenv("KVMIX_CALL_TIMEOUT"); v != "" {
		if d, perr := time.ParseDuration(v); perr == nil {
			t.CallTimeout = d
		} else {
			setEnvErr(&err, "KVMIX_CALL_TIMEOUT", perr)
		}
	}

	r := &cfg.Report
	envString("KVMIX_REPORT_FORMAT", &r.Format)
	envBool("KVMIX_REPORT_COMPRESS", &r.Compress, &err)
	envString("KVMIX_STORAGE_TYPE", &r.Storage.Type)
	envString("KVMIX_STORAGE_PATH", &r.Storage.Path)
	envString("KVMIX_STORAGE_PREFIX", &r.Storage.Prefix)
	envString("KVMIX_S3_BUCKET", &r.Storage.S3.Bucket)
	envString("KVMIX_S3_REGION", &r.Storage.S3.Region)
	envString("KVMIX_S3_ENDPOINT", &r.Storage.S3.Endpoint)
	envBool("KVMIX_S3_USE_PATH_STYLE", &r.Storage.S3.UsePathStyle, &err)

	envString("KVMIX_METRICS_TEXTFILE", &cfg.Metrics.Textfile)
	envString("KVMIX_GRPC_ADDR", &cfg.Serve.GRPCAddr)
	envString("KVMIX_HTTP_ADDR", &cfg.Serve.HTTPAddr)

	return err
}
