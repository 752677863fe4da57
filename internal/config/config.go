// Package config loads heritage store settings from an optional YAML file and
// HERITAGE_* environment variables. Environment values override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Blob drivers.
const (
	BlobFilesystem = "fs"
	BlobS3         = "s3"
	BlobMemory     = "memory"
)

// Config holds every tunable of the store and its CLI.
type Config struct {
	Storage Storage `yaml:"storage"`
	Blob    Blob    `yaml:"blob"`
	Log     Log     `yaml:"log"`
	Cache   Cache   `yaml:"cache"`
}

// Storage selects and locates the record backend.
type Storage struct {
	// Driver is one of bolt, sqlite, postgres or memory.
	Driver      string `yaml:"driver"`
	BoltPath    string `yaml:"bolt_path"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Blob selects where surrogate files are kept.
type Blob struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// S3 configures the S3-compatible blob driver. Empty credentials fall back to
// the AWS default chain.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Cache configures the service read cache. Size 0 disables it.
type Cache struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:      DriverBolt,
			BoltPath:    "heritage_store.db",
			SQLitePath:  "heritage_store.sqlite",
			PostgresDSN: "postgres://localhost/heritage?sslmode=disable",
		},
		Blob: Blob{
			Driver: BlobFilesystem,
			FSRoot: "./blobdata",
			S3:     S3{Region: "us-east-1"},
		},
		Log:   Log{Level: "info", Format: "console"},
		Cache: Cache{Size: 256, TTL: 5 * time.Minute},
	}
}

// LookupFunc reads a single environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads path (when non-empty) over the defaults, then applies the
// process environment and validates the result.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment source.
func LoadWith(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("HERITAGE_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("HERITAGE_BOLT_PATH", &cfg.Storage.BoltPath)
	str("HERITAGE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("HERITAGE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("HERITAGE_BLOB_DRIVER", &cfg.Blob.Driver)
	str("HERITAGE_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("HERITAGE_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("HERITAGE_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("HERITAGE_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("HERITAGE_LOG_LEVEL", &cfg.Log.Level)
	str("HERITAGE_LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("HERITAGE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HERITAGE_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	if v, ok := lookup("HERITAGE_CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HERITAGE_CACHE_SIZE: %w", err)
		}
		cfg.Cache.Size = n
	}
	if v, ok := lookup("HERITAGE_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HERITAGE_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("storage driver: unsupported value %q (bolt, sqlite, postgres, memory)", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case BlobFilesystem, BlobMemory:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("blob s3: bucket required")
		}
	default:
		return fmt.Errorf("blob driver: unsupported value %q (fs, s3, memory)", c.Blob.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log format: unsupported value %q (console, json)", c.Log.Format)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache size: must not be negative, got %d", c.Cache.Size)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl: must not be negative, got %s", c.Cache.TTL)
	}
	return nil
}
