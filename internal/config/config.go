/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Document storage backend selection.
type StorageBackend string

const (
	StorageFilesystem StorageBackend = "fs"
	StorageS3         StorageBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., https://app.pawmark.example)
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// Document storage
	StorageBackend    StorageBackend
	DocumentRoot      string // Filesystem backend root
	S3Bucket          string
	S3Region          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string
	CacheEnabled          bool

	// Background workers
	GeneticsSyncInterval  time.Duration
	ReminderCheckInterval time.Duration
	ReminderLeadMinutes   int // Notify buyers this many minutes before their window opens

	// Genetics category remap table (optional yaml file; built-ins when empty)
	GeneticsRemapPath string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("PAWMARK_ENV", "development"),
		HTTPBind:    getEnv("PAWMARK_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("PAWMARK_HTTP_PORT", 8080),
		BaseURL:     getEnv("PAWMARK_BASE_URL", ""),
		DBBackend:   DatabaseBackend(getEnv("PAWMARK_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:       getEnv("PAWMARK_DB_DSN", ""),
		MetricsBind: getEnv("PAWMARK_METRICS_BIND", "127.0.0.1:9000"),

		StorageBackend:    StorageBackend(getEnv("PAWMARK_STORAGE_BACKEND", string(StorageFilesystem))),
		DocumentRoot:      getEnv("PAWMARK_DOCUMENT_ROOT", "./documents"),
		S3Bucket:          getEnvAny([]string{"PAWMARK_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Region:          getEnvAny([]string{"PAWMARK_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"PAWMARK_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBool("PAWMARK_S3_USE_PATH_STYLE", false),
		S3AccessKeyID:     getEnvAny([]string{"PAWMARK_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"PAWMARK_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),

		TracingEnabled:    getEnvBool("PAWMARK_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("PAWMARK_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("PAWMARK_TRACING_SAMPLE_RATE", 1.0),

		LeaderElectionEnabled: getEnvBool("PAWMARK_LEADER_ELECTION_ENABLED", false),
		RedisAddr:             getEnv("PAWMARK_REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("PAWMARK_REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("PAWMARK_REDIS_DB", 0),
		InstanceID:            getEnv("PAWMARK_INSTANCE_ID", ""),
		CacheEnabled:          getEnvBool("PAWMARK_CACHE_ENABLED", true),

		GeneticsSyncInterval:  time.Duration(getEnvInt("PAWMARK_GENETICS_SYNC_INTERVAL_MINUTES", 60)) * time.Minute,
		ReminderCheckInterval: time.Duration(getEnvInt("PAWMARK_REMINDER_CHECK_INTERVAL_MINUTES", 1)) * time.Minute,
		ReminderLeadMinutes:   getEnvInt("PAWMARK_REMINDER_LEAD_MINUTES", 60),

		GeneticsRemapPath: getEnv("PAWMARK_GENETICS_REMAP_PATH", ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("PAWMARK_DB_DSN must be provided")
	}

	if cfg.StorageBackend != StorageFilesystem && cfg.StorageBackend != StorageS3 {
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}

	if cfg.StorageBackend == StorageS3 && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("PAWMARK_S3_BUCKET must be provided for the s3 storage backend")
	}

	if cfg.ReminderLeadMinutes < 0 {
		return nil, fmt.Errorf("PAWMARK_REMINDER_LEAD_MINUTES must not be negative")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
