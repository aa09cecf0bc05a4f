// internal/config/env.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overrides cfg with INTELLINSPECT_* environment variables
func LoadFromEnv(cfg *Config) error {
	strs := map[string]*string{
		"INTELLINSPECT_LOG_LEVEL":          &cfg.Server.LogLevel,
		"INTELLINSPECT_LOG_FORMAT":         &cfg.Server.LogFormat,
		"INTELLINSPECT_STORE_DRIVER":       &cfg.Store.Driver,
		"INTELLINSPECT_STORE_DSN":          &cfg.Store.DSN,
		"INTELLINSPECT_ORACLE_URL":         &cfg.Oracle.BaseURL,
		"INTELLINSPECT_DATA_DIR":           &cfg.Datasets.DataDir,
		"INTELLINSPECT_INBOX_DIR":          &cfg.Datasets.InboxDir,
		"INTELLINSPECT_LABEL_COLUMN":       &cfg.Datasets.Polarity.Column,
		"INTELLINSPECT_S3_REGION":          &cfg.Datasets.S3.Region,
		"INTELLINSPECT_S3_ENDPOINT":        &cfg.Datasets.S3.Endpoint,
		"INTELLINSPECT_S3_ACCESS_KEY":      &cfg.Datasets.S3.AccessKey,
		"INTELLINSPECT_S3_SECRET_KEY":      &cfg.Datasets.S3.SecretKey,
		"INTELLINSPECT_REDIS_ADDR":         &cfg.Redis.Addr,
		"INTELLINSPECT_REDIS_PASSWORD":     &cfg.Redis.Password,
		"INTELLINSPECT_RETENTION_SCHEDULE": &cfg.Retention.Schedule,
	}
	for key, dst := range strs {
		*dst = GetEnvOrDefault(key, *dst)
	}

	ints := map[string]*int{
		"INTELLINSPECT_PORT":          &cfg.Server.Port,
		"INTELLINSPECT_PERSIST_EVERY": &cfg.Replay.PersistEvery,
		"INTELLINSPECT_CACHE_SIZE":    &cfg.Datasets.CacheSize,
		"INTELLINSPECT_PASS_VALUE":    &cfg.Datasets.Polarity.PassValue,
		"INTELLINSPECT_DEFECT_VALUE":  &cfg.Datasets.Polarity.DefectValue,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("INTELLINSPECT_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: INTELLINSPECT_WATCH: %w", err)
		}
		cfg.Datasets.Watch = b
	}
	if v := os.Getenv("INTELLINSPECT_RETENTION_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: INTELLINSPECT_RETENTION_MAX_AGE: %w", err)
		}
		cfg.Retention.MaxAge = d
	}
	return nil
}

// GetEnvOrDefault returns the value of key, or fallback when it is unset or empty
func GetEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
