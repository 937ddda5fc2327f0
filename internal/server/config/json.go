package config

import (
	"encoding/json"
	"os"
	"time"

	"sharefile/internal/flagx"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. Duration fields are integers in minutes, matching the flag surface.
// After unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	DatabaseDSN            string `json:"database_dsn"`
	StorageRoot            string `json:"storage_root"`
	MaxChunkSize           int64  `json:"max_chunk_size"`
	DefaultChunkSize       int64  `json:"default_chunk_size"`
	SessionTTLMinutes      int    `json:"session_ttl_minutes"`
	DefaultLinkLifetimeMin int    `json:"default_link_lifetime_minutes"`
	MaxLinkLifetimeMin     int    `json:"max_link_lifetime_minutes"`
	SecretKey              string `json:"secret_key"`
	ShortCodeLength        int    `json:"short_code_length"`
	FinalizeWorkers        int    `json:"finalize_workers"`
	CleanupIntervalMinutes int    `json:"cleanup_interval_minutes"`
	S3RootUser             string `json:"s3_root_user"`
	S3RootPassword         string `json:"s3_root_password"`
	S3Bucket               string `json:"s3_bucket"`
	S3Region               string `json:"s3_region"`
	S3BaseEndpoint         string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. Only fields present in
// the file override the current values. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.StorageRoot != "" {
		config.StorageRoot = c.StorageRoot
	}
	if c.MaxChunkSize > 0 {
		config.MaxChunkSize = c.MaxChunkSize
	}
	if c.DefaultChunkSize > 0 {
		config.DefaultChunkSize = c.DefaultChunkSize
	}
	if c.SessionTTLMinutes > 0 {
		config.SessionTTL = time.Duration(c.SessionTTLMinutes) * time.Minute
	}
	if c.DefaultLinkLifetimeMin > 0 {
		config.DefaultLinkLifetime = time.Duration(c.DefaultLinkLifetimeMin) * time.Minute
	}
	if c.MaxLinkLifetimeMin > 0 {
		config.MaxLinkLifetime = time.Duration(c.MaxLinkLifetimeMin) * time.Minute
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.ShortCodeLength > 0 {
		config.ShortCodeLength = c.ShortCodeLength
	}
	if c.FinalizeWorkers > 0 {
		config.FinalizeWorkers = c.FinalizeWorkers
	}
	if c.CleanupIntervalMinutes > 0 {
		config.CleanupInterval = time.Duration(c.CleanupIntervalMinutes) * time.Minute
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
}
