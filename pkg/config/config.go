// Package config holds the process-wide settings for the ENI manager.
// Settings are an explicit value passed to constructors rather than
// package globals, so multiple managers with different settings can
// coexist in one process.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Settings holds configuration shared by every operation.
type Settings struct {
	// AWS region override. Empty means derive from instance identity.
	Region string
	// Static AWS credentials. Empty means the default credential chain.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Owner identity written to the created-by tag and matched during
	// cleanup.
	OwnerTag string
	// Default bound for convergence waits.
	Timeout time.Duration
	// Default interval between convergence checks.
	PollInterval time.Duration

	// Metadata retrieval budget.
	MetadataRetries int
	// Per-request timeout against the metadata endpoint.
	MetadataTimeout time.Duration
	// Base delay for the metadata retry backoff.
	MetadataBackoff time.Duration

	// EC2 API pacing.
	APIRate  float64
	APIBurst int

	// Address for the Prometheus endpoint. Empty disables it.
	MetricsAddr string
}

// Default returns the default settings.
func Default() *Settings {
	return &Settings{
		OwnerTag:        "aws-eni-manager",
		Timeout:         30 * time.Second,
		PollInterval:    100 * time.Millisecond,
		MetadataRetries: 5,
		MetadataTimeout: 2 * time.Second,
		MetadataBackoff: 1 * time.Second,
		APIRate:         20.0,
		APIBurst:        4,
	}
}

// Load builds Settings from defaults, an optional .env file in the
// working directory, and environment variables. Environment variables
// take precedence over the file.
func Load() (*Settings, error) {
	v := viper.New()

	v.SetDefault("ENI_OWNER_TAG", "aws-eni-manager")
	v.SetDefault("ENI_TIMEOUT", "30s")
	v.SetDefault("ENI_POLL_INTERVAL", "100ms")
	v.SetDefault("ENI_METADATA_RETRIES", 5)
	v.SetDefault("ENI_METADATA_TIMEOUT", "2s")
	v.SetDefault("ENI_METADATA_BACKOFF", "1s")
	v.SetDefault("ENI_API_RATE", 20.0)
	v.SetDefault("ENI_API_BURST", 4)
	v.SetDefault("AWS_REGION", "")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("AWS_SESSION_TOKEN", "")
	v.SetDefault("METRICS_ADDR", "")

	// The .env file is optional; a present but unparsable file is fatal.
	if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading .env file: %v", err)
		}
	}
	v.AutomaticEnv()

	settings := &Settings{
		Region:          v.GetString("AWS_REGION"),
		AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    v.GetString("AWS_SESSION_TOKEN"),
		OwnerTag:        v.GetString("ENI_OWNER_TAG"),
		APIRate:         v.GetFloat64("ENI_API_RATE"),
		APIBurst:        v.GetInt("ENI_API_BURST"),
		MetricsAddr:     v.GetString("METRICS_ADDR"),
	}

	var err error
	if settings.Timeout, err = time.ParseDuration(v.GetString("ENI_TIMEOUT")); err != nil {
		return nil, fmt.Errorf("invalid ENI_TIMEOUT: %v", err)
	}
	if settings.PollInterval, err = time.ParseDuration(v.GetString("ENI_POLL_INTERVAL")); err != nil {
		return nil, fmt.Errorf("invalid ENI_POLL_INTERVAL: %v", err)
	}
	if settings.MetadataTimeout, err = time.ParseDuration(v.GetString("ENI_METADATA_TIMEOUT")); err != nil {
		return nil, fmt.Errorf("invalid ENI_METADATA_TIMEOUT: %v", err)
	}
	if settings.MetadataBackoff, err = time.ParseDuration(v.GetString("ENI_METADATA_BACKOFF")); err != nil {
		return nil, fmt.Errorf("invalid ENI_METADATA_BACKOFF: %v", err)
	}

	settings.MetadataRetries = v.GetInt("ENI_METADATA_RETRIES")
	if settings.MetadataRetries < 1 {
		return nil, fmt.Errorf("invalid ENI_METADATA_RETRIES: must be at least 1")
	}
	if settings.OwnerTag == "" {
		return nil, fmt.Errorf("invalid ENI_OWNER_TAG: must not be empty")
	}

	return settings, nil
}
