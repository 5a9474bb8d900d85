package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var regionRegex = regexp.MustCompile(`^[A-Za-z]{2}$`)

// guid is the machine identifier sent to the store: hex digits, no separators.
var guidRegex = regexp.MustCompile(`^[0-9A-Fa-f]{12}$`)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validKeyringBackends = map[string]bool{
	"auto":           true,
	"keychain":       true,
	"secret-service": true,
	"wincred":        true,
	"file":           true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous zero-values that would break the download engine are clamped to
// safe defaults. Other validation errors are logged as warnings but do not
// prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.Region != "" && !regionRegex.MatchString(c.Region) {
		errs = append(errs, fmt.Errorf("region %q is not a two-letter storefront code", c.Region))
	}

	if c.GUID != "" && !guidRegex.MatchString(c.GUID) {
		errs = append(errs, fmt.Errorf("guid %q is not 12 hex digits", c.GUID))
	}

	// Clamp concurrency settings to safe range
	if c.MaxConcurrentDownloads < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_downloads %d is below minimum 1, clamping", c.MaxConcurrentDownloads))
		c.MaxConcurrentDownloads = 1
	} else if c.MaxConcurrentDownloads > 16 {
		errs = append(errs, fmt.Errorf("max_concurrent_downloads %d exceeds maximum 16, clamping", c.MaxConcurrentDownloads))
		c.MaxConcurrentDownloads = 16
	}

	if c.DownloadQueueSize < 1 {
		errs = append(errs, fmt.Errorf("download_queue_size %d is below minimum 1, clamping", c.DownloadQueueSize))
		c.DownloadQueueSize = 1
	} else if c.DownloadQueueSize > 1024 {
		errs = append(errs, fmt.Errorf("download_queue_size %d exceeds maximum 1024, clamping", c.DownloadQueueSize))
		c.DownloadQueueSize = 1024
	}

	if c.HTTPTimeoutSeconds < 5 {
		errs = append(errs, fmt.Errorf("http_timeout_seconds %d is below minimum 5, clamping", c.HTTPTimeoutSeconds))
		c.HTTPTimeoutSeconds = 5
	} else if c.HTTPTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("http_timeout_seconds %d exceeds maximum 600, clamping", c.HTTPTimeoutSeconds))
		c.HTTPTimeoutSeconds = 600
	}

	if c.InstallTimeoutSeconds < 30 {
		errs = append(errs, fmt.Errorf("install_timeout_seconds %d is below minimum 30, clamping", c.InstallTimeoutSeconds))
		c.InstallTimeoutSeconds = 30
	} else if c.InstallTimeoutSeconds > 3600 {
		errs = append(errs, fmt.Errorf("install_timeout_seconds %d exceeds maximum 3600, clamping", c.InstallTimeoutSeconds))
		c.InstallTimeoutSeconds = 3600
	}

	if c.KeyringBackend != "" && !validKeyringBackends[strings.ToLower(c.KeyringBackend)] {
		errs = append(errs, fmt.Errorf("keyring_backend %q is not valid (use auto, keychain, secret-service, wincred, file)", c.KeyringBackend))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	// Log validation errors as warnings
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
