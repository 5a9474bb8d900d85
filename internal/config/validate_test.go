package config

import (
	"strings"
	"testing"
)

func TestValidateDefaultsAreClean(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config has validation errors: %v", errs)
	}
}

func TestValidateBadRegion(t *testing.T) {
	cfg := Default()
	cfg.Region = "USA"
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected error for three-letter region")
	}
	if !strings.Contains(errs[0].Error(), "storefront code") {
		t.Fatalf("unexpected error: %v", errs[0])
	}
}

func TestValidateBadGUID(t *testing.T) {
	cfg := Default()
	cfg.GUID = "not-hex"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Fatal("expected error for malformed guid")
	}

	cfg = Default()
	cfg.GUID = "AABBCCDDEEFF"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("valid guid rejected: %v", errs)
	}
}

func TestValidateConcurrencyClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentDownloads = 0
	cfg.DownloadQueueSize = 0
	cfg.Validate()
	if cfg.MaxConcurrentDownloads != 1 {
		t.Fatalf("MaxConcurrentDownloads = %d, want 1 (clamped)", cfg.MaxConcurrentDownloads)
	}
	if cfg.DownloadQueueSize != 1 {
		t.Fatalf("DownloadQueueSize = %d, want 1 (clamped)", cfg.DownloadQueueSize)
	}

	cfg = Default()
	cfg.MaxConcurrentDownloads = 99
	cfg.Validate()
	if cfg.MaxConcurrentDownloads != 16 {
		t.Fatalf("MaxConcurrentDownloads = %d, want 16 (clamped)", cfg.MaxConcurrentDownloads)
	}
}

func TestValidateTimeoutClamping(t *testing.T) {
	cfg := Default()
	cfg.HTTPTimeoutSeconds = 1
	cfg.InstallTimeoutSeconds = 1
	cfg.Validate()
	if cfg.HTTPTimeoutSeconds != 5 {
		t.Fatalf("HTTPTimeoutSeconds = %d, want 5 (clamped)", cfg.HTTPTimeoutSeconds)
	}
	if cfg.InstallTimeoutSeconds != 30 {
		t.Fatalf("InstallTimeoutSeconds = %d, want 30 (clamped)", cfg.InstallTimeoutSeconds)
	}
}

func TestValidateUnknownKeyringBackend(t *testing.T) {
	cfg := Default()
	cfg.KeyringBackend = "vault"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Fatal("expected error for unknown keyring backend")
	}
}

func TestValidateUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidateInvalidLogFormat(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Fatal("expected error for invalid log format")
	}
}
