package session

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "appflight"

// OpenRing opens the credential store for the given backend. backend "auto"
// lets the keyring library pick the platform's native store; "file" forces
// the encrypted file fallback under dataDir.
func OpenRing(backend, dataDir string) (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName:              serviceName,
		KeychainTrustApplication: true,
		FileDir:                  filepath.Join(dataDir, "keyring"),
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName),
	}

	switch strings.ToLower(backend) {
	case "", "auto":
		// Native store first, file as last resort.
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.FileBackend,
		}
	case "keychain":
		cfg.AllowedBackends = []keyring.BackendType{keyring.KeychainBackend}
	case "secret-service":
		cfg.AllowedBackends = []keyring.BackendType{keyring.SecretServiceBackend}
	case "wincred":
		cfg.AllowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	case "file":
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	default:
		return nil, fmt.Errorf("unknown keyring backend %q", backend)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}
