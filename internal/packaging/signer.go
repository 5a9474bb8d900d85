package packaging

// Signer rewrites the application bundle's identity during repack. It gets
// the decoded Info.plist dictionary and mutates it in place; any error
// aborts processing with ErrSigningFailed.
type Signer interface {
	Sign(info map[string]any) error
}

// AdHocSigner normalizes bundle identity without a real signing chain: any
// non-empty override replaces the matching Info.plist key. The zero value
// leaves the bundle untouched, which is the default for store-granted
// packages that already carry their license material.
type AdHocSigner struct {
	BundleID string
	Name     string
	Version  string
}

func (s AdHocSigner) Sign(info map[string]any) error {
	if s.BundleID != "" {
		info["CFBundleIdentifier"] = s.BundleID
	}
	if s.Name != "" {
		info["CFBundleDisplayName"] = s.Name
		info["CFBundleName"] = s.Name
	}
	if s.Version != "" {
		info["CFBundleShortVersionString"] = s.Version
	}
	return nil
}
