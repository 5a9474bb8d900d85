package packaging

import (
	"archive/zip"
	"path"
	"strings"
)

// Identity is the subset of bundle metadata needed to describe an archive
// to the installer.
type Identity struct {
	BundleID string
	Name     string
	Version  string
}

// Inspect reads bundle identity from an archive without modifying it.
func Inspect(archivePath string) (Identity, error) {
	src, err := zip.OpenReader(archivePath)
	if err != nil {
		return Identity{}, ErrInvalidArchive
	}
	defer src.Close()

	appDir, err := findAppDir(&src.Reader)
	if err != nil {
		return Identity{}, err
	}
	info, err := readInfoPlist(&src.Reader, appDir)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{
		BundleID: stringKey(info, "CFBundleIdentifier"),
		Name:     stringKey(info, "CFBundleDisplayName"),
		Version:  stringKey(info, "CFBundleShortVersionString"),
	}
	if id.Name == "" {
		id.Name = stringKey(info, "CFBundleName")
	}
	if id.Name == "" {
		id.Name = strings.TrimSuffix(path.Base(appDir), ".app")
	}
	return id, nil
}

func stringKey(info map[string]any, key string) string {
	s, _ := info[key].(string)
	return s
}
