// Package packaging turns a downloaded archive into an installable one:
// license signatures injected, the package descriptor written at archive
// root, the bundle re-signed, and the whole thing repacked deterministically.
package packaging

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"howett.net/plist"

	"github.com/appflight/appflight/internal/logging"
	"github.com/appflight/appflight/internal/store"
)

var log = logging.L("packaging")

// repackEpoch is the fixed timestamp stamped on every repacked entry so two
// runs over the same inputs produce byte-identical archives.
var repackEpoch = time.Date(2009, 7, 10, 0, 0, 0, 0, time.UTC)

// Processor injects license material into downloaded archives. The zero
// value signs ad hoc with no identity overrides.
type Processor struct {
	Signer Signer
}

// Process rewrites the archive at archivePath in place: sinfs from the grant
// land under the bundle's SC_Info directory, the package descriptor is
// written at archive root, and the Signer gets a pass over Info.plist. All
// work happens in a temporary file next to the input; the input is only
// replaced after every step succeeded, so a failure leaves it untouched.
func (p *Processor) Process(archivePath string, grant store.DownloadGrant) (string, error) {
	src, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrInvalidArchive, filepath.Base(archivePath), err)
	}
	defer src.Close()

	appDir, err := findAppDir(&src.Reader)
	if err != nil {
		return "", err
	}

	info, err := readInfoPlist(&src.Reader, appDir)
	if err != nil {
		return "", err
	}

	signer := p.Signer
	if signer == nil {
		signer = AdHocSigner{}
	}
	if err := signer.Sign(info); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	sinfs := grant.Sinfs
	if len(sinfs) == 0 {
		// Grants for free items can come back without signatures. The
		// install side still expects the SC_Info directory, so a placeholder
		// record keeps it present. It carries no real entitlement.
		sinfs = []store.Sinf{{ID: 0, Data: []byte("sinf")}}
		log.Info("grant carries no signatures, writing placeholder", "bundleId", grant.Metadata.BundleID)
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".repack-*.ipa")
	if err != nil {
		return "", fmt.Errorf("%w: create workspace: %v", ErrIO, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := p.repack(tmp, &src.Reader, appDir, info, sinfs, grant.Metadata); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close workspace: %v", ErrIO, err)
	}

	if err := os.Rename(tmp.Name(), archivePath); err != nil {
		return "", fmt.Errorf("%w: replace archive: %v", ErrIO, err)
	}

	log.Info("archive processed",
		"bundleId", grant.Metadata.BundleID,
		"sinfs", len(sinfs),
		"path", archivePath)
	return archivePath, nil
}

// repack writes the output archive: source entries minus anything being
// replaced, then the sinf files and the package descriptor, all with sorted
// names and fixed timestamps.
func (p *Processor) repack(w io.Writer, src *zip.Reader, appDir string, info map[string]any, sinfs []store.Sinf, meta store.Metadata) error {
	infoPath := appDir + "/Info.plist"
	scInfoDir := appDir + "/SC_Info/"

	type entry struct {
		data io.Reader
		src  *zip.File
	}
	entries := make(map[string]entry)

	for _, f := range src.File {
		name := f.Name
		switch {
		case name == infoPath:
			// Rewritten below from the signed dictionary.
		case name == "iTunesMetadata.plist":
			// Replaced by the freshly generated descriptor.
		case strings.HasPrefix(name, scInfoDir) && strings.HasSuffix(name, ".sinf"):
			// Replaced by the grant's signatures.
		case strings.HasSuffix(name, "/"):
			// Directory markers are redundant in the rewritten archive.
		default:
			entries[name] = entry{src: f}
		}
	}

	infoBytes, err := plist.Marshal(info, plist.XMLFormat)
	if err != nil {
		return fmt.Errorf("%w: encode Info.plist: %v", ErrIO, err)
	}
	entries[infoPath] = entry{data: bytes.NewReader(infoBytes)}

	execName := bundleExecutable(info, appDir)
	for i, sinf := range sinfs {
		entries[sinfPath(scInfoDir, execName, i)] = entry{data: bytes.NewReader(sinf.Data)}
	}

	descriptor, err := packageDescriptor(meta)
	if err != nil {
		return err
	}
	entries["iTunesMetadata.plist"] = entry{data: bytes.NewReader(descriptor)}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		e := entries[name]
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: repackEpoch,
		})
		if err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrIO, name, err)
		}

		r := e.data
		if r == nil {
			rc, err := e.src.Open()
			if err != nil {
				return fmt.Errorf("%w: read %s: %v", ErrIO, name, err)
			}
			_, cerr := io.Copy(fw, rc)
			rc.Close()
			if cerr != nil {
				return fmt.Errorf("%w: copy %s: %v", ErrIO, name, cerr)
			}
			continue
		}
		if _, err := io.Copy(fw, r); err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrIO, name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finalize archive: %v", ErrIO, err)
	}
	return nil
}

// findAppDir locates the single application bundle and returns its archive
// path without trailing slash, e.g. "Payload/Example.app".
func findAppDir(r *zip.Reader) (string, error) {
	dirs := make(map[string]bool)
	for _, f := range r.File {
		rest, ok := strings.CutPrefix(f.Name, "Payload/")
		if !ok {
			continue
		}
		top, _, _ := strings.Cut(rest, "/")
		if strings.HasSuffix(top, ".app") {
			dirs["Payload/"+top] = true
		}
	}
	if len(dirs) != 1 {
		return "", fmt.Errorf("%w: found %d application bundles, want 1", ErrInvalidArchive, len(dirs))
	}
	for dir := range dirs {
		return dir, nil
	}
	return "", ErrInvalidArchive
}

func readInfoPlist(r *zip.Reader, appDir string) (map[string]any, error) {
	f, err := r.Open(appDir + "/Info.plist")
	if err != nil {
		return nil, fmt.Errorf("%w: bundle has no Info.plist", ErrInvalidArchive)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read Info.plist: %v", ErrIO, err)
	}

	info := make(map[string]any)
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: parse Info.plist: %v", ErrInvalidArchive, err)
	}
	return info, nil
}

// bundleExecutable resolves the name sinf files are derived from:
// CFBundleExecutable when present, otherwise the .app directory name.
func bundleExecutable(info map[string]any, appDir string) string {
	if name, ok := info["CFBundleExecutable"].(string); ok && name != "" {
		return name
	}
	return strings.TrimSuffix(path.Base(appDir), ".app")
}

// sinfPath names signature files from the bundle, not the signature id:
// the first is <Executable>.sinf, the rest <Executable><index>.sinf.
func sinfPath(scInfoDir, execName string, index int) string {
	if index == 0 {
		return scInfoDir + execName + ".sinf"
	}
	return fmt.Sprintf("%s%s%d.sinf", scInfoDir, execName, index)
}

// packageDescriptor builds iTunesMetadata.plist from the grant metadata plus
// classification defaults for keys the storefront left unset.
func packageDescriptor(meta store.Metadata) ([]byte, error) {
	doc := make(map[string]any, len(meta.Raw)+8)
	for k, v := range meta.Raw {
		doc[k] = v
	}

	setIfAbsent(doc, "softwareVersionBundleId", meta.BundleID)
	setIfAbsent(doc, "bundleDisplayName", meta.DisplayName)
	setIfAbsent(doc, "bundleShortVersionString", meta.ShortVersion)
	if meta.ExternalVersionID != 0 {
		setIfAbsent(doc, "softwareVersionExternalIdentifier", meta.ExternalVersionID)
	}
	setIfAbsent(doc, "kind", "software")
	setIfAbsent(doc, "product-type", "C")
	setIfAbsent(doc, "pricingParameters", "STDQ")

	data, err := plist.Marshal(doc, plist.XMLFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: encode package descriptor: %v", ErrIO, err)
	}
	return data, nil
}

func setIfAbsent(doc map[string]any, key string, value any) {
	if _, ok := doc[key]; ok {
		return
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return
		}
	}
	doc[key] = value
}
