package install

import (
	"fmt"
	"net/url"

	"howett.net/plist"
)

// OTA manifest document. The device installer fetches this from the local
// endpoint and pulls the package from the URL inside it.
type manifest struct {
	Items []manifestItem `plist:"items"`
}

type manifestItem struct {
	Assets   []manifestAsset  `plist:"assets"`
	Metadata manifestMetadata `plist:"metadata"`
}

type manifestAsset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type manifestMetadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

// manifestBytes renders the OTA manifest for one package.
func manifestBytes(bundleID, version, title, ipaURL string) ([]byte, error) {
	doc := manifest{Items: []manifestItem{{
		Assets: []manifestAsset{{Kind: "software-package", URL: ipaURL}},
		Metadata: manifestMetadata{
			BundleIdentifier: bundleID,
			BundleVersion:    version,
			Kind:             "software",
			Title:            title,
		},
	}}}

	data, err := plist.MarshalIndent(doc, plist.XMLFormat, "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode manifest: %v", ErrManifestServe, err)
	}
	return data, nil
}

// triggerURL builds the platform install trigger for a manifest URL.
func triggerURL(manifestURL string) string {
	return "itms-services://?action=download-manifest&url=" + url.QueryEscape(manifestURL)
}
