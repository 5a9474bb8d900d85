package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/appflight/appflight/internal/session"
)

// Sinf is one per-asset license signature blob from a download grant.
type Sinf struct {
	ID   int64
	Data []byte
}

// Metadata is the package metadata attached to a download grant.
type Metadata struct {
	BundleID           string
	DisplayName        string
	ShortVersion       string
	ExternalVersionID  int64
	ExternalVersionIDs []int64
	// Raw is the full metadata dictionary from the grant. It is written
	// verbatim (plus purchase defaults) into the package descriptor during
	// processing.
	Raw map[string]any
}

// DownloadGrant is the result of a successful license check: where to fetch
// the binary, what it must hash to, and the license material to inject.
// Sinfs may legitimately be empty for free items.
type DownloadGrant struct {
	URL      string
	MD5      string
	Sinfs    []Sinf
	Metadata Metadata
}

type grantSinf struct {
	ID   int64  `plist:"id"`
	Sinf []byte `plist:"sinf"`
}

type grantSong struct {
	URL   string         `plist:"URL"`
	MD5   string         `plist:"md5"`
	Sinfs []grantSinf    `plist:"sinfs"`
	Meta  map[string]any `plist:"metadata"`
}

type grantResponse struct {
	FailureType     string      `plist:"failureType"`
	CustomerMessage string      `plist:"customerMessage"`
	SongList        []grantSong `plist:"songList"`
}

// DownloadGrant performs the licensing call for a salable item. A non-zero
// externalVersionID requests a historical build instead of the current one.
// An unowned item surfaces as ErrLicenseRequired so the caller can choose
// between the purchase flow and a storefront redirect.
func (c *Client) DownloadGrant(ctx context.Context, itemID int64, acct session.Account, externalVersionID int64) (DownloadGrant, error) {
	if acct.DSID == "" {
		return DownloadGrant{}, fmt.Errorf("download grant: account snapshot missing directory services id")
	}

	body := map[string]any{
		"creditDisplay": "",
		"guid":          c.guid,
		"salableAdamId": itemID,
	}
	if externalVersionID != 0 {
		body["externalVersionId"] = externalVersionID
	}

	var resp grantResponse
	if _, err := c.postPlist(ctx, c.guidURL(c.endpoints.Grant), &acct, body, &resp); err != nil {
		return DownloadGrant{}, fmt.Errorf("download grant: %w", err)
	}

	if err := classifyFailure(resp.FailureType, resp.CustomerMessage); err != nil {
		return DownloadGrant{}, fmt.Errorf("download grant for %d: %w", itemID, err)
	}
	if len(resp.SongList) == 0 {
		return DownloadGrant{}, fmt.Errorf("download grant for %d: %w", itemID, ErrItemNotFound)
	}

	song := resp.SongList[0]
	grant := DownloadGrant{
		URL:      song.URL,
		MD5:      song.MD5,
		Metadata: metadataFromRaw(song.Meta),
	}
	for _, s := range song.Sinfs {
		grant.Sinfs = append(grant.Sinfs, Sinf{ID: s.ID, Data: s.Sinf})
	}

	log.Debug("grant issued",
		"bundleId", grant.Metadata.BundleID,
		"version", grant.Metadata.ShortVersion,
		"sinfs", len(grant.Sinfs),
	)
	return grant, nil
}

// metadataFromRaw pulls the typed fields out of the grant's metadata
// dictionary, keeping the rest for the package descriptor.
func metadataFromRaw(raw map[string]any) Metadata {
	md := Metadata{Raw: raw}
	if raw == nil {
		return md
	}
	md.BundleID, _ = raw["softwareVersionBundleId"].(string)
	md.DisplayName, _ = raw["bundleDisplayName"].(string)
	if md.DisplayName == "" {
		md.DisplayName, _ = raw["itemName"].(string)
	}
	md.ShortVersion, _ = raw["bundleShortVersionString"].(string)
	md.ExternalVersionID = toInt64(raw["softwareVersionExternalIdentifier"])
	if list, ok := raw["softwareVersionExternalIdentifiers"].([]any); ok {
		for _, v := range list {
			if id := toInt64(v); id != 0 {
				md.ExternalVersionIDs = append(md.ExternalVersionIDs, id)
			}
		}
	}
	return md
}

// toInt64 tolerates the integer encodings plist decoding can produce.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
