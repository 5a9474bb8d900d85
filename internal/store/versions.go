package store

import (
	"context"
	"fmt"

	"github.com/appflight/appflight/internal/session"
)

// VersionDescriptor identifies one build of a package. Label carries a human
// version string only for the current build; historical builds get an index
// placeholder because the grant metadata exposes their external identifiers
// without version strings.
type VersionDescriptor struct {
	ExternalID int64
	Label      string
	Current    bool
}

// Versions lists the builds the store exposes for an item, newest first. The
// list is derived from a download grant for the current build: its metadata
// carries the full historical external-identifier list when the server
// exposes one.
func (c *Client) Versions(ctx context.Context, itemID int64, acct session.Account) ([]VersionDescriptor, error) {
	grant, err := c.DownloadGrant(ctx, itemID, acct, 0)
	if err != nil {
		return nil, fmt.Errorf("versions: %w", err)
	}

	md := grant.Metadata
	current := VersionDescriptor{
		ExternalID: md.ExternalVersionID,
		Label:      md.ShortVersion,
		Current:    true,
	}
	if current.Label == "" {
		current.Label = "current version"
	}

	out := []VersionDescriptor{current}

	// The identifier list arrives oldest-first; walk it backwards and skip
	// the current build so ordering is newest-first without duplicates.
	n := len(md.ExternalVersionIDs)
	for i := n - 1; i >= 0; i-- {
		id := md.ExternalVersionIDs[i]
		if id == md.ExternalVersionID {
			continue
		}
		out = append(out, VersionDescriptor{
			ExternalID: id,
			Label:      fmt.Sprintf("historical version %d", i+1),
		})
	}
	return out, nil
}
