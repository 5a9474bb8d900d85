package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/appflight/appflight/internal/httputil"
)

// PackageSummary is a catalog entry from the public lookup/search endpoints.
type PackageSummary struct {
	ID         int64   `json:"trackId"`
	BundleID   string  `json:"bundleId"`
	Name       string  `json:"trackName"`
	Version    string  `json:"version"`
	Price      float64 `json:"price"`
	SellerName string  `json:"sellerName"`
	ArtworkURL string  `json:"artworkUrl512"`
	StoreURL   string  `json:"trackViewUrl"`
	SizeBytes  string  `json:"fileSizeBytes"`
}

type catalogResponse struct {
	ResultCount int              `json:"resultCount"`
	Results     []PackageSummary `json:"results"`
}

// Lookup resolves a bundle identifier in the given region's catalog. Returns
// ErrItemNotFound when the catalog has no match. No authentication required.
func (c *Client) Lookup(ctx context.Context, bundleID, region string) (PackageSummary, error) {
	q := url.Values{}
	q.Set("bundleId", bundleID)
	q.Set("entity", "software")
	q.Set("limit", "1")
	q.Set("country", region)

	results, err := c.catalog(ctx, "/lookup", q)
	if err != nil {
		return PackageSummary{}, err
	}
	if len(results) == 0 {
		return PackageSummary{}, fmt.Errorf("lookup %q in %s: %w", bundleID, region, ErrItemNotFound)
	}
	return results[0], nil
}

// Search runs a term search against the region's catalog.
func (c *Client) Search(ctx context.Context, term, region string, limit int) ([]PackageSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("term", term)
	q.Set("entity", "software")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("country", region)

	return c.catalog(ctx, "/search", q)
}

func (c *Client) catalog(ctx context.Context, path string, q url.Values) ([]PackageSummary, error) {
	endpoint := c.endpoints.Catalog + path + "?" + q.Encode()

	headers := http.Header{}
	headers.Set("User-Agent", userAgent)

	resp, err := httputil.Do(ctx, c.catalogHTTP, http.MethodGet, endpoint, nil, headers, httputil.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog request failed with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}

	var decoded catalogResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return decoded.Results, nil
}
