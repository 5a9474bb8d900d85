// Package store implements the vendor storefront protocol: plist-encoded RPC
// over HTTPS against the private finance endpoints, plus the public JSON
// catalog endpoints. Every call is tagged with the Account snapshot passed in
// by the caller. The client never reads a process-wide "current" account, so
// an account switch elsewhere cannot corrupt an in-flight exchange.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"howett.net/plist"

	"github.com/appflight/appflight/internal/logging"
	"github.com/appflight/appflight/internal/session"
	"github.com/appflight/appflight/internal/storefront"
)

var log = logging.L("store")

// userAgent mimics the vendor's own configurator tooling; the finance
// endpoints reject unknown clients.
const userAgent = "Configurator/2.15 (Macintosh; OS X 10.12.6; 16G29) AppleWebKit/2603.3.8"

const contentTypePlist = "application/x-apple-plist"

// Endpoints are the protocol URLs. Overridable for tests.
type Endpoints struct {
	Auth     string // authenticate (private, plist)
	Grant    string // volumeStoreDownloadProduct (private, plist)
	Purchase string // buyProduct (private, plist)
	Catalog  string // lookup/search base (public, JSON)
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Auth:     "https://buy.itunes.apple.com/WebObjects/MZFinance.woa/wa/authenticate",
		Grant:    "https://p25-buy.itunes.apple.com/WebObjects/MZFinance.woa/wa/volumeStoreDownloadProduct",
		Purchase: "https://buy.itunes.apple.com/WebObjects/MZBuy.woa/wa/buyProduct",
		Catalog:  "https://itunes.apple.com",
	}
}

// Client issues the four protocol operations. Safe for concurrent use; it
// holds no mutable per-account state.
type Client struct {
	http        *http.Client
	catalogHTTP *http.Client
	endpoints   Endpoints
	guid        string
	region      string
}

// New creates a protocol client. guid is the machine identifier sent with
// every private call; region is the default storefront for sign-in.
func New(endpoints Endpoints, guid, region string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		// Redirects are handled per-call: the finance endpoints redirect
		// POSTs across hosts and Go would otherwise downgrade them to GETs.
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		catalogHTTP: &http.Client{Timeout: timeout},
		endpoints:   endpoints,
		guid:        guid,
		region:      region,
	}
}

// GUID returns the machine identifier the client was built with.
func (c *Client) GUID() string { return c.guid }

// postPlist sends one plist-encoded POST, following cross-host redirects by
// re-POSTing the same body, and decodes the plist response into out. The
// returned cookies are every Set-Cookie observed across the exchange.
func (c *Client) postPlist(ctx context.Context, url string, acct *session.Account, body any, out any) ([]*http.Cookie, error) {
	data, err := plist.Marshal(body, plist.XMLFormat)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var cookies []*http.Cookie
	const maxRedirects = 4
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, acct)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}

		cookies = append(cookies, resp.Cookies()...)

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc, locErr := resp.Location()
			resp.Body.Close()
			if locErr != nil {
				return nil, fmt.Errorf("redirect without location: %w", locErr)
			}
			if hop >= maxRedirects {
				return nil, fmt.Errorf("too many redirects for %s", url)
			}
			url = loc.String()
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
		}

		if _, err := plist.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return cookies, nil
	}
}

// setHeaders tags the request with the caller-supplied account snapshot.
func (c *Client) setHeaders(req *http.Request, acct *session.Account) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", contentTypePlist)

	region := c.region
	if acct != nil {
		region = acct.Region
		req.Header.Set("X-Dsid", acct.DSID)
		req.Header.Set("iCloud-DSID", acct.DSID)
		if acct.PasswordToken != "" {
			req.Header.Set("X-Token", acct.PasswordToken)
		}
		for _, cookie := range acct.HTTPCookies() {
			req.AddCookie(cookie)
		}
	}
	if sf, ok := storefront.Header(region); ok {
		req.Header.Set("X-Apple-Store-Front", sf)
	}
}

func (c *Client) guidURL(base string) string {
	return base + "?guid=" + c.guid
}
