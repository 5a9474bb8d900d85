package main

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"howett.net/plist"

	"github.com/appflight/appflight/internal/config"
	"github.com/appflight/appflight/internal/session"
	"github.com/appflight/appflight/internal/store"
)

// buildFixtureArchive produces a minimal unsigned package: one app bundle
// with an Info.plist and an executable stub.
func buildFixtureArchive(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	info, err := plist.Marshal(map[string]any{
		"CFBundleIdentifier":         "com.example.app",
		"CFBundleExecutable":         "Example",
		"CFBundleShortVersionString": "2.1.0",
	}, plist.XMLFormat)
	if err != nil {
		t.Fatalf("marshal Info.plist: %v", err)
	}

	for name, data := range map[string][]byte{
		"Payload/Example.app/Info.plist": info,
		"Payload/Example.app/Example":    []byte("binary"),
	} {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

func TestDownloadCommandEndToEnd(t *testing.T) {
	payload := buildFixtureArchive(t)
	sum := md5.Sum(payload)

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "pkg.ipa", time.Time{}, bytes.NewReader(payload))
	}))
	defer cdn.Close()

	grantSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if _, err := plist.Unmarshal(body, &req); err != nil {
			t.Errorf("decode grant request: %v", err)
		}
		if _, ok := req["salableAdamId"]; !ok {
			t.Error("grant request missing salableAdamId")
		}

		resp, err := plist.Marshal(map[string]any{
			"songList": []any{map[string]any{
				"URL": cdn.URL + "/pkg.ipa",
				"md5": hex.EncodeToString(sum[:]),
				"sinfs": []any{map[string]any{
					"id":   int64(0),
					"sinf": []byte("license-material"),
				}},
				"metadata": map[string]any{
					"softwareVersionBundleId":           "com.example.app",
					"bundleDisplayName":                 "Example",
					"bundleShortVersionString":          "2.1.0",
					"softwareVersionExternalIdentifier": int64(845),
				},
			}},
		}, plist.XMLFormat)
		if err != nil {
			t.Errorf("marshal grant response: %v", err)
		}
		w.Write(resp)
	}))
	defer grantSrv.Close()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lookup" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("bundleId"); got != "com.example.app" {
			t.Errorf("lookup bundleId = %q, want %q", got, "com.example.app")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"resultCount": 1,
			"results": []map[string]any{{
				"trackId":       int64(1234),
				"bundleId":      "com.example.app",
				"trackName":     "Example",
				"version":       "2.1.0",
				"price":         0.0,
				"sellerName":    "Example Inc",
				"fileSizeBytes": "6",
			}},
		})
	}))
	defer catalog.Close()

	cfg := config.Default()
	cfg.DownloadDir = t.TempDir()
	cfg.DataDir = t.TempDir()

	a := &app{
		cfg: cfg,
		client: store.New(store.Endpoints{
			Auth:     grantSrv.URL + "/auth",
			Grant:    grantSrv.URL,
			Purchase: grantSrv.URL + "/buy",
			Catalog:  catalog.URL,
		}, "AABBCCDDEEFF", "US", 5*time.Second),
	}
	acct := session.Account{
		Email:         "user@example.com",
		DSID:          "123",
		PasswordToken: "tok",
		Region:        "US",
	}

	downloadVersionID = 0
	downloadAutoBuy = false
	downloadSkipProcess = false

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path, err := runDownload(ctx, a, acct, "com.example.app")
	if err != nil {
		t.Fatalf("runDownload: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("processed archive missing: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open processed archive: %v", err)
	}
	defer zr.Close()

	entries := map[string]bool{}
	for _, f := range zr.File {
		entries[f.Name] = true
	}
	if !entries["Payload/Example.app/SC_Info/Example.sinf"] {
		t.Error("processed archive missing injected signature")
	}
	if !entries["iTunesMetadata.plist"] {
		t.Error("processed archive missing package descriptor")
	}

	rc, err := zr.Open("iTunesMetadata.plist")
	if err != nil {
		t.Fatalf("open descriptor: %v", err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}
	var meta map[string]any
	if _, err := plist.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if got, _ := meta["softwareVersionBundleId"].(string); got != "com.example.app" {
		t.Errorf("descriptor bundle id = %q, want %q", got, "com.example.app")
	}
	if got, _ := meta["kind"].(string); got != "software" {
		t.Errorf("descriptor kind = %q, want %q", got, "software")
	}
	if got, _ := meta["pricingParameters"].(string); got != "STDQ" {
		t.Errorf("descriptor pricingParameters = %q, want %q", got, "STDQ")
	}
}

// An unowned free item: the first grant call reports a missing license, the
// --purchase path acquires one, and the retried grant succeeds.
func TestDownloadAcquiresMissingLicense(t *testing.T) {
	payload := buildFixtureArchive(t)
	sum := md5.Sum(payload)

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "pkg.ipa", time.Time{}, bytes.NewReader(payload))
	}))
	defer cdn.Close()

	var owned atomic.Bool
	var purchaseCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/grant", func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]any
		if !owned.Load() {
			doc = map[string]any{
				"failureType":     "9610",
				"customerMessage": "License not found.",
			}
		} else {
			doc = map[string]any{
				"songList": []any{map[string]any{
					"URL": cdn.URL + "/pkg.ipa",
					"md5": hex.EncodeToString(sum[:]),
					"sinfs": []any{map[string]any{
						"id":   int64(0),
						"sinf": []byte("license-material"),
					}},
					"metadata": map[string]any{
						"softwareVersionBundleId":  "com.example.app",
						"bundleShortVersionString": "2.1.0",
					},
				}},
			}
		}
		resp, err := plist.Marshal(doc, plist.XMLFormat)
		if err != nil {
			t.Errorf("marshal grant response: %v", err)
		}
		w.Write(resp)
	})
	mux.HandleFunc("/buy", func(w http.ResponseWriter, r *http.Request) {
		purchaseCalls.Add(1)
		owned.Store(true)
		resp, err := plist.Marshal(map[string]any{
			"jingleDocType": "purchaseSuccess",
			"status":        0,
		}, plist.XMLFormat)
		if err != nil {
			t.Errorf("marshal purchase response: %v", err)
		}
		w.Write(resp)
	})
	finance := httptest.NewServer(mux)
	defer finance.Close()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"resultCount": 1,
			"results": []map[string]any{{
				"trackId":   int64(1234),
				"bundleId":  "com.example.app",
				"trackName": "Example",
				"version":   "2.1.0",
				"price":     0.0,
			}},
		})
	}))
	defer catalog.Close()

	cfg := config.Default()
	cfg.DownloadDir = t.TempDir()
	cfg.DataDir = t.TempDir()

	a := &app{
		cfg: cfg,
		client: store.New(store.Endpoints{
			Auth:     finance.URL + "/auth",
			Grant:    finance.URL + "/grant",
			Purchase: finance.URL + "/buy",
			Catalog:  catalog.URL,
		}, "AABBCCDDEEFF", "US", 5*time.Second),
	}
	acct := session.Account{
		Email:         "user@example.com",
		DSID:          "123",
		PasswordToken: "tok",
		Region:        "US",
	}

	downloadVersionID = 0
	downloadSkipProcess = false
	downloadAutoBuy = true
	t.Cleanup(func() { downloadAutoBuy = false })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path, err := runDownload(ctx, a, acct, "com.example.app")
	if err != nil {
		t.Fatalf("runDownload: %v", err)
	}
	if got := purchaseCalls.Load(); got != 1 {
		t.Fatalf("purchase calls = %d, want 1", got)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("processed archive missing: %v", err)
	}
}
