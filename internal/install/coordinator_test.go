package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"howett.net/plist"

	"github.com/appflight/appflight/internal/health"
)

func writeArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "com.example.app.ipa")
	if err := os.WriteFile(path, []byte("processed archive bytes"), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func testRequest(t *testing.T) Request {
	return Request{
		BundleID:       "com.example.app",
		Version:        "2.1.0",
		Title:          "Example",
		ArchivePath:    writeArchive(t),
		IconDisplayURL: "https://cdn.example.com/icon.png",
	}
}

func newCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	c := NewCoordinator(opts)
	t.Cleanup(func() {
		if s, ok := c.Active(); ok {
			c.End(s.ID)
		}
	})
	return c
}

func get(t *testing.T, rawURL string) (*http.Response, []byte) {
	t.Helper()
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", rawURL, err)
	}
	return resp, body
}

func TestBeginServesManifestAndArchive(t *testing.T) {
	c := newCoordinator(t, Options{})
	s, err := c.Begin(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if !strings.HasPrefix(s.TriggerURL, "itms-services://?action=download-manifest&url=") {
		t.Errorf("trigger URL = %q", s.TriggerURL)
	}
	encoded := strings.TrimPrefix(s.TriggerURL, "itms-services://?action=download-manifest&url=")
	decoded, err := url.QueryUnescape(encoded)
	if err != nil || decoded != s.ManifestURL {
		t.Errorf("trigger URL does not embed manifest URL: %q vs %q", decoded, s.ManifestURL)
	}

	resp, body := get(t, s.ManifestURL)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("manifest status = %d", resp.StatusCode)
	}

	var doc manifest
	if _, err := plist.Unmarshal(body, &doc); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("manifest items = %d, want 1", len(doc.Items))
	}
	item := doc.Items[0]
	if item.Metadata.BundleIdentifier != "com.example.app" {
		t.Errorf("bundle id = %q", item.Metadata.BundleIdentifier)
	}
	if item.Metadata.Kind != "software" {
		t.Errorf("metadata kind = %q", item.Metadata.Kind)
	}
	if len(item.Assets) != 1 || item.Assets[0].Kind != "software-package" {
		t.Fatalf("assets = %+v", item.Assets)
	}

	resp, body = get(t, item.Assets[0].URL)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d", resp.StatusCode)
	}
	if string(body) != "processed archive bytes" {
		t.Error("served archive does not match file")
	}

	resp, _ = get(t, fmt.Sprintf("http://%s/ipa/com.other.app", s.Addr))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign bundle id status = %d, want 404", resp.StatusCode)
	}

	resp, _ = get(t, fmt.Sprintf("http://%s/icon/display", s.Addr))
	if resp.StatusCode != http.StatusFound {
		t.Errorf("icon status = %d, want 302", resp.StatusCode)
	}

	resp, body = get(t, fmt.Sprintf("http://%s/install", s.Addr))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("install page status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "itms-services://") {
		t.Error("install page missing trigger link")
	}
}

func TestGlobalExclusivity(t *testing.T) {
	c := newCoordinator(t, Options{})
	req := testRequest(t)

	var mu sync.Mutex
	var sessions []Session
	var failures []error
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Begin(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			sessions = append(sessions, s)
		}()
	}
	wg.Wait()

	if len(sessions) != 1 || len(failures) != 1 {
		t.Fatalf("sessions = %d, failures = %d, want exactly one of each", len(sessions), len(failures))
	}
	if !errors.Is(failures[0], ErrInstallInProgress) {
		t.Fatalf("concurrent Begin error = %v, want ErrInstallInProgress", failures[0])
	}

	// Ending the winner frees the flag for the next install.
	if err := c.End(sessions[0].ID); err != nil {
		t.Fatalf("End: %v", err)
	}
	s2, err := c.Begin(context.Background(), req)
	if err != nil {
		t.Fatalf("Begin after End: %v", err)
	}
	c.End(s2.ID)
}

func TestBeginFailureReleasesFlag(t *testing.T) {
	c := newCoordinator(t, Options{})

	req := testRequest(t)
	req.ArchivePath = filepath.Join(t.TempDir(), "missing.ipa")
	if _, err := c.Begin(context.Background(), req); !errors.Is(err, ErrManifestServe) {
		t.Fatalf("Begin with missing archive = %v, want ErrManifestServe", err)
	}

	// The failed attempt must not leave the coordinator busy.
	s, err := c.Begin(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Begin after failure: %v", err)
	}
	c.End(s.ID)
}

func TestSessionTimeoutReleasesFlag(t *testing.T) {
	monitor := health.NewMonitor()
	c := newCoordinator(t, Options{Timeout: 50 * time.Millisecond, Monitor: monitor})

	s, err := c.Begin(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := c.Active(); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session never timed out")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := c.End(s.ID); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("End after timeout = %v, want ErrUnknownSession", err)
	}

	s2, err := c.Begin(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Begin after timeout: %v", err)
	}
	c.End(s2.ID)
}

func TestEndUnknownSession(t *testing.T) {
	c := newCoordinator(t, Options{})
	if err := c.End("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("End(unknown) = %v, want ErrUnknownSession", err)
	}
}
