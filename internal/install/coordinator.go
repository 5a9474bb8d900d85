// Package install hands a processed archive to the platform installer: it
// serves the archive and an OTA manifest from a short-lived local endpoint
// and returns the trigger URL that starts the platform install flow. At
// most one installation session exists per process.
package install

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/appflight/appflight/internal/health"
	"github.com/appflight/appflight/internal/logging"
)

var log = logging.L("install")

// Request describes the package an installation session serves.
type Request struct {
	BundleID        string
	Version         string
	Title           string
	ArchivePath     string
	IconDisplayURL  string
	IconFullsizeURL string
}

// Session is the observer-facing view of an active installation.
type Session struct {
	ID          string
	Request     Request
	Addr        string
	ManifestURL string
	TriggerURL  string
	StartedAt   time.Time
}

type activeSession struct {
	Session
	server *http.Server
	timer  *time.Timer
}

// Options configures a Coordinator.
type Options struct {
	// Timeout bounds a session's lifetime. The platform install flow gives
	// no completion callback, so every session self-terminates.
	Timeout time.Duration
	// ListenAddr is the bind address for session endpoints.
	ListenAddr string
	// Monitor, when set, receives installer health updates.
	Monitor *health.Monitor
}

// Coordinator enforces the one-install-at-a-time invariant and owns the
// lifecycle of the session endpoint.
type Coordinator struct {
	timeout time.Duration
	addr    string
	monitor *health.Monitor

	busy   atomic.Bool
	mu     sync.Mutex
	active *activeSession
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}
	c := &Coordinator{
		timeout: opts.Timeout,
		addr:    opts.ListenAddr,
		monitor: opts.Monitor,
	}
	c.report(health.Healthy, "idle")
	return c
}

// Begin claims the exclusivity flag, binds an ephemeral port serving the
// archive and its manifest, and returns the session with its trigger URL.
// The flag is released on End, on timeout, and on every failure path here.
func (c *Coordinator) Begin(ctx context.Context, req Request) (Session, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Session{}, ErrInstallInProgress
	}

	if _, err := os.Stat(req.ArchivePath); err != nil {
		c.busy.Store(false)
		return Session{}, fmt.Errorf("%w: archive unavailable: %v", ErrManifestServe, err)
	}

	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		c.busy.Store(false)
		c.report(health.Unhealthy, "bind failed")
		return Session{}, fmt.Errorf("%w: bind %s: %v", ErrManifestServe, c.addr, err)
	}

	id := uuid.NewString()
	addr := ln.Addr().String()
	manifestURL := fmt.Sprintf("http://%s/plist/%s", addr, req.BundleID)

	s := &activeSession{Session: Session{
		ID:          id,
		Request:     req,
		Addr:        addr,
		ManifestURL: manifestURL,
		TriggerURL:  triggerURL(manifestURL),
		StartedAt:   time.Now(),
	}}
	s.server = &http.Server{
		Handler:     c.sessionHandler(s),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	c.mu.Lock()
	c.active = s
	s.timer = time.AfterFunc(c.timeout, func() {
		log.Warn("installation session timed out", "sessionId", id, "bundleId", req.BundleID)
		c.End(id)
	})
	c.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("session endpoint failed", "sessionId", id, "error", err)
			c.report(health.Unhealthy, "session endpoint failed")
			c.End(id)
		}
	}()

	c.report(health.Healthy, "session active")
	log.Info("installation session started",
		"sessionId", id,
		"bundleId", req.BundleID,
		"addr", addr)
	return s.Session, nil
}

// End tears down the session endpoint and releases the exclusivity flag.
func (c *Coordinator) End(sessionID string) error {
	c.mu.Lock()
	s := c.active
	if s == nil || s.ID != sessionID {
		c.mu.Unlock()
		return ErrUnknownSession
	}
	c.active = nil
	c.mu.Unlock()

	s.timer.Stop()
	s.server.Close()
	c.busy.Store(false)
	c.report(health.Healthy, "idle")

	log.Info("installation session ended", "sessionId", sessionID)
	return nil
}

// Active returns the current session, if any.
func (c *Coordinator) Active() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Session{}, false
	}
	return c.active.Session, true
}

func (c *Coordinator) report(status health.Status, msg string) {
	if c.monitor != nil {
		c.monitor.Update("installer", status, msg)
	}
}
