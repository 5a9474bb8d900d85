package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/appflight/appflight/internal/download"
	"github.com/appflight/appflight/internal/health"
)

// Server is the long-lived variant of the session endpoint: the same
// handler surface, resolving packages from the download engine instead of a
// single pinned archive, plus a websocket progress stream. It backs the
// serve command.
type Server struct {
	addr    string
	engine  *download.Engine
	monitor *health.Monitor
}

func NewServer(addr string, engine *download.Engine, monitor *health.Monitor) *Server {
	return &Server{addr: addr, engine: engine, monitor: monitor}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: bind %s: %v", ErrManifestServe, s.addr, err)
	}

	srv := &http.Server{
		Handler:     s.handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("server listening", "addr", ln.Addr().String())
	if s.monitor != nil {
		s.monitor.Update("server", health.Healthy, "listening")
	}

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%w: %v", ErrManifestServe, err)
	}
	return nil
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, s.monitor)
	})

	mux.Handle("GET /ws/progress", ProgressHandler(s.engine))

	mux.HandleFunc("GET /requests", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.engine.List())
	})

	mux.HandleFunc("GET /ipa/{bundleID}", func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.completed(r.PathValue("bundleID"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, req.Path)
	})

	mux.HandleFunc("GET /plist/{bundleID}", func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.completed(r.PathValue("bundleID"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		ipaURL := fmt.Sprintf("http://%s/ipa/%s", r.Host, req.Target.BundleID)
		writeManifest(w, Request{
			BundleID: req.Target.BundleID,
			Version:  req.Target.Version,
			Title:    req.Target.Name,
		}, ipaURL)
	})

	mux.HandleFunc("GET /install", func(w http.ResponseWriter, r *http.Request) {
		// The long-lived surface needs a bundle id to know which trigger to
		// render.
		bundleID := r.URL.Query().Get("bundleId")
		req, ok := s.completed(bundleID)
		if !ok {
			http.Error(w, "no completed download for bundle id", http.StatusNotFound)
			return
		}
		manifestURL := fmt.Sprintf("http://%s/plist/%s", r.Host, req.Target.BundleID)
		writeInstallPage(w, req.Target.Name, triggerURL(manifestURL))
	})

	mux.HandleFunc("GET /icon/{size}", func(w http.ResponseWriter, r *http.Request) {
		bundleID := r.URL.Query().Get("bundleId")
		req, ok := s.completed(bundleID)
		if !ok {
			http.NotFound(w, r)
			return
		}
		serveIcon(w, r, Request{
			IconDisplayURL:  req.Target.IconURL,
			IconFullsizeURL: req.Target.IconURL,
		})
	})

	return mux
}

// completed resolves a bundle id to its most recent completed download.
func (s *Server) completed(bundleID string) (download.Request, bool) {
	if bundleID == "" {
		return download.Request{}, false
	}
	var found download.Request
	ok := false
	for _, req := range s.engine.List() {
		if req.Status == download.StatusCompleted && req.Target.BundleID == bundleID {
			found = req
			ok = true
		}
	}
	return found, ok
}
