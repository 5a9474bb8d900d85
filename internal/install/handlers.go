package install

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/appflight/appflight/internal/health"
)

// sessionHandler serves one package: its archive, its manifest, the trigger
// page, and icons. Requests for other bundle ids are 404s.
func (c *Coordinator) sessionHandler(s *activeSession) http.Handler {
	req := s.Request
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, c.monitor)
	})

	mux.HandleFunc("GET /ipa/{bundleID}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("bundleID") != req.BundleID {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, req.ArchivePath)
	})

	mux.HandleFunc("GET /plist/{bundleID}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("bundleID") != req.BundleID {
			http.NotFound(w, r)
			return
		}
		// The device fetches the package through whatever host it reached
		// the manifest on, so the asset URL reuses the request host.
		ipaURL := fmt.Sprintf("http://%s/ipa/%s", r.Host, req.BundleID)
		writeManifest(w, req, ipaURL)
	})

	mux.HandleFunc("GET /install", func(w http.ResponseWriter, r *http.Request) {
		writeInstallPage(w, req.Title, s.TriggerURL)
	})

	mux.HandleFunc("GET /icon/{size}", func(w http.ResponseWriter, r *http.Request) {
		serveIcon(w, r, req)
	})

	return mux
}

func writeManifest(w http.ResponseWriter, req Request, ipaURL string) {
	data, err := manifestBytes(req.BundleID, req.Version, req.Title, ipaURL)
	if err != nil {
		log.Error("render manifest", "bundleId", req.BundleID, "error", err)
		http.Error(w, "manifest unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write(data)
}

// serveIcon redirects to the storefront artwork. Grants without artwork get
// a 404; the install page tolerates that.
func serveIcon(w http.ResponseWriter, r *http.Request, req Request) {
	var target string
	switch r.PathValue("size") {
	case "display":
		target = req.IconDisplayURL
	case "fullsize":
		target = req.IconFullsizeURL
	default:
		http.NotFound(w, r)
		return
	}
	if target == "" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func writeHealth(w http.ResponseWriter, monitor *health.Monitor) {
	w.Header().Set("Content-Type", "application/json")
	if monitor == nil {
		json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
		return
	}
	json.NewEncoder(w).Encode(monitor.Summary())
}

const installPage = `<!DOCTYPE html>
<html>
<head>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Install %[1]s</title>
</head>
<body>
  <h1>%[1]s</h1>
  <p><a href="%[2]s">Tap to install</a></p>
  <p><img src="/icon/display" alt="" onerror="this.style.display='none'"></p>
</body>
</html>
`

func writeInstallPage(w http.ResponseWriter, title, trigger string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, installPage, title, trigger)
}
