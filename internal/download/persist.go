package download

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/appflight/appflight/internal/store"
)

// persistedRequest carries everything needed to revive a request in a later
// process: the public snapshot plus the grant it was enqueued with.
type persistedRequest struct {
	Request
	Grant store.DownloadGrant `json:"grant"`
}

type persistedQueue struct {
	Requests []persistedRequest `json:"requests"`
}

// persistLocked writes the queue to the state file. Callers hold e.mu.
// Persistence failures are logged, never fatal: the queue is a convenience,
// not a source of truth for completed files.
func (e *Engine) persistLocked() {
	if e.statePath == "" {
		return
	}

	q := persistedQueue{Requests: make([]persistedRequest, 0, len(e.order))}
	for _, id := range e.order {
		req := e.requests[id]
		q.Requests = append(q.Requests, persistedRequest{
			Request: req.snapshot(),
			Grant:   req.grant,
		})
	}

	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		log.Warn("marshal download queue", "error", err)
		return
	}

	tmp := e.statePath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(e.statePath), 0755); err != nil {
		log.Warn("create state dir", "error", err)
		return
	}
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		log.Warn("write download queue", "error", err)
		return
	}
	if err := os.Rename(tmp, e.statePath); err != nil {
		log.Warn("replace download queue", "error", err)
	}
}

// restore loads the persisted queue. Requests that were mid-transfer when
// the previous process died come back as waiting so a caller can restart
// them; their partial files are still on disk for range resume.
func (e *Engine) restore() {
	if e.statePath == "" {
		return
	}

	data, err := os.ReadFile(e.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("read download queue", "error", err)
		}
		return
	}

	var q persistedQueue
	if err := json.Unmarshal(data, &q); err != nil {
		log.Warn("parse download queue", "error", err)
		return
	}

	for _, pr := range q.Requests {
		req := &request{Request: pr.Request, grant: pr.Grant}
		if req.Status == StatusDownloading {
			req.Status = StatusWaiting
			log.Info("interrupted download restored as waiting", "requestId", req.ID, "bundleId", req.Target.BundleID)
		}
		e.requests[req.ID] = req
		e.order = append(e.order, req.ID)
	}
}
