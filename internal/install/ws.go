package install

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/appflight/appflight/internal/download"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The stream serves local tooling on a loopback or LAN bind; the
	// trigger page itself connects from a file or device origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressHandler streams download engine events to a websocket client as
// JSON, one event per message. The subscription ends when the client
// disconnects.
func ProgressHandler(engine *download.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("progress stream upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		events, unsubscribe := engine.Subscribe()
		defer unsubscribe()

		// Reads only serve to notice the peer going away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Replay current state so a late subscriber sees every request.
		for _, req := range engine.List() {
			if err := conn.WriteJSON(download.Event{
				RequestID:  req.ID,
				Status:     req.Status,
				BytesDone:  req.BytesDone,
				BytesTotal: req.BytesTotal,
				Progress:   req.Progress,
				Error:      req.Error,
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-closed:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			}
		}
	})
}
