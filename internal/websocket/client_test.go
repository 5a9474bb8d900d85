package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/appflight/appflight/internal/download"
)

func TestClientReceivesEvents(t *testing.T) {
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/progress" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(download.Event{
			RequestID: "req-1",
			Status:    download.StatusDownloading,
			BytesDone: 512,
			Progress:  0.5,
		})
		// Hold the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan download.Event, 1)
	c := New(&Config{ServerURL: srv.URL}, func(ev download.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	go c.Start()
	defer c.Stop()

	select {
	case ev := <-events:
		if ev.RequestID != "req-1" {
			t.Errorf("request id = %q, want req-1", ev.RequestID)
		}
		if ev.Status != download.StatusDownloading {
			t.Errorf("status = %q, want downloading", ev.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received before deadline")
	}
}
