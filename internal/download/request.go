package download

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/appflight/appflight/internal/store"
)

// Target identifies the package a download request materializes.
type Target struct {
	BundleID          string `json:"bundleId"`
	Name              string `json:"name"`
	Version           string `json:"version"`
	ItemID            int64  `json:"itemId"`
	ExternalVersionID int64  `json:"externalVersionId,omitempty"`
	IconURL           string `json:"iconUrl,omitempty"`
}

// Request is an observer-facing snapshot of a queued or active transfer.
// Snapshots are copies; observers never see a torn update.
type Request struct {
	ID          string    `json:"id"`
	Target      Target    `json:"target"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	BytesDone   int64     `json:"bytesDone"`
	BytesTotal  int64     `json:"bytesTotal"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	Path        string    `json:"path,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Event is one progress or state-change notification. Events for a request
// are delivered in non-decreasing BytesDone order; a state transition is
// delivered at most once.
type Event struct {
	RequestID  string        `json:"requestId"`
	Status     Status        `json:"status"`
	BytesDone  int64         `json:"bytesDone"`
	BytesTotal int64         `json:"bytesTotal"`
	Progress   float64       `json:"progress"`
	Speed      float64       `json:"speed"` // bytes/second, instantaneous
	Remaining  time.Duration `json:"remaining"`
	Error      string        `json:"error,omitempty"`
}

// request is the engine-owned mutable record behind a Request snapshot.
// All fields are guarded by the engine mutex except the transfer control,
// which the transfer goroutine reads lock-free.
type request struct {
	Request
	grant store.DownloadGrant
	ctrl  *transferControl

	// Progress bookkeeping for throttling and instantaneous speed.
	lastEmit    time.Time
	sampleAt    time.Time
	sampleBytes int64
}

func (r *request) snapshot() Request {
	return r.Request
}

// transferControl lets Pause and Cancel interrupt an in-flight transfer.
// pausing distinguishes "stop but keep the partial file" from a real cancel.
type transferControl struct {
	ctx     context.Context
	cancel  context.CancelFunc
	pausing atomic.Bool
}

func newTransferControl(parent context.Context) *transferControl {
	ctx, cancel := context.WithCancel(parent)
	return &transferControl{ctx: ctx, cancel: cancel}
}
