// Package download turns download grants into local files. The engine owns
// every request record exclusively; observers get snapshots and an event
// stream, never pointers into engine state. Transfers run on a bounded
// worker pool.
package download

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appflight/appflight/internal/logging"
	"github.com/appflight/appflight/internal/store"
	"github.com/appflight/appflight/internal/workerpool"
)

var log = logging.L("download")

// defaultThrottle bounds progress events to ~2 per second per request. A
// final event is always forced at 100%.
const defaultThrottle = 500 * time.Millisecond

// subscriberBuffer is the event channel depth handed to subscribers.
// Intermediate progress events are dropped when a subscriber lags; terminal
// events wait for room.
const subscriberBuffer = 256

// Options configures an Engine.
type Options struct {
	// Dir is where completed files land.
	Dir string
	// StatePath is the queue persistence file. Empty disables persistence.
	StatePath string
	// MaxConcurrent bounds parallel transfers.
	MaxConcurrent int
	// QueueSize bounds requests waiting for a worker.
	QueueSize int
	// HTTPClient overrides the transfer client. The default carries no
	// overall timeout: transfers are bounded by progress, not wall clock.
	HTTPClient *http.Client
	// Throttle overrides the minimum interval between progress events.
	Throttle time.Duration
}

// Engine manages N concurrent transfers with progress, pause/resume/cancel,
// and integrity verification.
type Engine struct {
	mu       sync.Mutex
	requests map[string]*request
	order    []string
	subs     map[int]chan Event
	nextSub  int

	pool      *workerpool.Pool
	http      *http.Client
	dir       string
	statePath string
	throttle  time.Duration
}

// NewEngine creates an engine and restores any persisted queue. Requests
// that were mid-transfer when the process died come back as waiting.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 3
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Throttle <= 0 {
		opts.Throttle = defaultThrottle
	}

	e := &Engine{
		requests:  make(map[string]*request),
		subs:      make(map[int]chan Event),
		pool:      workerpool.New(opts.MaxConcurrent, opts.QueueSize),
		http:      opts.HTTPClient,
		dir:       opts.Dir,
		statePath: opts.StatePath,
		throttle:  opts.Throttle,
	}
	e.restore()
	return e, nil
}

// Enqueue registers a transfer for the grant and returns its request id.
// The request starts in waiting; nothing moves until Start.
func (e *Engine) Enqueue(grant store.DownloadGrant, target Target) (Request, error) {
	if grant.URL == "" {
		return Request{}, fmt.Errorf("enqueue: grant has no source URL")
	}

	req := &request{
		Request: Request{
			ID:        uuid.NewString(),
			Target:    target,
			Status:    StatusWaiting,
			CreatedAt: time.Now(),
		},
		grant: grant,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests[req.ID] = req
	e.order = append(e.order, req.ID)
	e.emitLocked(req, 0)
	e.persistLocked()

	log.Info("request enqueued", "requestId", req.ID, "bundleId", target.BundleID)
	return req.snapshot(), nil
}

// Start moves a waiting, failed, or paused request into downloading and
// schedules its transfer. Restarting a failed request is the only retry
// mechanism the engine offers.
func (e *Engine) Start(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[id]
	if !ok {
		return ErrUnknownRequest
	}
	if !canTransition(req.Status, StatusDownloading) {
		return fmt.Errorf("cannot start request in state %q", req.Status)
	}

	prev := req.Status
	req.Status = StatusDownloading
	req.Error = ""
	req.ctrl = newTransferControl(e.pool.Context())
	req.lastEmit = time.Time{}
	req.sampleAt = time.Time{}
	req.sampleBytes = 0

	if !e.pool.Submit(func() { e.run(id) }) {
		req.Status = prev
		req.ctrl = nil
		return fmt.Errorf("start %s: transfer queue full", id)
	}

	e.emitLocked(req, 0)
	e.persistLocked()
	return nil
}

// Pause interrupts an active transfer, keeping the partial file for Resume.
// It takes effect before any further progress event for the request.
func (e *Engine) Pause(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[id]
	if !ok {
		return ErrUnknownRequest
	}
	if !canTransition(req.Status, StatusPaused) {
		return fmt.Errorf("cannot pause request in state %q", req.Status)
	}

	if req.ctrl != nil {
		req.ctrl.pausing.Store(true)
		req.ctrl.cancel()
	}
	req.Status = StatusPaused
	e.emitLocked(req, 0)
	e.persistLocked()
	return nil
}

// Resume continues a paused transfer from its partial file.
func (e *Engine) Resume(id string) error {
	e.mu.Lock()
	status, ok := e.statusLocked(id)
	e.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}
	if status != StatusPaused {
		return fmt.Errorf("cannot resume request in state %q", status)
	}
	return e.Start(id)
}

// Cancel aborts a request from any non-terminal state and discards its
// partial file. No progress event for the request is delivered afterwards.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[id]
	if !ok {
		return ErrUnknownRequest
	}
	if !canTransition(req.Status, StatusCancelled) {
		return fmt.Errorf("cannot cancel request in state %q", req.Status)
	}

	if req.ctrl != nil {
		req.ctrl.cancel()
	}
	req.Status = StatusCancelled
	req.Error = ErrCancelled.Error()
	req.CompletedAt = time.Now()
	e.emitLocked(req, 0)
	e.persistLocked()

	// Partial payloads of cancelled requests are dead weight.
	os.Remove(e.partialPath(req))

	log.Info("request cancelled", "requestId", id)
	return nil
}

// Get returns a snapshot of one request.
func (e *Engine) Get(id string) (Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[id]
	if !ok {
		return Request{}, false
	}
	return req.snapshot(), true
}

// List returns snapshots of all requests in enqueue order.
func (e *Engine) List() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Request, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.requests[id].snapshot())
	}
	return out
}

// Subscribe returns an event channel and a cancel function. The channel is
// closed on unsubscribe.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Event, subscriberBuffer)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

// Wait blocks until the request reaches a terminal state or the context
// expires, returning the final snapshot.
func (e *Engine) Wait(ctx context.Context, id string) (Request, error) {
	events, unsubscribe := e.Subscribe()
	defer unsubscribe()

	// Check after subscribing so a transition between the two is not missed.
	if req, ok := e.Get(id); !ok {
		return Request{}, ErrUnknownRequest
	} else if req.Status.Terminal() {
		return req, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Request{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Request{}, fmt.Errorf("event stream closed")
			}
			if ev.RequestID == id && ev.Status.Terminal() {
				req, _ := e.Get(id)
				return req, nil
			}
		}
	}
}

// Shutdown drains active transfers and persists the queue.
func (e *Engine) Shutdown(ctx context.Context) {
	e.pool.Shutdown(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked()
}

func (e *Engine) statusLocked(id string) (Status, bool) {
	req, ok := e.requests[id]
	if !ok {
		return "", false
	}
	return req.Status, true
}

// emitLocked fans an event for req out to subscribers. speed is the
// instantaneous rate computed by the transfer loop, zero for pure state
// transitions. Callers hold e.mu.
func (e *Engine) emitLocked(req *request, speed float64) {
	ev := Event{
		RequestID:  req.ID,
		Status:     req.Status,
		BytesDone:  req.BytesDone,
		BytesTotal: req.BytesTotal,
		Progress:   req.Progress,
		Speed:      speed,
		Error:      req.Error,
	}
	if speed > 0 && req.BytesTotal > req.BytesDone {
		ev.Remaining = time.Duration(float64(req.BytesTotal-req.BytesDone)/speed) * time.Second
	}

	terminal := req.Status.Terminal()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			if terminal {
				// Terminal events must not be lost to a lagging subscriber;
				// shed the oldest buffered event to make room.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}
