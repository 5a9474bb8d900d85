package download

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const transferChunk = 128 * 1024

// run executes one transfer on a pool worker and finalizes the record.
func (e *Engine) run(id string) {
	e.mu.Lock()
	req, ok := e.requests[id]
	if !ok || req.Status != StatusDownloading {
		e.mu.Unlock()
		return
	}
	grantURL := req.grant.URL
	grantMD5 := req.grant.MD5
	ctrl := req.ctrl
	partial := e.partialPath(req)
	final := e.finalPath(req)
	e.mu.Unlock()

	start := time.Now()
	err := e.transfer(id, grantURL, grantMD5, partial, final, ctrl)

	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok = e.requests[id]
	if !ok {
		return
	}
	// A pause followed by a quick resume hands the record to a new transfer;
	// this goroutine's outcome is then stale.
	if req.ctrl != ctrl {
		return
	}

	switch {
	case err == nil:
		if req.Status != StatusDownloading {
			return
		}
		req.Status = StatusCompleted
		req.Progress = 1
		req.Path = final
		req.CompletedAt = time.Now()
		e.emitLocked(req, 0)
		log.Info("download completed",
			"requestId", id,
			"bundleId", req.Target.BundleID,
			"bytes", req.BytesDone,
			"durationMs", time.Since(start).Milliseconds())
	case ctrl.ctx.Err() != nil && (req.Status == StatusPaused || req.Status == StatusCancelled):
		// The interruption was Pause or Cancel; those already transitioned
		// the record and emitted. Nothing more to report.
	default:
		if req.Status != StatusDownloading {
			return
		}
		terr := classifyTransferError(err)
		req.Status = StatusFailed
		req.Error = terr.Error()
		req.CompletedAt = time.Now()
		e.emitLocked(req, 0)
		log.Warn("download failed", "requestId", id, "bundleId", req.Target.BundleID, "error", terr)
	}
	e.persistLocked()
}

// transfer streams the grant URL into the partial file, resuming from its
// current length, then verifies the digest and moves it into place.
func (e *Engine) transfer(id, url, wantMD5, partial, final string, ctrl *transferControl) error {
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat partial file: %w", err)
	}
	offset := info.Size()

	httpReq, err := http.NewRequestWithContext(ctrl.ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// Resuming where the partial left off.
	case http.StatusOK:
		// Server ignored the range header; start over.
		if offset > 0 {
			if err := f.Truncate(0); err != nil {
				return fmt.Errorf("truncate partial file: %w", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind partial file: %w", err)
			}
			offset = 0
		}
	default:
		return fmt.Errorf("transfer request: unexpected status %d", resp.StatusCode)
	}

	total := offset
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	done := offset
	e.progress(id, done, total, ctrl)

	buf := make([]byte, transferChunk)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write partial file: %w", werr)
			}
			done += int64(n)
			e.progress(id, done, total, ctrl)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}

	if wantMD5 != "" {
		if err := verifyMD5(partial, wantMD5); err != nil {
			// A corrupt partial cannot be resumed; a retry starts clean.
			os.Remove(partial)
			return err
		}
	}

	if err := os.Rename(partial, final); err != nil {
		return fmt.Errorf("move completed file: %w", err)
	}
	return nil
}

// progress updates the request counters and emits a throttled event. It is
// a no-op once the request left downloading or changed hands, which is what
// guarantees no stale events after Pause or Cancel took effect.
func (e *Engine) progress(id string, done, total int64, ctrl *transferControl) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[id]
	if !ok || req.Status != StatusDownloading || req.ctrl != ctrl {
		return
	}

	req.BytesDone = done
	req.BytesTotal = total
	if total > 0 {
		req.Progress = float64(done) / float64(total)
	}

	now := time.Now()
	finished := total > 0 && done >= total
	// The first sample that moves bytes after a (re)start bypasses the
	// throttle, so observers see advancement even when the connection
	// stalls inside the first throttle window.
	first := req.sampleBytes == 0 && done > 0
	if !finished && !first && now.Sub(req.lastEmit) < e.throttle {
		return
	}

	var speed float64
	if !req.sampleAt.IsZero() && done > req.sampleBytes {
		if dt := now.Sub(req.sampleAt).Seconds(); dt > 0 {
			speed = float64(done-req.sampleBytes) / dt
		}
	}
	req.sampleAt = now
	req.sampleBytes = done
	req.lastEmit = now

	e.emitLocked(req, speed)
}

// verifyMD5 hashes the whole file and compares against the expected digest.
func verifyMD5(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for verification: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash downloaded file: %w", err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: md5 %s, want %s", ErrIntegrity, got, want)
	}
	return nil
}

func (e *Engine) finalPath(req *request) string {
	name := req.Target.BundleID
	if name == "" {
		name = req.ID
	}
	if req.Target.Version != "" {
		name += "_" + req.Target.Version
	}
	return filepath.Join(e.dir, sanitizeFilename(name)+".ipa")
}

func (e *Engine) partialPath(req *request) string {
	return e.finalPath(req) + ".partial"
}

// sanitizeFilename strips path separators and other characters that are
// unsafe in file names on common platforms.
func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
