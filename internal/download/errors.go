package download

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os"
	"syscall"
)

// Transfer failure taxonomy. The engine never retries on its own; a failed
// request stays visible with its error and a caller-issued Start runs it
// again.
var (
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrTimeout            = errors.New("transfer timed out")
	ErrCancelled          = errors.New("cancelled by user")
	ErrIntegrity          = errors.New("payload failed integrity check")
	ErrFileSystem         = errors.New("file system error")
	// ErrUnknownRequest is returned for operations on an id the engine does
	// not own.
	ErrUnknownRequest = errors.New("unknown download request")
)

// classifyTransferError folds transport and filesystem failures into the
// taxonomy, preserving the cause for logs.
func classifyTransferError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrIntegrity) || errors.Is(err, ErrCancelled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case isTimeout(err):
		return ErrTimeout
	case isFileSystem(err):
		return ErrFileSystem
	default:
		return ErrNetworkUnreachable
	}
}

func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isFileSystem(err error) bool {
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return true
	}
	var lerr *os.LinkError
	if errors.As(err, &lerr) {
		return true
	}
	return errors.Is(err, syscall.ENOSPC)
}
