package download

// Status is the lifecycle state of a download request.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// canTransition encodes the request state machine:
// waiting → downloading → {completed, failed, cancelled}, with
// downloading ↔ paused, failed → downloading on explicit restart, and
// cancel from any non-terminal state.
func canTransition(from, to Status) bool {
	// Failed is terminal for event delivery but re-startable, so only
	// completed and cancelled refuse every transition.
	if from == StatusCompleted || from == StatusCancelled {
		return false
	}
	switch to {
	case StatusDownloading:
		return from == StatusWaiting || from == StatusFailed || from == StatusPaused
	case StatusPaused:
		return from == StatusDownloading
	case StatusCompleted, StatusFailed:
		return from == StatusDownloading
	case StatusCancelled:
		return true
	case StatusWaiting:
		return false
	}
	return false
}
