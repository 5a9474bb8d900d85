package packaging

import "errors"

// Processing failure taxonomy. Every Process failure wraps one of these so
// callers can branch without string matching.
var (
	// ErrInvalidArchive marks an archive without exactly one application
	// bundle under Payload/.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrSigningFailed marks a Signer rejection.
	ErrSigningFailed = errors.New("signing failed")
	// ErrIO marks read/write failures against the archive or workspace.
	ErrIO = errors.New("archive i/o error")
)
