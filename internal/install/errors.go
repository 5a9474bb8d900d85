package install

import "errors"

var (
	// ErrInstallInProgress means another installation session holds the
	// process-wide exclusivity flag.
	ErrInstallInProgress = errors.New("installation already in progress")
	// ErrManifestServe covers failures to stand up or run the local
	// manifest endpoint.
	ErrManifestServe = errors.New("manifest serve failed")
	// ErrUnknownSession is returned by End for a session id the
	// coordinator does not own.
	ErrUnknownSession = errors.New("unknown installation session")
)
