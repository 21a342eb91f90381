package session

import "errors"

// Errors returned by the session core. Callers match them with errors.Is.
var (
	// ErrAdmissionRejected is returned when every concurrency slot is taken.
	ErrAdmissionRejected = errors.New("admission rejected: concurrency limit reached")
	// ErrSpawnFailed wraps a failure to start the child process.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrRuntimeFailed wraps a non-zero exit the supervisor did not cause.
	ErrRuntimeFailed = errors.New("runtime failed")
	// ErrTimedOut is the cancellation cause used when the deadline elapses.
	ErrTimedOut = errors.New("search timed out")
	// ErrCancelled is the cancellation cause for an explicit cancel.
	ErrCancelled = errors.New("cancelled by caller")
	// ErrClientGone is the cancellation cause used when the consumer detaches.
	ErrClientGone = errors.New("client disconnected")
	// ErrShuttingDown is the cancellation cause used during server shutdown.
	ErrShuttingDown = errors.New("server shutting down")

	ErrInvalidTarget       = errors.New("invalid target")
	ErrInvalidArtifactName = errors.New("invalid artifact name")
	ErrArtifactNotFound    = errors.New("artifact not found")
)
