package session

import (
	"fmt"
)

// Status represents the lifecycle state of a search session. A session moves
// from PENDING to RUNNING once its child process is spawned and ends in
// exactly one terminal state.
type Status string

const (
	// StatusPending indicates the session is admitted but its process has not
	// been spawned yet.
	StatusPending Status = "PENDING"

	// StatusRunning indicates the child process is alive and being read.
	StatusRunning Status = "RUNNING"

	// StatusCompleted indicates the process exited zero before any deadline or
	// cancellation was acted on.
	StatusCompleted Status = "COMPLETED"

	// StatusTimedOut indicates the deadline elapsed and the process was
	// terminated by the supervisor.
	StatusTimedOut Status = "TIMED_OUT"

	// StatusCancelled indicates an explicit cancel, a client disconnect or a
	// server shutdown terminated the process.
	StatusCancelled Status = "CANCELLED"

	// StatusFailed indicates the process could not be spawned or exited
	// non-zero on its own.
	StatusFailed Status = "FAILED"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusTimedOut, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Int32 returns the int32 value used to hold the status in an atomic.
func (s Status) Int32() int32 {
	switch s {
	case StatusPending:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted:
		return 3
	case StatusTimedOut:
		return 4
	case StatusCancelled:
		return 5
	case StatusFailed:
		return 6
	default:
		return 0
	}
}

// StatusFromInt32 creates a Status from an int32 value.
func StatusFromInt32(i int32) Status {
	switch i {
	case 1:
		return StatusPending
	case 2:
		return StatusRunning
	case 3:
		return StatusCompleted
	case 4:
		return StatusTimedOut
	case 5:
		return StatusCancelled
	case 6:
		return StatusFailed
	default:
		return "" // represents unspecified
	}
}

// WireName returns the lower snake case name clients see in the final event.
func (s Status) WireName() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return "timed_out"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	case StatusRunning:
		return "running"
	case StatusPending:
		return "pending"
	default:
		return ""
	}
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "PENDING", "pending":
		return StatusPending
	case "RUNNING", "running":
		return StatusRunning
	case "COMPLETED", "completed":
		return StatusCompleted
	case "TIMED_OUT", "timed_out":
		return StatusTimedOut
	case "CANCELLED", "cancelled":
		return StatusCancelled
	case "FAILED", "failed":
		return StatusFailed
	default:
		return "" // represents unspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s Status) ValidateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid session status transition from %s to %s", s, target)
	}
	return nil
}

func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusPending:
		// A spawn failure or a cancel that lands before the spawn ends the
		// session without ever running.
		return target == StatusRunning || target == StatusFailed || target == StatusCancelled
	case StatusRunning:
		return target.IsTerminal()
	default:
		return false
	}
}
