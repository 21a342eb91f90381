package session

// Event is one item of the ordered stream a session produces. The first event
// is always an IdentityEvent and the last is always terminal (a DoneEvent or
// an ErrorEvent).
type Event interface {
	// Terminal reports whether the event closes the stream.
	Terminal() bool
	isEvent()
}

// IdentityEvent carries the session id and nothing else.
type IdentityEvent struct {
	SessionID string
}

// LineEvent carries one result line and the running counters. Total is zero
// when the number of checks is unknown.
type LineEvent struct {
	Text    string
	Checked int
	Total   int
}

// ErrorEvent ends a FAILED session.
type ErrorEvent struct {
	Reason string
}

// DoneEvent ends a COMPLETED, TIMED_OUT or CANCELLED session. Artifact is empty
// when no artifact was written.
type DoneEvent struct {
	Status   Status
	Artifact string
	Count    int
	Reason   string
}

func (IdentityEvent) Terminal() bool { return false }
func (LineEvent) Terminal() bool     { return false }
func (ErrorEvent) Terminal() bool    { return true }
func (DoneEvent) Terminal() bool     { return true }

func (IdentityEvent) isEvent() {}
func (LineEvent) isEvent()     {}
func (ErrorEvent) isEvent()    {}
func (DoneEvent) isEvent()     {}
