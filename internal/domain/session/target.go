package session

import (
	regexp "github.com/wasilibs/go-re2"
)

// MaxTargetLen bounds the length of a target identifier.
const MaxTargetLen = 64

var targetPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// Target is a username that passed validation. It is safe to place on a
// command line and inside a file name.
type Target string

func (t Target) String() string { return string(t) }

// TargetError describes why a candidate target was refused. It matches
// ErrInvalidTarget under errors.Is.
type TargetError struct {
	Reason string
}

func (e *TargetError) Error() string { return e.Reason }

// Unwrap returns ErrInvalidTarget.
func (e *TargetError) Unwrap() error { return ErrInvalidTarget }

// NewTarget validates s and returns it as a Target.
func NewTarget(s string) (Target, error) {
	if err := ValidateTarget(s); err != nil {
		return "", err
	}
	return Target(s), nil
}

// ValidateTarget returns a *TargetError when s is not an acceptable target.
func ValidateTarget(s string) error {
	switch {
	case s == "":
		return &TargetError{Reason: "Username cannot be empty."}
	case len(s) > MaxTargetLen:
		return &TargetError{Reason: "Username is too long (max 64 characters)."}
	case !targetPattern.MatchString(s):
		return &TargetError{Reason: "Username contains invalid characters. Only letters, numbers, '.', '_' and '-' are allowed."}
	}
	return nil
}
