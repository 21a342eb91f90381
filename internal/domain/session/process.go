package session

import (
	"context"
	"io"
)

// Process is a running child owned by exactly one supervisor.
type Process interface {
	// Pid returns the OS process id.
	Pid() int
	// Output returns the merged stdout and stderr stream.
	Output() io.Reader
	// Terminate asks the process and its children to exit.
	Terminate() error
	// Kill forcibly ends the process and its children.
	Kill() error
	// Wait blocks until the process exits and returns its exit code. A
	// process ended by a signal reports -1.
	Wait() (int, error)
	// Close releases the output stream, unblocking any pending read.
	Close() error
}

// Spawner starts child processes from a program path and an argument vector.
// Implementations never pass the arguments through a shell.
type Spawner interface {
	Spawn(ctx context.Context, path string, args []string) (Process, error)
}
