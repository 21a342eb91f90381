// Package process starts the enumeration tool as an OS child process in its
// own process group so termination reaches every descendant.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ahrav/specter/internal/domain/session"
)

// Spawner implements session.Spawner with os/exec.
type Spawner struct {
	dir string
	env []string
}

// Option configures a Spawner.
type Option func(*Spawner)

// WithEnv appends variables to the inherited environment of every child.
func WithEnv(kv ...string) Option {
	return func(s *Spawner) { s.env = append(s.env, kv...) }
}

// NewSpawner creates a Spawner whose children run in dir. The directory is
// created on first use.
func NewSpawner(dir string, opts ...Option) *Spawner {
	s := &Spawner{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts path with args. Stdout and stderr share one pipe.
func (s *Spawner) Spawn(ctx context.Context, path string, args []string) (session.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrSpawnFailed, err)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no executable configured", session.ErrSpawnFailed)
	}

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating working dir: %w", session.ErrSpawnFailed, err)
		}
	}

	// The supervisor owns termination, so the command is not bound to ctx.
	cmd := exec.Command(path, args...)
	cmd.Dir = s.dir
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	setProcessGroup(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating pipe: %w", session.ErrSpawnFailed, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("%w: %w", session.ErrSpawnFailed, err)
	}
	// Only the child keeps the write end open, so EOF follows its exit.
	_ = pw.Close()

	return &child{cmd: cmd, out: pr}, nil
}

type child struct {
	cmd *exec.Cmd
	out *os.File
}

func (c *child) Pid() int          { return c.cmd.Process.Pid }
func (c *child) Output() io.Reader { return c.out }
func (c *child) Terminate() error  { return terminateGroup(c.cmd.Process) }
func (c *child) Kill() error       { return killGroup(c.cmd.Process) }
func (c *child) Close() error      { return c.out.Close() }

func (c *child) Wait() (int, error) {
	err := c.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
