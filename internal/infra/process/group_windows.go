//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
)

func setProcessGroup(*exec.Cmd) {}

// terminateGroup has no graceful equivalent on Windows and kills the tree.
func terminateGroup(p *os.Process) error {
	return killGroup(p)
}

// killGroup ends p and its children with taskkill.
func killGroup(p *os.Process) error {
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(p.Pid)).Run(); err != nil {
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}
