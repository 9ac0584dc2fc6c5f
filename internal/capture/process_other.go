//go:build !unix

package capture

import (
	"os"
	"os/exec"
)

func isolate(cmd *exec.Cmd) {}

func interruptProcess(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func killProcess(p *os.Process) error {
	return p.Kill()
}

func exitedOnInterrupt(err error) bool {
	return false
}
