//go:build !unix

package runner

import "os/exec"

func setProcessGroup(c *exec.Cmd) {
	c.WaitDelay = killGrace
}

func killProcessGroup(c *exec.Cmd) error {
	if c.Process == nil {
		return nil
	}
	return c.Process.Kill()
}

// processAlive cannot probe other processes here, so every owner is assumed
// alive.
func processAlive(int) bool { return true }
