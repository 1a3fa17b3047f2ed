package runner

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderr is how much of a failing process's stderr is kept for reporting.
const maxStderr = 4096

// StageError reports a failing pipeline stage.
type StageError struct {
	Stage    string
	ExitCode int
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "runner: stage %s failed", e.Stage)
	if e.TimedOut {
		b.WriteString(" (timed out)")
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// exitCode extracts a process exit code, or -1 when the error is not an exit.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// tailBuffer keeps the last maxStderr bytes written to it.
type tailBuffer struct {
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - maxStderr; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
