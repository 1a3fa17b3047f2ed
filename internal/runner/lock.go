package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const lockOwnerFile = "owner.json"

// ErrLocked is returned when another invocation holds the output lock.
var ErrLocked = eris.New("runner: output is locked by another run")

// Lock serializes invocations that target the same artifact stem.
type Lock struct {
	dir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireLock creates the lock directory at path. It fails with ErrLocked if
// the directory already exists, unless its owner was a process on this host
// that is no longer running; such a stale lock is taken over.
func AcquireLock(path string) (Lock, error) {
	target := strings.TrimSpace(path)
	if target == "" {
		return Lock{}, eris.New("runner: lock path is required")
	}

	err := os.Mkdir(target, 0o755)
	if os.IsExist(err) {
		owner, known := readLockOwner(target)
		if !known {
			return Lock{}, eris.Wrapf(ErrLocked, "%s", target)
		}
		if owner.Hostname != hostnameOrUnknown() || processAlive(owner.PID) {
			return Lock{}, eris.Wrapf(ErrLocked, "%s (pid=%d created_at=%s host=%s)",
				target, owner.PID, owner.CreatedAt, owner.Hostname)
		}

		zap.L().Warn("runner: removing stale lock",
			zap.String("path", target),
			zap.Int("pid", owner.PID),
			zap.String("created_at", owner.CreatedAt),
		)
		if rmErr := os.RemoveAll(target); rmErr != nil {
			return Lock{}, eris.Wrapf(rmErr, "runner: remove stale lock %s", target)
		}
		err = os.Mkdir(target, 0o755)
		if os.IsExist(err) {
			// Another run took it over first.
			return Lock{}, eris.Wrapf(ErrLocked, "%s", target)
		}
	}
	if err != nil {
		return Lock{}, eris.Wrapf(err, "runner: acquire lock %s", target)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.Marshal(owner)
	if err == nil {
		err = os.WriteFile(filepath.Join(target, lockOwnerFile), data, 0o644)
	}
	if err != nil {
		_ = os.RemoveAll(target)
		return Lock{}, eris.Wrapf(err, "runner: write lock owner %s", target)
	}

	return Lock{dir: target}, nil
}

// Release removes the lock. Releasing a zero Lock is a no-op.
func (l Lock) Release() error {
	if l.dir == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, lockOwnerFile))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "runner: release lock %s", l.dir)
	}
	return nil
}

func readLockOwner(dir string) (lockOwner, bool) {
	var owner lockOwner
	data, err := os.ReadFile(filepath.Join(dir, lockOwnerFile))
	if err != nil || json.Unmarshal(data, &owner) != nil || owner.PID <= 0 {
		return lockOwner{}, false
	}
	return owner, true
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
