// Package lockfile implements the single-instance guard from §6: an
// advisory, non-blocking exclusive lock on a well-known path, so a second
// `fsminer start` on the same machine exits instead of racing the first.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned by Acquire when another process already holds the
// lock.
var ErrHeld = errors.New("lockfile: already held by another instance")

// Lock is an acquired advisory lock. Release drops it.
type Lock struct {
	f *os.File
}

// Path returns the well-known lock path for the current user:
// {os.TempDir()}/{user}_fsminer_lock.
func Path() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return filepath.Join(os.TempDir(), name+"_fsminer_lock")
}

// Acquire attempts to take the exclusive, non-blocking lock at Path(). It
// returns ErrHeld if another process already holds it.
func Acquire() (*Lock, error) {
	path := Path()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("lockfile: flock %s: %w", path, err)
	}
	// Record our PID so a separate `status`/`pause`/`resume` invocation can
	// find the running instance to signal, without needing the lock itself
	// (reading the file requires no lock, only holding it exclusively does).
	if err := f.Truncate(0); err == nil {
		if _, err := f.Seek(0, 0); err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
		}
	}
	return &Lock{f: f}, nil
}

// ReadPID reads the PID last recorded by a holder of the lock at Path(). It
// does not itself acquire the lock, so it can be called by a separate
// process (e.g. `fsminer status`) while another instance is running.
func ReadPID() (int, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("lockfile: malformed pid in %s", Path())
	}
	return pid, nil
}

// Signal delivers sig to the process recorded at Path(), the mechanism
// `pause`/`resume` use to reach a running `start` instance (§6's CLI
// surface control commands) without any persisted queue/IPC state.
func Signal(sig syscall.Signal) error {
	pid, err := ReadPID()
	if err != nil {
		return fmt.Errorf("lockfile: no running instance found: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// Release drops the lock and closes the underlying file.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
