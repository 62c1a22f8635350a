package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/dotsync/internal/utils"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	lockFileName = "dotsync.lock"
	pidFileName  = "dotsync.pid"
)

var ErrDaemonLocked = errors.New("another dotsync daemon is already running")

// InstanceLock keeps a single daemon per state directory.
type InstanceLock struct {
	dir   string
	flock *flock.Flock
}

func NewInstanceLock(dir string) *InstanceLock {
	return &InstanceLock{
		dir:   dir,
		flock: flock.New(filepath.Join(dir, lockFileName)),
	}
}

// Lock takes the lock and records the current pid next to it.
func (l *InstanceLock) Lock() error {
	if err := utils.EnsureDir(l.dir); err != nil {
		return fmt.Errorf("create directory %s: %w", l.dir, err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.flock.Path(), err)
	}
	if !locked {
		return ErrDaemonLocked
	}

	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := utils.WriteFileAtomic(filepath.Join(l.dir, pidFileName), pid, 0o644); err != nil {
		l.flock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (l *InstanceLock) Unlock() error {
	// if this process hasn't taken the lock, leave the files alone
	if !l.flock.Locked() {
		return nil
	}

	_ = os.Remove(filepath.Join(l.dir, pidFileName))
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	return os.Remove(l.flock.Path())
}

// ProcessInfo describes the daemon holding the lock in a state directory.
type ProcessInfo struct {
	Running   bool
	PID       int32
	StartedAt time.Time
}

// InspectInstance reports whether a daemon holds the lock in dir.
func InspectInstance(dir string) (ProcessInfo, error) {
	var info ProcessInfo

	probe := flock.New(filepath.Join(dir, lockFileName))
	if !utils.FileExists(probe.Path()) {
		return info, nil
	}
	locked, err := probe.TryLock()
	if err != nil {
		return info, fmt.Errorf("probe lock: %w", err)
	}
	if locked {
		// nobody holds it, the file is left over from a crash
		probe.Unlock()
		return info, nil
	}
	info.Running = true

	data, err := os.ReadFile(filepath.Join(dir, pidFileName))
	if err != nil {
		return info, nil
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return info, nil
	}

	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return info, nil
	}
	info.PID = int32(pid)

	if proc, err := process.NewProcess(info.PID); err == nil {
		if ms, err := proc.CreateTime(); err == nil {
			info.StartedAt = time.UnixMilli(ms)
		}
	}
	return info, nil
}
