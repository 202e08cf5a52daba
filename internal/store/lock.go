package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"trade-manager/internal/config"
)

// LockFileName is created inside the state directory while a bot runs.
const LockFileName = "trade-manager.lock"

// ErrLocked means another live process holds the lock.
var ErrLocked = errors.New("trade-manager is already running")

// Lock keeps a second bot from polling the same Telegram token and placing
// duplicate orders.
type Lock struct {
	path string
	file *os.File
}

type LockOptions struct {
	Owner      string
	Takeover   bool
	StaleAfter time.Duration
	Now        func() time.Time
}

// LockOptionsFromConfig maps the state section of cfg.
func LockOptionsFromConfig(cfg config.StateConfig, owner string) LockOptions {
	takeover := true
	if cfg.LockTakeover != nil {
		takeover = *cfg.LockTakeover
	}
	return LockOptions{
		Owner:      owner,
		Takeover:   takeover,
		StaleAfter: time.Duration(cfg.LockStaleSec) * time.Second,
	}
}

// AcquireLock creates dir/LockFileName exclusively. With Takeover set, a lock
// left by a dead process, or one older than StaleAfter without a pid, is replaced.
func AcquireLock(dir string, opts LockOptions) (*Lock, error) {
	if dir == "" {
		return nil, fmt.Errorf("state dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, LockFileName)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			meta := lockMeta{pid: os.Getpid(), owner: opts.Owner, startedAt: now().UTC()}
			if err := writeLockMeta(f, meta); err != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, err
			}
			return &Lock{path: path, file: f}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if !opts.Takeover {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		stale, reason, err := isStale(path, now().UTC(), opts.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (stale check failed: %v)", ErrLocked, path, err)
		}
		if !stale {
			return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, path, reason)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	if l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.path = ""
	return nil
}

type lockMeta struct {
	pid       int
	owner     string
	startedAt time.Time
}

func writeLockMeta(f *os.File, meta lockMeta) error {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", meta.pid)
	if meta.owner != "" {
		fmt.Fprintf(&b, "owner=%s\n", meta.owner)
	}
	fmt.Fprintf(&b, "started_at=%s\n", meta.startedAt.Format(time.RFC3339))
	if _, err := f.WriteString(b.String()); err != nil {
		return err
	}
	return f.Sync()
}

func readLockMeta(data []byte) (lockMeta, error) {
	var meta lockMeta
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				meta.pid = pid
			}
		case "owner":
			meta.owner = value
		case "started_at":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				meta.startedAt = ts.UTC()
			}
		}
	}
	return meta, scanner.Err()
}

func isStale(path string, now time.Time, staleAfter time.Duration) (bool, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, "lock_disappeared", nil
		}
		return false, "", err
	}
	meta, err := readLockMeta(data)
	if err != nil {
		return false, "", err
	}
	if meta.pid > 0 {
		if processAlive(meta.pid) {
			return false, "owner_process_running pid=" + strconv.Itoa(meta.pid), nil
		}
		return true, "owner_process_not_running", nil
	}
	if meta.startedAt.IsZero() {
		return false, "missing_lock_owner_info", nil
	}
	if staleAfter > 0 && now.Sub(meta.startedAt) >= staleAfter {
		return true, "lock_age_exceeded", nil
	}
	return false, "lock_not_stale", nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		return true
	default:
		return false
	}
}
