package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tusk/internal/fsutil"
)

// lockInfo is the JSON body of the advisory lock file sitting next to the
// database. It exists for operator-facing diagnostics (finalize's
// recovery text can say which token holds the lock); SQLite's own journal
// already serializes writers, so losing this file costs nothing but a
// stale-looking message.
type lockInfo struct {
	Token      string    `json:"token"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// AdvisoryLock is a cooperative, TTL-bounded file lock. Handlers that want
// to serialize a multi-statement operation across process boundaries (the
// loop dispatcher, the finalize orchestrator) acquire it; it is advisory
// only and never substitutes for the store's own transactional guarantees.
type AdvisoryLock struct {
	path  string
	ttl   time.Duration
	token string
}

// NewAdvisoryLock builds the lock file path from the store's database path.
func NewAdvisoryLock(dbPath string, ttl time.Duration) *AdvisoryLock {
	return &AdvisoryLock{
		path: dbPath + ".lock",
		ttl:  ttl,
	}
}

// Acquire creates the lock file exclusively, breaking a stale lock (older
// than ttl) first. Returns a policy-gated error naming the current holder
// when a live lock is already held.
func (l *AdvisoryLock) Acquire() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating lock directory: %w", err)
		}
	}

	if data, err := fsutil.ReadFileScoped(l.path); err == nil {
		var info lockInfo
		if err := json.Unmarshal(data, &info); err == nil {
			if time.Since(info.AcquiredAt) < l.ttl {
				return fmt.Errorf("store is locked by token %s (acquired %s, host %s)",
					info.Token, info.AcquiredAt.Format(time.RFC3339), info.Hostname)
			}
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale lock: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading lock file: %w", err)
	}

	hostname, _ := os.Hostname()
	l.token = uuid.NewString()
	info := lockInfo{
		Token:      l.token,
		Hostname:   hostname,
		PID:        os.Getpid(),
		AcquiredAt: timeNow().UTC(),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling lock info: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("lock file created by another process")
		}
		return fmt.Errorf("creating lock file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("writing lock file: %w", err)
	}
	return f.Close()
}

// Release removes the lock file if this AdvisoryLock's token still owns it.
func (l *AdvisoryLock) Release() error {
	data, err := fsutil.ReadFileScoped(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading lock file: %w", err)
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("parsing lock info: %w", err)
	}
	if info.Token != l.token {
		return fmt.Errorf("lock owned by a different token")
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}
