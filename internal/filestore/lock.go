package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// ErrLockBusy is returned when the lock deadline elapses while another
// holder's TTL has not yet expired.
var ErrLockBusy = errors.New("lock_busy")

// LockPayload is the JSON body written into the lock file.
type LockPayload struct {
	Token       string    `json:"token"`
	Owner       string    `json:"owner"`
	PID         int       `json:"pid"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAtTs int64     `json:"expiresAtTs"`
}

// Lock is a handle on an acquired exclusive lock, returned by Acquire.
// Release is a no-op unless Token still matches the file on disk.
type Lock struct {
	path  string
	Token string
}

// LockOptions configures Acquire.
type LockOptions struct {
	TTL          time.Duration // default 45s
	PollInterval time.Duration // default 120ms
	Deadline     time.Duration // default 8s
	Owner        string
}

func (o LockOptions) withDefaults() LockOptions {
	if o.TTL == 0 {
		o.TTL = 45 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 120 * time.Millisecond
	}
	if o.Deadline <= 0 {
		o.Deadline = 8 * time.Second
	}
	return o
}

// Acquire takes the exclusive lock at path using atomic create-exclusive
// semantics. On collision it reads the existing payload's ExpiresAtTs: if
// expired, the stale lock is forcibly removed and acquisition retried;
// otherwise it polls every PollInterval until Deadline elapses, then fails
// with ErrLockBusy.
func Acquire(path string, opts LockOptions) (*Lock, error) {
	opts = opts.withDefaults()
	if err := EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("filestore: create lock dir: %w", err)
	}

	deadline := time.Now().Add(opts.Deadline)
	for {
		lock, err := tryAcquire(path, opts)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if removedStale(path) {
			continue
		}
		if time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		time.Sleep(opts.PollInterval)
	}
}

func tryAcquire(path string, opts LockOptions) (*Lock, error) {
	token := uuid.NewString()
	now := time.Now().UTC()
	payload := LockPayload{
		Token:       token,
		Owner:       opts.Owner,
		PID:         os.Getpid(),
		CreatedAt:   now,
		ExpiresAtTs: now.Add(opts.TTL).Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("filestore: marshal lock payload: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("filestore: write lock payload: %w", err)
	}
	return &Lock{path: path, Token: token}, nil
}

// removedStale reads the existing lock file; if its TTL has expired, it
// removes the file and reports true so the caller retries immediately.
func removedStale(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var payload LockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Corrupt payload: treat as stale so the system can self-heal.
		return os.Remove(path) == nil
	}
	if time.Now().Unix() < payload.ExpiresAtTs {
		return false
	}
	return os.Remove(path) == nil
}

// Release removes the lock file iff it still carries this Lock's token —
// release is a no-op if another holder has since taken over (its TTL
// expired and was reclaimed out from under us).
func (l *Lock) Release() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var payload LockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.Token != l.Token {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
