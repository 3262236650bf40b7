// Package singleinstance keeps a second layerlens daemon from grabbing the
// same keyboards and overlay port.
package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// DefaultLockPath returns the lock file under $XDG_RUNTIME_DIR, falling back to
// a per-user file in the temp directory.
func DefaultLockPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, "layerlens.lock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("layerlens-%d.lock", os.Getuid()))
}
