//go:build unix

package singleinstance

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestTryLock(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, path string)
	}{
		{
			name: "first lock succeeds and records pid",
			run: func(t *testing.T, path string) {
				lock, err := TryLock(path)
				if err != nil {
					t.Fatalf("TryLock failed: %v", err)
				}
				defer lock.Release()
				raw, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("read lock file: %v", err)
				}
				if got := strings.TrimSpace(string(raw)); got != strconv.Itoa(os.Getpid()) {
					t.Fatalf("lock file = %q, want pid %d", got, os.Getpid())
				}
			},
		},
		{
			name: "second lock returns ErrAlreadyRunning",
			run: func(t *testing.T, path string) {
				lock1, err := TryLock(path)
				if err != nil {
					t.Fatalf("first TryLock failed: %v", err)
				}
				defer lock1.Release()

				lock2, err := TryLock(path)
				if !errors.Is(err, ErrAlreadyRunning) {
					t.Fatalf("second TryLock: got err=%v, want ErrAlreadyRunning", err)
				}
				if lock2 != nil {
					t.Fatal("second TryLock returned non-nil lock")
				}
			},
		},
		{
			name: "lock reacquirable after release",
			run: func(t *testing.T, path string) {
				lock1, err := TryLock(path)
				if err != nil {
					t.Fatalf("first TryLock failed: %v", err)
				}
				if err := lock1.Release(); err != nil {
					t.Fatalf("Release failed: %v", err)
				}
				lock2, err := TryLock(path)
				if err != nil {
					t.Fatalf("TryLock after release failed: %v", err)
				}
				_ = lock2.Release()
			},
		},
		{
			name: "release is idempotent",
			run: func(t *testing.T, path string) {
				lock, err := TryLock(path)
				if err != nil {
					t.Fatalf("TryLock failed: %v", err)
				}
				if err := lock.Release(); err != nil {
					t.Fatalf("first Release failed: %v", err)
				}
				if err := lock.Release(); err != nil {
					t.Fatalf("second Release failed: %v", err)
				}
				var nilLock *Lock
				if err := nilLock.Release(); err != nil {
					t.Fatalf("nil Release failed: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, filepath.Join(t.TempDir(), "layerlens.lock"))
		})
	}
}

func TestTryLockRequiresPath(t *testing.T) {
	if _, err := TryLock(""); err == nil {
		t.Fatal("TryLock(\"\") expected error")
	}
}

func TestDefaultLockPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	if got, want := DefaultLockPath(), filepath.Join(dir, "layerlens.lock"); got != want {
		t.Fatalf("DefaultLockPath() = %q, want %q", got, want)
	}
	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := DefaultLockPath(); !strings.HasPrefix(filepath.Base(got), "layerlens-") {
		t.Fatalf("DefaultLockPath() = %q, want per-user temp file", got)
	}
}
