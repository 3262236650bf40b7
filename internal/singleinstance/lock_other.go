//go:build !unix

package singleinstance

// Lock is a no-op where flock is unavailable.
type Lock struct{}

// TryLock always succeeds where flock is unavailable.
func TryLock(_ string) (*Lock, error) { return &Lock{}, nil }

// Release is a no-op.
func (l *Lock) Release() error { return nil }
