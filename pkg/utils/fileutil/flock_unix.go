//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd
// +build darwin dragonfly freebsd linux netbsd openbsd

package fileutil

import (
	"os"

	"golang.org/x/sys/unix"
)

type unixLock struct {
	f *os.File
}

var _ Releaser = (*unixLock)(nil)

func (l *unixLock) Release() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

func (l *unixLock) set(block bool) error {
	how := unix.LOCK_EX
	if !block {
		how |= unix.LOCK_NB
	}
	return unix.Flock(int(l.f.Fd()), how)
}

// NewLock takes an exclusive lock on f or fails at once when another holder has it.
func NewLock(f *os.File) (Releaser, error) {
	l := &unixLock{f}
	return l, l.set(false)
}

// WaitLock blocks until the exclusive lock on f is granted.
func WaitLock(f *os.File) (Releaser, error) {
	l := &unixLock{f}
	return l, l.set(true)
}
