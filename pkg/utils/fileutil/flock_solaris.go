//go:build solaris
// +build solaris

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
	return l.set(false, false)
}

func (l *unixLock) set(lock, block bool) error {
	flock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Start:  0,
		Len:    0,
		Whence: 1,
	}
	if lock {
		flock.Type = unix.F_WRLCK
	}
	cmd := unix.F_SETLK
	if block {
		cmd = unix.F_SETLKW
	}
	return unix.FcntlFlock(l.f.Fd(), cmd, &flock)
}

func NewLock(f *os.File) (Releaser, error) {
	l := &unixLock{f}
	return l, l.set(true, false)
}

func WaitLock(f *os.File) (Releaser, error) {
	l := &unixLock{f}
	return l, l.set(true, true)
}
