package fileutil

import (
	"os"

	"golang.org/x/sys/windows"
)

// https://docs.microsoft.com/en-us/windows/win32/api/fileapi/nf-fileapi-lockfileex
type windowsLock struct {
	fd windows.Handle
}

var _ Releaser = (*windowsLock)(nil)

func (fl *windowsLock) Release() error {
	return windows.UnlockFileEx(fl.fd, 0, 1, 0, &windows.Overlapped{})
}

func (fl *windowsLock) lock(block bool) error {
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK)
	if !block {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	return windows.LockFileEx(fl.fd, flags, 0, 1, 0, &windows.Overlapped{})
}

func NewLock(f *os.File) (Releaser, error) {
	l := &windowsLock{windows.Handle(f.Fd())}
	return l, l.lock(false)
}

func WaitLock(f *os.File) (Releaser, error) {
	l := &windowsLock{windows.Handle(f.Fd())}
	return l, l.lock(true)
}
