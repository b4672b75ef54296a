// Package fileutil locks files shared between the gateway and other processes on the same host.
package fileutil

// Releaser releases a lock taken with NewLock or WaitLock.
type Releaser interface {
	Release() error
}
