//go:build linux || darwin

package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0640))

	f1, err := os.Open(path)
	require.NoError(t, err)
	defer f1.Close()
	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()

	l, err := NewLock(f1)
	require.NoError(t, err)
	_, err = NewLock(f2)
	assert.Error(t, err)

	require.NoError(t, l.Release())
	l2, err := WaitLock(f2)
	require.NoError(t, err)
	assert.NoError(t, l2.Release())
}
