// Package randutil draws from one process wide source guarded by a mutex.
package randutil

import (
	"math/rand"
	"sync"
	"time"
)

const (
	letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// initialVersionCeiling bounds the first eTag of a resource.
	initialVersionCeiling = 3294967296
)

var (
	mux sync.Mutex
	rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func Int63n() int64 {
	mux.Lock()
	defer mux.Unlock()
	return rnd.Int63()
}

// Uint64n returns an initial resource version.
func Uint64n() uint64 {
	mux.Lock()
	defer mux.Unlock()
	return uint64(rnd.Int63n(initialVersionCeiling))
}

func Intn(n int) int {
	mux.Lock()
	defer mux.Unlock()
	return rnd.Intn(n)
}

func StringN(n int) string {
	mux.Lock()
	defer mux.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rnd.Intn(len(letters))]
	}
	return string(b)
}
