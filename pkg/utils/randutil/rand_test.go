package randutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt63n(t *testing.T) {
	assert.NotEqual(t, Int63n(), Int63n())
}

func TestUint64n(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Less(t, Uint64n(), uint64(initialVersionCeiling))
	}
}

func TestStringN(t *testing.T) {
	s := StringN(16)
	assert.Len(t, s, 16)
	assert.NotEqual(t, s, StringN(16))
}
