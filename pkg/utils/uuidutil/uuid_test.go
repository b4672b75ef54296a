package uuidutil

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUID(t *testing.T) {
	id := UUID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	assert.NotEqual(t, id, UUID())
}

func TestShortUUID(t *testing.T) {
	id := ShortUUID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-Za-z]+$`), id)
	assert.GreaterOrEqual(t, len(id), 22)
	assert.NotEqual(t, id, ShortUUID())
}
