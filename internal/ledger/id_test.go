package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIdentifier(t *testing.T) {
	files := []FileEntry{{RelPath: "a.txt", Size: 5}, {RelPath: "b.txt", Size: 7}}
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	id := newIdentifier(files, at, "salt", 16)
	assert.Len(t, id, 16)
	assert.True(t, validHexPrefix(id))

	// Deterministic for identical inputs.
	assert.Equal(t, id, newIdentifier(files, at, "salt", 16))

	// Any of time, salt or manifest changing changes the identifier.
	assert.NotEqual(t, id, newIdentifier(files, at.Add(time.Second), "salt", 16))
	assert.NotEqual(t, id, newIdentifier(files, at, "other", 16))
	assert.NotEqual(t, id, newIdentifier(files[:1], at, "salt", 16))
}

func TestValidHexPrefix(t *testing.T) {
	assert.True(t, validHexPrefix("a1b2"))
	assert.True(t, validHexPrefix("0"))
	assert.False(t, validHexPrefix(""))
	assert.False(t, validHexPrefix("A1"))
	assert.False(t, validHexPrefix("xyz"))
}
