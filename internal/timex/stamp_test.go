package timex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamp_FixedWidth(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	half := Stamp(base.Add(500 * time.Millisecond))
	assert.Equal(t, "2026-08-01T12:00:00.500000000Z", half)

	// Text order must follow time order even when one fraction is a
	// prefix of the other.
	later := Stamp(base.Add(510 * time.Millisecond))
	assert.Less(t, half, later)
}

func TestParseStamp(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 500_000_000, time.UTC)

	got, err := ParseStamp(Stamp(base))
	require.NoError(t, err)
	assert.True(t, got.Equal(base))

	// Trimmed fractions parse too.
	got, err = ParseStamp("2026-08-01T12:00:00.5Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(base))

	_, err = ParseStamp("not a timestamp")
	require.Error(t, err)
}
