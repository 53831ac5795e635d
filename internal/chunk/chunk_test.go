package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqweebloid/seedbank/internal/common"
)

const mib = int64(1 << 20)

func TestPlan_CoversPayloadExactly(t *testing.T) {
	limits := Limits{MinPartSize: mib, MaxPartSize: 8 * mib, MaxParts: 10000}

	sizes := []int64{
		1,
		mib - 1,
		mib,
		mib + 1,
		3 * mib,
		8 * mib,
		10 * mib,
		100*mib + 777,
	}
	for _, total := range sizes {
		parts, err := Plan(total, limits)
		require.NoError(t, err, "size %d", total)
		require.NotEmpty(t, parts)

		var next int64
		for _, p := range parts {
			assert.Equal(t, next, p.Offset, "size %d", total)
			assert.Positive(t, p.Length)
			next += p.Length
		}
		assert.Equal(t, total, next, "size %d", total)
	}
}

func TestPlan_AllPartsShareOnePowerOfTwoSize(t *testing.T) {
	parts, err := Plan(100*mib+777, Limits{MinPartSize: mib, MaxPartSize: 8 * mib, MaxParts: 10000})
	require.NoError(t, err)

	size := parts[0].Length
	assert.True(t, isPowerOfTwo(size))
	for i, p := range parts[:len(parts)-1] {
		assert.Equal(t, size, p.Length, "part %d", i)
	}
	last := parts[len(parts)-1]
	assert.LessOrEqual(t, last.Length, size)
}

func TestPlan_TenMiBSplitsEightPlusTwo(t *testing.T) {
	parts, err := Plan(10*mib, DefaultLimits())
	require.NoError(t, err)
	require.Len(t, parts, 2)

	assert.Equal(t, Part{Offset: 0, Length: 8 * mib}, parts[0])
	assert.Equal(t, Part{Offset: 8 * mib, Length: 2 * mib}, parts[1])
}

func TestPlan_ExactPowerOfTwoIsSinglePart(t *testing.T) {
	// The part size is the largest power of two not exceeding the
	// payload, so a payload that is itself a power of two within
	// bounds covers the whole thing in one part.
	parts, err := Plan(8*mib, DefaultLimits())
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, Part{Offset: 0, Length: 8 * mib}, parts[0])
}

func TestPlan_SmallPayloadUsesMinPartSize(t *testing.T) {
	parts, err := Plan(100, DefaultLimits())
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, Part{Offset: 0, Length: 100}, parts[0])
}

func TestPlan_GrowsPartSizeToHonorMaxParts(t *testing.T) {
	parts, err := Plan(3*mib, Limits{MinPartSize: mib, MaxPartSize: 4 * mib, MaxParts: 1})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, int64(3*mib), parts[0].Length)
}

func TestPlan_FailsWhenMaxPartsUnreachable(t *testing.T) {
	_, err := Plan(40*mib, Limits{MinPartSize: mib, MaxPartSize: 8 * mib, MaxParts: 4})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestPlan_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		limits Limits
	}{
		{"zero size", 0, DefaultLimits()},
		{"negative size", -1, DefaultLimits()},
		{"min not power of two", mib, Limits{MinPartSize: 3 * mib, MaxPartSize: 8 * mib, MaxParts: 10}},
		{"min below hash block", mib, Limits{MinPartSize: 512, MaxPartSize: 8 * mib, MaxParts: 10}},
		{"max below min", mib, Limits{MinPartSize: 2 * mib, MaxPartSize: mib, MaxParts: 10}},
		{"zero max parts", mib, Limits{MinPartSize: mib, MaxPartSize: 8 * mib, MaxParts: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.total, tt.limits)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestLargestPowerOfTwoAtMost(t *testing.T) {
	assert.Equal(t, int64(1), largestPowerOfTwoAtMost(1))
	assert.Equal(t, int64(4), largestPowerOfTwoAtMost(7))
	assert.Equal(t, int64(8), largestPowerOfTwoAtMost(8))
	assert.Equal(t, 8*mib, largestPowerOfTwoAtMost(10*mib))
}
