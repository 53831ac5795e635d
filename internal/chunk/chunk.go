// Package chunk plans how a payload is partitioned into transfer-sized
// parts for multi-part upload.
package chunk

import (
	"fmt"
	"math/bits"

	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/treehash"
)

// Part is one contiguous piece of a payload.
type Part struct {
	Offset int64
	Length int64
}

// Limits describes the remote side's part-size contract. Bounds must be
// powers of two; they are configuration, not vendor hardcodes.
type Limits struct {
	MinPartSize int64
	MaxPartSize int64
	MaxParts    int
}

// DefaultLimits mirrors a common cold-storage contract: parts from
// 1 MiB to 4 GiB, at most 10000 parts per upload.
func DefaultLimits() Limits {
	return Limits{
		MinPartSize: 1 << 20,
		MaxPartSize: 4 << 30,
		MaxParts:    10000,
	}
}

func (l Limits) validate() error {
	if l.MinPartSize <= 0 || !isPowerOfTwo(l.MinPartSize) {
		return fmt.Errorf("%w: min part size %d is not a positive power of two", common.ErrValidation, l.MinPartSize)
	}
	// Part boundaries must align with the integrity hash sub-blocks, or
	// per-part digests could not be folded into the payload root.
	if l.MinPartSize < treehash.BlockSize {
		return fmt.Errorf("%w: min part size %d is below the %d-byte hash block", common.ErrValidation, l.MinPartSize, treehash.BlockSize)
	}
	if l.MaxPartSize < l.MinPartSize || !isPowerOfTwo(l.MaxPartSize) {
		return fmt.Errorf("%w: max part size %d is not a power of two >= min", common.ErrValidation, l.MaxPartSize)
	}
	if l.MaxParts <= 0 {
		return fmt.Errorf("%w: max parts must be positive", common.ErrValidation)
	}
	return nil
}

// Plan returns an ordered part sequence covering [0, totalSize) exactly,
// with no gaps or overlaps. All parts share one power-of-two length
// within [MinPartSize, MaxPartSize] except a possibly shorter final
// part. The part size is the largest eligible power of two not
// exceeding the payload, grown further only when the resulting part
// count would break MaxParts; if even MaxPartSize cannot keep the count
// within the cap, Plan fails.
func Plan(totalSize int64, l Limits) ([]Part, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total size must be positive, got %d", common.ErrValidation, totalSize)
	}

	size := largestPowerOfTwoAtMost(totalSize)
	if size < l.MinPartSize {
		size = l.MinPartSize
	}
	if size > l.MaxPartSize {
		size = l.MaxPartSize
	}
	for partCount(totalSize, size) > int64(l.MaxParts) {
		if size >= l.MaxPartSize {
			return nil, fmt.Errorf("%w: payload of %d bytes needs more than %d parts at max part size %d",
				common.ErrValidation, totalSize, l.MaxParts, l.MaxPartSize)
		}
		size *= 2
	}

	n := partCount(totalSize, size)
	parts := make([]Part, 0, n)
	for off := int64(0); off < totalSize; off += size {
		length := size
		if off+length > totalSize {
			length = totalSize - off
		}
		parts = append(parts, Part{Offset: off, Length: length})
	}
	return parts, nil
}

func partCount(total, size int64) int64 {
	return (total + size - 1) / size
}

func isPowerOfTwo(v int64) bool {
	return v > 0 && v&(v-1) == 0
}

func largestPowerOfTwoAtMost(v int64) int64 {
	return int64(1) << (bits.Len64(uint64(v)) - 1)
}
