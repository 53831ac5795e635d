// Package treehash computes the hierarchical SHA-256 digest used by the
// remote archive service to verify payload integrity. The payload is
// split into fixed 1 MiB sub-blocks, each block is hashed, and adjacent
// digests are combined pairwise up a binary tree until a single root
// remains. An unpaired digest at any level is carried up unchanged.
//
// The algorithm must match the remote side bit-for-bit; any deviation
// makes legitimate uploads fail their integrity check.
package treehash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// BlockSize is the sub-block size the digest tree is built over.
const BlockSize = 1 << 20

// Hasher incrementally computes a tree hash over a byte stream.
// It implements io.Writer; call Sum after the final Write.
type Hasher struct {
	buf    []byte
	leaves [][]byte
}

func NewHasher() *Hasher {
	return &Hasher{buf: make([]byte, 0, BlockSize)}
}

func (h *Hasher) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		room := BlockSize - len(h.buf)
		if room > len(p) {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
		p = p[room:]
		if len(h.buf) == BlockSize {
			h.flush()
		}
	}
	return n, nil
}

func (h *Hasher) flush() {
	d := sha256.Sum256(h.buf)
	h.leaves = append(h.leaves, d[:])
	h.buf = h.buf[:0]
}

// Sum returns the root digest of everything written so far. The hasher
// is not consumed; further writes extend the final (partial) block only
// if none was flushed by Sum, so treat Sum as terminal.
func (h *Hasher) Sum() []byte {
	leaves := h.leaves
	if len(h.buf) > 0 || len(leaves) == 0 {
		d := sha256.Sum256(h.buf)
		leaves = append(append([][]byte{}, leaves...), d[:])
	}
	return Fold(leaves)
}

// Fold combines block digests pairwise up a binary tree and returns the
// root. A level's trailing unpaired digest is promoted unchanged. Fold
// of a single digest is that digest; Fold of none is the hash of zero
// bytes, matching Sum on empty input.
func Fold(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		d := sha256.Sum256(nil)
		return d[:]
	}
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			d := sha256.Sum256(append(append([]byte{}, level[i]...), level[i+1]...))
			next = append(next, d[:])
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

// Hash streams r through a Hasher and returns the root digest.
func Hash(r io.Reader) ([]byte, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(), nil
}

// HashBytes returns the root digest of b.
func HashBytes(b []byte) []byte {
	h := NewHasher()
	_, _ = h.Write(b)
	return h.Sum()
}

// HexHash returns the root digest of r as a lowercase hex string.
func HexHash(r io.Reader) (string, error) {
	d, err := Hash(r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(d), nil
}
