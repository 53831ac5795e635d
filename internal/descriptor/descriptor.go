// Package descriptor packs archive metadata into the size-capped ASCII
// blob the remote service stores alongside each archive, and unpacks it
// again for disaster recovery when only the remote copy survives.
//
// The encoding is a single line of tagged fields:
//
//	sb1 id=<identifier> n=<file count> th=<tree hash hex> d=<description>
//
// The description, if present, is always the last field and runs to the
// end of the line. Decoders ignore tags they do not understand, so old
// decoders can read blobs written by newer encoder versions.
package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqweebloid/seedbank/internal/common"
)

// MaxLen is the remote's cap on descriptor text, in ASCII bytes.
const MaxLen = 1024

// TruncationMarker terminates a description that was cut to fit MaxLen.
const TruncationMarker = "..."

const version = "sb1"

// Descriptor is the subset of an archive record that survives in the
// remote-stored blob. Structural fields (identifier, file count, tree
// hash) are always preserved; the description is best-effort.
type Descriptor struct {
	ID          string
	FileCount   int
	TreeHash    string
	Description string
}

// Encode renders d deterministically into at most MaxLen ASCII bytes.
// If the full encoding would overflow, the description is truncated
// with TruncationMarker, or dropped entirely when not even the marker
// fits. Structural fields are never sacrificed; if they alone exceed
// MaxLen, Encode fails.
func Encode(d Descriptor) (string, error) {
	if d.ID == "" {
		return "", fmt.Errorf("%w: descriptor requires an identifier", common.ErrValidation)
	}
	base := fmt.Sprintf("%s id=%s n=%d th=%s", version, d.ID, d.FileCount, d.TreeHash)
	if len(base) > MaxLen {
		return "", fmt.Errorf("%w: structural fields occupy %d bytes, cap is %d", common.ErrValidation, len(base), MaxLen)
	}

	desc := sanitize(d.Description)
	if desc == "" {
		return base, nil
	}

	full := base + " d=" + desc
	if len(full) <= MaxLen {
		return full, nil
	}

	budget := MaxLen - len(base) - len(" d=") - len(TruncationMarker)
	if budget <= 0 {
		return base, nil
	}
	return base + " d=" + desc[:budget] + TruncationMarker, nil
}

// Decode reconstructs a Descriptor from remote-stored text. It is
// best-effort: unknown tags are skipped, a missing description is fine,
// and the version token is not enforced beyond being present. Only text
// without a usable identifier is rejected.
func Decode(text string) (Descriptor, error) {
	var d Descriptor

	head := text
	if i := strings.Index(text, " d="); i >= 0 {
		head = text[:i]
		d.Description = text[i+len(" d="):]
	}

	for _, tok := range strings.Fields(head) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			// version token or noise; skipped either way
			continue
		}
		switch k {
		case "id":
			d.ID = v
		case "n":
			if n, err := strconv.Atoi(v); err == nil {
				d.FileCount = n
			}
		case "th":
			d.TreeHash = v
		}
	}

	if d.ID == "" {
		return Descriptor{}, fmt.Errorf("%w: descriptor text carries no identifier", common.ErrValidation)
	}
	return d, nil
}

// Truncated reports whether a decoded description was cut during encoding.
func Truncated(description string) bool {
	return strings.HasSuffix(description, TruncationMarker)
}

// sanitize maps the description onto printable ASCII so the blob always
// honors the remote's character contract. Newlines become spaces; other
// out-of-range bytes become '?'.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}
