package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultIDHexLen balances identifier brevity against collision risk.
const DefaultIDHexLen = 16

// newIdentifier derives a record identifier from the file manifest, the
// creation time, and a random salt, truncated to hexLen hex characters.
// Content and time both feed the digest, so identical manifests created
// at different moments still get distinct identifiers.
func newIdentifier(files []FileEntry, createdAt time.Time, salt string, hexLen int) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\n", f.RelPath, f.Size)
	}
	fmt.Fprintf(h, "%s\n%s\n", createdAt.UTC().Format(time.RFC3339Nano), salt)
	return hex.EncodeToString(h.Sum(nil))[:hexLen]
}

// validHexPrefix reports whether prefix could ever match an identifier.
func validHexPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, r := range prefix {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
