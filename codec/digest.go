package codec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns the hex blake3-256 digest of wire bytes. Sender and
// receiver compute it over the same bytes, so matching digests in the
// ledger pair the two sides of one transfer.
func Digest(wire []byte) string {
	if len(wire) == 0 {
		return ""
	}
	sum := blake3.Sum256(wire)
	return hex.EncodeToString(sum[:])
}
