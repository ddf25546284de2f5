package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// Serialize returns the canonical [0,pubkey,created_at,kind,tags,content]
// encoding that the event id commits to.
func Serialize(e Event) []byte {
	return e.Nostr().Serialize()
}

// Hash computes the event id: lowercase hex sha256 of the canonical encoding.
// ID and Sig are ignored.
func Hash(e Event) string {
	sum := sha256.Sum256(Serialize(e))
	return hex.EncodeToString(sum[:])
}
