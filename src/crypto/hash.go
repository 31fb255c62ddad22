// Package crypto holds the hashing primitives used to identify blocks.
//
// Messages are not signed: the validator-set is permissioned and static, and
// content hashes are only used for block linkage and vote matching.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the SHA256 hash of the concatenation of the given chunks.
func SHA256(chunks ...[]byte) []byte {
	hasher := sha256.New()
	for _, c := range chunks {
		hasher.Write(c)
	}
	return hasher.Sum(nil)
}

// HexString returns the lowercase hex encoding of a hash. It is the form used
// as a map key in vote tallies and in log fields.
func HexString(hash []byte) string {
	return hex.EncodeToString(hash)
}

// ShortHex returns the first 8 hex characters of a hash, for log fields.
func ShortHex(hash []byte) string {
	h := HexString(hash)
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
