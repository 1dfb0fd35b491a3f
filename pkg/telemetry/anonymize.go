package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashLength is the fixed length identifiers are truncated to after hashing.
const hashLength = 16

// anonymize returns a short one-way fingerprint of a raw identifier. Callers
// must not pass an empty string; an absent identifier is omitted, never
// hashed as filler.
func anonymize(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:hashLength]
}
