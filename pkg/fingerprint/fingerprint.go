// Package fingerprint derives stable incident keys from diagnostic text.
//
// Two faults with byte-identical diagnostics always map to the same
// fingerprint, which is what lets the incident store collapse unbounded
// occurrences into one tracked incident. Callers are responsible for
// stripping transient detail (timestamps, addresses) before fingerprinting.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the fingerprint length in bytes.
const Size = sha256.Size

// Fingerprint is a fixed-length content hash of diagnostic text.
type Fingerprint [Size]byte

// Sum computes the fingerprint of the given diagnostic bytes.
func Sum(diagnostic []byte) Fingerprint {
	return sha256.Sum256(diagnostic)
}

// SumString computes the fingerprint of the given diagnostic string.
func SumString(diagnostic string) Fingerprint {
	return Sum([]byte(diagnostic))
}

// Bytes returns the fingerprint as a byte slice, suitable for use as a
// BLOB key.
func (f Fingerprint) Bytes() []byte {
	return f[:]
}

// Hex returns the lowercase hex encoding of the fingerprint.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return f.Hex()
}
