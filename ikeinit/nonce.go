package ikeinit

import "bytes"

// NonceSize is the Ni/Nr length this module generates (RFC 7296 allows
// 16-256 octets; 32 matches a SHA-256-keyed PRF's preferred key size).
const NonceSize = 32

// LowerNonce returns whichever of the two nonces sorts first
// lexicographically, used wherever the exchange needs a value both peers
// compute identically without prior coordination (cookie/retry bookkeeping,
// rekey collision resolution).
func LowerNonce(a, b []byte) []byte {
	if bytes.Compare(a, b) <= 0 {
		return a
	}
	return b
}
