package crypto

import "crypto/rand"

// RandNonceGenerator implements ikeinit.NonceGenerator over crypto/rand,
// the same source the teacher's Tkm.NcCreate used (math/big.Int read from
// crypto/rand rather than a PRNG keyed off anything session-derived).
type RandNonceGenerator struct{}

func (RandNonceGenerator) Generate(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
