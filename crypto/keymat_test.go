package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgboxio/ike/protocol"
)

func testSuite(t *testing.T) *CipherSuite {
	prf, err := prfTranform(uint16(protocol.PRF_HMAC_SHA2_256))
	require.NoError(t, err)
	return &CipherSuite{Prf: prf, KeyLen: 16, MacKeyLen: 32}
}

func TestKeymatDeriveIKEIsDeterministic(t *testing.T) {
	suite := testSuite(t)
	ni, nr := []byte("initiator-nonce-xxx"), []byte("responder-nonce-yyy")
	spiI, spiR := []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{8, 7, 6, 5, 4, 3, 2, 1}
	shared := [][]byte{[]byte("shared-secret-bytes")}

	a := NewKeymat(suite)
	require.NoError(t, a.DeriveIKE(shared, ni, nr, spiI, spiR))

	b := NewKeymat(suite)
	require.NoError(t, b.DeriveIKE(shared, ni, nr, spiI, spiR))

	assert.Equal(t, a.SkD(), b.SkD())
	assert.Equal(t, a.SkAi(), b.SkAi())
	assert.Equal(t, a.SkEi(), b.SkEi())
	assert.Equal(t, a.SkPr(), b.SkPr())
}

func TestKeymatDeriveIKEProducesDistinctKeys(t *testing.T) {
	suite := testSuite(t)
	ni, nr := []byte("ni"), []byte("nr")
	spiI, spiR := []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{8, 7, 6, 5, 4, 3, 2, 1}
	shared := [][]byte{[]byte("g-to-the-ir")}

	k := NewKeymat(suite)
	require.NoError(t, k.DeriveIKE(shared, ni, nr, spiI, spiR))

	all := [][]byte{k.SkD(), k.SkAi(), k.SkAr(), k.SkEi(), k.SkEr(), k.SkPi(), k.SkPr()}
	for i := range all {
		for j := range all {
			if i == j {
				continue
			}
			assert.NotEqual(t, all[i], all[j], "SK_* slices %d and %d must not collide", i, j)
		}
	}
	assert.Len(t, k.SkD(), suite.Prf.Len)
	assert.Len(t, k.SkAi(), suite.MacKeyLen)
	assert.Len(t, k.SkEi(), suite.KeyLen)
}

func TestKeymatDeriveRekeyDiffersFromFreshDerive(t *testing.T) {
	suite := testSuite(t)
	ni, nr := []byte("ni"), []byte("nr")
	shared := [][]byte{[]byte("g-to-the-ir-2")}

	fresh := NewKeymat(suite)
	require.NoError(t, fresh.DeriveIKE(shared, ni, nr, []byte{1}, []byte{2}))

	rekeyed := NewKeymat(suite)
	require.NoError(t, rekeyed.DeriveRekey(fresh.SkD(), shared, ni, nr))

	assert.NotEqual(t, fresh.SkD(), rekeyed.SkD(), "a rekey must not reuse the rekeying SA's SK_d")
}

func TestPrfPlusProducesRequestedLength(t *testing.T) {
	prf, err := prfTranform(uint16(protocol.PRF_HMAC_SHA2_256))
	require.NoError(t, err)

	out := prfPlus(prf, []byte("key"), []byte("seed"), 100)
	assert.Len(t, out, 100)
}
