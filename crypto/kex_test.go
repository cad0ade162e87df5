package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgboxio/ike/protocol"
)

func TestDhKeyExchangeSharedSecretSymmetric(t *testing.T) {
	alice, err := NewKeyExchange(uint16(protocol.MODP_1024))
	require.NoError(t, err)
	bob, err := NewKeyExchange(uint16(protocol.MODP_1024))
	require.NoError(t, err)

	alicePub, err := alice.Public()
	require.NoError(t, err)
	bobPub, err := bob.Public()
	require.NoError(t, err)

	aliceShared, err := alice.SharedSecret(bobPub)
	require.NoError(t, err)
	bobShared, err := bob.SharedSecret(alicePub)
	require.NoError(t, err)

	assert.Equal(t, aliceShared.Bytes(), bobShared.Bytes())
}

func TestNewKeyExchangeRejectsUnknownMethod(t *testing.T) {
	_, err := NewKeyExchange(0xffff)
	assert.Error(t, err)
}
