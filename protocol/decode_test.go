package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadsRoundTrip(t *testing.T) {
	nonce := &NoncePayload{PayloadHeader: &PayloadHeader{}, Nonce: make([]byte, 32)}
	for i := range nonce.Nonce {
		nonce.Nonce[i] = byte(i)
	}
	notify := NewNotify(COOKIE, []byte{0xde, 0xad, 0xbe, 0xef})

	var body []byte
	body = append(body, EncodePayload(nonce, PayloadTypeN)...)
	body = append(body, EncodePayload(notify, PayloadTypeNone)...)

	decoded, err := DecodePayloads(PayloadTypeNonce, body)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	gotNonce, ok := decoded[0].(*NoncePayload)
	require.True(t, ok)
	assert.Equal(t, nonce.Nonce, gotNonce.Nonce)

	gotNotify, ok := decoded[1].(*NotifyPayload)
	require.True(t, ok)
	assert.Equal(t, COOKIE, gotNotify.NotificationType)
	assert.Equal(t, notify.Data, gotNotify.Data)
}

func TestDecodePayloadsRejectsUnknownType(t *testing.T) {
	nonce := &NoncePayload{PayloadHeader: &PayloadHeader{}, Nonce: make([]byte, 32)}
	body := EncodePayload(nonce, PayloadTypeNone)
	// Corrupt the claimed first-payload type to something this decoder
	// doesn't recognize (CERT, carried for completeness but never
	// constructed by IKE_SA_INIT).
	_, err := DecodePayloads(PayloadTypeCERT, body)
	assert.Error(t, err)
}
