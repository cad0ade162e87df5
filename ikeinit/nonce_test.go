package ikeinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowerNonceSymmetric(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03}
	b := []byte{0x01, 0x02, 0x04}

	assert.Equal(t, a, LowerNonce(a, b))
	assert.Equal(t, a, LowerNonce(b, a), "LowerNonce must agree regardless of argument order")
}

func TestLowerNonceEqualInputs(t *testing.T) {
	a := []byte{0x05, 0x06}
	b := append([]byte{}, a...)
	assert.Equal(t, a, LowerNonce(a, b))
}
