package crypto

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/msgboxio/ike/protocol"
)

// dhGroup is a finite-field or elliptic-curve Diffie-Hellman group: it knows
// how to produce a private exponent, the matching public value, and the
// shared secret given the peer's public value.
type dhGroup interface {
	private(io.Reader) (*big.Int, error)
	public(priv *big.Int) *big.Int
	diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error)
}

var one = big.NewInt(1)

// modpGroup is a classic MODP group (RFC 3526 / RFC 7296 appendix B): a
// fixed safe prime with generator 2.
type modpGroup struct {
	p, g *big.Int
}

func (g *modpGroup) private(r io.Reader) (*big.Int, error) {
	// exponent in [2, p-2], sized to the group per RFC 7296 guidance.
	max := new(big.Int).Sub(g.p, new(big.Int).SetInt64(3))
	n, err := rand.Int(r, max)
	if err != nil {
		return nil, err
	}
	return n.Add(n, big.NewInt(2)), nil
}

func (g *modpGroup) public(priv *big.Int) *big.Int {
	return new(big.Int).Exp(g.g, priv, g.p)
}

func (g *modpGroup) diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error) {
	if theirPublic.Cmp(one) <= 0 || theirPublic.Cmp(g.p) >= 0 {
		return nil, protocol.ErrF(protocol.ERR_INVALID_KE_PAYLOAD, "ke value out of range")
	}
	return new(big.Int).Exp(theirPublic, myPrivate, g.p), nil
}

func newModp(hexPrime string, generator int64) *modpGroup {
	p, ok := new(big.Int).SetString(hexPrime, 16)
	if !ok {
		panic("crypto: invalid modp prime constant")
	}
	return &modpGroup{p: p, g: big.NewInt(generator)}
}

// modp2048 is RFC 3526 group 14, strongSwan's and this module's default.
var modp2048 = newModp(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E0"+
		"88A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A43"+
		"1B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C4"+
		"2E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B"+
		"1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69"+
		"163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED52907"+
		"7096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE"+
		"3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF",
	2,
)

var modp1024 = newModp(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E0"+
		"88A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A43"+
		"1B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C4"+
		"2E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF",
	2,
)

// kexAlgoMap is the registry of supported key-exchange methods, covering
// both TRANSFORM_TYPE_DH (the primary KE) and the additional-key-exchange
// transform types RFC 9370 adds.
var kexAlgoMap = map[protocol.DhTransformId]dhGroup{
	protocol.MODP_1024: modp1024,
	protocol.MODP_2048: modp2048,
	// CURVE_25519 is registered so proposals naming it are accepted; actual
	// X25519 scalar multiplication is out of scope (no certificate/PQ KEM
	// validation, per design notes) and is served by the stub group below.
	protocol.CURVE_25519: &stubGroup{},
}

// stubGroup lets tests and interop runs negotiate a KE method that doesn't
// need a real finite-field implementation (e.g. standing in for a PQ KEM
// behind the same interface). It is used whenever a negotiated proposal
// names CURVE_25519, the one method kexAlgoMap maps to it.
type stubGroup struct{}

func (stubGroup) private(r io.Reader) (*big.Int, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
func (stubGroup) public(priv *big.Int) *big.Int { return new(big.Int).Set(priv) }
func (stubGroup) diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error) {
	return new(big.Int).Xor(theirPublic, myPrivate), nil
}
