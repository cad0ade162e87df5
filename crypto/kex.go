package crypto

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"

	"github.com/msgboxio/ike/ikeinit"
	"github.com/msgboxio/ike/protocol"
)

// dhKeyExchange adapts a dhGroup to ikeinit.KeyExchange, generating its
// private exponent lazily on first use so building a Task never forces key
// generation for a method that ends up unused (e.g. a KXPlan slot the peer
// rejects via INVALID_KE_PAYLOAD before Public is ever called).
type dhKeyExchange struct {
	method uint16
	group  dhGroup

	priv *big.Int
	pub  *big.Int
}

func (k *dhKeyExchange) Method() uint16 { return k.method }

func (k *dhKeyExchange) Public() (*ikeinit.BigBytes, error) {
	if k.priv == nil {
		priv, err := k.group.private(rand.Reader)
		if err != nil {
			return nil, err
		}
		k.priv = priv
		k.pub = k.group.public(priv)
	}
	return ikeinit.NewBigBytes(k.pub.Bytes()), nil
}

func (k *dhKeyExchange) SharedSecret(peerPublic *ikeinit.BigBytes) (*ikeinit.BigBytes, error) {
	if k.priv == nil {
		if _, err := k.Public(); err != nil {
			return nil, err
		}
	}
	theirs := new(big.Int).SetBytes(peerPublic.Bytes())
	shared, err := k.group.diffieHellman(theirs, k.priv)
	if err != nil {
		return nil, err
	}
	return ikeinit.NewBigBytes(shared.Bytes()), nil
}

// NewKeyExchange is an ikeinit.KeyExchangeFactory bound to this package's
// group registry, used by ike.Session to wire the task's KXPlan slots to
// real Diffie-Hellman state without the task importing crypto directly.
func NewKeyExchange(method uint16) (ikeinit.KeyExchange, error) {
	group, ok := kexAlgoMap[protocol.DhTransformId(method)]
	if !ok {
		return nil, errors.Errorf("unsupported key exchange method %d", method)
	}
	return &dhKeyExchange{method: method, group: group}, nil
}
