package crypto

import (
	"github.com/msgboxio/ike/ikeinit"
	"github.com/msgboxio/ike/protocol"
)

// NewKeymatFactory is an ikeinit.KeymatFactory bound to this package's
// cipher suite construction: it builds the CipherSuite (and so resolves the
// negotiated PRF) from whichever Proposal the task actually selected, since
// a Keymat can't be built any earlier than that.
func NewKeymatFactory() ikeinit.KeymatFactory {
	return func(p *protocol.Proposal) (ikeinit.Keymat, error) {
		suite, err := NewCipherSuite(p.Transforms)
		if err != nil {
			return nil, err
		}
		if err := suite.CheckIkeTransforms(); err != nil {
			return nil, err
		}
		return NewKeymat(suite), nil
	}
}

// Keymat turns a negotiated CipherSuite's PRF and a set of key-exchange
// shared secrets into the SK_* key set an IKE SA needs, grounded on the
// teacher's Tkm.IsaCreate/prfplus (SKEYSEED := prf(Ni|Nr, g^ir); KEYMAT :=
// prf+(SKEYSEED, Ni|Nr|SPIi|SPIr), sliced into SK_d/SK_ai/SK_ar/SK_ei/
// SK_er/SK_pi/SK_pr in that order). RFC 9370 extends the SKEYSEED input
// from a single g^ir to the concatenation of every completed key
// exchange's shared secret, in slot order; with one slot this degenerates
// to the classic RFC 7296 computation.
type Keymat struct {
	suite *CipherSuite

	skD, skAi, skAr, skEi, skEr, skPi, skPr []byte
}

func NewKeymat(suite *CipherSuite) *Keymat { return &Keymat{suite: suite} }

var _ ikeinit.Keymat = (*Keymat)(nil)

// DeriveIKE computes SKEYSEED and the full SK_* set for a brand new IKE SA.
func (k *Keymat) DeriveIKE(sharedSecrets [][]byte, ni, nr, spiI, spiR []byte) error {
	g := concat(sharedSecrets)
	skeyseed := k.suite.Prf.Fn(concat([][]byte{ni, nr}), g)
	return k.expand(skeyseed, ni, nr, spiI, spiR)
}

// DeriveRekey derives a rekeyed IKE SA's keys chained from the rekeying
// SA's SK_d: RFC 7296 §2.18 replaces SKEYSEED with
// prf(SK_d_old, g^ir_new | Ni | Nr) and otherwise runs the identical
// expansion.
func (k *Keymat) DeriveRekey(oldSkD []byte, sharedSecrets [][]byte, ni, nr []byte) error {
	g := concat(sharedSecrets)
	skeyseed := k.suite.Prf.Fn(oldSkD, concat([][]byte{g, ni, nr}))
	return k.expand(skeyseed, ni, nr, nil, nil)
}

func (k *Keymat) expand(skeyseed, ni, nr, spiI, spiR []byte) error {
	seedData := concat([][]byte{ni, nr, spiI, spiR})
	prf := k.suite.Prf
	encrLen, integLen := k.suite.KeyLen, k.suite.MacKeyLen
	need := prf.Len + 2*integLen + 2*encrLen + 2*prf.Len
	material := prfPlus(prf, skeyseed, seedData, need)

	cut := func(n int) []byte {
		b := material[:n]
		material = material[n:]
		return b
	}
	k.skD = cut(prf.Len)
	k.skAi = cut(integLen)
	k.skAr = cut(integLen)
	k.skEi = cut(encrLen)
	k.skEr = cut(encrLen)
	k.skPi = cut(prf.Len)
	k.skPr = cut(prf.Len)
	return nil
}

// prfPlus is RFC 7296 §2.13's PRF+: T1 = prf(key, S | 0x01), T2 = prf(key,
// T1 | S | 0x02), ... concatenated until at least n bytes are available.
func prfPlus(prf *Prf, key, seed []byte, n int) []byte {
	var out, t []byte
	for round := byte(1); len(out) < n; round++ {
		t = prf.Fn(key, concat([][]byte{t, seed, {round}}))
		out = append(out, t...)
	}
	return out[:n]
}

func concat(parts [][]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func (k *Keymat) SkD() []byte  { return k.skD }
func (k *Keymat) SkAi() []byte { return k.skAi }
func (k *Keymat) SkAr() []byte { return k.skAr }
func (k *Keymat) SkEi() []byte { return k.skEi }
func (k *Keymat) SkEr() []byte { return k.skEr }
func (k *Keymat) SkPi() []byte { return k.skPi }
func (k *Keymat) SkPr() []byte { return k.skPr }
