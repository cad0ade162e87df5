package crypto

import (
	"github.com/pkg/errors"

	"github.com/msgboxio/ike/protocol"
)

// Cipher provides the encrypt+integrity-protect / verify+decrypt operations
// for an SK payload, whether built from separate ENCR+INTEG transforms or a
// single combined AEAD transform.
type Cipher interface {
	Overhead(clear []byte) int
	VerifyDecrypt(ike, skA, skE []byte) (dec []byte, err error)
	EncryptMac(headers, payload, skA, skE []byte) (b []byte, err error)
}

// CipherSuite is a negotiated proposal turned into concrete primitives:
// everything the keymat engine needs to go from DH shared secret and nonces
// to SK_d/SK_ai/SK_ar/SK_ei/SK_er/SK_pi/SK_pr.
type CipherSuite struct {
	Cipher
	Prf     *Prf
	DhGroup dhGroup

	KeyLen, MacKeyLen int
}

// NewCipherSuite builds a CipherSuite from one negotiated Proposal's
// transforms, grounded on the way the teacher's cipherSuite construction
// walks a transform set once and fills in each component as it's seen.
func NewCipherSuite(trs []*protocol.SaTransform) (*CipherSuite, error) {
	cs := &CipherSuite{}
	var aead *aeadCipher
	var block *simpleCipher

	for _, tr := range trs {
		switch tr.Transform.Type {
		case protocol.TRANSFORM_TYPE_DH:
			dh, ok := kexAlgoMap[protocol.DhTransformId(tr.Transform.TransformId)]
			if !ok {
				return nil, errors.Errorf("unsupported dh transform %d", tr.Transform.TransformId)
			}
			cs.DhGroup = dh
		case protocol.TRANSFORM_TYPE_PRF:
			prf, err := prfTranform(tr.Transform.TransformId)
			if err != nil {
				return nil, err
			}
			cs.Prf = prf
		case protocol.TRANSFORM_TYPE_ENCR:
			keyLen := int(tr.KeyLength) / 8
			var ok bool
			if block, ok = cipherTransform(tr.Transform.TransformId, keyLen, block); !ok {
				if aead, keyLen, ok = aeadTransform(tr.Transform.TransformId, keyLen, aead); !ok {
					return nil, errors.Errorf("unsupported cipher transform %d", tr.Transform.TransformId)
				}
			}
			cs.KeyLen = keyLen
		case protocol.TRANSFORM_TYPE_INTEG:
			var ok bool
			if block, ok = integrityTransform(tr.Transform.TransformId, block); !ok {
				return nil, errors.Errorf("unsupported integrity transform %d", tr.Transform.TransformId)
			}
			cs.MacKeyLen = block.macKeyLen
		case protocol.TRANSFORM_TYPE_ESN:
			// carried for ESP proposals only; IKE_SA_INIT ignores it.
		case protocol.TRANSFORM_TYPE_ADDKE1, protocol.TRANSFORM_TYPE_ADDKE2, protocol.TRANSFORM_TYPE_ADDKE3,
			protocol.TRANSFORM_TYPE_ADDKE4, protocol.TRANSFORM_TYPE_ADDKE5, protocol.TRANSFORM_TYPE_ADDKE6,
			protocol.TRANSFORM_TYPE_ADDKE7:
			// additional key exchanges are run by the task's KXPlan; the
			// keymat only receives their shared secrets.
		default:
			return nil, errors.Errorf("unsupported transform type %d", tr.Transform.Type)
		}
	}
	if block == nil && aead == nil {
		return nil, errors.New("no cipher transform in proposal")
	}
	if block != nil && aead != nil {
		return nil, errors.New("cannot mix block cipher and aead transforms")
	}
	if block != nil {
		cs.Cipher = block
	} else {
		cs.Cipher = aead
		cs.MacKeyLen = 0 // AEAD folds integrity into the cipher itself
	}
	return cs, nil
}

// CheckIkeTransforms validates that the suite has everything an IKE SA
// needs: a DH group and a PRF (the cipher is guaranteed by NewCipherSuite).
func (cs *CipherSuite) CheckIkeTransforms() error {
	if cs.DhGroup == nil {
		return errors.New("proposal is missing a diffie-hellman group")
	}
	if cs.Prf == nil {
		return errors.New("proposal is missing a prf")
	}
	return nil
}
