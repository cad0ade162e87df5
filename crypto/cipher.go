package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/dgryski/go-camellia"
	"github.com/pkg/errors"

	"github.com/msgboxio/ike/protocol"
)

type macFunc func(key, data []byte) []byte
type prfFunc func(key, data []byte) []byte
type cipherFunc func(key, iv []byte, isRead bool) interface{}

// Prf is the pseudorandom function negotiated for SKEYSEED/KEYMAT
// derivation and the AUTH payload; Len is its natural output size in bytes.
type Prf struct {
	Len int
	Fn  prfFunc
}

func prfTranform(id uint16) (*Prf, error) {
	switch protocol.PrfTransformId(id) {
	case protocol.PRF_HMAC_SHA2_256:
		return &Prf{Len: sha256.Size, Fn: macPrf(sha256.New)}, nil
	case protocol.PRF_HMAC_SHA2_384:
		return &Prf{Len: sha512.Size384, Fn: macPrf(sha512.New384)}, nil
	case protocol.PRF_HMAC_SHA2_512:
		return &Prf{Len: sha512.Size, Fn: macPrf(sha512.New)}, nil
	case protocol.PRF_HMAC_SHA1:
		return &Prf{Len: sha1.Size, Fn: macPrf(sha1.New)}, nil
	default:
		return nil, errors.Errorf("unsupported prf transform %d", id)
	}
}

func macPrf(h func() hash.Hash) prfFunc {
	return func(key, data []byte) []byte {
		mac := hmac.New(h, key)
		mac.Write(data)
		return mac.Sum(nil)
	}
}

func hashMac(h func() hash.Hash, macLen int) macFunc {
	return func(key, data []byte) []byte {
		mac := hmac.New(h, key)
		mac.Write(data)
		return mac.Sum(nil)[:macLen]
	}
}

// simpleCipher implements Cipher for a block cipher in CBC mode paired with
// a separate HMAC integrity transform (encrypt-then-MAC).
type simpleCipher struct {
	keyLen, ivLen, blockLen int
	cipherFunc

	macLen, macKeyLen int
	macFunc

	protocol.EncrTransformId
	protocol.AuthTransformId
}

func (cs *simpleCipher) Overhead(clear []byte) int {
	pad := cs.blockLen - len(clear)%cs.blockLen
	return pad + cs.macLen + cs.ivLen
}

func (cs *simpleCipher) VerifyDecrypt(ike, skA, skE []byte) ([]byte, error) {
	if cs.macFunc != nil {
		if err := verifyMac(skA, ike, cs.macLen, cs.macFunc); err != nil {
			return nil, err
		}
	}
	b := ike[protocol.IkeHeaderLen:]
	return decrypt(b[protocol.PayloadHeaderLen:len(b)-cs.macLen], skE, cs.ivLen, cs.cipherFunc)
}

func (cs *simpleCipher) EncryptMac(headers, payload, skA, skE []byte) ([]byte, error) {
	encr, err := encrypt(payload, skE, cs.ivLen, cs.cipherFunc)
	if err != nil {
		return nil, err
	}
	data := append(append([]byte{}, headers...), encr...)
	if cs.macFunc == nil {
		return data, nil
	}
	mac := cs.macFunc(skA, data)
	return append(data, mac...), nil
}

func verifyMac(key, b []byte, macLen int, fn macFunc) error {
	l := len(b)
	if l < macLen {
		return protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "message shorter than mac")
	}
	msg, msgMAC := b[:l-macLen], b[l-macLen:]
	expected := fn(key, msg)[:macLen]
	if !hmac.Equal(msgMAC, expected) {
		return errors.New("integrity check failed")
	}
	return nil
}

func decrypt(b, key []byte, ivLen int, cipherFn cipherFunc) ([]byte, error) {
	if cipherFn == nil {
		return b, nil
	}
	iv, ciphertext := b[0:ivLen], b[ivLen:]
	mode, ok := cipherFn(key, iv, true).(cipher.BlockMode)
	if !ok {
		return nil, errors.New("unsupported block mode")
	}
	if len(ciphertext)%mode.BlockSize() != 0 {
		return nil, errors.New("ciphertext is not a multiple of the block size")
	}
	clear := make([]byte, len(ciphertext))
	mode.CryptBlocks(clear, ciphertext)
	padlen := int(clear[len(clear)-1]) + 1
	if padlen > mode.BlockSize() || padlen > len(clear) {
		return nil, errors.New("pad length larger than block size")
	}
	return clear[:len(clear)-padlen], nil
}

func encrypt(clear, key []byte, ivLen int, cipherFn cipherFunc) ([]byte, error) {
	if cipherFn == nil {
		return clear, nil
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	mode, ok := cipherFn(key, iv, false).(cipher.BlockMode)
	if !ok {
		return nil, errors.New("unsupported block mode")
	}
	padlen := mode.BlockSize() - len(clear)%mode.BlockSize()
	pad := make([]byte, padlen)
	pad[padlen-1] = byte(padlen - 1)
	clear = append(append([]byte{}, clear...), pad...)
	ciphertext := make([]byte, len(clear))
	mode.CryptBlocks(ciphertext, clear)
	return append(iv, ciphertext...), nil
}

func cipherTransform(id uint16, keyLen int, prev *simpleCipher) (*simpleCipher, bool) {
	blockSize, fn, ok := blockCipherFunc(id)
	if !ok {
		return nil, false
	}
	if prev == nil {
		prev = &simpleCipher{}
	}
	prev.keyLen = keyLen
	prev.blockLen = blockSize
	prev.ivLen = blockSize
	prev.cipherFunc = fn
	prev.EncrTransformId = protocol.EncrTransformId(id)
	return prev, true
}

func blockCipherFunc(id uint16) (int, cipherFunc, bool) {
	switch protocol.EncrTransformId(id) {
	case protocol.ENCR_CAMELLIA_CBC:
		return camellia.BlockSize, cipherCamellia, true
	case protocol.ENCR_AES_CBC:
		return aes.BlockSize, cipherAES, true
	case protocol.ENCR_NULL:
		return 0, nil, true
	default:
		return 0, nil, false
	}
}

func cipherAES(key, iv []byte, isRead bool) interface{} {
	block, _ := aes.NewCipher(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

func cipherCamellia(key, iv []byte, isRead bool) interface{} {
	block, _ := camellia.New(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

func integrityTransform(id uint16, prev *simpleCipher) (*simpleCipher, bool) {
	var macLen, macKeyLen int
	var fn macFunc
	switch protocol.AuthTransformId(id) {
	case protocol.AUTH_HMAC_SHA2_256_128:
		macLen, macKeyLen, fn = 16, sha256.Size, hashMac(sha256.New, 16)
	case protocol.AUTH_HMAC_SHA1_96:
		macLen, macKeyLen, fn = 12, sha1.Size, hashMac(sha1.New, 12)
	default:
		return nil, false
	}
	if prev == nil {
		prev = &simpleCipher{}
	}
	prev.macLen, prev.macKeyLen, prev.macFunc = macLen, macKeyLen, fn
	prev.AuthTransformId = protocol.AuthTransformId(id)
	return prev, true
}

// aeadCipher implements Cipher for a combined AEAD transform: no separate
// integrity transform is negotiated, the tag is the "mac".
type aeadCipher struct {
	keyLen, nonceLen, tagLen int
	protocol.EncrTransformId
}

func (cs *aeadCipher) Overhead(clear []byte) int { return cs.nonceLen + cs.tagLen }

func (cs *aeadCipher) VerifyDecrypt(ike, skA, skE []byte) ([]byte, error) {
	b := ike[protocol.IkeHeaderLen:]
	body := b[protocol.PayloadHeaderLen:]
	aead, err := cs.aead(skE)
	if err != nil {
		return nil, err
	}
	if len(body) < cs.nonceLen {
		return nil, protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "aead ciphertext too short")
	}
	nonce, ciphertext := body[:cs.nonceLen], body[cs.nonceLen:]
	aad := ike[:protocol.IkeHeaderLen+protocol.PayloadHeaderLen]
	return aead.Open(nil, nonce, ciphertext, aad)
}

func (cs *aeadCipher) EncryptMac(headers, payload, skA, skE []byte) ([]byte, error) {
	aead, err := cs.aead(skE)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, cs.nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, payload, headers)
	return append(append(append([]byte{}, headers...), nonce...), sealed...), nil
}

func (cs *aeadCipher) aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:cs.keyLen])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, cs.tagLen)
}

func aeadTransform(id uint16, keyLen int, prev *aeadCipher) (*aeadCipher, int, bool) {
	switch protocol.EncrTransformId(id) {
	case protocol.AEAD_AES_GCM_16:
		if prev == nil {
			prev = &aeadCipher{}
		}
		prev.keyLen = keyLen
		prev.nonceLen = 8
		prev.tagLen = 16
		prev.EncrTransformId = protocol.EncrTransformId(id)
		return prev, keyLen, true
	default:
		return nil, keyLen, false
	}
}
