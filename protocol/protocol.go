// Package protocol implements the wire format of IKEv2 (RFC 7296) messages:
// the fixed header, the generic payload header, and the payload bodies the
// IKE_SA_INIT exchange and its RFC 9242/9370 follow-ups touch.
package protocol

import (
	"encoding/binary"
	"math/big"
	"net"
)

const (
	IKEV2_MAJOR_VERSION = 2
	IKEV2_MINOR_VERSION = 0

	IKE_PORT      = 500
	IKE_NATT_PORT = 4500
)

type Spi [8]byte

func (s Spi) IsZero() bool {
	for _, b := range s {
		if b != 0 {
			return false
		}
	}
	return true
}

type PayloadType uint8

const (
	PayloadTypeNone    PayloadType = 0
	PayloadTypeSA      PayloadType = 33
	PayloadTypeKE      PayloadType = 34
	PayloadTypeIDi     PayloadType = 35
	PayloadTypeIDr     PayloadType = 36
	PayloadTypeCERT    PayloadType = 37
	PayloadTypeCERTREQ PayloadType = 38
	PayloadTypeAUTH    PayloadType = 39
	PayloadTypeNonce   PayloadType = 40
	PayloadTypeN       PayloadType = 41
	PayloadTypeD       PayloadType = 42
	PayloadTypeV       PayloadType = 43
	PayloadTypeTSi     PayloadType = 44
	PayloadTypeTSr     PayloadType = 45
	PayloadTypeSK      PayloadType = 46
	PayloadTypeCP      PayloadType = 47
	PayloadTypeEAP     PayloadType = 48
	PayloadTypeSKF     PayloadType = 53
)

type IkeFlags uint8

const (
	FlagResponse  IkeFlags = 1 << 5
	FlagVersion   IkeFlags = 1 << 4
	FlagInitiator IkeFlags = 1 << 3
)

func (f IkeFlags) IsResponse() bool  { return f&FlagResponse != 0 }
func (f IkeFlags) IsInitiator() bool { return f&FlagInitiator != 0 }

type ProtocolId uint8

const (
	PROTO_IKE ProtocolId = 1
	PROTO_AH  ProtocolId = 2
	PROTO_ESP ProtocolId = 3
)

const IkeHeaderLen = 28

// IkeHeader is the fixed 28-octet header every IKEv2 message starts with.
type IkeHeader struct {
	SpiI, SpiR                 Spi
	NextPayload                PayloadType
	MajorVersion, MinorVersion uint8
	ExchangeType               IkeExchangeType
	Flags                      IkeFlags
	MsgId                      uint32
	MsgLength                  uint32
}

func DecodeIkeHeader(b []byte) (*IkeHeader, error) {
	if len(b) < IkeHeaderLen {
		return nil, ErrF(ERR_INVALID_SYNTAX, "header too short: %d", len(b))
	}
	h := &IkeHeader{}
	copy(h.SpiI[:], b[0:8])
	copy(h.SpiR[:], b[8:16])
	h.NextPayload = PayloadType(b[16])
	h.MajorVersion = b[17] >> 4
	h.MinorVersion = b[17] & 0x0f
	h.ExchangeType = IkeExchangeType(b[18])
	h.Flags = IkeFlags(b[19])
	h.MsgId = binary.BigEndian.Uint32(b[20:24])
	h.MsgLength = binary.BigEndian.Uint32(b[24:28])
	if h.MsgLength < IkeHeaderLen {
		return nil, ErrF(ERR_INVALID_SYNTAX, "message length %d below header size", h.MsgLength)
	}
	return h, nil
}

func (h *IkeHeader) Encode() []byte {
	b := make([]byte, IkeHeaderLen)
	copy(b[0:8], h.SpiI[:])
	copy(b[8:16], h.SpiR[:])
	b[16] = uint8(h.NextPayload)
	b[17] = h.MajorVersion<<4 | h.MinorVersion
	b[18] = uint8(h.ExchangeType)
	b[19] = uint8(h.Flags)
	binary.BigEndian.PutUint32(b[20:24], h.MsgId)
	binary.BigEndian.PutUint32(b[24:28], h.MsgLength)
	return b
}

const PayloadHeaderLen = 4

type PayloadHeader struct {
	NextPayload   PayloadType
	IsCritical    bool
	PayloadLength uint16
}

func (h *PayloadHeader) NextPayloadType() PayloadType { return h.NextPayload }

func encodePayloadHeader(next PayloadType, bodyLen int) []byte {
	b := make([]byte, PayloadHeaderLen)
	b[0] = uint8(next)
	binary.BigEndian.PutUint16(b[2:4], uint16(bodyLen+PayloadHeaderLen))
	return b
}

func decodePayloadHeader(b []byte) (*PayloadHeader, error) {
	if len(b) < PayloadHeaderLen {
		return nil, ErrF(ERR_INVALID_SYNTAX, "payload header too short: %d", len(b))
	}
	h := &PayloadHeader{
		NextPayload:   PayloadType(b[0]),
		IsCritical:    b[1]&0x80 != 0,
		PayloadLength: binary.BigEndian.Uint16(b[2:4]),
	}
	return h, nil
}

// Payload is satisfied by every concrete payload body (SA, KE, Nonce, ...).
type Payload interface {
	Type() PayloadType
	Encode() []byte
	Decode([]byte) error
	NextPayloadType() PayloadType
}

// EncodePayload renders a chained payload, patching in the next-payload type
// and wrapping the body's own encoding with the 4-octet generic header.
func EncodePayload(p Payload, next PayloadType) []byte {
	body := p.Encode()
	return append(encodePayloadHeaderFor(p, next, len(body)), body...)
}

func encodePayloadHeaderFor(p Payload, next PayloadType, bodyLen int) []byte {
	return encodePayloadHeader(next, bodyLen)
}

// ---- SA payload -----------------------------------------------------------

type AttributeType uint16

const ATTRIBUTE_TYPE_KEY_LENGTH AttributeType = 14

const MinLenTransform = 8

// Transform identifies a single algorithm choice within a transform set
// (its type plus the registry id of the chosen algorithm).
type Transform struct {
	Type        TransformType
	TransformId uint16
}

// SaTransform is a Transform as it appears inside a Proposal: carrying an
// optional key-length attribute and the IsLast substructure marker.
type SaTransform struct {
	Transform
	KeyLength uint16
	IsLast    bool
}

func decodeTransform(b []byte) (*SaTransform, int, error) {
	if len(b) < MinLenTransform {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "transform too short")
	}
	trLen := int(binary.BigEndian.Uint16(b[2:4]))
	if trLen < MinLenTransform || len(b) < trLen {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "bad transform length %d", trLen)
	}
	tr := &SaTransform{IsLast: b[0] == 0}
	tr.Type = TransformType(b[4])
	tr.TransformId = binary.BigEndian.Uint16(b[6:8])
	rest := b[MinLenTransform:trLen]
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, 0, ErrF(ERR_INVALID_SYNTAX, "short attribute")
		}
		at := AttributeType(binary.BigEndian.Uint16(rest[0:2]) &^ 0x8000)
		val := binary.BigEndian.Uint16(rest[2:4])
		if at == ATTRIBUTE_TYPE_KEY_LENGTH {
			tr.KeyLength = val
		}
		rest = rest[4:]
	}
	return tr, trLen, nil
}

func encodeTransform(tr *SaTransform, isLast bool) []byte {
	b := make([]byte, MinLenTransform)
	if !isLast {
		b[0] = 3
	}
	b[4] = uint8(tr.Type)
	binary.BigEndian.PutUint16(b[6:8], tr.TransformId)
	if tr.KeyLength != 0 {
		attr := make([]byte, 4)
		binary.BigEndian.PutUint16(attr[0:2], 0x8000|uint16(ATTRIBUTE_TYPE_KEY_LENGTH))
		binary.BigEndian.PutUint16(attr[2:4], tr.KeyLength)
		b = append(b, attr...)
	}
	binary.BigEndian.PutUint16(b[2:4], uint16(len(b)))
	return b
}

const MinLenProposal = 8

// Proposal is one numbered alternative within an SA payload: a protocol
// (IKE/AH/ESP), its SPI, and the set of transforms it requires.
type Proposal struct {
	IsLast     bool
	Number     uint8
	ProtocolId ProtocolId
	Spi        []byte
	Transforms []*SaTransform
}

func decodeProposal(b []byte) (*Proposal, int, error) {
	if len(b) < MinLenProposal {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "proposal too short")
	}
	propLen := int(binary.BigEndian.Uint16(b[2:4]))
	if propLen < MinLenProposal || len(b) < propLen {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "bad proposal length %d", propLen)
	}
	p := &Proposal{IsLast: b[0] == 0}
	p.Number = b[4]
	p.ProtocolId = ProtocolId(b[5])
	spiSize := int(b[6])
	numTransforms := int(b[7])
	if len(b) < MinLenProposal+spiSize {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "short spi")
	}
	p.Spi = append([]byte{}, b[MinLenProposal:MinLenProposal+spiSize]...)
	rest := b[MinLenProposal+spiSize : propLen]
	for len(rest) > 0 {
		tr, used, err := decodeTransform(rest)
		if err != nil {
			return nil, 0, err
		}
		p.Transforms = append(p.Transforms, tr)
		rest = rest[used:]
		if tr.IsLast {
			break
		}
	}
	if len(p.Transforms) != numTransforms {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "transform count mismatch: got %d want %d", len(p.Transforms), numTransforms)
	}
	return p, propLen, nil
}

func encodeProposal(p *Proposal, isLast bool) []byte {
	b := make([]byte, MinLenProposal)
	if !isLast {
		b[0] = 2
	}
	b[4] = p.Number
	b[5] = uint8(p.ProtocolId)
	b[6] = uint8(len(p.Spi))
	b[7] = uint8(len(p.Transforms))
	b = append(b, p.Spi...)
	for i, tr := range p.Transforms {
		b = append(b, encodeTransform(tr, i == len(p.Transforms)-1)...)
	}
	binary.BigEndian.PutUint16(b[2:4], uint16(len(b)))
	return b
}

type SaPayload struct {
	*PayloadHeader
	Proposals []*Proposal
}

func (s *SaPayload) Type() PayloadType { return PayloadTypeSA }

func (s *SaPayload) Encode() (b []byte) {
	for i, p := range s.Proposals {
		b = append(b, encodeProposal(p, i == len(s.Proposals)-1)...)
	}
	return
}

func (s *SaPayload) Decode(b []byte) error {
	for len(b) > 0 {
		p, used, err := decodeProposal(b)
		if err != nil {
			return err
		}
		s.Proposals = append(s.Proposals, p)
		b = b[used:]
		if p.IsLast {
			break
		}
	}
	return nil
}

// ---- KE payload ------------------------------------------------------------

type KePayload struct {
	*PayloadHeader
	DhTransformId DhTransformId
	KeyData       *big.Int
}

func (s *KePayload) Type() PayloadType { return PayloadTypeKE }

func (s *KePayload) Encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], uint16(s.DhTransformId))
	return append(b, s.KeyData.Bytes()...)
}

func (s *KePayload) Decode(b []byte) error {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "ke payload too short")
	}
	s.DhTransformId = DhTransformId(binary.BigEndian.Uint16(b[0:2]))
	s.KeyData = new(big.Int).SetBytes(b[4:])
	return nil
}

// ---- Nonce payload ----------------------------------------------------------

const (
	MinNonceLen = 16
	MaxNonceLen = 256
)

type NoncePayload struct {
	*PayloadHeader
	Nonce []byte
}

func (s *NoncePayload) Type() PayloadType { return PayloadTypeNonce }
func (s *NoncePayload) Encode() []byte    { return s.Nonce }
func (s *NoncePayload) Decode(b []byte) error {
	if len(b) < MinNonceLen || len(b) > MaxNonceLen {
		return ErrF(ERR_INVALID_SYNTAX, "nonce length %d out of range", len(b))
	}
	s.Nonce = append([]byte{}, b...)
	return nil
}

// ---- Notify payload ---------------------------------------------------------

type NotifyPayload struct {
	*PayloadHeader
	ProtocolId       ProtocolId
	NotificationType NotificationType
	Spi              []byte
	Data             []byte
}

func (s *NotifyPayload) Type() PayloadType { return PayloadTypeN }

func (s *NotifyPayload) Encode() []byte {
	b := []byte{uint8(s.ProtocolId), uint8(len(s.Spi)), 0, 0}
	binary.BigEndian.PutUint16(b[2:4], uint16(s.NotificationType))
	b = append(b, s.Spi...)
	b = append(b, s.Data...)
	return b
}

func (s *NotifyPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "notify payload too short")
	}
	s.ProtocolId = ProtocolId(b[0])
	spiLen := int(b[1])
	if len(b) < 4+spiLen {
		return ErrF(ERR_INVALID_SYNTAX, "notify spi truncated")
	}
	s.NotificationType = NotificationType(binary.BigEndian.Uint16(b[2:4]))
	s.Spi = append([]byte{}, b[4:4+spiLen]...)
	s.Data = append([]byte{}, b[4+spiLen:]...)
	return nil
}

func NewNotify(nt NotificationType, data []byte) *NotifyPayload {
	return &NotifyPayload{PayloadHeader: &PayloadHeader{}, ProtocolId: PROTO_IKE, NotificationType: nt, Data: data}
}

// ---- Delete / Vendor ID (carried for message completeness; IKE_SA_INIT never sends these) --

type DeletePayload struct {
	*PayloadHeader
	ProtocolId ProtocolId
	SpiSize    uint8
	Spis       [][]byte
}

func (s *DeletePayload) Type() PayloadType { return PayloadTypeD }
func (s *DeletePayload) Encode() []byte {
	b := []byte{uint8(s.ProtocolId), s.SpiSize, 0, 0}
	binary.BigEndian.PutUint16(b[2:4], uint16(len(s.Spis)))
	for _, spi := range s.Spis {
		b = append(b, spi...)
	}
	return b
}
func (s *DeletePayload) Decode(b []byte) error {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "delete payload too short")
	}
	s.ProtocolId = ProtocolId(b[0])
	s.SpiSize = b[1]
	num := int(binary.BigEndian.Uint16(b[2:4]))
	rest := b[4:]
	for i := 0; i < num; i++ {
		if len(rest) < int(s.SpiSize) {
			return ErrF(ERR_INVALID_SYNTAX, "delete payload spi truncated")
		}
		s.Spis = append(s.Spis, append([]byte{}, rest[:s.SpiSize]...))
		rest = rest[s.SpiSize:]
	}
	return nil
}

type VendorIdPayload struct {
	*PayloadHeader
	Vid []byte
}

func (s *VendorIdPayload) Type() PayloadType    { return PayloadTypeV }
func (s *VendorIdPayload) Encode() []byte       { return s.Vid }
func (s *VendorIdPayload) Decode(b []byte) error { s.Vid = append([]byte{}, b...); return nil }

// ---- Identification payload (used by IKE_AUTH, carried for completeness) ---

type IdType uint8

const (
	ID_IPV4_ADDR   IdType = 1
	ID_FQDN        IdType = 2
	ID_RFC822_ADDR IdType = 3
	ID_IPV6_ADDR   IdType = 5
	ID_DER_ASN1_DN IdType = 9
	ID_DER_ASN1_GN IdType = 10
	ID_KEY_ID      IdType = 11
)

type IdPayload struct {
	*PayloadHeader
	IdPayloadType PayloadType // PayloadTypeIDi or PayloadTypeIDr
	IdType        IdType
	Data          []byte
}

func (s *IdPayload) Type() PayloadType { return s.IdPayloadType }
func (s *IdPayload) Encode() []byte {
	b := []byte{uint8(s.IdType), 0, 0, 0}
	return append(b, s.Data...)
}
func (s *IdPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "id payload too short")
	}
	s.IdType = IdType(b[0])
	s.Data = append([]byte{}, b[4:]...)
	return nil
}

// ---- Traffic selectors (carried for message completeness) ------------------

type SelectorType uint8

const (
	TS_IPV4_ADDR_RANGE SelectorType = 7
	TS_IPV6_ADDR_RANGE SelectorType = 8
)

type Selector struct {
	Type                     SelectorType
	IpProtocolId             uint8
	StartPort, EndPort       uint16
	StartAddress, EndAddress net.IP
}

type AuthMethod uint8

const (
	AUTH_RSA_DIGITAL_SIGNATURE             AuthMethod = 1
	AUTH_SHARED_KEY_MESSAGE_INTEGRITY_CODE AuthMethod = 2
	AUTH_DSS_DIGITAL_SIGNATURE             AuthMethod = 3
	AUTH_ECDSA_256                         AuthMethod = 9
	AUTH_ECDSA_384                         AuthMethod = 10
	AUTH_ECDSA_521                         AuthMethod = 11
	AUTH_DIGITAL_SIGNATURE                 AuthMethod = 14
)

type AuthPayload struct {
	*PayloadHeader
	Method AuthMethod
	Data   []byte
}

func (s *AuthPayload) Type() PayloadType { return PayloadTypeAUTH }
func (s *AuthPayload) Encode() []byte {
	b := []byte{uint8(s.Method), 0, 0, 0}
	return append(b, s.Data...)
}
func (s *AuthPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "auth payload too short")
	}
	s.Method = AuthMethod(b[0])
	s.Data = append([]byte{}, b[4:]...)
	return nil
}
