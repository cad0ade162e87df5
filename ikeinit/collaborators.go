// Package ikeinit implements the IKE_SA_INIT task: negotiating an IKE SA's
// first cryptographic suite and deriving its keys, including the RFC 9242
// IKE_INTERMEDIATE and RFC 9370 IKE_FOLLOWUP_KE exchanges that carry
// additional key exchanges beyond the primary one.
//
// The task itself only orchestrates; it never touches sockets, certificates
// or a keystore directly. It is driven entirely through the collaborator
// interfaces below, so the same task runs against any IkeSA/Keymat/transport
// implementation that satisfies them.
package ikeinit

import (
	"net"

	"github.com/msgboxio/ike/protocol"
)

// Role distinguishes which side of the exchange the task is playing.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// KeyExchange is one side's state for a single key-exchange method: it
// knows how to produce its own public value and, once the peer's public
// value arrives, the shared secret.
type KeyExchange interface {
	// Method is the registry id of the negotiated group (a DhTransformId,
	// or an RFC 9370 additional-key-exchange method id).
	Method() uint16
	// Public returns this side's public key-exchange data, generating it
	// on first call.
	Public() (*BigBytes, error)
	// SharedSecret computes g^ir given the peer's public value. Returns an
	// error (a protocol.ERR_INVALID_KE_PAYLOAD IkeError for the crypto
	// package's MODP groups) if the value is out of range for the group.
	SharedSecret(peerPublic *BigBytes) (*BigBytes, error)
}

// BigBytes is an arbitrary-precision value as carried on the wire (a KE
// payload body or a DH shared secret): unsigned, big-endian, no leading
// zero-stripping guarantees beyond math/big's.
type BigBytes struct {
	b []byte
}

func NewBigBytes(b []byte) *BigBytes { return &BigBytes{b: append([]byte{}, b...)} }
func (v *BigBytes) Bytes() []byte    { return v.b }

// KeyExchangeFactory creates a fresh KeyExchange for a given method id; the
// ike package binds this to the crypto package's DH group registry.
type KeyExchangeFactory func(method uint16) (KeyExchange, error)

// KeymatFactory builds the Keymat engine for a negotiated proposal, once
// the task knows what was actually selected — the PRF a Keymat derives with
// is part of that proposal, so it can't be built any earlier.
type KeymatFactory func(proposal *protocol.Proposal) (Keymat, error)

// NonceGenerator produces the Ni/Nr nonce for this task run.
type NonceGenerator interface {
	Generate(size int) ([]byte, error)
}

// Keymat performs SKEYSEED/KEYMAT derivation once the task has all the
// material it needs; Task.deriveKeys (the Key-Derivation Trigger) decides
// which of its methods to call.
type Keymat interface {
	// DeriveIKE computes SKEYSEED and the full SK_* set for a brand new IKE
	// SA. sharedSecrets holds one shared secret per completed key exchange.
	DeriveIKE(sharedSecrets [][]byte, ni, nr, spiI, spiR []byte) error
	// DeriveRekey derives a rekeyed IKE SA's keys, chaining from the
	// rekeying SA's SK_d the same way DeriveIKE chains from nothing: RFC
	// 7296 §2.18 treats CREATE_CHILD_SA IKE SA rekeys identically to
	// IKE_SA_INIT except SKEYSEED is replaced by prf(SK_d_old, ...).
	DeriveRekey(oldSkD []byte, sharedSecrets [][]byte, ni, nr []byte) error
	// SkD returns the derived SK_d, needed to authorize a further rekey
	// chained off this one.
	SkD() []byte
}

// Extension identifies one of the optional capabilities IKE_SA_INIT
// negotiates through notify payloads. For fragmentation, childless and PPK,
// EnableExtension is called only when the peer's notify and the local
// configuration agree; ExtSignatureAuth is enabled as soon as the peer sends
// SIGNATURE_HASH_ALGORITHMS.
type Extension int

const (
	ExtFragmentation Extension = iota
	ExtSignatureAuth
	ExtPPK
	ExtChildless
)

func (e Extension) String() string {
	switch e {
	case ExtFragmentation:
		return "fragmentation"
	case ExtSignatureAuth:
		return "signature-auth"
	case ExtPPK:
		return "ppk"
	case ExtChildless:
		return "childless"
	default:
		return "unknown-extension"
	}
}

// IkeSA is the enclosing security association: the slice of state the task
// reads configuration from and writes results into. It is intentionally
// small — the task owns the negotiation, the IkeSA owns identity/storage.
type IkeSA interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	SpiI() protocol.Spi
	SpiR() protocol.Spi
	// SetSpiI records the initiator's SPI once it is known: the peer's own
	// value, read off the wire, when this side is the responder.
	SetSpiI(protocol.Spi)
	// SetSpiR records the responder's SPI once it is known: the peer's own
	// value, read off the wire, when this side is the initiator; a freshly
	// generated value when this side is the responder.
	SetSpiR(protocol.Spi)

	// Config returns the locally configured proposals/options to offer or
	// check an offer against.
	Config() IkeConfig

	// InstallKeymat is called once derivation completes so the SA can
	// start sending/receiving encrypted payloads with the new SK_* keys.
	InstallKeymat(Keymat)

	// EnableExtension records that both sides have agreed to use the given
	// capability for the rest of this IKE SA's life.
	EnableExtension(Extension)

	// Redirect records the gateway a validated REDIRECT notify pointed this
	// run at, for the caller to read back and reconnect to; the task itself
	// never dials anywhere.
	Redirect(gwType uint8, gwIdent []byte)

	// Logger returns a logger already carrying SA-identifying fields.
	Logger() Logger
}

// IkeConfig is the local policy consulted by the Negotiator and by notify
// handling (cookie requirement, PPK, signature hash preference, ...).
type IkeConfig interface {
	Proposals() []*protocol.Proposal
	RequireCookie() bool
	SendCookie() bool
	SupportsFragmentation() bool
	SupportsChildless() bool
	RequirePPK() bool
	SignatureHashAlgorithms() []protocol.HashAlgorithmId
	FollowRedirects() bool
}

// AltConfigLookup replaces charon's backend-enumerated alternate configs: a
// responder whose first-choice config doesn't match tries the next one this
// returns.
type AltConfigLookup func(local, remote net.Addr) []IkeConfig

// Logger is the minimal structured-logging surface the task needs; ike.Session
// implements it over github.com/charmbracelet/log.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// EventBus is how the task reports terminal outcomes upward (rather than
// the task owning retransmission or session teardown itself).
type EventBus interface {
	IkeSaEstablished(IkeSA)
	IkeSaFailed(IkeSA, error)
}
