package ike

import (
	"context"
	"crypto/rand"
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/msgboxio/ike/crypto"
	"github.com/msgboxio/ike/ikeinit"
	"github.com/msgboxio/ike/protocol"
)

// Session is one IKE SA's local state: identity, configuration, and —
// during IKE_SA_INIT — the ikeinit.Task driving negotiation and key
// derivation. It implements ikeinit.IkeSA and ikeinit.EventBus so the task
// package never needs to know about sockets or this type directly.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	id          string
	isInitiator bool
	cfg         *Config

	localAddr, remoteAddr net.Addr

	spiI, spiR protocol.Spi

	msgIDReq, msgIDResp uint32

	mu         sync.Mutex
	keymat     *crypto.Keymat
	task       *ikeinit.Task
	extensions map[ikeinit.Extension]bool

	redirectGWType  uint8
	redirectGWIdent []byte
	redirected      bool

	onEstablished func(*Session)
	onFailed      func(*Session, error)

	log *log.Logger
}

// NewInitiator creates an initiator Session and its IKE_SA_INIT task, ready
// for BuildInit to produce the first outgoing message.
func NewInitiator(parent context.Context, local, remote net.Addr, cfg *Config) (*Session, error) {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ctx: ctx, cancel: cancel,
		id: uuid.NewString(), isInitiator: true,
		cfg: cfg, localAddr: local, remoteAddr: remote,
		spiI:       MakeSpi(),
		extensions: make(map[ikeinit.Extension]bool),
		log:        log.With("session", "ike_sa_init", "role", "initiator"),
	}
	s.task = ikeinit.NewInitiatorTask(s, crypto.NewKeymatFactory(), crypto.RandNonceGenerator{}, crypto.NewKeyExchange, s)
	return s, nil
}

// NewResponder creates a responder Session ready to Process an incoming
// IKE_SA_INIT request.
func NewResponder(parent context.Context, local, remote net.Addr, cfg *Config, alt ikeinit.AltConfigLookup) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ctx: ctx, cancel: cancel,
		id: uuid.NewString(), isInitiator: false,
		cfg: cfg, localAddr: local, remoteAddr: remote,
		extensions: make(map[ikeinit.Extension]bool),
		log:        log.With("session", "ike_sa_init", "role", "responder"),
	}
	negot := ikeinit.NewNegotiator(cfg, alt)
	s.task = ikeinit.NewResponderTask(s, crypto.NewKeymatFactory(), crypto.RandNonceGenerator{}, crypto.NewKeyExchange, negot, s)
	return s
}

// BuildInit renders this session's next outgoing IKE_SA_INIT (or follow-up)
// message.
func (s *Session) BuildInit() (*Message, ikeinit.Status, error) {
	h := &protocol.IkeHeader{
		SpiI: s.spiI, SpiR: s.spiR,
		MajorVersion: protocol.IKEV2_MAJOR_VERSION, MinorVersion: protocol.IKEV2_MINOR_VERSION,
		MsgId: s.msgIDReq,
	}
	if !s.isInitiator {
		h.Flags = protocol.FlagResponse
	}
	tm, status, err := s.task.Build(h)
	if err != nil {
		return nil, status, err
	}
	m := FromTask(tm)
	m.Encode()
	if s.isInitiator {
		s.msgIDReq++
	}
	return m, status, nil
}

// ProcessInit feeds an incoming message to the task.
func (s *Session) ProcessInit(m *Message) (ikeinit.Status, error) {
	status, err := s.task.Process(m.ToTask())
	if err != nil {
		s.log.Error("ike_sa_init failed", "err", err)
	}
	return status, err
}

// ---- ikeinit.IkeSA -----------------------------------------------------

func (s *Session) LocalAddr() net.Addr  { return s.localAddr }
func (s *Session) RemoteAddr() net.Addr { return s.remoteAddr }
func (s *Session) SpiI() protocol.Spi   { return s.spiI }
func (s *Session) SpiR() protocol.Spi   { return s.spiR }
func (s *Session) SetSpiI(spi protocol.Spi) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spiI = spi
}
func (s *Session) SetSpiR(spi protocol.Spi) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spiR = spi
}
func (s *Session) Config() ikeinit.IkeConfig { return s.cfg }

func (s *Session) InstallKeymat(k ikeinit.Keymat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if km, ok := k.(*crypto.Keymat); ok {
		s.keymat = km
	}
}

// SkD returns the derived SK_d, used to authorize chaining a further IKE SA
// rekey off this one (ikeinit.Task.Rekeying takes an IkeSA satisfying this).
func (s *Session) SkD() []byte {
	if s.keymat == nil {
		return nil
	}
	return s.keymat.SkD()
}

func (s *Session) Logger() ikeinit.Logger { return sessionLogger{s.log} }

// EnableExtension records a mutually agreed IKE_SA_INIT capability.
func (s *Session) EnableExtension(ext ikeinit.Extension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extensions[ext] = true
	s.log.Debug("extension enabled", "extension", ext.String())
}

// ExtensionEnabled reports whether both sides agreed to ext during
// IKE_SA_INIT.
func (s *Session) ExtensionEnabled(ext ikeinit.Extension) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extensions[ext]
}

// Redirect records the gateway a validated REDIRECT notify pointed this
// session's IKE_SA_INIT run at (RFC 5685). The caller reads this back via
// RedirectTarget to decide where to reconnect; the Session itself never
// dials anywhere.
func (s *Session) Redirect(gwType uint8, gwIdent []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirected = true
	s.redirectGWType = gwType
	s.redirectGWIdent = append([]byte{}, gwIdent...)
}

// RedirectTarget returns the gateway identity recorded by Redirect, if any.
func (s *Session) RedirectTarget() (gwType uint8, gwIdent []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectGWType, s.redirectGWIdent, s.redirected
}

// ---- ikeinit.EventBus ---------------------------------------------------

func (s *Session) IkeSaEstablished(sa ikeinit.IkeSA) {
	s.log.Info("IKE SA established", "spiI", s.spiI, "spiR", s.spiR)
	if s.onEstablished != nil {
		s.onEstablished(s)
	}
}

func (s *Session) IkeSaFailed(sa ikeinit.IkeSA, err error) {
	s.log.Error("IKE SA failed", "err", err)
	if s.onFailed != nil {
		s.onFailed(s, err)
	}
}

func (s *Session) Close() error {
	s.cancel()
	return nil
}

// sessionLogger adapts *charmbracelet/log.Logger to ikeinit.Logger.
type sessionLogger struct{ l *log.Logger }

func (s sessionLogger) Debugw(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }
func (s sessionLogger) Infow(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
func (s sessionLogger) Warnw(msg string, kv ...interface{})  { s.l.Warn(msg, kv...) }
func (s sessionLogger) Errorw(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }

// MakeSpi generates a random 8-octet IKE SPI.
func MakeSpi() protocol.Spi {
	var spi protocol.Spi
	if _, err := rand.Read(spi[:]); err != nil {
		panic(errors.Wrap(err, "ike: failed to generate spi"))
	}
	return spi
}
