package ikeinit

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgboxio/ike/protocol"
)

// ---- fakes wiring a same-process round trip without any of the crypto/protocol packages ----

type fakeKeyExchange struct {
	method uint16
	pub    []byte
}

var fakeKXCounter uint32

func newFakeKeyExchange(method uint16) (KeyExchange, error) {
	fakeKXCounter++
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, fakeKXCounter)
	return &fakeKeyExchange{method: method, pub: b}, nil
}

func (k *fakeKeyExchange) Method() uint16        { return k.method }
func (k *fakeKeyExchange) Public() (*BigBytes, error) { return NewBigBytes(k.pub), nil }

// SharedSecret XORs the two public values: symmetric regardless of which
// side computes it first, so two independently created fakeKeyExchanges
// agree on a shared secret without any real Diffie-Hellman math.
func (k *fakeKeyExchange) SharedSecret(peer *BigBytes) (*BigBytes, error) {
	pb := peer.Bytes()
	out := make([]byte, len(k.pub))
	for i := range out {
		var pv byte
		if i < len(pb) {
			pv = pb[i]
		}
		out[i] = k.pub[i] ^ pv
	}
	return NewBigBytes(out), nil
}

type fakeKeymat struct {
	skD  []byte
	skAi []byte
}

func (k *fakeKeymat) DeriveIKE(shared [][]byte, ni, nr, spiI, spiR []byte) error {
	k.skD = mixAll(shared, ni, nr, spiI, spiR)
	k.skAi = append([]byte{0xa}, k.skD...)
	return nil
}

func (k *fakeKeymat) DeriveRekey(oldSkD []byte, shared [][]byte, ni, nr []byte) error {
	k.skD = mixAll(shared, oldSkD, ni, nr)
	return nil
}

func (k *fakeKeymat) SkD() []byte { return k.skD }

// mixAll folds every input slice together the same way regardless of call
// order within a single side's argument list, so both sides of a run (which
// pass ni/nr in the same order after the Task's own role-swap) derive equal
// key material from equal inputs.
func mixAll(groups ...interface{}) []byte {
	var all []byte
	for _, g := range groups {
		switch v := g.(type) {
		case [][]byte:
			for _, b := range v {
				all = append(all, b...)
			}
		case []byte:
			all = append(all, v...)
		}
	}
	sum := make([]byte, 8)
	for i, b := range all {
		sum[i%len(sum)] ^= b
	}
	return sum
}

func fakeKeymatFactory(*protocol.Proposal) (Keymat, error) { return &fakeKeymat{}, nil }

type fakeNonceGen struct{ next byte }

func (g *fakeNonceGen) Generate(size int) ([]byte, error) {
	g.next++
	out := make([]byte, size)
	for i := range out {
		out[i] = g.next
	}
	return out, nil
}

type fakeLogger struct{}

func (fakeLogger) Debugw(string, ...interface{}) {}
func (fakeLogger) Infow(string, ...interface{})  {}
func (fakeLogger) Warnw(string, ...interface{})  {}
func (fakeLogger) Errorw(string, ...interface{}) {}

type fakeBus struct {
	established bool
	failedErr   error
}

func (b *fakeBus) IkeSaEstablished(IkeSA)        { b.established = true }
func (b *fakeBus) IkeSaFailed(_ IkeSA, err error) { b.failedErr = err }

type fakeIkeSA struct {
	local, remote net.Addr
	spiI, spiR    protocol.Spi
	cfg           IkeConfig
	keymat        Keymat
	extensions    map[Extension]bool
	redirectType  uint8
	redirectIdent []byte
}

func newFakeIkeSA(cfg IkeConfig, spiI protocol.Spi) *fakeIkeSA {
	return &fakeIkeSA{
		local:      &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 500},
		remote:     &net.UDPAddr{IP: net.ParseIP("127.0.0.2"), Port: 500},
		spiI:       spiI,
		cfg:        cfg,
		extensions: map[Extension]bool{},
	}
}

func (s *fakeIkeSA) LocalAddr() net.Addr  { return s.local }
func (s *fakeIkeSA) RemoteAddr() net.Addr { return s.remote }
func (s *fakeIkeSA) SpiI() protocol.Spi   { return s.spiI }
func (s *fakeIkeSA) SpiR() protocol.Spi   { return s.spiR }
func (s *fakeIkeSA) SetSpiI(spi protocol.Spi) { s.spiI = spi }
func (s *fakeIkeSA) SetSpiR(spi protocol.Spi) { s.spiR = spi }
func (s *fakeIkeSA) Config() IkeConfig        { return s.cfg }
func (s *fakeIkeSA) InstallKeymat(k Keymat)   { s.keymat = k }
func (s *fakeIkeSA) EnableExtension(e Extension) { s.extensions[e] = true }
func (s *fakeIkeSA) Redirect(gwType uint8, gwIdent []byte) {
	s.redirectType, s.redirectIdent = gwType, append([]byte{}, gwIdent...)
}
func (s *fakeIkeSA) Logger() Logger { return fakeLogger{} }

type fakeConfig struct {
	proposals       []*protocol.Proposal
	requireCookie   bool
	fragmentation   bool
	childless       bool
	ppk             bool
	hashes          []protocol.HashAlgorithmId
	followRedirects bool
}

func (c *fakeConfig) Proposals() []*protocol.Proposal                      { return c.proposals }
func (c *fakeConfig) RequireCookie() bool                                  { return c.requireCookie }
func (c *fakeConfig) SendCookie() bool                                     { return false }
func (c *fakeConfig) SupportsFragmentation() bool                         { return c.fragmentation }
func (c *fakeConfig) SupportsChildless() bool                             { return c.childless }
func (c *fakeConfig) RequirePPK() bool                                    { return c.ppk }
func (c *fakeConfig) SignatureHashAlgorithms() []protocol.HashAlgorithmId { return c.hashes }
func (c *fakeConfig) FollowRedirects() bool                               { return c.followRedirects }

func singleKEProposal() *protocol.Proposal {
	return &protocol.Proposal{
		IsLast:     true,
		Number:     1,
		ProtocolId: protocol.PROTO_IKE,
		Transforms: []*protocol.SaTransform{
			{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_1024)}},
		},
	}
}

func multiKEProposal() *protocol.Proposal {
	return &protocol.Proposal{
		IsLast:     true,
		Number:     1,
		ProtocolId: protocol.PROTO_IKE,
		Transforms: []*protocol.SaTransform{
			{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_1024)}},
			{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_ADDKE1, TransformId: 1}},
		},
	}
}

// spiOf hands out distinct fake SPIs for the initiator side of each test.
func spiOf(b byte) protocol.Spi {
	var s protocol.Spi
	for i := range s {
		s[i] = b
	}
	return s
}

// runRoundTrip drives an initiator Task and a responder Task, both built
// against cfg, through IKE_SA_INIT (and any RFC 9242/9370 follow-ups the
// proposal needs) entirely in-process, returning both sides once each
// reports StatusSuccess.
func runRoundTrip(t *testing.T, cfg IkeConfig) (*fakeIkeSA, *Task, *fakeIkeSA, *Task) {
	t.Helper()

	initSA := newFakeIkeSA(cfg, spiOf(0x11))
	initBus := &fakeBus{}
	initTask := NewInitiatorTask(initSA, fakeKeymatFactory, &fakeNonceGen{}, newFakeKeyExchange, initBus)

	respSA := newFakeIkeSA(cfg, protocol.Spi{})
	respBus := &fakeBus{}
	negot := NewNegotiator(cfg, nil)
	respTask := NewResponderTask(respSA, fakeKeymatFactory, &fakeNonceGen{}, newFakeKeyExchange, negot, respBus)

	var reqStatus, respBuildStatus, initStatus Status
	var err error

	for {
		reqH := &protocol.IkeHeader{SpiI: initSA.SpiI(), SpiR: initSA.SpiR()}
		var reqMsg *Message
		reqMsg, reqStatus, err = initTask.Build(reqH)
		require.NoError(t, err)
		require.NotNil(t, reqMsg)

		var procStatus Status
		procStatus, err = respTask.Process(reqMsg)
		require.NoError(t, err)

		respH := &protocol.IkeHeader{SpiI: respSA.SpiI(), SpiR: respSA.SpiR(), Flags: protocol.FlagResponse}
		var respMsg *Message
		respMsg, respBuildStatus, err = respTask.Build(respH)
		require.NoError(t, err)
		require.NotNil(t, respMsg)

		initStatus, err = initTask.Process(respMsg)
		require.NoError(t, err)

		_ = procStatus
		if initStatus == StatusSuccess {
			require.Equal(t, StatusSuccess, respBuildStatus)
			break
		}
		require.Equal(t, StatusNeedMore, initStatus)
	}

	return initSA, initTask, respSA, respTask
}

func TestTaskHappyPathFreshSASingleKE(t *testing.T) {
	cfg := &fakeConfig{proposals: []*protocol.Proposal{singleKEProposal()}}

	initSA, initTask, respSA, respTask := runRoundTrip(t, cfg)

	require.NotNil(t, initSA.keymat)
	require.NotNil(t, respSA.keymat)
	assert.Equal(t, initSA.keymat.(*fakeKeymat).SkD(), respSA.keymat.(*fakeKeymat).SkD(),
		"both sides must derive the same SK_d from a symmetric run")
	assert.False(t, initSA.SpiR().IsZero(), "initiator must learn the responder's SPI")
	assert.False(t, respSA.SpiI().IsZero(), "responder must learn the initiator's SPI")
	assert.Equal(t, initSA.SpiI(), respSA.SpiI())
	assert.Equal(t, initSA.SpiR(), respSA.SpiR())
	assert.Equal(t, phaseDone, initTask.phase)
	assert.Equal(t, phaseDone, respTask.phase)
}

func TestTaskMultiKERoundTripDerivesMatchingKeys(t *testing.T) {
	cfg := &fakeConfig{proposals: []*protocol.Proposal{multiKEProposal()}}

	initSA, _, respSA, _ := runRoundTrip(t, cfg)

	require.NotNil(t, initSA.keymat)
	require.NotNil(t, respSA.keymat)
	assert.Equal(t, initSA.keymat.(*fakeKeymat).SkD(), respSA.keymat.(*fakeKeymat).SkD())
}

func TestTaskMultiKELegUsesIntermediateExchangeType(t *testing.T) {
	cfg := &fakeConfig{proposals: []*protocol.Proposal{multiKEProposal()}}
	initSA := newFakeIkeSA(cfg, spiOf(0x66))
	task := NewInitiatorTask(initSA, fakeKeymatFactory, &fakeNonceGen{}, newFakeKeyExchange, &fakeBus{})

	_, _, err := task.Build(&protocol.IkeHeader{})
	require.NoError(t, err)
	require.Equal(t, phaseInitRecv, task.phase)

	task.plan.MarkDone() // pretend the primary KE leg already completed
	task.phase = phaseMultiSend

	h := &protocol.IkeHeader{}
	m, status, err := task.Build(h)
	require.NoError(t, err)
	assert.Equal(t, protocol.IKE_INTERMEDIATE, h.ExchangeType,
		"a fresh SA's follow-up key exchange must use IKE_INTERMEDIATE, not IKE_SA_INIT")
	assert.Equal(t, StatusNeedMore, status)
	require.NotNil(t, m)
}

func TestTaskProposalEchoSendsFullCandidateList(t *testing.T) {
	cfg := &fakeConfig{proposals: []*protocol.Proposal{
		singleKEProposal(),
		{IsLast: true, Number: 2, ProtocolId: protocol.PROTO_IKE, Transforms: []*protocol.SaTransform{
			{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_1024_PRIME_160)}},
		}},
	}}
	initSA := newFakeIkeSA(cfg, spiOf(0x22))
	task := NewInitiatorTask(initSA, fakeKeymatFactory, &fakeNonceGen{}, newFakeKeyExchange, &fakeBus{})

	h := &protocol.IkeHeader{}
	m, status, err := task.Build(h)
	require.NoError(t, err)
	assert.Equal(t, StatusNeedMore, status)
	require.Len(t, m.SA().Proposals, 2, "every configured proposal must be offered, not just the first")
}

func TestTaskRetryBudgetAllowsFiveRealRetries(t *testing.T) {
	cfg := &fakeConfig{proposals: []*protocol.Proposal{singleKEProposal()}, requireCookie: false}
	initSA := newFakeIkeSA(cfg, spiOf(0x33))
	task := NewInitiatorTask(initSA, fakeKeymatFactory, &fakeNonceGen{}, newFakeKeyExchange, &fakeBus{})

	_, _, err := task.Build(&protocol.IkeHeader{})
	require.NoError(t, err, "the first, non-retry build must not consume retry budget")

	for i := 0; i < MaxRetries; i++ {
		task.phase = phaseInitSend
		_, _, err := task.Build(&protocol.IkeHeader{})
		require.NoError(t, err, "retry %d of %d must still be within budget", i+1, MaxRetries)
	}

	task.phase = phaseInitSend
	_, _, err = task.Build(&protocol.IkeHeader{})
	assert.Error(t, err, "a sixth retry must exceed the budget")
}

func TestTaskInvalidKEPayloadPromotesDemandedMethod(t *testing.T) {
	cfg := &fakeConfig{proposals: []*protocol.Proposal{
		singleKEProposal(),
		{IsLast: true, Number: 2, ProtocolId: protocol.PROTO_IKE, Transforms: []*protocol.SaTransform{
			{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_1024_PRIME_160)}},
		}},
	}}
	initSA := newFakeIkeSA(cfg, spiOf(0x44))
	task := NewInitiatorTask(initSA, fakeKeymatFactory, &fakeNonceGen{}, newFakeKeyExchange, &fakeBus{})

	_, _, err := task.Build(&protocol.IkeHeader{})
	require.NoError(t, err)

	invalidKE := protocol.NewNotify(protocol.INVALID_KE_PAYLOAD, []byte{
		byte(protocol.MODP_1024_PRIME_160 >> 8), byte(protocol.MODP_1024_PRIME_160),
	})
	status, err := task.Process(&Message{Header: &protocol.IkeHeader{}, Payloads: []protocol.Payload{invalidKE}})
	require.NoError(t, err)
	assert.Equal(t, StatusNeedMore, status)
	assert.Equal(t, phaseInitSend, task.phase)
	assert.Equal(t, uint16(protocol.MODP_1024_PRIME_160), task.offered[0].Transforms[0].TransformId,
		"the demanded method must sort first in the candidate list the retry sends")
}

func TestTaskRedirectValidatesEchoedNonce(t *testing.T) {
	cfg := &fakeConfig{proposals: []*protocol.Proposal{singleKEProposal()}, followRedirects: true}
	initSA := newFakeIkeSA(cfg, spiOf(0x55))
	task := NewInitiatorTask(initSA, fakeKeymatFactory, &fakeNonceGen{}, newFakeKeyExchange, &fakeBus{})

	_, _, err := task.Build(&protocol.IkeHeader{})
	require.NoError(t, err)

	wrongNonce := append([]byte{}, task.myNonce...)
	wrongNonce[0] ^= 0xff
	redirect := protocol.NewNotify(protocol.REDIRECT, append([]byte{1, 4, 10, 0, 0, 1}, wrongNonce...))
	status, err := task.Process(&Message{Header: &protocol.IkeHeader{}, Payloads: []protocol.Payload{redirect}})
	assert.Equal(t, StatusFailed, status)
	assert.Error(t, err, "a redirect echoing a nonce we never sent must not be accepted")

	redirect = protocol.NewNotify(protocol.REDIRECT, append([]byte{1, 4, 10, 0, 0, 1}, task.myNonce...))
	status, err = task.Process(&Message{Header: &protocol.IkeHeader{}, Payloads: []protocol.Payload{redirect}})
	assert.Equal(t, StatusFailed, status)
	assert.ErrorIs(t, err, ErrRedirected)
	assert.Equal(t, []byte{10, 0, 0, 1}, initSA.redirectIdent)
}
