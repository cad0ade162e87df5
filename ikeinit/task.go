package ikeinit

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"

	"github.com/msgboxio/ike/protocol"
)

// Status is the tri-valued outcome of a Build/Process step: the exchange
// either completed its current leg, needs another round trip before it can,
// or has failed outright and must be torn down.
type Status int

const (
	StatusSuccess Status = iota
	StatusNeedMore
	StatusFailed
)

// ErrRedirected is returned by Process once a REDIRECT notify has passed
// nonce validation and the IkeSA has recorded the new gateway. The run this
// Task drives is over; the caller starts a fresh one against the gateway it
// reads back off the IkeSA.
var ErrRedirected = errors.New("ike_sa_init: responder redirected this exchange to a new gateway")

// phase names the leg of the exchange the task is currently working through.
// strongSwan's ike_init.c task rebinds its build/process function pointers as
// the exchange advances; this explicit enum plus a (role, phase) switch in
// Build/Process gets the same staged behavior without hidden indirection.
type phase int

const (
	phaseInitSend    phase = iota // initiator: about to send IKE_SA_INIT
	phaseInitRecv                 // responder: about to process IKE_SA_INIT; initiator: about to process its response
	phaseInitRespond              // responder: about to send its IKE_SA_INIT reply
	phaseMultiSend                // about to send an IKE_INTERMEDIATE/IKE_FOLLOWUP_KE leg
	phaseMultiRecv                // about to process one
	phaseDone
)

// Task drives one IKE_SA_INIT run (and, when the negotiated proposal calls
// for it, the RFC 9242/9370 follow-up exchanges) to completion.
type Task struct {
	role Role

	ikeSA IkeSA
	oldSA IkeSA // set when this run rekeys an existing IKE SA; nil otherwise

	keymat    Keymat
	keymatFac KeymatFactory
	nonceGen  NonceGenerator
	kxFac     KeyExchangeFactory
	negot     *Negotiator
	bus       EventBus

	myNonce, otherNonce []byte

	offered  []*protocol.Proposal // the full candidate list this side offers, in preference order
	proposal *protocol.Proposal   // the basis for plan on send; the peer's selection once negotiated
	plan     KXPlan
	kes      [MaxKeyExchanges]KeyExchange
	shared   [MaxKeyExchanges][]byte

	cookie []byte
	retry  RetryController

	signatureAuthentication bool
	followRedirects         bool
	ppkRequired             bool

	// peerFragmentSupported and peerIntermediateSupported record what the
	// peer declared in its request, so the responder's reply only echoes a
	// capability notify when both sides actually agree on it.
	peerFragmentSupported    bool
	peerIntermediateSupported bool

	// redirectedFromData carries a pre-rendered REDIRECTED_FROM notify body
	// (RFC 5685 §4) when this run is a reconnect attempt following a
	// previous REDIRECT; nil on a first attempt.
	redirectedFromData []byte

	// pendingDerivation defers the Key-Derivation Trigger to PostBuild or
	// PostProcess instead of having each leg decide for itself whether it
	// happens to be the last one: a leg function that completes the plan's
	// final slot just sets this and returns, and whichever hook runs next
	// fires deriveKeys uniformly.
	pendingDerivation bool

	initIb, initRb []byte // slots for the raw IKE_SA_INIT bytes IKE_AUTH's AUTH computation needs; this package never fills them

	phase phase
}

// NewInitiatorTask starts an IKE_SA_INIT run as the initiating peer.
func NewInitiatorTask(sa IkeSA, keymatFac KeymatFactory, nonceGen NonceGenerator, kxFac KeyExchangeFactory, bus EventBus) *Task {
	return &Task{
		role:      RoleInitiator,
		ikeSA:     sa,
		keymatFac: keymatFac,
		nonceGen:  nonceGen,
		kxFac:     kxFac,
		bus:       bus,
		phase:     phaseInitSend,
	}
}

// NewResponderTask starts an IKE_SA_INIT run as the responding peer, ready to
// Process the initiator's first request.
func NewResponderTask(sa IkeSA, keymatFac KeymatFactory, nonceGen NonceGenerator, kxFac KeyExchangeFactory, negot *Negotiator, bus EventBus) *Task {
	return &Task{
		role:      RoleResponder,
		ikeSA:     sa,
		keymatFac: keymatFac,
		nonceGen:  nonceGen,
		kxFac:     kxFac,
		negot:     negot,
		bus:       bus,
		phase:     phaseInitRecv,
	}
}

// Rekeying marks the task as deriving a fresh IKE SA's keys chained off an
// existing one (RFC 7296 §2.18 CREATE_CHILD_SA IKE SA rekey), rather than a
// brand new one: DeriveIKE is replaced by DeriveRekey in the Key-Derivation
// Trigger below once every planned key exchange is done.
func (t *Task) Rekeying(old IkeSA) { t.oldSA = old }

// SetRedirectedFrom arms the REDIRECTED_FROM notify this task's initiator
// build will carry, identifying the gateway a prior REDIRECT sent this run
// away from (RFC 5685 §4). Call before the first Build.
func (t *Task) SetRedirectedFrom(gwType uint8, gwIdent []byte) {
	t.redirectedFromData = append([]byte{gwType, uint8(len(gwIdent))}, gwIdent...)
}

// Build renders the task's next outgoing message for its current phase. It
// returns StatusNeedMore while more legs remain after this one, StatusSuccess
// once Build has nothing further to send this run.
func (t *Task) Build(h *protocol.IkeHeader) (*Message, Status, error) {
	m, status, err := t.dispatchBuild(h)
	if err != nil {
		return nil, StatusFailed, err
	}
	status, err = t.PostBuild(status)
	if err != nil {
		return nil, StatusFailed, err
	}
	return m, status, nil
}

func (t *Task) dispatchBuild(h *protocol.IkeHeader) (*Message, Status, error) {
	switch t.phase {
	case phaseInitSend:
		return t.buildInitRequest(h)
	case phaseInitRespond:
		return t.buildInitResponse(h)
	case phaseMultiSend:
		return t.buildMultiKE(h)
	case phaseInitRecv:
		if t.role == RoleResponder && t.cookie != nil {
			// processInitRequest demanded a cookie: reply with the COOKIE
			// notify alone and stay ready to process the initiator's retry.
			h.ExchangeType = protocol.IKE_SA_INIT
			m := NewMessage(h)
			m.Add(protocol.NewNotify(protocol.COOKIE, t.cookie))
			return m, StatusNeedMore, nil
		}
		return nil, StatusFailed, errors.Errorf("ike_sa_init: Build called in phase %d", t.phase)
	default:
		return nil, StatusFailed, errors.Errorf("ike_sa_init: Build called in phase %d", t.phase)
	}
}

// PostBuild runs once a leg's outgoing message has been constructed. It is
// where the Key-Derivation Trigger actually fires when pendingDerivation has
// been set, so no builder needs to know whether it is the one that happens
// to complete the plan.
func (t *Task) PostBuild(status Status) (Status, error) { return t.finalizeDerivation(status) }

// Process consumes an incoming message for the task's current phase,
// advancing phase and, once every planned key exchange completes, invoking
// the Key-Derivation Trigger.
func (t *Task) Process(in *Message) (Status, error) {
	notes := t.PreProcess(in)
	status, err := t.dispatchProcess(in, notes)
	if err != nil {
		return StatusFailed, err
	}
	return t.PostProcess(status)
}

func (t *Task) dispatchProcess(in *Message, notes inspected) (Status, error) {
	switch t.phase {
	case phaseInitRecv:
		if t.role == RoleInitiator {
			return t.processInitResponse(in, notes)
		}
		return t.processInitRequest(in, notes)
	case phaseMultiRecv:
		return t.processMultiKE(in)
	default:
		return StatusFailed, errors.Errorf("ike_sa_init: Process called in phase %d", t.phase)
	}
}

// PreProcess inspects every notify an incoming message carries once, up
// front, and immediately enables each extension the peer's notifies and the
// local policy agree on (ExtSignatureAuth needs only the peer's
// SIGNATURE_HASH_ALGORITHMS) on this IkeSA — regardless of which phase-specific
// processor runs next, so the "parse, then mutate the IKE_SA" rule doesn't
// depend on any one leg remembering to apply it.
func (t *Task) PreProcess(in *Message) inspected {
	notes := inspectNotifies(in.Notifications())
	cfg := t.ikeSA.Config()
	if notes.fragmentSupported && cfg.SupportsFragmentation() {
		t.ikeSA.EnableExtension(ExtFragmentation)
	}
	if notes.childlessSupported && cfg.SupportsChildless() {
		t.ikeSA.EnableExtension(ExtChildless)
	}
	if len(notes.signatureHashAlgos) > 0 {
		t.ikeSA.EnableExtension(ExtSignatureAuth)
	}
	if notes.usePPK && cfg.RequirePPK() {
		t.ikeSA.EnableExtension(ExtPPK)
	}
	return notes
}

// PostProcess mirrors PostBuild for the incoming-message side of the Key-
// Derivation Trigger.
func (t *Task) PostProcess(status Status) (Status, error) { return t.finalizeDerivation(status) }

// finalizeDerivation is the single place the Key-Derivation Trigger's
// "derive once the plan has nothing left pending" rule is implemented;
// PostBuild and PostProcess both delegate to it instead of each leg function
// invoking deriveKeys directly.
func (t *Task) finalizeDerivation(status Status) (Status, error) {
	if !t.pendingDerivation {
		return status, nil
	}
	t.pendingDerivation = false
	if err := t.deriveKeys(); err != nil {
		return StatusFailed, err
	}
	t.phase = phaseDone
	return StatusSuccess, nil
}

// ---- initiator: building and sending IKE_SA_INIT ---------------------------

func (t *Task) buildInitRequest(h *protocol.IkeHeader) (*Message, Status, error) {
	h.ExchangeType = protocol.IKE_SA_INIT

	first := t.offered == nil
	if first {
		cfg := t.ikeSA.Config()
		t.offered = cfg.Proposals()
		if len(t.offered) == 0 {
			return nil, StatusFailed, errors.New("ike_sa_init: no proposals configured")
		}
		t.proposal = t.offered[0]
		var err error
		if t.plan, err = BuildKXPlan(t.proposal); err != nil {
			return nil, StatusFailed, err
		}
		t.signatureAuthentication = true
		t.followRedirects = cfg.FollowRedirects()
		t.ppkRequired = cfg.RequirePPK()
	} else if !t.retry.Allow() {
		return nil, StatusFailed, errors.New("ike_sa_init: retry budget exhausted")
	}

	nonce, err := t.freshNonce()
	if err != nil {
		return nil, StatusFailed, err
	}

	slot, ok := t.plan.Current()
	if !ok {
		return nil, StatusFailed, errors.New("ike_sa_init: key exchange plan is empty")
	}
	ke, err := t.keyExchangeFor(0, slot.Method)
	if err != nil {
		return nil, StatusFailed, err
	}
	pub, err := ke.Public()
	if err != nil {
		return nil, StatusFailed, err
	}

	cfg := t.ikeSA.Config()
	m := NewMessage(h)
	m.Add(&protocol.SaPayload{PayloadHeader: &protocol.PayloadHeader{}, Proposals: t.offered})
	m.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, DhTransformId: protocol.DhTransformId(slot.Method), KeyData: new(big.Int).SetBytes(pub.Bytes())})
	m.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Nonce: nonce})
	if t.cookie != nil {
		m.Add(protocol.NewNotify(protocol.COOKIE, t.cookie))
	}
	if cfg.SupportsFragmentation() {
		m.Add(protocol.NewNotify(protocol.FRAGMENTATION_SUPPORTED, nil))
	}
	if algos := cfg.SignatureHashAlgorithms(); len(algos) > 0 {
		m.Add(protocol.NewNotify(protocol.SIGNATURE_HASH_ALGORITHMS, signatureHashNotifyData(algos)))
	}
	if t.plan.Len() > 1 {
		m.Add(protocol.NewNotify(protocol.INTERMEDIATE_EXCHANGE_SUPPORTED, nil))
	}
	if t.ppkRequired {
		m.Add(protocol.NewNotify(protocol.USE_PPK, nil))
	}
	if t.followRedirects {
		m.Add(protocol.NewNotify(protocol.REDIRECT_SUPPORTED, nil))
	}
	if t.redirectedFromData != nil {
		m.Add(protocol.NewNotify(protocol.REDIRECTED_FROM, t.redirectedFromData))
	}

	t.phase = phaseInitRecv
	return m, StatusNeedMore, nil
}

// ---- initiator: processing the responder's IKE_SA_INIT reply --------------

func (t *Task) processInitResponse(in *Message, notes inspected) (Status, error) {
	if notes.cookie != nil {
		if t.retry.ObserveCookie(notes.cookie) {
			return StatusFailed, errors.New("ike_sa_init: responder repeated an already-echoed cookie")
		}
		t.cookie = notes.cookie
		t.phase = phaseInitSend
		return StatusNeedMore, nil
	}
	if notes.invalidKE {
		slot, ok := t.plan.Current()
		if !ok || notes.invalidKEMethod == protocol.DhTransformId(slot.Method) {
			return StatusFailed, errors.New("ike_sa_init: responder rejected the KE method it had just been offered")
		}
		t.plan.slots[t.plan.cursor].Method = uint16(notes.invalidKEMethod)
		t.kes[t.plan.cursor] = nil
		t.offered = PromoteKeyExchange(t.offered, protocol.TRANSFORM_TYPE_DH, uint16(notes.invalidKEMethod))
		t.proposal = t.offered[0]
		t.phase = phaseInitSend
		return StatusNeedMore, nil
	}
	if notes.noProposalChosen {
		return StatusFailed, protocol.ErrF(protocol.ERR_NO_PROPOSAL_CHOSEN, "responder accepted none of our proposals")
	}
	if notes.hasRedirect && t.followRedirects {
		if !bytesEqual(notes.redirectNonce, t.myNonce) {
			return StatusFailed, protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "redirect notify echoes a nonce we never sent")
		}
		t.ikeSA.Redirect(notes.redirectGWType, notes.redirectGWIdent)
		return StatusFailed, ErrRedirected
	}

	spiR, err := spiFromHeader(in.Header, t.role)
	if err != nil {
		return StatusFailed, err
	}
	if t.ikeSA.SpiR().IsZero() {
		t.ikeSA.SetSpiR(spiR)
	} else if t.ikeSA.SpiR() != spiR {
		return StatusFailed, protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "responder SPI changed mid-exchange")
	}

	sa := in.SA()
	if sa == nil || len(sa.Proposals) != 1 {
		return StatusFailed, protocol.ErrF(protocol.ERR_NO_PROPOSAL_CHOSEN, "response carries no single accepted proposal")
	}
	t.proposal = sa.Proposals[0]

	nonce := in.Nonce()
	if nonce == nil {
		return StatusFailed, protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "response carries no nonce")
	}
	t.otherNonce = nonce.Nonce

	if err := t.completeKeyExchange(in, 0); err != nil {
		return StatusFailed, err
	}

	t.initIb, t.initRb = nil, nil // the raw wire bytes stay with the session layer's Message.Raw

	return t.advanceAfterSlot(0)
}

// ---- responder: processing the initiator's IKE_SA_INIT request ------------

func (t *Task) processInitRequest(in *Message, notes inspected) (Status, error) {
	cfg := t.ikeSA.Config()

	if cfg.RequireCookie() && notes.cookie == nil {
		t.cookie = expectedCookie(in, t.ikeSA.RemoteAddr())
		return StatusNeedMore, nil // Build sends the COOKIE notify response; the retry comes back here
	}
	if cfg.RequireCookie() {
		want := expectedCookie(in, t.ikeSA.RemoteAddr())
		if !bytesEqual(want, notes.cookie) {
			return StatusFailed, errors.New("ike_sa_init: cookie mismatch")
		}
	}

	sa := in.SA()
	if sa == nil || len(sa.Proposals) == 0 {
		return StatusFailed, protocol.ErrF(protocol.ERR_NO_PROPOSAL_CHOSEN, "request carries no proposal")
	}
	selected, matchedCfg, err := t.negot.Select(t.ikeSA.LocalAddr(), t.ikeSA.RemoteAddr(), sa.Proposals, 0)
	if err != nil {
		return StatusFailed, err
	}
	t.proposal = selected
	_ = matchedCfg

	if t.plan, err = BuildKXPlan(t.proposal); err != nil {
		return StatusFailed, err
	}

	ke := in.KE()
	if ke == nil || protocol.DhTransformId(ke.DhTransformId) != protocol.DhTransformId(t.plan.slots[0].Method) {
		return StatusFailed, t.invalidKEFailure(0)
	}
	nonce := in.Nonce()
	if nonce == nil {
		return StatusFailed, protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "request carries no nonce")
	}
	t.otherNonce = nonce.Nonce

	t.ppkRequired = notes.usePPK && cfg.RequirePPK()
	t.signatureAuthentication = len(notes.signatureHashAlgos) > 0
	t.peerFragmentSupported = notes.fragmentSupported
	t.peerIntermediateSupported = notes.intermediateKESeen

	if _, err := t.keyExchangeFor(0, t.plan.slots[0].Method); err != nil {
		return StatusFailed, err
	}
	if err := t.completeKeyExchange(in, 0); err != nil {
		return StatusFailed, err
	}

	if t.ikeSA.SpiI().IsZero() {
		t.ikeSA.SetSpiI(in.Header.SpiI)
	}
	if t.ikeSA.SpiR().IsZero() {
		spiR, err := randomSpi()
		if err != nil {
			return StatusFailed, err
		}
		t.ikeSA.SetSpiR(spiR)
	}

	t.phase = phaseInitRespond
	return StatusNeedMore, nil
}

// randomSpi generates a fresh responder SPI the first time this run needs
// one. The initiator gets its own SPI from whatever constructed its IkeSA
// (outside this package); the responder has no such moment, so the task
// generates it here, the only place a responder-side SPI value originates.
func randomSpi() (protocol.Spi, error) {
	var spi protocol.Spi
	if _, err := rand.Read(spi[:]); err != nil {
		return spi, errors.Wrap(err, "ike_sa_init: failed to generate responder spi")
	}
	return spi, nil
}

// invalidKEFailure reports the group the sender should retry with, wrapped
// as the error the caller turns into an INVALID_KE_PAYLOAD notify response.
func (t *Task) invalidKEFailure(slot int) error {
	return protocol.ErrF(protocol.ERR_INVALID_KE_PAYLOAD, "0x%04x", t.plan.slots[slot].Method)
}

// ---- responder: building the IKE_SA_INIT reply -----------------------------

// buildInitResponse renders the responder's SA/KE/Nonce reply once
// processInitRequest has completed the primary key exchange: the first
// message the responder ever builds in a run, and the step whose absence
// used to send a bare nil message into buildMultiKE's success path.
func (t *Task) buildInitResponse(h *protocol.IkeHeader) (*Message, Status, error) {
	h.ExchangeType = protocol.IKE_SA_INIT

	nonce, err := t.freshNonce()
	if err != nil {
		return nil, StatusFailed, err
	}
	slot, ok := t.plan.Current()
	if !ok {
		return nil, StatusFailed, errors.New("ike_sa_init: key exchange plan is empty")
	}
	ke, err := t.keyExchangeFor(0, slot.Method)
	if err != nil {
		return nil, StatusFailed, err
	}
	pub, err := ke.Public()
	if err != nil {
		return nil, StatusFailed, err
	}

	cfg := t.ikeSA.Config()
	m := NewMessage(h)
	m.Add(&protocol.SaPayload{PayloadHeader: &protocol.PayloadHeader{}, Proposals: []*protocol.Proposal{t.proposal}})
	m.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, DhTransformId: protocol.DhTransformId(slot.Method), KeyData: new(big.Int).SetBytes(pub.Bytes())})
	m.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Nonce: nonce})
	if cfg.SupportsChildless() {
		m.Add(protocol.NewNotify(protocol.CHILDLESS_IKEV2_SUPPORTED, nil))
	}
	if cfg.SupportsFragmentation() && t.peerFragmentSupported {
		m.Add(protocol.NewNotify(protocol.FRAGMENTATION_SUPPORTED, nil))
	}
	if algos := cfg.SignatureHashAlgorithms(); len(algos) > 0 && t.signatureAuthentication {
		m.Add(protocol.NewNotify(protocol.SIGNATURE_HASH_ALGORITHMS, signatureHashNotifyData(algos)))
	}
	if t.plan.Len() > 1 && t.peerIntermediateSupported {
		m.Add(protocol.NewNotify(protocol.INTERMEDIATE_EXCHANGE_SUPPORTED, nil))
	}
	if t.ppkRequired {
		m.Add(protocol.NewNotify(protocol.USE_PPK, nil))
	}

	status, err := t.advanceAfterSlot(0)
	if err != nil {
		return nil, StatusFailed, err
	}
	return m, status, nil
}

// ---- multi-key-exchange follow-up (RFC 9242 IKE_INTERMEDIATE / RFC 9370 IKE_FOLLOWUP_KE) --

// buildMultiKE builds this side's own KE/ADDITIONAL_KEY_EXCHANGE payload for
// the plan's current slot. For the initiator this is a new IKE_INTERMEDIATE
// or IKE_FOLLOWUP_KE request; for the responder it is the reply to the
// request processMultiKE just consumed — the slot's shared secret may
// already be known in that case, but the leg isn't over until this reply
// actually goes out, so the Key-Derivation Trigger's decision for this slot
// is made here, not in processMultiKE, when this side is the responder.
func (t *Task) buildMultiKE(h *protocol.IkeHeader) (*Message, Status, error) {
	slot, ok := t.plan.Current()
	if !ok {
		return nil, StatusFailed, errors.New("ike_sa_init: buildMultiKE called with no key exchange slot pending")
	}
	if t.oldSA != nil {
		h.ExchangeType = protocol.IKE_FOLLOWUP_KE
	} else {
		h.ExchangeType = protocol.IKE_INTERMEDIATE
	}
	ke, err := t.keyExchangeFor(t.plan.cursor, slot.Method)
	if err != nil {
		return nil, StatusFailed, err
	}
	pub, err := ke.Public()
	if err != nil {
		return nil, StatusFailed, err
	}
	m := NewMessage(h)
	m.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, DhTransformId: protocol.DhTransformId(slot.Method), KeyData: new(big.Int).SetBytes(pub.Bytes())})
	m.Add(protocol.NewNotify(protocol.ADDITIONAL_KEY_EXCHANGE, dhMethodNotifyData(protocol.DhTransformId(slot.Method))))

	if t.role == RoleResponder {
		status, err := t.advanceAfterSlot(t.plan.cursor)
		if err != nil {
			return nil, StatusFailed, err
		}
		return m, status, nil
	}
	t.phase = phaseMultiRecv
	return m, StatusNeedMore, nil
}

// processMultiKE consumes the peer's KE for the plan's current slot. For the
// responder, receiving this request is only half the leg — its own reply
// still has to go out — so it defers the Key-Derivation Trigger decision to
// the Build that follows instead of calling advanceAfterSlot here.
func (t *Task) processMultiKE(in *Message) (Status, error) {
	slot, ok := t.plan.Current()
	if !ok {
		return StatusFailed, errors.New("ike_sa_init: no key exchange slot pending")
	}
	if _, err := t.keyExchangeFor(t.plan.cursor, slot.Method); err != nil {
		return StatusFailed, err
	}
	if err := t.completeKeyExchange(in, t.plan.cursor); err != nil {
		return StatusFailed, err
	}
	if t.role == RoleResponder {
		t.phase = phaseMultiSend
		return StatusNeedMore, nil
	}
	return t.advanceAfterSlot(t.plan.cursor)
}

// advanceAfterSlot decides, once slot has a shared secret and (for the
// responder) its reply carrying that slot's KE has gone out, whether
// another follow-up leg is needed or the plan is complete. It never derives
// keys itself — it only marks pendingDerivation, leaving PostBuild/
// PostProcess to fire the Key-Derivation Trigger uniformly. Which phase
// comes next differs by role: the initiator always builds the next leg's
// request, the responder always waits to receive it.
func (t *Task) advanceAfterSlot(slot int) (Status, error) {
	if t.plan.Remaining() {
		t.plan.MarkDone()
		if t.role == RoleInitiator {
			t.phase = phaseMultiSend
		} else {
			t.phase = phaseMultiRecv
		}
		return StatusNeedMore, nil
	}
	t.plan.MarkDone()
	t.pendingDerivation = true
	return StatusNeedMore, nil
}

// completeKeyExchange pulls the peer's KE payload out of in, computes the
// shared secret for the given slot, and stores it.
func (t *Task) completeKeyExchange(in *Message, slot int) error {
	ke := in.KE()
	if ke == nil {
		return protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "message carries no KE payload")
	}
	kx := t.kes[slot]
	if kx == nil {
		return errors.Errorf("ike_sa_init: no local key exchange state for slot %d", slot)
	}
	secret, err := kx.SharedSecret(NewBigBytes(ke.KeyData.Bytes()))
	if err != nil {
		return err
	}
	t.shared[slot] = secret.Bytes()
	return nil
}

func (t *Task) keyExchangeFor(slot int, method uint16) (KeyExchange, error) {
	if t.kes[slot] != nil {
		return t.kes[slot], nil
	}
	ke, err := t.kxFac(method)
	if err != nil {
		return nil, err
	}
	t.kes[slot] = ke
	return ke, nil
}

func (t *Task) freshNonce() ([]byte, error) {
	if t.myNonce != nil {
		return t.myNonce, nil
	}
	n, err := t.nonceGen.Generate(NonceSize)
	if err != nil {
		return nil, err
	}
	t.myNonce = n
	return n, nil
}

// ---- Key-Derivation Trigger -------------------------------------------------

// deriveKeys fires once every planned key exchange has a shared secret. It
// is the trigger's three-case dispatch: a fresh SA with no more key
// exchanges pending derives immediately; a fresh SA with a multi-key-
// exchange plan only reaches here after the last slot completes, so no
// separate "more KEs pending" path is needed at this call site; a rekey
// chains from the old SA's SK_d instead of starting SKEYSEED from scratch.
func (t *Task) deriveKeys() error {
	if t.keymat == nil {
		km, err := t.keymatFac(t.proposal)
		if err != nil {
			t.bus.IkeSaFailed(t.ikeSA, err)
			return err
		}
		t.keymat = km
	}

	secrets := make([][]byte, t.plan.Len())
	copy(secrets, t.shared[:t.plan.Len()])

	spiI, spiR := t.ikeSA.SpiI(), t.ikeSA.SpiR()
	ni, nr := t.myNonce, t.otherNonce
	if t.role == RoleResponder {
		ni, nr = t.otherNonce, t.myNonce
	}
	var err error
	if t.oldSA != nil {
		err = t.keymat.DeriveRekey(oldSkD(t.oldSA), secrets, ni, nr)
	} else {
		err = t.keymat.DeriveIKE(secrets, ni, nr, spiI[:], spiR[:])
	}
	if err != nil {
		t.bus.IkeSaFailed(t.ikeSA, err)
		return err
	}
	t.ikeSA.InstallKeymat(t.keymat)
	t.bus.IkeSaEstablished(t.ikeSA)
	return nil
}

func oldSkD(sa IkeSA) []byte {
	if k, ok := sa.(interface{ SkD() []byte }); ok {
		return k.SkD()
	}
	return nil
}

func spiFromHeader(h *protocol.IkeHeader, role Role) (protocol.Spi, error) {
	if role == RoleInitiator {
		return h.SpiR, nil
	}
	return h.SpiI, nil
}

// expectedCookie recomputes the responder's COOKIE value the same way on
// both the challenge and the verification pass: a 16-byte XOR fold of the
// initiator's nonce and the remote address string. No responder-local secret
// is mixed in. Because the initiator keeps its nonce across retries,
// repeated requests from the same peer get the same challenge.
func expectedCookie(in *Message, remote interface{ String() string }) []byte {
	n := in.Nonce()
	var nb []byte
	if n != nil {
		nb = n.Nonce
	}
	h := make([]byte, 0, len(nb)+len(remote.String()))
	h = append(h, nb...)
	h = append(h, []byte(remote.String())...)
	return lowerHash(h)
}

func lowerHash(b []byte) []byte {
	const sz = 16
	out := make([]byte, sz)
	for i, c := range b {
		out[i%sz] ^= c
	}
	return out
}
