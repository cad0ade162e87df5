package ikeinit

import "github.com/msgboxio/ike/protocol"

// MaxKeyExchanges is the primary KE plus the seven additional-key-exchange
// slots RFC 9370 defines (ADDITIONAL_KEY_EXCHANGE_1..7).
const MaxKeyExchanges = 8

// KXSlot is one entry in a KXPlan: the transform type that must appear in
// the negotiated proposal for this slot to apply, the negotiated method id,
// and whether this slot's exchange has completed.
type KXSlot struct {
	Type   protocol.TransformType
	Method uint16
	Done   bool
}

// additionalKeyExchangeTypes lists the transform types, in order, that a
// proposal uses for each key-exchange slot after the primary one.
var additionalKeyExchangeTypes = [MaxKeyExchanges - 1]protocol.TransformType{
	protocol.TRANSFORM_TYPE_ADDKE1,
	protocol.TRANSFORM_TYPE_ADDKE2,
	protocol.TRANSFORM_TYPE_ADDKE3,
	protocol.TRANSFORM_TYPE_ADDKE4,
	protocol.TRANSFORM_TYPE_ADDKE5,
	protocol.TRANSFORM_TYPE_ADDKE6,
	protocol.TRANSFORM_TYPE_ADDKE7,
}

// KXPlan is the ordered, bounded sequence of key exchanges a negotiated
// proposal requires: slot 0 is the primary KE carried in IKE_SA_INIT
// itself, slots 1-7 are carried one per follow-up exchange (IKE_INTERMEDIATE
// for a new SA, IKE_FOLLOWUP_KE when rekeying).
// cursor tracks which slot is currently in flight.
type KXPlan struct {
	slots  [MaxKeyExchanges]KXSlot
	count  int // number of slots actually populated
	cursor int
}

// BuildKXPlan derives a KXPlan from the proposal's negotiated
// transforms: the DH transform fills slot 0, then each additional-key-
// exchange transform type present fills the next slot, in registration
// order. A proposal with no additional-key-exchange transforms yields a
// single-slot plan — the common case.
func BuildKXPlan(p *protocol.Proposal) (KXPlan, error) {
	var plan KXPlan
	for _, tr := range p.Transforms {
		if tr.Type == protocol.TRANSFORM_TYPE_DH {
			plan.slots[0] = KXSlot{Type: protocol.TRANSFORM_TYPE_DH, Method: tr.TransformId}
			if plan.count == 0 {
				plan.count = 1
			}
		}
	}
	for i, t := range additionalKeyExchangeTypes {
		for _, tr := range p.Transforms {
			if tr.Type == t {
				plan.slots[i+1] = KXSlot{Type: t, Method: tr.TransformId}
				if plan.count < i+2 {
					plan.count = i + 2
				}
			}
		}
	}
	if plan.slots[0].Type != protocol.TRANSFORM_TYPE_DH {
		return plan, protocol.ErrF(protocol.ERR_NO_PROPOSAL_CHOSEN, "proposal carries no diffie-hellman transform")
	}
	return plan, nil
}

// Current returns the slot the cursor points at and whether one remains.
func (p *KXPlan) Current() (KXSlot, bool) {
	if p.cursor >= p.count {
		return KXSlot{}, false
	}
	return p.slots[p.cursor], true
}

// MarkDone completes the current slot and advances the cursor.
func (p *KXPlan) MarkDone() {
	if p.cursor < p.count {
		p.slots[p.cursor].Done = true
		p.cursor++
	}
}

// Remaining reports whether any slot after the current one still needs a
// key exchange — this is what decides whether IKE_INTERMEDIATE is required.
func (p *KXPlan) Remaining() bool { return p.cursor < p.count-1 }

// Done reports whether every planned slot has completed.
func (p *KXPlan) Done() bool { return p.cursor >= p.count }

// Len is the number of slots this plan actually uses.
func (p *KXPlan) Len() int { return p.count }
