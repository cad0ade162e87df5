package ikeinit

import (
	"net"

	"github.com/msgboxio/ike/protocol"
)

// NegotiateFlags mirror strongSwan's PROPOSAL_* selection flags.
type NegotiateFlags uint8

const (
	// ProposalSkipPrivate excludes transforms from the private-use ranges
	// of the IANA registries when matching (used once AUTH has succeeded
	// and private extensions are no longer trusted without it).
	ProposalSkipPrivate NegotiateFlags = 1 << iota
	// ProposalPreferSupplied matches the peer's proposal order ahead of
	// the local configuration's, used for the responder's own preference
	// when acting on behalf of a peer-supplied policy (CREATE_CHILD_SA).
	ProposalPreferSupplied
)

// Negotiator selects a mutually acceptable Proposal out of a peer-supplied
// list, trying the primary IkeConfig and then any alternates AltConfigLookup
// supplies — the Go-native replacement for charon's backend-enumerated
// ike_cfg candidates (strongSwan's ike_init.c process_sa_payload loop).
type Negotiator struct {
	cfg     IkeConfig
	altCfgs AltConfigLookup
}

func NewNegotiator(cfg IkeConfig, alt AltConfigLookup) *Negotiator {
	return &Negotiator{cfg: cfg, altCfgs: alt}
}

// Select returns the first proposal that is mutually acceptable between the
// local policy (tried first, then each alternate in order) and the peer's
// offered list, along with the IkeConfig it matched under.
func (n *Negotiator) Select(local, remote net.Addr, peer []*protocol.Proposal, flags NegotiateFlags) (*protocol.Proposal, IkeConfig, error) {
	candidates := []IkeConfig{n.cfg}
	if n.altCfgs != nil {
		candidates = append(candidates, n.altCfgs(local, remote)...)
	}
	for _, cfg := range candidates {
		if sel := selectProposal(cfg.Proposals(), peer, flags); sel != nil {
			return sel, cfg, nil
		}
	}
	return nil, nil, protocol.ErrF(protocol.ERR_NO_PROPOSAL_CHOSEN, "no proposal in the offered list matches local policy")
}

func selectProposal(local, peer []*protocol.Proposal, flags NegotiateFlags) *protocol.Proposal {
	outer, inner := local, peer
	if flags&ProposalPreferSupplied != 0 {
		outer, inner = peer, local
	}
	for _, want := range outer {
		for _, have := range inner {
			if want.ProtocolId != have.ProtocolId {
				continue
			}
			if sel := intersect(want, have, flags); sel != nil {
				return sel
			}
		}
	}
	return nil
}

// intersect builds the proposal that results from matching a (type, one
// transform per type) against the peer's offered alternatives, keeping the
// peer's SPI and proposal number since the selected proposal echoes back
// what the peer will recognize.
func intersect(want, have *protocol.Proposal, flags NegotiateFlags) *protocol.Proposal {
	byType := make(map[protocol.TransformType][]*protocol.SaTransform)
	for _, tr := range have.Transforms {
		if flags&ProposalSkipPrivate != 0 && isPrivateUse(tr) {
			continue
		}
		byType[tr.Type] = append(byType[tr.Type], tr)
	}

	wantTypes := make(map[protocol.TransformType]bool)
	for _, tr := range want.Transforms {
		wantTypes[tr.Type] = true
	}

	var selected []*protocol.SaTransform
	for t := range wantTypes {
		haveForType, ok := byType[t]
		if !ok {
			return nil // required transform type absent from peer's proposal
		}
		match := matchTransform(want.Transforms, haveForType)
		if match == nil {
			return nil
		}
		selected = append(selected, match)
	}
	if len(selected) == 0 {
		return nil
	}
	return &protocol.Proposal{
		IsLast:     true,
		Number:     have.Number,
		ProtocolId: have.ProtocolId,
		Spi:        have.Spi,
		Transforms: selected,
	}
}

func matchTransform(wantList []*protocol.SaTransform, haveList []*protocol.SaTransform) *protocol.SaTransform {
	for _, w := range wantList {
		for _, h := range haveList {
			if w.Type == h.Type && w.TransformId == h.TransformId && w.KeyLength == h.KeyLength {
				return h
			}
		}
	}
	return nil
}

func isPrivateUse(tr *protocol.SaTransform) bool { return tr.TransformId >= 1024 }

// PromoteKeyExchange reorders a proposal's transforms so the given method
// sorts first among its transform-type peers — RFC 7296 §1.2 requires the
// initiator to list its chosen key-exchange method first in every proposal
// it resends after an INVALID_KE_PAYLOAD notify, demoting proposals that
// don't support the method to the tail of the proposal list.
func PromoteKeyExchange(proposals []*protocol.Proposal, transformType protocol.TransformType, method uint16) []*protocol.Proposal {
	var supports, rest []*protocol.Proposal
	for _, p := range proposals {
		if proposalHasMethod(p, transformType, method) {
			supports = append(supports, reorderProposal(p, transformType, method))
		} else {
			rest = append(rest, p)
		}
	}
	out := append(supports, rest...)
	for i, p := range out {
		p.IsLast = i == len(out)-1
	}
	return out
}

func proposalHasMethod(p *protocol.Proposal, t protocol.TransformType, method uint16) bool {
	for _, tr := range p.Transforms {
		if tr.Type == t && tr.TransformId == method {
			return true
		}
	}
	return false
}

func reorderProposal(p *protocol.Proposal, t protocol.TransformType, method uint16) *protocol.Proposal {
	out := &protocol.Proposal{IsLast: p.IsLast, Number: p.Number, ProtocolId: p.ProtocolId, Spi: p.Spi}
	var chosen *protocol.SaTransform
	for _, tr := range p.Transforms {
		if tr.Type == t && tr.TransformId == method {
			chosen = tr
			continue
		}
		out.Transforms = append(out.Transforms, tr)
	}
	if chosen != nil {
		out.Transforms = append([]*protocol.SaTransform{chosen}, out.Transforms...)
	}
	return out
}
