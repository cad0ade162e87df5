package ikeinit

import "github.com/msgboxio/ike/protocol"

// inspected holds everything the task learns from a peer's notify payloads
// in one pass, so Process only has to walk the message's notify list once.
type inspected struct {
	cookie             []byte
	invalidKE          bool
	invalidKEMethod    protocol.DhTransformId
	noProposalChosen   bool
	usePPK             bool
	signatureHashAlgos []protocol.HashAlgorithmId
	fragmentSupported  bool
	childlessSupported bool
	natDetectionSource []byte
	natDetectionDest   []byte
	intermediateKESeen bool
	additionalKESeen   map[uint16]bool

	// hasRedirect and the three fields below are REDIRECT's parsed body
	// (RFC 5685 §3): GW Ident Type, the new responder's identity, and the
	// nonce this notify echoes back.
	hasRedirect     bool
	redirectGWType  uint8
	redirectGWIdent []byte
	redirectNonce   []byte
}

func inspectNotifies(ns []*protocol.NotifyPayload) inspected {
	r := inspected{additionalKESeen: map[uint16]bool{}}
	for _, n := range ns {
		switch n.NotificationType {
		case protocol.COOKIE:
			r.cookie = n.Data
		case protocol.INVALID_KE_PAYLOAD:
			r.invalidKE = true
			if len(n.Data) >= 2 {
				r.invalidKEMethod = protocol.DhTransformId(uint16(n.Data[0])<<8 | uint16(n.Data[1]))
			}
		case protocol.NO_PROPOSAL_CHOSEN:
			r.noProposalChosen = true
		case protocol.REDIRECT:
			r.hasRedirect = true
			parseRedirect(&r, n.Data)
		case protocol.USE_PPK:
			r.usePPK = true
		case protocol.SIGNATURE_HASH_ALGORITHMS:
			for i := 0; i+1 < len(n.Data); i += 2 {
				r.signatureHashAlgos = append(r.signatureHashAlgos, protocol.HashAlgorithmId(uint16(n.Data[i])<<8|uint16(n.Data[i+1])))
			}
		case protocol.FRAGMENTATION_SUPPORTED:
			r.fragmentSupported = true
		case protocol.CHILDLESS_IKEV2_SUPPORTED:
			r.childlessSupported = true
		case protocol.NAT_DETECTION_SOURCE_IP:
			r.natDetectionSource = n.Data
		case protocol.NAT_DETECTION_DESTINATION_IP:
			r.natDetectionDest = n.Data
		case protocol.INTERMEDIATE_EXCHANGE_SUPPORTED:
			r.intermediateKESeen = true
		case protocol.ADDITIONAL_KEY_EXCHANGE:
			if len(n.Data) >= 2 {
				r.additionalKESeen[uint16(n.Data[0])<<8|uint16(n.Data[1])] = true
			}
		}
	}
	return r
}

// parseRedirect decodes REDIRECT's body (RFC 5685 §3): a 1-octet GW Ident
// Type, a 1-octet GW Ident Length, that many octets of new-gateway
// identity, and whatever remains is the Nonce Data echoing the initiator's
// own nonce from the request this responds to. Malformed data leaves the
// fields zero rather than erroring — the caller treats a zero-length
// redirectNonce as failing the echo check.
func parseRedirect(r *inspected, data []byte) {
	if len(data) < 2 {
		return
	}
	gwLen := int(data[1])
	if len(data) < 2+gwLen {
		return
	}
	r.redirectGWType = data[0]
	r.redirectGWIdent = append([]byte{}, data[2:2+gwLen]...)
	r.redirectNonce = append([]byte{}, data[2+gwLen:]...)
}

// signatureHashNotifyData renders RFC 7427 §4's SIGNATURE_HASH_ALGORITHMS
// notify payload body: one 16-bit hash algorithm id per entry, in preference
// order.
func signatureHashNotifyData(algos []protocol.HashAlgorithmId) []byte {
	b := make([]byte, 2*len(algos))
	for i, a := range algos {
		b[2*i] = uint8(a >> 8)
		b[2*i+1] = uint8(a)
	}
	return b
}

// dhMethodNotifyData renders the 2-octet DH group id an INVALID_KE_PAYLOAD
// notify carries (RFC 7296 §3.10.1): the group the sender wants instead.
func dhMethodNotifyData(method protocol.DhTransformId) []byte {
	return []byte{uint8(method >> 8), uint8(method)}
}
