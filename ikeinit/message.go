package ikeinit

import "github.com/msgboxio/ike/protocol"

// Message is the payload-builder/parser bridge between the wire codec in
// package protocol and the task: a decoded (or not-yet-encoded) IKE message
// as a flat, ordered payload list plus its header.
type Message struct {
	Header   *protocol.IkeHeader
	Payloads []protocol.Payload
}

func NewMessage(h *protocol.IkeHeader) *Message {
	return &Message{Header: h}
}

// Add appends a payload to the outgoing list; chain next-payload linkage is
// resolved by Encode, not by the caller.
func (m *Message) Add(p protocol.Payload) { m.Payloads = append(m.Payloads, p) }

// Get returns the first payload of the given type, or nil.
func (m *Message) Get(t protocol.PayloadType) protocol.Payload {
	for _, p := range m.Payloads {
		if p.Type() == t {
			return p
		}
	}
	return nil
}

// Notifications returns every NotifyPayload carried in the message, in
// order — IKE_SA_INIT and IKE_INTERMEDIATE responses routinely carry
// several at once (COOKIE, NAT_DETECTION_*, FRAGMENTATION_SUPPORTED, ...).
func (m *Message) Notifications() []*protocol.NotifyPayload {
	var out []*protocol.NotifyPayload
	for _, p := range m.Payloads {
		if n, ok := p.(*protocol.NotifyPayload); ok {
			out = append(out, n)
		}
	}
	return out
}

// SA returns the message's single SA payload's first (and only, for
// IKE_SA_INIT) proposal list, or nil if absent.
func (m *Message) SA() *protocol.SaPayload {
	if p, ok := m.Get(protocol.PayloadTypeSA).(*protocol.SaPayload); ok {
		return p
	}
	return nil
}

func (m *Message) KE() *protocol.KePayload {
	if p, ok := m.Get(protocol.PayloadTypeKE).(*protocol.KePayload); ok {
		return p
	}
	return nil
}

func (m *Message) Nonce() *protocol.NoncePayload {
	if p, ok := m.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload); ok {
		return p
	}
	return nil
}

// Encode renders the message's header and payload chain to wire bytes,
// patching each payload header's NextPayload field as it walks the list.
func (m *Message) Encode() []byte {
	var body []byte
	next := protocol.PayloadTypeNone
	for i := len(m.Payloads) - 1; i >= 0; i-- {
		p := m.Payloads[i]
		body = append(protocol.EncodePayload(p, next), body...)
		next = p.Type()
	}
	m.Header.NextPayload = next
	m.Header.MsgLength = uint32(protocol.IkeHeaderLen + len(body))
	return append(m.Header.Encode(), body...)
}
