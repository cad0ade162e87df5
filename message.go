package ike

import (
	"io"
	"net"

	"github.com/msgboxio/ike/ikeinit"
	"github.com/msgboxio/ike/protocol"
)

// Message is a decoded (or not-yet-encoded) IKE message at the session
// layer: the header, its payload chain, and — for IKE_SA_INIT, which the
// AUTH payload's signature covers — the raw bytes it was decoded from.
type Message struct {
	Header   *protocol.IkeHeader
	Payloads []protocol.Payload
	Raw      []byte

	LocalAddr, RemoteAddr net.Addr
}

// DecodeMessage parses a full wire message. io.ErrShortBuffer signals the
// caller should hold b and retry once more bytes arrive (conn.ReadMessage's
// fragment-reassembly loop), matching the teacher's ReadMessage contract.
func DecodeMessage(b []byte) (*Message, error) {
	if len(b) < protocol.IkeHeaderLen {
		return nil, io.ErrShortBuffer
	}
	h, err := protocol.DecodeIkeHeader(b)
	if err != nil {
		return nil, err
	}
	if uint32(len(b)) < h.MsgLength {
		return nil, io.ErrShortBuffer
	}
	payloads, err := protocol.DecodePayloads(h.NextPayload, b[protocol.IkeHeaderLen:h.MsgLength])
	if err != nil {
		return nil, err
	}
	return &Message{Header: h, Payloads: payloads, Raw: append([]byte{}, b[:h.MsgLength]...)}, nil
}

func (m *Message) Get(t protocol.PayloadType) protocol.Payload {
	for _, p := range m.Payloads {
		if p.Type() == t {
			return p
		}
	}
	return nil
}

func (m *Message) Add(p protocol.Payload) { m.Payloads = append(m.Payloads, p) }

// Encode renders the message to wire bytes and records them in Raw, since
// IKE_AUTH's AUTH payload signs over the raw IKE_SA_INIT message each side
// sent.
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
	m.Raw = append(m.Header.Encode(), body...)
	return m.Raw
}

// ToTask adapts a session-layer Message to the ikeinit package's own
// Message type, so the task never needs to import this package (which, in
// turn, imports ikeinit — Go disallows the reverse).
func (m *Message) ToTask() *ikeinit.Message {
	return &ikeinit.Message{Header: m.Header, Payloads: m.Payloads}
}

// FromTask converts the other direction, stamping Raw once the caller has
// encoded it.
func FromTask(tm *ikeinit.Message) *Message {
	return &Message{Header: tm.Header, Payloads: tm.Payloads}
}
