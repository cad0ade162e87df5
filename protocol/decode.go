package protocol

// newPayload allocates the zero value for a wire payload type, ready for
// Decode. Returns nil for a type this module never parses as a standalone
// payload (e.g. encrypted/fragmented bodies, which the session layer
// handles before the generic chain-walk ever sees their contents).
func newPayload(t PayloadType, ph *PayloadHeader) Payload {
	switch t {
	case PayloadTypeSA:
		return &SaPayload{PayloadHeader: ph}
	case PayloadTypeKE:
		return &KePayload{PayloadHeader: ph}
	case PayloadTypeIDi, PayloadTypeIDr:
		return &IdPayload{PayloadHeader: ph, IdPayloadType: t}
	case PayloadTypeAUTH:
		return &AuthPayload{PayloadHeader: ph}
	case PayloadTypeNonce:
		return &NoncePayload{PayloadHeader: ph}
	case PayloadTypeN:
		return &NotifyPayload{PayloadHeader: ph}
	case PayloadTypeD:
		return &DeletePayload{PayloadHeader: ph}
	case PayloadTypeV:
		return &VendorIdPayload{PayloadHeader: ph}
	default:
		return nil
	}
}

// DecodePayloads walks a chained payload list starting at firstType,
// stopping at PayloadTypeNone or an unrecognized type (the caller decides
// whether an unrecognized critical payload is fatal).
func DecodePayloads(firstType PayloadType, b []byte) ([]Payload, error) {
	var out []Payload
	next := firstType
	for next != PayloadTypeNone && len(b) > 0 {
		ph, err := decodePayloadHeader(b)
		if err != nil {
			return nil, err
		}
		if len(b) < int(ph.PayloadLength) {
			return nil, ErrF(ERR_INVALID_SYNTAX, "payload length %d exceeds remaining buffer", ph.PayloadLength)
		}
		body := b[PayloadHeaderLen:ph.PayloadLength]
		p := newPayload(next, ph)
		if p == nil {
			return out, ErrF(ERR_UNSUPPORTED_CRITICAL_PAYLOAD, "unrecognized payload type %d", next)
		}
		if err := p.Decode(body); err != nil {
			return nil, err
		}
		out = append(out, p)
		next = ph.NextPayload
		b = b[ph.PayloadLength:]
	}
	return out, nil
}
