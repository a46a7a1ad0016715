package wire

import "fmt"

// MgmtPacket is the decoded body of a TypeMgmt packet: the mgmt sub-type
// byte plus exactly one populated payload.
type MgmtPacket struct {
	Type        MgmtType
	Beacon      *BeaconBody
	BeaconReply *BeaconReplyBody
	BeaconGrant *BeaconGrantBody
	Trace       *TraceBody // used for both MgmtTraceReq and MgmtTraceReply
}

func (m *MgmtPacket) Encode() []byte {
	var body []byte
	switch m.Type {
	case MgmtBeacon:
		body = m.Beacon.Encode()
	case MgmtBeaconReply:
		body = m.BeaconReply.Encode()
	case MgmtBeaconGrant:
		body = m.BeaconGrant.Encode()
	case MgmtTraceReq, MgmtTraceReply:
		body = m.Trace.Encode()
	}
	out := make([]byte, 1+len(body))
	out[0] = byte(m.Type)
	copy(out[1:], body)
	return out
}

func decodeMgmtPacket(buf []byte) (*MgmtPacket, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("wire: mgmt packet missing type byte: %w", ErrMalformedPacket)
	}
	m := &MgmtPacket{Type: MgmtType(buf[0])}
	body := buf[1:]
	var err error
	switch m.Type {
	case MgmtBeacon:
		m.Beacon, err = DecodeBeaconBody(body)
	case MgmtBeaconReply:
		m.BeaconReply, err = DecodeBeaconReplyBody(body)
	case MgmtBeaconGrant:
		m.BeaconGrant, err = DecodeBeaconGrantBody(body)
	case MgmtTraceReq, MgmtTraceReply:
		m.Trace, err = DecodeTraceBody(body)
	default:
		return nil, fmt.Errorf("wire: unknown mgmt type %d: %w", m.Type, ErrMalformedPacket)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Packet is a tagged-variant decoded AllNet datagram (§9 design note):
// each variant owns its decoded fields rather than aliasing a flat
// buffer. Exactly one of the payload fields is populated, per Header.MessageType.
type Packet struct {
	Header  *Header
	Clear   []byte
	Ack     *AckBody
	Data    []byte // ciphertext + optional trailing signature region, undecoded
	Mgmt    *MgmtPacket
	KeyReq  *KeyReqBody
	KeyXchg *KeyXchgBody
}

// Encode serializes the packet: header followed by its type-specific body.
func (p *Packet) Encode() []byte {
	var body []byte
	switch p.Header.MessageType {
	case TypeClear:
		body = p.Clear
	case TypeAck:
		body = p.Ack.Encode()
	case TypeData:
		body = p.Data
	case TypeMgmt:
		body = p.Mgmt.Encode()
	case TypeKeyReq:
		body = p.KeyReq.Encode()
	case TypeKeyXchg:
		body = p.KeyXchg.Encode()
	}
	out := make([]byte, 0, HeaderSize+len(body))
	out = append(out, p.Header.Encode()...)
	out = append(out, body...)
	return out
}

// Parse decodes a complete AllNet datagram: the fixed header plus its
// type-specific body. Any buffer shorter than the declared layout
// returns ErrMalformedPacket.
func Parse(buf []byte) (*Packet, error) {
	h, rest, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	p := &Packet{Header: h}
	switch h.MessageType {
	case TypeClear:
		p.Clear = rest
	case TypeAck:
		p.Ack, err = DecodeAckBody(rest)
	case TypeData:
		p.Data = rest
	case TypeMgmt:
		p.Mgmt, err = decodeMgmtPacket(rest)
	case TypeKeyReq:
		p.KeyReq, err = DecodeKeyReqBody(rest)
	case TypeKeyXchg:
		p.KeyXchg, err = DecodeKeyXchgBody(rest)
	default:
		return nil, fmt.Errorf("wire: unknown message type %d: %w", h.MessageType, ErrMalformedPacket)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
