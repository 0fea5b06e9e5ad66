// Package packet implements the MQTT v5 control packet codec: fixed-header
// framing, the packet variants the gateway needs to decode from clients and
// the ones it needs to serialize back, and the reason codes exchanged in
// CONNACK/SUBACK/UNSUBACK/DISCONNECT.
package packet

// Kind identifies the MQTT control packet type, carried in bits 7-4 of the
// first fixed-header byte.
type Kind byte

const (
	KindConnect     Kind = 0x1
	KindConnAck     Kind = 0x2
	KindPublish     Kind = 0x3
	KindPubAck      Kind = 0x4
	KindPubRec      Kind = 0x5
	KindPubRel      Kind = 0x6
	KindPubComp     Kind = 0x7
	KindSubscribe   Kind = 0x8
	KindSubAck      Kind = 0x9
	KindUnsubscribe Kind = 0xA
	KindUnsubAck    Kind = 0xB
	KindPingReq     Kind = 0xC
	KindPingResp    Kind = 0xD
	KindDisconnect  Kind = 0xE
	KindAuth        Kind = 0xF
)

// Packet is implemented by every decoded control packet, including
// Unsupported for kinds the gateway recognizes but does not act on.
type Packet interface {
	Kind() Kind
}

// fixedHeader is [type:4|flags:4][remaining-length:varint]; flags carries
// dup/qos/retain for PUBLISH and is otherwise packet-specific (zero for
// most types).
type fixedHeader struct {
	kind            Kind
	flags           byte
	remainingLength uint32
}

func parseFixedHeader(d *decoder) (fixedHeader, error) {
	b, err := d.readByte()
	if err != nil {
		return fixedHeader{}, err
	}
	rl, err := d.readVarInt()
	if err != nil {
		return fixedHeader{}, err
	}
	return fixedHeader{kind: Kind(b >> 4), flags: b & 0x0F, remainingLength: rl}, nil
}

// Parse decodes exactly one control packet from the front of src.
//
//   - (nil, 0, nil): src does not yet hold a full packet; call again once
//     more bytes have arrived.
//   - (nil, 0, err): the bytes present are malformed.
//   - (pkt, n, nil): pkt was decoded from the first n bytes of src; the
//     caller advances its rolling buffer by n.
func Parse(src []byte) (Packet, int, error) {
	d := newDecoder(src)
	fh, err := parseFixedHeader(d)
	if err != nil {
		if err == errIncomplete {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	if d.remaining() < int(fh.remainingLength) {
		return nil, 0, nil
	}
	body := newDecoder(d.buf[d.pos : d.pos+int(fh.remainingLength)])
	consumed := d.pos + int(fh.remainingLength)

	var pkt Packet
	switch fh.kind {
	case KindConnect:
		pkt, err = parseConnect(body)
	case KindConnAck:
		pkt, err = parseConnAck(body)
	case KindPublish:
		pkt, err = parsePublish(fh, body)
	case KindSubscribe:
		pkt, err = parseSubscribe(fh, body)
	case KindUnsubscribe:
		pkt, err = parseUnsubscribe(body)
	case KindDisconnect:
		pkt, err = parseDisconnect(body)
	case KindPingReq:
		pkt = PingReq{}
	case KindPingResp:
		pkt = PingResp{}
	default:
		pkt = Unsupported(fh.kind)
	}
	if err != nil {
		if err == errIncomplete {
			// A field inside a fully-buffered remaining-length body can
			// never be short; treat it as malformed rather than ask for
			// more bytes that will never complete this packet.
			return nil, 0, ErrMalformed
		}
		return nil, 0, err
	}
	return pkt, consumed, nil
}
