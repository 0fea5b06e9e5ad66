package packet

// ConnAck is the MQTT v5 CONNACK the session handler emits in response to
// CONNECT. MaxPacketSize is included as a property only when nonzero.
type ConnAck struct {
	ReasonCode    ReasonCode
	MaxPacketSize uint32
}

func (ConnAck) Kind() Kind { return KindConnAck }

const (
	propMaxQoS                    = 0x24
	propRetainAvailable           = 0x25
	propMaxPacketSize             = 0x27
	propWildcardSubscriptionAvail = 0x28
	propSharedSubscriptionAvail   = 0x2A
)

// Pack serializes the CONNACK: ack-flags (always 0x00, no session present),
// reason code, then a properties block advertising max-qos=0,
// retain-available=1, wildcard/shared subscriptions unavailable.
func (c ConnAck) Pack() ([]byte, error) {
	var props []byte
	props = append(props, propMaxQoS, 0x00)
	props = append(props, propRetainAvailable, 0x01)
	props = append(props, propWildcardSubscriptionAvail, 0x00)
	props = append(props, propSharedSubscriptionAvail, 0x00)
	if c.MaxPacketSize != 0 {
		props = append(props, propMaxPacketSize)
		props = append(props, i4b(c.MaxPacketSize)...)
	}
	propsLen, err := encodeVarInt(uint32(len(props)))
	if err != nil {
		return nil, err
	}

	body := append([]byte{0x00, byte(c.ReasonCode)}, propsLen...)
	body = append(body, props...)

	rl, err := encodeVarInt(uint32(len(body)))
	if err != nil {
		return nil, err
	}
	out := append([]byte{byte(KindConnAck) << 4}, rl...)
	return append(out, body...), nil
}

// parseConnAck decodes a CONNACK off the wire. A 2-byte body is the
// v3.1.1 shape (session-present, return code); anything longer is v5
// (ack flags, reason code, properties). Of the properties only
// maximum-packet-size carries a value worth surfacing; the other
// single-byte availability flags are skipped.
func parseConnAck(d *decoder) (Packet, error) {
	if d.remaining() == 2 {
		if _, err := d.readByte(); err != nil {
			return nil, err
		}
		ret, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return ConnAckV4{ReturnCode: ret}, nil
	}

	if _, err := d.readByte(); err != nil { // ack flags
		return nil, err
	}
	rc, err := d.readByte()
	if err != nil {
		return nil, err
	}
	c := ConnAck{ReasonCode: ReasonCode(rc)}

	propsLen, err := d.readVarInt()
	if err != nil {
		return nil, err
	}
	propsEnd := d.pos + int(propsLen)
	if propsEnd > len(d.buf) {
		return nil, errIncomplete
	}
	for d.pos < propsEnd {
		id, err := d.readByte()
		if err != nil {
			return nil, err
		}
		switch id {
		case propMaxQoS, propRetainAvailable, propWildcardSubscriptionAvail, propSharedSubscriptionAvail:
			if _, err := d.readByte(); err != nil {
				return nil, err
			}
		case propMaxPacketSize:
			v, err := d.readUint32()
			if err != nil {
				return nil, err
			}
			c.MaxPacketSize = v
		default:
			return nil, ErrMalformed
		}
	}
	if d.pos != propsEnd {
		return nil, ErrMalformed
	}
	return c, nil
}

// ConnAckV4 is the 2-byte MQTT v3.1.1-shaped CONNACK the handler emits when
// rejecting a pre-v5 CONNECT, so legacy clients get a return code they can
// parse instead of a v5 properties block they can't.
type ConnAckV4 struct {
	ReturnCode byte
}

func (ConnAckV4) Kind() Kind { return KindConnAck }

// Pack serializes the fixed 2-byte CONNACK v4 payload: session-present=0,
// then the return code.
func (c ConnAckV4) Pack() ([]byte, error) {
	body := []byte{0x00, c.ReturnCode}
	rl, err := encodeVarInt(uint32(len(body)))
	if err != nil {
		return nil, err
	}
	out := append([]byte{byte(KindConnAck) << 4}, rl...)
	return append(out, body...), nil
}
