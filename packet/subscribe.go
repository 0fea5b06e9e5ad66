package packet

// Subscribe is a single-topic SUBSCRIBE request. The protocol allows a
// topic-filter list; only the first filter and its options byte are
// decoded, and any further filters in the packet are ignored.
type Subscribe struct {
	ID                uint16
	Topic             string
	MaximumQoS        byte
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

func (Subscribe) Kind() Kind { return KindSubscribe }

func parseSubscribe(fh fixedHeader, d *decoder) (Packet, error) {
	if fh.flags != 0x02 {
		return nil, ErrMalformed
	}
	id, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	if err := skipProperties(d); err != nil {
		return nil, err
	}
	topic, err := d.readString()
	if err != nil {
		return nil, err
	}
	opts, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return Subscribe{
		ID:                id,
		Topic:             topic,
		MaximumQoS:        opts & 0x03,
		NoLocal:           opts&0x04 != 0,
		RetainAsPublished: opts&0x08 != 0,
		RetainHandling:    (opts >> 4) & 0x03,
	}, nil
}

// SubAck acknowledges a SUBSCRIBE with a single reason code and no
// properties.
type SubAck struct {
	ID         uint16
	ReasonCode ReasonCode
}

func (SubAck) Kind() Kind { return KindSubAck }

func (s SubAck) Pack() ([]byte, error) {
	body := append(i2b(s.ID), 0x00, byte(s.ReasonCode))
	rl, err := encodeVarInt(uint32(len(body)))
	if err != nil {
		return nil, err
	}
	out := append([]byte{byte(KindSubAck) << 4}, rl...)
	return append(out, body...), nil
}
