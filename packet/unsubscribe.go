package packet

// Unsubscribe drops a single topic subscription.
type Unsubscribe struct {
	ID    uint16
	Topic string
}

func (Unsubscribe) Kind() Kind { return KindUnsubscribe }

func parseUnsubscribe(d *decoder) (Packet, error) {
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
	return Unsubscribe{ID: id, Topic: topic}, nil
}

// UnsubAck acknowledges an UNSUBSCRIBE. MQTT v5 assigns UNSUBACK its own
// type nibble, 0xB, distinct from SUBACK's 0x9; Pack emits 0xB0.
type UnsubAck struct {
	ID         uint16
	ReasonCode ReasonCode
}

func (UnsubAck) Kind() Kind { return KindUnsubAck }

func (u UnsubAck) Pack() ([]byte, error) {
	body := append(i2b(u.ID), 0x00, byte(u.ReasonCode))
	rl, err := encodeVarInt(uint32(len(body)))
	if err != nil {
		return nil, err
	}
	out := append([]byte{byte(KindUnsubAck) << 4}, rl...)
	return append(out, body...), nil
}
