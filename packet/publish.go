package packet

// Publish carries an MQTT PUBLISH in either direction: decoded from a
// client frame, or built by the session handler / sync pass for
// serialization back to the client.
type Publish struct {
	Topic                 string
	Message               []byte
	Dup                   bool
	QoS                   byte
	Retain                bool
	MessageExpiryInterval *uint32
}

func (Publish) Kind() Kind { return KindPublish }

const (
	propPayloadFormat         = 0x01
	propMessageExpiryInterval = 0x02
	propContentType           = 0x03
	propResponseTopic         = 0x08
	propCorrelationData       = 0x09
	propSubscriptionID        = 0x0b
	propTopicAlias            = 0x23
	propUserProperty          = 0x26
)

func parsePublish(fh fixedHeader, d *decoder) (Packet, error) {
	p := Publish{
		Retain: fh.flags&0x01 != 0,
		QoS:    (fh.flags >> 1) & 0x03,
		Dup:    fh.flags&0x08 != 0,
	}
	topic, err := d.readString()
	if err != nil {
		return nil, err
	}
	p.Topic = topic

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
		case propPayloadFormat:
			if _, err := d.readByte(); err != nil {
				return nil, err
			}
		case propMessageExpiryInterval:
			v, err := d.readUint32()
			if err != nil {
				return nil, err
			}
			p.MessageExpiryInterval = &v
		case propTopicAlias:
			if _, err := d.readBytes(2); err != nil {
				return nil, err
			}
		case propResponseTopic:
			if _, err := d.readBinary(); err != nil {
				return nil, err
			}
		case propCorrelationData:
			if _, err := d.readBinary(); err != nil {
				return nil, err
			}
		case propUserProperty:
			if _, err := d.readBinary(); err != nil {
				return nil, err
			}
			if _, err := d.readBinary(); err != nil {
				return nil, err
			}
		case propSubscriptionID:
			if _, err := d.readVarInt(); err != nil {
				return nil, err
			}
		case propContentType:
			if _, err := d.readBinary(); err != nil {
				return nil, err
			}
		default:
			return nil, ErrMalformed
		}
	}
	if d.pos != propsEnd {
		return nil, ErrMalformed
	}
	p.Message = d.buf[d.pos:]
	return p, nil
}

// Pack re-encodes the flags, topic, and a properties block containing only
// message_expiry_interval when set.
func (p Publish) Pack() ([]byte, error) {
	var flags byte
	if p.Retain {
		flags |= 0x01
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Dup {
		flags |= 0x08
	}

	var props []byte
	if p.MessageExpiryInterval != nil {
		props = append(props, propMessageExpiryInterval)
		props = append(props, i4b(*p.MessageExpiryInterval)...)
	}
	propsLen, err := encodeVarInt(uint32(len(props)))
	if err != nil {
		return nil, err
	}

	body := encodeString(p.Topic)
	body = append(body, propsLen...)
	body = append(body, props...)
	body = append(body, p.Message...)

	rl, err := encodeVarInt(uint32(len(body)))
	if err != nil {
		return nil, err
	}
	out := append([]byte{byte(KindPublish)<<4 | flags}, rl...)
	return append(out, body...), nil
}
