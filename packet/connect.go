package packet

// Connect is the decoded CONNECT packet. For protocol versions other than
// 5, parseConnect returns a stub with only Version populated; the session
// handler rejects those without attempting to read the rest of the frame,
// since non-v5 CONNECT bodies are not shaped like v5 ones.
type Connect struct {
	Version  byte
	ClientID string
	Username string
	Password string // doubles as the bearer token for the session

	CleanStart bool
	KeepAlive  uint16

	WillTopic   string
	WillPayload []byte
}

func (Connect) Kind() Kind { return KindConnect }

func parseConnect(d *decoder) (Packet, error) {
	protoName, err := d.readString()
	if err != nil {
		return nil, err
	}
	if protoName != "MQTT" {
		return nil, ErrMalformed
	}
	version, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if version != 5 {
		return Connect{Version: version}, nil
	}

	flags, err := d.readByte()
	if err != nil {
		return nil, err
	}
	keepAlive, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	if err := skipProperties(d); err != nil {
		return nil, err
	}
	clientID, err := d.readString()
	if err != nil {
		return nil, err
	}

	c := Connect{
		Version:    version,
		ClientID:   clientID,
		CleanStart: flags&0x02 != 0,
		KeepAlive:  keepAlive,
	}

	if flags&0x04 != 0 { // will flag
		if err := skipProperties(d); err != nil {
			return nil, err
		}
		willTopic, err := d.readString()
		if err != nil {
			return nil, err
		}
		willPayload, err := d.readBinary()
		if err != nil {
			return nil, err
		}
		c.WillTopic = willTopic
		c.WillPayload = willPayload
	}
	if flags&0x80 != 0 { // username flag
		username, err := d.readString()
		if err != nil {
			return nil, err
		}
		c.Username = username
	}
	if flags&0x40 != 0 { // password flag
		password, err := d.readBinary()
		if err != nil {
			return nil, err
		}
		c.Password = string(password)
	}
	return c, nil
}

// skipProperties reads a property-block length prefix and discards that
// many bytes opaquely; CONNECT properties (session-expiry-interval,
// receive-maximum, ...) don't affect session handling at QoS 0.
func skipProperties(d *decoder) error {
	n, err := d.readVarInt()
	if err != nil {
		return err
	}
	_, err = d.readBytes(int(n))
	return err
}
