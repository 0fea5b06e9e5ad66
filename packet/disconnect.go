package packet

// Disconnect carries a single reason byte in both directions. An empty
// body (no bytes at all) is treated as reason Success; MQTT v5 allows
// omitting the reason code and properties entirely when there's nothing
// to report.
type Disconnect struct {
	ReasonCode ReasonCode
}

func (Disconnect) Kind() Kind { return KindDisconnect }

func parseDisconnect(d *decoder) (Packet, error) {
	if d.remaining() == 0 {
		return Disconnect{ReasonCode: Success}, nil
	}
	rc, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return Disconnect{ReasonCode: ReasonCode(rc)}, nil
}

func (p Disconnect) Pack() ([]byte, error) {
	body := []byte{byte(p.ReasonCode)}
	rl, err := encodeVarInt(uint32(len(body)))
	if err != nil {
		return nil, err
	}
	out := append([]byte{byte(KindDisconnect) << 4}, rl...)
	return append(out, body...), nil
}

// PingReq is the keep-alive ping from the client; it carries no body.
type PingReq struct{}

func (PingReq) Kind() Kind { return KindPingReq }

// PingResp answers PingReq; it carries no body.
type PingResp struct{}

func (PingResp) Kind() Kind { return KindPingResp }

func (PingResp) Pack() ([]byte, error) {
	return []byte{byte(KindPingResp) << 4, 0x00}, nil
}

// Unsupported is a recognized-but-unhandled packet type (PUBACK, PUBREC,
// PUBREL, PUBCOMP, all QoS>0 acknowledgements this gateway never needs
// since it never advertises QoS>0, and AUTH, 0x0F). The session handler
// logs and ignores it rather than treating it as malformed.
type Unsupported Kind

func (u Unsupported) Kind() Kind { return Kind(u) }
