package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/fastly/pubsub/auth"
	"github.com/fastly/pubsub/packet"
	"github.com/fastly/pubsub/session"
	"github.com/fastly/pubsub/wsevents"
)

// MQTTRequest is the parsed form of one POST /mqtt call.
type MQTTRequest struct {
	Body            []byte
	ConnectionID    string // the proxy's Connection-Id header
	MetaState       string // the restored session.State, from the Meta-State header
	BytesReplayed   int    // the Content-Bytes-Replayed header: leading content bytes re-sent from the previous call
	WantsExtensions bool   // Sec-WebSocket-Extensions contained "grip"
	WantsProtocol   bool   // Sec-WebSocket-Protocol contained "mqtt"
}

// packable is satisfied by every outbound packet.Packet this gateway
// emits; Pack isn't part of packet.Packet itself since inbound-only types
// never need to serialize.
type packable interface {
	Pack() ([]byte, error)
}

// HandleMQTT is the MQTT transport binding: it decodes the
// WS-HTTP envelope, runs every contained MQTT frame through the session
// handler, and re-encodes the replies plus any subscription-delta
// control messages back into the same envelope.
//
// Content bytes that don't yet form a complete MQTT packet stay
// unaccepted: Content-Bytes-Accepted reports only what the packet parser
// consumed, so the proxy replays the remainder (flagged via
// Content-Bytes-Replayed) on the next call.
func (g *Gateway) HandleMQTT(ctx context.Context, req MQTTRequest) (*Response, error) {
	var st session.State
	if req.MetaState != "" {
		if err := json.Unmarshal([]byte(req.MetaState), &st); err != nil {
			return nil, fmt.Errorf("pubsub: decoding Meta-State: %w", err)
		}
	}
	priorSubs := make(map[string]session.Subscription, len(st.Subs))
	for topic, sub := range st.Subs {
		priorSubs[topic] = sub
	}
	priorClientID := st.ClientID

	events, err := wsevents.ParseAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("pubsub: decoding mqtt transport body: %w", err)
	}
	if req.BytesReplayed > 0 {
		log.Printf("%s replaying %d unaccepted bytes", req.ConnectionID, req.BytesReplayed)
	}

	var out []wsevents.Event
	disconnect := false
	opening := false
	accepted := 0

	if st.Connected {
		syncOut, syncDisconnect := g.Session.SyncPass(ctx, &st)
		for _, p := range syncOut {
			if ev, err := encodeMQTTEvent(p); err == nil {
				out = append(out, ev)
			}
		}
		disconnect = disconnect || syncDisconnect
	}

	var carry []byte
	for _, ev := range events {
		log.Printf("%s event %s size=%d", req.ConnectionID, ev.Type, len(ev.Content))
		switch ev.Type {
		case wsevents.TypeOpen:
			opening = true
			out = append(out, wsevents.Event{Type: wsevents.TypeOpen})
		case wsevents.TypeClose:
			// Ack; the echoed CLOSE completes the closing handshake, so no
			// gateway-initiated CLOSE is appended on top of it.
			out = append(out, wsevents.Event{Type: wsevents.TypeClose, Content: ev.Content})
		case wsevents.TypeText, wsevents.TypeBinary:
			carry = append(carry, ev.Content...)
			for !disconnect {
				p, n, perr := packet.Parse(carry)
				if perr != nil {
					if g.Metrics != nil {
						g.Metrics.PacketCodecErrors.Inc()
					}
					disconnect = true
					break
				}
				if n == 0 {
					break
				}
				carry = carry[n:]
				accepted += n

				replies, closeAfter := g.Session.Handle(ctx, &st, p)
				for _, r := range replies {
					if rev, err := encodeMQTTEvent(r); err == nil {
						out = append(out, rev)
					}
				}
				disconnect = disconnect || closeAfter
			}
		}
	}

	out = append(out, subscriptionDeltaEvents(priorSubs, priorClientID, st)...)

	if disconnect {
		out = append(out, wsevents.Event{Type: wsevents.TypeClose, Content: []byte{0x03, 0xE8}})
	}

	resp := &Response{Status: 200, Headers: map[string][]string{"Keep-Alive-Interval": {"120"}}}
	resp.addHeader("Content-Type", "application/websocket-events")
	if opening && req.WantsExtensions {
		resp.addHeader("Sec-WebSocket-Extensions", "grip")
	}
	if opening && req.WantsProtocol {
		resp.addHeader("Sec-WebSocket-Protocol", "mqtt")
	}

	stateJSON, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("pubsub: encoding Meta-State: %w", err)
	}
	resp.addHeader("Set-Meta-State", string(stateJSON))
	resp.addHeader("Content-Bytes-Accepted", fmt.Sprintf("%d", accepted))

	var body []byte
	for _, ev := range out {
		body = append(body, ev.Encode()...)
	}
	resp.Body = body
	return resp, nil
}

func encodeMQTTEvent(p packet.Packet) (wsevents.Event, error) {
	pk, ok := p.(packable)
	if !ok {
		return wsevents.Event{}, fmt.Errorf("pubsub: packet kind %v has no Pack method", p.Kind())
	}
	frame, err := pk.Pack()
	if err != nil {
		return wsevents.Event{}, err
	}
	return wsevents.Event{Type: wsevents.TypeBinary, Content: append([]byte("m:"), frame...)}, nil
}

// subscriptionDeltaEvents diffs the session's topic set and client id
// against their values before this call's packets were processed, and
// emits the control messages the fronting proxy needs to update its own
// channel bindings for the next call. Each topic maps to two channels:
// the live broadcast channel (s:) and the durable refresh channel (d:).
func subscriptionDeltaEvents(priorSubs map[string]session.Subscription, priorClientID string, st session.State) []wsevents.Event {
	var added, dropped []string
	for topic := range st.Subs {
		if _, existed := priorSubs[topic]; !existed {
			added = append(added, topic)
		}
	}
	for topic := range priorSubs {
		if _, still := st.Subs[topic]; !still {
			dropped = append(dropped, topic)
		}
	}
	sort.Strings(added)
	sort.Strings(dropped)

	var out []wsevents.Event
	for _, topic := range added {
		sub := st.Subs[topic]
		var filters []string
		if sub.NoLocal {
			filters = []string{"skip-self"}
		}
		out = append(out,
			controlEvent(auth.ControlMessage{Type: "subscribe", Channel: "s:" + topic, Filters: filters}),
			controlEvent(auth.ControlMessage{Type: "subscribe", Channel: "d:" + topic}),
		)
	}
	for _, topic := range dropped {
		out = append(out,
			controlEvent(auth.ControlMessage{Type: "unsubscribe", Channel: "s:" + topic}),
			controlEvent(auth.ControlMessage{Type: "unsubscribe", Channel: "d:" + topic}),
		)
	}
	if st.ClientID != priorClientID {
		out = append(out, controlEvent(auth.ControlMessage{Type: "set-meta", Name: "user", Value: st.ClientID}))
	}
	return out
}

func controlEvent(msg auth.ControlMessage) wsevents.Event {
	body, err := json.Marshal(msg)
	if err != nil {
		return wsevents.Event{}
	}
	return wsevents.Event{Type: wsevents.TypeText, Content: append([]byte("c:"), body...)}
}
