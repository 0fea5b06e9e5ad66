package session

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/fastly/pubsub/auth"
	"github.com/fastly/pubsub/internal/metrics"
	"github.com/fastly/pubsub/packet"
	"github.com/fastly/pubsub/retained"
)

// MessageSizeMax bounds the PUBLISH payload this handler will forward;
// larger payloads are dropped silently rather than rejected in-band.
const MessageSizeMax = packet.MESSAGE_SIZE_MAX

// MaxPacketSize is advertised in every successful CONNACK.
const MaxPacketSize = 32768

// Sequencing is the resumability cursor handed to the publish fan-out for
// a durable (retained) publish: the version just written, and the one it
// superseded.
type Sequencing struct {
	ID     string
	PrevID string
}

// Publisher is the external publish fan-out, injected so the
// handler stays a pure function of its inputs plus this one side effect.
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte, sequencing *Sequencing, sender string) error
}

// Config gates behaviors that need an explicit opt-in rather than an
// inferred one.
type Config struct {
	// EchoToSenderWithoutPublisher echoes a non-durable PUBLISH back to
	// its sender when no publish client is configured. Local-testing
	// convenience; must be set explicitly, never inferred from an empty
	// publish token.
	EchoToSenderWithoutPublisher bool
}

// Handler is the MQTT session handler: stateless itself, it operates on
// the State and Packet values it's given each call.
type Handler struct {
	Config      Config
	Authorizer  auth.Authorizer
	InternalKey []byte
	Storage     *retained.Store
	Publisher   Publisher // nil is valid: publishes are then only ever stored/echoed.
	Metrics     *metrics.Stat
}

func (h *Handler) capabilitiesFor(ctx context.Context, token string) (auth.Capabilities, bool) {
	if token == "" {
		return auth.Capabilities{}, false
	}
	caps, err := h.Authorizer.ValidateToken(ctx, token, h.InternalKey)
	if err != nil {
		return auth.Capabilities{}, false
	}
	return caps, true
}

// Handle advances state by one decoded packet, returning the packets to
// send back and whether the connection should be closed after them.
func (h *Handler) Handle(ctx context.Context, st *State, p packet.Packet) (out []packet.Packet, disconnect bool) {
	if h.Metrics != nil {
		h.Metrics.PacketsIn.Inc()
	}
	switch p := p.(type) {
	case packet.Connect:
		out, disconnect = h.handleConnect(st, p)
	case packet.Subscribe:
		out, disconnect = h.handleSubscribe(ctx, st, p)
	case packet.Unsubscribe:
		out, disconnect = h.handleUnsubscribe(st, p)
	case packet.Publish:
		out, disconnect = h.handlePublish(ctx, st, p)
	case packet.Disconnect:
		st.clear()
		if h.Metrics != nil {
			h.Metrics.ActiveSessions.Dec()
		}
		return nil, false
	case packet.PingReq:
		out = []packet.Packet{packet.PingResp{}}
	default:
		log.Printf("session: ignoring packet kind %v", p.Kind())
		return nil, false
	}
	if h.Metrics != nil {
		h.Metrics.PacketsOut.Add(float64(len(out)))
	}
	return out, disconnect
}

func (h *Handler) handleConnect(st *State, p packet.Connect) (out []packet.Packet, disconnect bool) {
	if p.Version > 5 {
		return []packet.Packet{packet.ConnAck{ReasonCode: packet.UnsupportedProtocolVersion}}, true
	}
	if p.Version < 5 {
		return []packet.Packet{packet.ConnAckV4{ReturnCode: 0x01}}, true
	}
	if st.Connected {
		return []packet.Packet{packet.ConnAck{ReasonCode: packet.ProtocolError}}, false
	}
	st.Connected = true
	st.ClientID = p.ClientID
	st.Token = p.Password
	if h.Metrics != nil {
		h.Metrics.ActiveSessions.Inc()
	}
	return []packet.Packet{packet.ConnAck{ReasonCode: packet.Success, MaxPacketSize: MaxPacketSize}}, false
}

func (h *Handler) handleSubscribe(ctx context.Context, st *State, p packet.Subscribe) (out []packet.Packet, disconnect bool) {
	if p.Topic == "" {
		return []packet.Packet{packet.SubAck{ID: p.ID, ReasonCode: packet.UnspecifiedError}}, false
	}
	if strings.ContainsAny(p.Topic, "#+") {
		return []packet.Packet{packet.SubAck{ID: p.ID, ReasonCode: packet.WildcardSubscriptionsNotSupported}}, false
	}
	caps, ok := h.capabilitiesFor(ctx, st.Token)
	if !ok || !caps.CanSubscribe(p.Topic) {
		return []packet.Packet{packet.SubAck{ID: p.ID, ReasonCode: packet.NotAuthorized}}, false
	}

	slot, err := h.Storage.Read(ctx, p.Topic, nil)
	if err != nil {
		log.Printf("session: reading retained slot for %q: %v", p.Topic, err)
		return []packet.Packet{packet.SubAck{ID: p.ID, ReasonCode: packet.UnspecifiedError}}, false
	}

	sub := Subscription{NoLocal: p.NoLocal, RetainAsPublished: p.RetainAsPublished}
	if slot != nil {
		sub.setLastVersion(slot.Version)
	}
	if st.Subs == nil {
		st.Subs = make(map[string]Subscription)
	}
	st.Subs[p.Topic] = sub

	out = append(out, packet.SubAck{ID: p.ID, ReasonCode: packet.Success})
	if p.RetainHandling == 0 && slot != nil && slot.Message != nil {
		out = append(out, packet.Publish{
			Topic:                 p.Topic,
			Message:               slot.Message.Data,
			Retain:                true,
			QoS:                   0,
			MessageExpiryInterval: ttlSeconds(slot.Message.TTL),
		})
	}
	return out, false
}

func (h *Handler) handleUnsubscribe(st *State, p packet.Unsubscribe) (out []packet.Packet, disconnect bool) {
	if _, ok := st.Subs[p.Topic]; ok {
		delete(st.Subs, p.Topic)
		return []packet.Packet{packet.UnsubAck{ID: p.ID, ReasonCode: packet.Success}}, false
	}
	return []packet.Packet{packet.UnsubAck{ID: p.ID, ReasonCode: packet.NoSubscriptionExisted}}, false
}

func (h *Handler) handlePublish(ctx context.Context, st *State, p packet.Publish) (out []packet.Packet, disconnect bool) {
	if strings.HasPrefix(p.Topic, "$") {
		return nil, false
	}
	if p.QoS > 0 {
		return []packet.Packet{packet.Disconnect{ReasonCode: packet.QoSNotSupported}}, true
	}
	caps, ok := h.capabilitiesFor(ctx, st.Token)
	if !ok || !caps.CanPublish(p.Topic) {
		return nil, false
	}
	if len(p.Message) > MessageSizeMax {
		return nil, false
	}

	var sequencing *Sequencing
	if p.Retain {
		v, err := h.Storage.Write(ctx, p.Topic, p.Message, nil)
		if err != nil {
			log.Printf("session: writing retained message for %q: %v", p.Topic, err)
		} else {
			sequencing = &Sequencing{ID: v.AsID(), PrevID: prevID(v)}
		}
	}

	if h.Publisher != nil {
		if err := h.Publisher.Publish(ctx, p.Topic, p.Message, sequencing, st.ClientID); err != nil {
			log.Printf("session: publish fan-out for %q: %v", p.Topic, err)
		}
		return nil, false
	}

	if h.Config.EchoToSenderWithoutPublisher && !p.Retain {
		if sub, subscribed := st.Subs[p.Topic]; !subscribed || !sub.NoLocal {
			out = append(out, packet.Publish{Topic: p.Topic, Message: p.Message})
		}
	}
	return out, false
}

// SyncPass is run once per inbound request, before any packets are
// dispatched: it surfaces retained updates that landed on a topic while
// the client was between request/response cycles.
func (h *Handler) SyncPass(ctx context.Context, st *State) (out []packet.Packet, disconnect bool) {
	for topic, sub := range st.Subs {
		last, ok := sub.LastVersion()
		if !ok {
			continue
		}
		slot, err := h.Storage.Read(ctx, topic, &last)
		if err != nil {
			log.Printf("session: sync pass reading %q: %v", topic, err)
			return []packet.Packet{packet.Disconnect{ReasonCode: packet.UnspecifiedError}}, true
		}
		if slot == nil {
			continue
		}
		sub.setLastVersion(slot.Version)
		suppress := sub.ignores(slot.Version)
		st.Subs[topic] = sub
		if slot.Message != nil && !suppress {
			out = append(out, packet.Publish{
				Topic:                 topic,
				Message:               slot.Message.Data,
				Retain:                sub.RetainAsPublished,
				MessageExpiryInterval: ttlSeconds(slot.Message.TTL),
			})
		}
	}
	return out, false
}

func prevID(v retained.Version) string {
	if v.Seq <= 1 {
		return retained.NoneID
	}
	return retained.Version{Generation: v.Generation, Seq: v.Seq - 1}.AsID()
}

func ttlSeconds(ttl *time.Duration) *uint32 {
	if ttl == nil {
		return nil
	}
	secs := uint32(*ttl / time.Second)
	return &secs
}
