package session

import (
	"context"
	"testing"

	"github.com/fastly/pubsub/auth"
	"github.com/fastly/pubsub/packet"
	"github.com/fastly/pubsub/retained"
	"github.com/fastly/pubsub/retained/storage"
)

func newHandler(t *testing.T) *Handler {
	t.Helper()
	return &Handler{
		Authorizer: auth.StaticAuthorizer{Key: []byte("notasecret")},
		Storage:    retained.New(storage.NewMemory()),
	}
}

func TestConnectV5Success(t *testing.T) {
	h := newHandler(t)
	st := &State{}
	out, disconnect := h.Handle(context.Background(), st, packet.Connect{Version: 5, ClientID: "c1", Password: "tok"})
	if disconnect {
		t.Fatal("unexpected disconnect")
	}
	if len(out) != 1 {
		t.Fatalf("out = %v", out)
	}
	ack, ok := out[0].(packet.ConnAck)
	if !ok || ack.ReasonCode != packet.Success {
		t.Fatalf("out[0] = %+v", out[0])
	}
	if !st.Connected || st.ClientID != "c1" || st.Token != "tok" {
		t.Fatalf("state = %+v", st)
	}
}

func TestConnectRejectsNonV5(t *testing.T) {
	h := newHandler(t)
	st := &State{}
	out, disconnect := h.Handle(context.Background(), st, packet.Connect{Version: 4})
	if !disconnect {
		t.Fatal("expected disconnect")
	}
	if _, ok := out[0].(packet.ConnAckV4); !ok {
		t.Fatalf("out[0] = %+v, want ConnAckV4", out[0])
	}
}

func TestConnectTwiceIsProtocolError(t *testing.T) {
	h := newHandler(t)
	st := &State{}
	h.Handle(context.Background(), st, packet.Connect{Version: 5, ClientID: "c1"})
	out, disconnect := h.Handle(context.Background(), st, packet.Connect{Version: 5, ClientID: "c1"})
	if disconnect {
		t.Fatal("unexpected disconnect")
	}
	ack := out[0].(packet.ConnAck)
	if ack.ReasonCode != packet.ProtocolError {
		t.Fatalf("reason = %v, want ProtocolError", ack.ReasonCode)
	}
}

func mustSign(t *testing.T, read, write []string) string {
	t.Helper()
	return signedToken(t, read, write)
}

func TestSubscribeUnauthorizedWithoutToken(t *testing.T) {
	h := newHandler(t)
	st := &State{Connected: true}
	out, _ := h.Handle(context.Background(), st, packet.Subscribe{ID: 1, Topic: "x"})
	ack := out[0].(packet.SubAck)
	if ack.ReasonCode != packet.NotAuthorized {
		t.Fatalf("reason = %v, want NotAuthorized", ack.ReasonCode)
	}
}

func TestSubscribeRejectsWildcards(t *testing.T) {
	h := newHandler(t)
	st := &State{Connected: true, Token: mustSign(t, []string{"a/#"}, nil)}
	out, _ := h.Handle(context.Background(), st, packet.Subscribe{ID: 1, Topic: "a/#"})
	ack := out[0].(packet.SubAck)
	if ack.ReasonCode != packet.WildcardSubscriptionsNotSupported {
		t.Fatalf("reason = %v, want WildcardSubscriptionsNotSupported", ack.ReasonCode)
	}
}

func TestSubscribeSuccessWithRetainedPayload(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()
	if _, err := h.Storage.Write(ctx, "t", []byte("hello"), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	st := &State{Connected: true, Token: mustSign(t, []string{"t"}, nil)}
	out, _ := h.Handle(ctx, st, packet.Subscribe{ID: 1, Topic: "t", RetainHandling: 0})
	if len(out) != 2 {
		t.Fatalf("out = %+v, want SubAck + retained Publish", out)
	}
	if ack := out[0].(packet.SubAck); ack.ReasonCode != packet.Success {
		t.Fatalf("reason = %v", ack.ReasonCode)
	}
	pub := out[1].(packet.Publish)
	if string(pub.Message) != "hello" || !pub.Retain {
		t.Fatalf("pub = %+v", pub)
	}
	if _, ok := st.Subs["t"].LastVersion(); !ok {
		t.Fatal("expected subscription to record last version")
	}
}

func TestPublishNoLocalSuppressesOwnEcho(t *testing.T) {
	h := newHandler(t)
	h.Config.EchoToSenderWithoutPublisher = true
	st := &State{Connected: true, Token: mustSign(t, nil, []string{"t"}), Subs: map[string]Subscription{
		"t": {NoLocal: true},
	}}
	out, _ := h.Handle(context.Background(), st, packet.Publish{Topic: "t", Message: []byte("m")})
	if len(out) != 0 {
		t.Fatalf("out = %+v, want no echo for no_local subscriber", out)
	}
}

func TestPublishEchoesWhenConfiguredAndNotNoLocal(t *testing.T) {
	h := newHandler(t)
	h.Config.EchoToSenderWithoutPublisher = true
	st := &State{Connected: true, Token: mustSign(t, nil, []string{"t"})}
	out, _ := h.Handle(context.Background(), st, packet.Publish{Topic: "t", Message: []byte("m")})
	if len(out) != 1 {
		t.Fatalf("out = %+v, want one echoed Publish", out)
	}
}

type countingPublisher struct {
	calls int
}

func (c *countingPublisher) Publish(context.Context, string, []byte, *Sequencing, string) error {
	c.calls++
	return nil
}

func TestPublishDropsOversizeMessage(t *testing.T) {
	h := newHandler(t)
	pub := &countingPublisher{}
	h.Publisher = pub
	st := &State{Connected: true, Token: mustSign(t, nil, []string{"t"})}

	over := make([]byte, MessageSizeMax+1)
	out, disconnect := h.Handle(context.Background(), st, packet.Publish{Topic: "t", Message: over})
	if disconnect || len(out) != 0 {
		t.Fatalf("out = %+v, disconnect = %v, want a silent drop", out, disconnect)
	}
	if pub.calls != 0 {
		t.Fatalf("publisher called %d times for an oversize payload", pub.calls)
	}

	atCap := make([]byte, MessageSizeMax)
	h.Handle(context.Background(), st, packet.Publish{Topic: "t", Message: atCap})
	if pub.calls != 1 {
		t.Fatalf("publisher calls = %d, want 1 for a payload at the cap", pub.calls)
	}
}

func TestPublishQoSAboveZeroDisconnects(t *testing.T) {
	h := newHandler(t)
	st := &State{Connected: true, Token: mustSign(t, nil, []string{"t"})}
	out, disconnect := h.Handle(context.Background(), st, packet.Publish{Topic: "t", QoS: 1})
	if !disconnect {
		t.Fatal("expected disconnect")
	}
	if out[0].(packet.Disconnect).ReasonCode != packet.QoSNotSupported {
		t.Fatalf("out[0] = %+v", out[0])
	}
}

func TestSyncPassNoPublishWithoutChange(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()
	v, _ := h.Storage.Write(ctx, "t", []byte("hello"), nil)
	vj := toVersionJSON(v)
	st := &State{Subs: map[string]Subscription{"t": {Last: &vj}}}
	out, disconnect := h.SyncPass(ctx, st)
	if disconnect || len(out) != 0 {
		t.Fatalf("out = %+v, disconnect = %v, want no publish", out, disconnect)
	}
}

func TestSyncPassSurfacesNewRetainedVersion(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()
	v1, _ := h.Storage.Write(ctx, "t", []byte("hello"), nil)
	vj := toVersionJSON(v1)
	st := &State{Subs: map[string]Subscription{"t": {Last: &vj}}}

	if _, err := h.Storage.Write(ctx, "t", []byte("world"), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, disconnect := h.SyncPass(ctx, st)
	if disconnect {
		t.Fatal("unexpected disconnect")
	}
	if len(out) != 1 {
		t.Fatalf("out = %+v, want one Publish", out)
	}
	if string(out[0].(packet.Publish).Message) != "world" {
		t.Fatalf("out[0] = %+v", out[0])
	}
}
