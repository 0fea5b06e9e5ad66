package pubsub

import (
	"context"
	"strings"
	"testing"

	"github.com/fastly/pubsub/config"
	"github.com/fastly/pubsub/session"
)

func TestEventsPostRejectsOversizeBody(t *testing.T) {
	g := &Gateway{Config: config.Config{AdminKey: "control-plane-key"}}

	resp := g.HandleEventsPost(context.Background(), EventsPostRequest{
		Topic:     "t",
		FastlyKey: "control-plane-key",
		Body:      make([]byte, session.MessageSizeMax+1),
	})
	if resp.Status != 400 {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
	if !strings.Contains(string(resp.Body), "maximum size") {
		t.Fatalf("body = %q, want the size-limit message", resp.Body)
	}

	resp = g.HandleEventsPost(context.Background(), EventsPostRequest{
		Topic:     "t",
		FastlyKey: "control-plane-key",
		Body:      make([]byte, session.MessageSizeMax),
	})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200 for a body at the cap", resp.Status)
	}
}
