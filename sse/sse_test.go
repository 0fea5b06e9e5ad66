package sse

import (
	"context"
	"strings"
	"testing"

	"github.com/fastly/pubsub/auth"
	"github.com/fastly/pubsub/retained"
	"github.com/fastly/pubsub/retained/storage"
)

func newDeps() Deps {
	return Deps{
		Authorizer: auth.StaticAuthorizer{Key: []byte("notasecret")},
		Storage:    retained.New(storage.NewMemory()),
		AdminKey:   "control-plane-key",
	}
}

func TestHandleOpenDurableTwoTopicsNoPriorRetained(t *testing.T) {
	d := newDeps()
	resp := HandleOpen(context.Background(), d, OpenRequest{
		Topics:    []string{"a", "b"},
		Durable:   true,
		FastlyKey: "control-plane-key",
	})

	if resp.Status != 200 {
		t.Fatalf("status = %d", resp.Status)
	}
	channels := resp.Headers["Grip-Channel"]
	want := []string{"s:a", "s:b", "d:a; prev-id=none", "d:b; prev-id=none"}
	if len(channels) != len(want) {
		t.Fatalf("Grip-Channel = %v, want %v", channels, want)
	}
	for i, w := range want {
		if channels[i] != w {
			t.Fatalf("Grip-Channel[%d] = %q, want %q", i, channels[i], w)
		}
	}

	link := resp.Headers["Grip-Link"]
	if len(link) != 1 || link[0] != "</events?durable=true>; rel=next; timeout=120" {
		t.Fatalf("Grip-Link = %v", link)
	}

	if !strings.HasPrefix(string(resp.Body), "event: stream-open\ndata: \n\n") {
		t.Fatalf("body = %q, want stream-open prefix", resp.Body)
	}
}

func TestHandleOpenRejectsUnauthorizedTopic(t *testing.T) {
	d := newDeps()
	token := signedToken(t, []string{"readable"}, nil)
	resp := HandleOpen(context.Background(), d, OpenRequest{
		Topics:        []string{"forbidden"},
		Authorization: "Bearer " + token,
	})
	if !strings.Contains(string(resp.Body), "stream-error") {
		t.Fatalf("body = %q, want stream-error", resp.Body)
	}
	if !strings.Contains(string(resp.Body), `"condition":"forbidden"`) {
		t.Fatalf("body = %q, want forbidden condition", resp.Body)
	}
}

func TestHandleOpenCapsTopicsAtTen(t *testing.T) {
	d := newDeps()
	topics := make([]string, 15)
	for i := range topics {
		topics[i] = string(rune('a' + i))
	}
	resp := HandleOpen(context.Background(), d, OpenRequest{
		Topics:    topics,
		FastlyKey: "control-plane-key",
	})
	var sCount int
	for _, c := range resp.Headers["Grip-Channel"] {
		if strings.HasPrefix(c, "s:") {
			sCount++
		}
	}
	if sCount != MaxTopics {
		t.Fatalf("subscribed to %d topics, want %d", sCount, MaxTopics)
	}
}

func TestHandleOpenSurfacesRetainedBacklog(t *testing.T) {
	d := newDeps()
	if _, err := d.Storage.Write(context.Background(), "a", []byte("hello"), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	resp := HandleOpen(context.Background(), d, OpenRequest{
		Topics:    []string{"a"},
		Durable:   true,
		FastlyKey: "control-plane-key",
	})
	if !strings.Contains(string(resp.Body), "event: message\n") {
		t.Fatalf("body = %q, want a message event", resp.Body)
	}
	if !strings.Contains(string(resp.Body), "data: hello\n") {
		t.Fatalf("body = %q, want the retained payload", resp.Body)
	}
}

func TestHandleNextResumesFromGripLast(t *testing.T) {
	d := newDeps()
	v, err := d.Storage.Write(context.Background(), "a", []byte("hello"), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	resp := HandleNext(context.Background(), d, NextRequest{
		GripLast: []string{"d:a; last-id=" + v.AsID()},
	})
	if strings.Contains(string(resp.Body), "event: message\n") {
		t.Fatalf("body = %q, should not replay an already-seen version", resp.Body)
	}
	channels := resp.Headers["Grip-Channel"]
	found := false
	for _, c := range channels {
		if c == "d:a; prev-id="+v.AsID() {
			found = true
		}
	}
	if !found {
		t.Fatalf("Grip-Channel = %v, want prev-id=%s", channels, v.AsID())
	}
}

func TestHandleNextEmptyOnNoValidChannels(t *testing.T) {
	d := newDeps()
	resp := HandleNext(context.Background(), d, NextRequest{GripLast: []string{"s:a"}})
	if len(resp.Body) != 0 {
		t.Fatalf("body = %q, want empty", resp.Body)
	}
	if len(resp.Headers) != 0 {
		t.Fatalf("headers = %v, want none", resp.Headers)
	}
}

func TestParseLastEventIDRoundTrip(t *testing.T) {
	v := retained.Version{Generation: 1, Seq: 2}
	priors := parseLastEventID("a:" + v.AsID() + ",b:none")
	if priors["a"] == nil || *priors["a"] != v {
		t.Fatalf("a = %v, want %v", priors["a"], v)
	}
	if got, ok := priors["b"]; !ok || got != nil {
		t.Fatalf("b = %v, want present and nil", got)
	}
}

func signedToken(t *testing.T, read, write []string) string {
	t.Helper()
	return staticTestToken(t, read, write)
}
