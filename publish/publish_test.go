package publish

import (
	"encoding/json"
	"testing"

	"github.com/fastly/pubsub/session"
)

func TestBuildBodyNonDurable(t *testing.T) {
	body, err := buildBody("fruit", []byte("apple"), nil, "client-1")
	if err != nil {
		t.Fatalf("buildBody: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(env.Items) != 1 {
		t.Fatalf("items = %+v", env.Items)
	}
	it := env.Items[0]
	if it.Channel != "s:fruit" {
		t.Fatalf("channel = %q", it.Channel)
	}
	if it.Meta == nil || it.Meta.Sender != "client-1" {
		t.Fatalf("meta = %+v", it.Meta)
	}
	var ws map[string]string
	if err := json.Unmarshal(it.Formats.WSMessage, &ws); err != nil {
		t.Fatalf("ws-message: %v", err)
	}
	if _, ok := ws["content-bin"]; !ok {
		t.Fatalf("ws-message = %v, want content-bin", ws)
	}
}

func TestBuildBodyDurableUsesRefresh(t *testing.T) {
	body, err := buildBody("fruit", []byte("apple"), &session.Sequencing{ID: "a-1", PrevID: "none"}, "")
	if err != nil {
		t.Fatalf("buildBody: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(env.Items[0].Formats.WSMessage) != `{"action":"refresh"}` {
		t.Fatalf("ws-message = %s", env.Items[0].Formats.WSMessage)
	}
	if env.Items[0].Meta != nil {
		t.Fatalf("meta = %+v, want nil for empty sender", env.Items[0].Meta)
	}
}

func TestBuildBodyNonUTF8UsesBase64SSEFrame(t *testing.T) {
	body, err := buildBody("t", []byte{0xff, 0xfe}, nil, "")
	if err != nil {
		t.Fatalf("buildBody: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	content := env.Items[0].Formats.HTTPStream.Content
	if want := "event: message-base64\n"; len(content) < len(want) || content[:len(want)] != want {
		t.Fatalf("content = %q, want prefix %q", content, want)
	}
}
