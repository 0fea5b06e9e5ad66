package pubsub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fastly/pubsub/admin"
	"github.com/fastly/pubsub/auth"
	"github.com/fastly/pubsub/retained"
	"github.com/fastly/pubsub/session"
	"github.com/fastly/pubsub/sse"
)

// TopicsPerRequestMax bounds how many distinct topics a single /events
// GET call may request.
const TopicsPerRequestMax = sse.MaxTopics

// EventsGetRequest is the parsed form of a GET /events call.
type EventsGetRequest struct {
	Topics        []string
	Durable       bool
	LastEventID   string
	AuthQuery     string
	Authorization string
	FastlyKey     string
	GripLast      []string // present only on a proxy-driven "next" resume
}

// HandleEventsGet dispatches to the SSE handler's open or next mode
// depending on whether this call carries Grip-Last: a fresh subscribe
// request never does, a resumed one always does.
func (g *Gateway) HandleEventsGet(ctx context.Context, req EventsGetRequest) *Response {
	if len(req.GripLast) > 0 {
		r := sse.HandleNext(ctx, g.SSE, sse.NextRequest{GripLast: req.GripLast})
		return adaptSSEResponse(r)
	}

	topics := dedupTopics(req.Topics)
	if len(topics) > TopicsPerRequestMax {
		topics = topics[:TopicsPerRequestMax]
	}
	r := sse.HandleOpen(ctx, g.SSE, sse.OpenRequest{
		Topics:        topics,
		Durable:       req.Durable,
		LastEventID:   req.LastEventID,
		AuthQuery:     req.AuthQuery,
		Authorization: req.Authorization,
		FastlyKey:     req.FastlyKey,
	})
	return adaptSSEResponse(r)
}

func dedupTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func adaptSSEResponse(r *sse.Response) *Response {
	return &Response{Status: r.Status, Headers: r.Headers, Body: r.Body}
}

// EventsPostRequest is the parsed form of a POST /events (HTTP publish)
// call.
type EventsPostRequest struct {
	Topic         string
	Retain        bool
	TTLSeconds    int64 // used only when HasTTL is set
	HasTTL        bool
	Authorization string
	FastlyKey     string
	Body          []byte
	Sender        string
}

// HandleEventsPost implements the HTTP publish endpoint: resolve
// capabilities, enforce the size cap, optionally write to retained
// storage, and fan the message out exactly the way an MQTT PUBLISH
// would.
func (g *Gateway) HandleEventsPost(ctx context.Context, req EventsPostRequest) *Response {
	if req.Topic == "" {
		return textResponse(400, "Missing required query parameter: topic\n")
	}

	caps, err := g.resolvePublishCapabilities(ctx, req.FastlyKey, req.Authorization)
	if err != nil {
		return textResponse(401, err.Error()+"\n")
	}
	if !caps.CanPublish(req.Topic) {
		return textResponse(403, "Forbidden\n")
	}
	if len(req.Body) > session.MessageSizeMax {
		return textResponse(400, fmt.Sprintf("Message exceeds maximum size of %d bytes\n", session.MessageSizeMax))
	}

	var sequencing *session.Sequencing
	if req.Retain {
		var ttl *time.Duration
		if req.HasTTL {
			d := time.Duration(req.TTLSeconds) * time.Second
			ttl = &d
		}
		v, err := g.Storage.Write(ctx, req.Topic, req.Body, ttl)
		if err != nil {
			return textResponse(500, "Failed to write message to storage\n")
		}
		sequencing = &session.Sequencing{ID: v.AsID(), PrevID: prevSequenceID(v)}
	}

	if g.Publisher != nil {
		if err := g.Publisher.Publish(ctx, req.Topic, req.Body, sequencing, req.Sender); err != nil {
			return textResponse(500, "Publish process failed\n")
		}
	}
	return newResponse(200)
}

func (g *Gateway) resolvePublishCapabilities(ctx context.Context, fastlyKey, authorizationHeader string) (auth.Capabilities, error) {
	if auth.AdminByKey(fastlyKey, g.Config.AdminKey) {
		return auth.AdminCapabilities(), nil
	}
	token := strings.TrimPrefix(authorizationHeader, "Bearer ")
	if token == "" {
		return auth.Capabilities{}, fmt.Errorf("Unauthorized")
	}
	var internalKey []byte
	if g.Config.InternalKeyHex != "" {
		internalKey, _ = decodeHexKey(g.Config.InternalKeyHex)
	}
	caps, err := g.Authorizer.ValidateToken(ctx, token, internalKey)
	if err != nil {
		return auth.Capabilities{}, fmt.Errorf("Unauthorized")
	}
	return caps, nil
}

// prevSequenceID mirrors session.Handler's own publish path: the version
// immediately preceding v, or the none id if v was the slot's first
// write.
func prevSequenceID(v retained.Version) string {
	if v.Seq <= 1 {
		return retained.NoneID
	}
	return retained.Version{Generation: v.Generation, Seq: v.Seq - 1}.AsID()
}

// AdminKeysRequest is the parsed form of a POST /admin/keys call.
type AdminKeysRequest struct {
	FastlyKey string
}

// HandleAdminKeys implements POST /admin/keys: mint and persist a new
// HMAC signing key, gated by the admin control-plane key.
func (g *Gateway) HandleAdminKeys(ctx context.Context, req AdminKeysRequest) *Response {
	if !g.Config.AdminEnabled {
		return textResponse(404, "Not found\n")
	}
	if !auth.AdminByKey(req.FastlyKey, g.Config.AdminKey) {
		return textResponse(403, "Forbidden\n")
	}
	key, err := admin.PostKeys(ctx, g.Keys)
	if err != nil {
		return textResponse(500, "Failed to generate key\n")
	}
	r := newResponse(200)
	r.addHeader("Content-Type", "application/json")
	r.Body = []byte(fmt.Sprintf(`{"id":%q,"value":%q}`, key.ID, key.Value))
	return r
}

// ParseTTLQuery parses the ttl=<secs> query parameter used by POST
// /events.
func ParseTTLQuery(raw string) (secs int64, has bool, err error) {
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
