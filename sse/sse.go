// Package sse implements the SSE subscribe handler: it turns a
// GET /events call into the fronting proxy's hold/channel/link
// instructions, plus any durable backlog the subscriber hasn't seen yet.
package sse

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fastly/pubsub/auth"
	"github.com/fastly/pubsub/internal/metrics"
	"github.com/fastly/pubsub/internal/sseframe"
	"github.com/fastly/pubsub/retained"
)

// MaxTopics bounds how many topics a single subscribe call may request.
const MaxTopics = 10

// KeepAliveTimeout and NextTimeout are the hint values stamped into
// Grip-Keep-Alive and Grip-Link.
const (
	KeepAliveTimeout = 55
	NextTimeout      = 120
)

// Deps are the collaborators the handler is built against.
type Deps struct {
	Authorizer  auth.Authorizer
	InternalKey []byte
	Storage     *retained.Store
	AdminKey    string // matched against the Fastly-Key header for control-plane calls
	Metrics     *metrics.Stat
}

// Response is what the handler produced; the caller (the root HTTP
// routing layer) is responsible for writing it out, including the
// CORS headers every response on this surface carries.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

func (r *Response) addHeader(k, v string) {
	r.Headers[k] = append(r.Headers[k], v)
}

func newResponse() *Response {
	return &Response{Status: 200, Headers: make(map[string][]string)}
}

// OpenRequest is the parsed form of a subscribe call with no Grip-Last:
// a fresh open, not a reconnect.
type OpenRequest struct {
	Topics        []string
	Durable       bool
	LastEventID   string // from the Last-Event-ID header or lastEventId query param
	AuthQuery     string // the auth query parameter
	Authorization string // the raw Authorization header value
	FastlyKey     string
}

// HandleOpen handles a fresh subscribe call: topics come from query
// parameters and the caller authenticates itself.
func HandleOpen(ctx context.Context, d Deps, req OpenRequest) *Response {
	resp := newResponse()

	topics := req.Topics
	if len(topics) > MaxTopics {
		topics = topics[:MaxTopics]
	}

	caps, authErr := resolveCapabilities(ctx, d, req.FastlyKey, req.AuthQuery, req.Authorization)
	if authErr != nil {
		if d.Metrics != nil {
			d.Metrics.SSERejections.Inc()
		}
		return errorResponse(authErr)
	}
	for _, topic := range topics {
		if !caps.CanSubscribe(topic) {
			if d.Metrics != nil {
				d.Metrics.SSERejections.Inc()
			}
			return errorResponse(fmt.Errorf("forbidden: %s", topic))
		}
	}
	if d.Metrics != nil {
		d.Metrics.SSEOpens.Inc()
	}

	priors := parseLastEventID(req.LastEventID)

	resp.Headers["Content-Type"] = []string{"text/event-stream"}
	resp.addHeader("Grip-Hold", "stream")
	resp.addHeader("Grip-Keep-Alive", fmt.Sprintf("event: keep-alive\ndata: \n\n; format=cstring; timeout=%d", KeepAliveTimeout))
	for _, topic := range topics {
		resp.addHeader("Grip-Channel", "s:"+topic)
	}

	var body strings.Builder
	body.WriteString(sseframe.Named("stream-open"))

	if req.Durable {
		knownVersions := make(map[string]retained.Version)
		for _, topic := range topics {
			prior := priors[topic]
			slot, err := d.Storage.Read(ctx, topic, prior)
			if err != nil {
				return errorResponse(fmt.Errorf("internal-server-error: %w", err))
			}

			prevID := retained.NoneID
			if prior != nil {
				prevID = prior.AsID()
			}
			resp.addHeader("Grip-Channel", fmt.Sprintf("d:%s; prev-id=%s", topic, prevID))

			if slot == nil {
				continue
			}
			knownVersions[topic] = slot.Version
			if slot.Message != nil {
				body.WriteString(sseframe.Message("message", idFor(topics, knownVersions), slot.Message.Data))
			}
		}
		resp.addHeader("Grip-Link", "</events?durable=true>; rel=next; timeout="+strconv.Itoa(NextTimeout))
	}

	resp.Body = []byte(body.String())
	return resp
}

// NextRequest is the parsed form of a reconnect: the fronting proxy has
// resumed the stream and is replaying its Grip-Last headers.
type NextRequest struct {
	GripLast []string // raw header values, possibly multiple
}

// HandleNext handles a proxy-driven reconnect: topics and resume points
// come from the replayed Grip-Last headers, and the proxy is trusted.
func HandleNext(ctx context.Context, d Deps, req NextRequest) *Response {
	resp := newResponse()

	priors, ok := parseGripLast(req.GripLast)
	if !ok || len(priors) == 0 {
		// Per the proxy's own protocol, an empty 200 body here means
		// "close this stream"; there is nothing valid to resume.
		return resp
	}
	if d.Metrics != nil {
		d.Metrics.SSEResumes.Inc()
	}

	caps := auth.AdminCapabilities() // the fronting proxy is trusted on a resume
	topics := make([]string, 0, len(priors))
	for topic := range priors {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	resp.Headers["Content-Type"] = []string{"text/event-stream"}
	resp.addHeader("Grip-Hold", "stream")
	resp.addHeader("Grip-Keep-Alive", fmt.Sprintf("event: keep-alive\ndata: \n\n; format=cstring; timeout=%d", KeepAliveTimeout))

	var body strings.Builder
	body.WriteString(sseframe.Named("stream-open"))
	knownVersions := make(map[string]retained.Version)

	for _, topic := range topics {
		if !caps.CanSubscribe(topic) {
			continue
		}
		resp.addHeader("Grip-Channel", "s:"+topic)

		prior := priors[topic]
		slot, err := d.Storage.Read(ctx, topic, prior)
		if err != nil {
			return errorResponse(fmt.Errorf("internal-server-error: %w", err))
		}
		prevID := retained.NoneID
		if prior != nil {
			prevID = prior.AsID()
		}
		resp.addHeader("Grip-Channel", fmt.Sprintf("d:%s; prev-id=%s", topic, prevID))

		if slot == nil {
			continue
		}
		knownVersions[topic] = slot.Version
		if slot.Message != nil {
			body.WriteString(sseframe.Message("message", idFor(topics, knownVersions), slot.Message.Data))
		}
	}
	resp.addHeader("Grip-Link", "</events?durable=true>; rel=next; timeout="+strconv.Itoa(NextTimeout))
	resp.Body = []byte(body.String())
	return resp
}

func resolveCapabilities(ctx context.Context, d Deps, fastlyKey, authQuery, authorizationHeader string) (auth.Capabilities, error) {
	if auth.AdminByKey(fastlyKey, d.AdminKey) {
		return auth.AdminCapabilities(), nil
	}
	token := authQuery
	if token == "" {
		token = strings.TrimPrefix(authorizationHeader, "Bearer ")
	}
	if token == "" {
		return auth.Capabilities{}, fmt.Errorf("unauthorized: no bearer token")
	}
	caps, err := d.Authorizer.ValidateToken(ctx, token, d.InternalKey)
	if err != nil {
		return auth.Capabilities{}, fmt.Errorf("unauthorized: %w", err)
	}
	return caps, nil
}

// parseLastEventID parses "topic:<id>,topic:<id>,..." into a per-topic
// resume version. A topic absent from the map, or with a nil value for a
// present key, means "no prior version" (equivalent to the none id).
func parseLastEventID(raw string) map[string]*retained.Version {
	out := make(map[string]*retained.Version)
	if raw == "" {
		return out
	}
	for _, entry := range strings.Split(raw, ",") {
		idx := strings.LastIndex(entry, ":")
		if idx < 0 {
			continue
		}
		topic, idStr := entry[:idx], entry[idx+1:]
		v, ok, err := retained.ParseID(idStr)
		if err != nil {
			continue
		}
		if ok {
			out[topic] = &v
		} else {
			out[topic] = nil
		}
	}
	return out
}

// parseGripLast parses one or more Grip-Last header values, each a
// comma-separated list of "channel; last-id=<id>" entries. Only "d:"
// channels are kept (durable resume); ok is false if nothing valid was
// found.
func parseGripLast(values []string) (map[string]*retained.Version, bool) {
	out := make(map[string]*retained.Version)
	found := false
	for _, value := range values {
		for _, entry := range strings.Split(value, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, ";", 2)
			channel := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(channel, "d:") {
				continue
			}
			topic := channel[len("d:"):]

			var idStr string
			if len(parts) == 2 {
				for _, attr := range strings.Split(parts[1], ";") {
					attr = strings.TrimSpace(attr)
					if v, ok := strings.CutPrefix(attr, "last-id="); ok {
						idStr = v
					}
				}
			}
			if idStr == "" {
				continue
			}
			v, ok, err := retained.ParseID(idStr)
			if err != nil {
				continue
			}
			found = true
			if ok {
				out[topic] = &v
			} else {
				out[topic] = nil
			}
		}
	}
	return out, found
}

// idFor joins the known version for every topic in topics whose version
// has been resolved so far, in topic order, as "topic:<id>,...".
func idFor(topics []string, known map[string]retained.Version) string {
	var parts []string
	for _, topic := range topics {
		if v, ok := known[topic]; ok {
			parts = append(parts, topic+":"+v.AsID())
		}
	}
	return strings.Join(parts, ",")
}

func errorResponse(err error) *Response {
	condition, text := "internal-server-error", err.Error()
	switch {
	case strings.HasPrefix(text, "forbidden"):
		condition = "forbidden"
	case strings.HasPrefix(text, "unauthorized"):
		condition = "forbidden"
	case strings.HasPrefix(text, "internal-server-error"):
		condition = "internal-server-error"
	}
	return &Response{
		Status:  200,
		Headers: map[string][]string{"Content-Type": {"text/event-stream"}},
		Body:    []byte(sseframe.Error(condition, text)),
	}
}
