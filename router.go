package pubsub

import (
	"context"

	"github.com/fastly/pubsub/auth"
)

// Response is the outcome of any handler on this surface: the root HTTP
// binding (cmd/gatewayd) is responsible for translating it to a real
// http.ResponseWriter call, including decorating it with CORS headers.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

func newResponse(status int) *Response {
	return &Response{Status: status, Headers: make(map[string][]string)}
}

func (r *Response) addHeader(k, v string) {
	r.Headers[k] = append(r.Headers[k], v)
}

func textResponse(status int, body string) *Response {
	r := newResponse(status)
	r.addHeader("Content-Type", "text/plain")
	r.Body = []byte(body)
	return r
}

// corsHeaders are attached to every response this gateway produces: the
// HTTP surface is meant to be called directly from browser JS.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":      "*",
	"Access-Control-Allow-Methods":     "OPTIONS, HEAD, GET, POST, PUT, DELETE",
	"Access-Control-Allow-Headers":     "Authorization, Content-Type",
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Max-Age":           "3600",
}

// WithCORS decorates resp with the CORS header set every response on this
// surface carries, mutating and returning it.
func WithCORS(resp *Response) *Response {
	if resp.Headers == nil {
		resp.Headers = make(map[string][]string)
	}
	for k, v := range corsHeaders {
		resp.Headers[k] = []string{v}
	}
	return resp
}

// HandleRoot implements GET /.
func (g *Gateway) HandleRoot(context.Context) *Response {
	return textResponse(200, "pubsub gateway\n")
}

// HandleEventsPreflight implements OPTIONS /events (and, equivalently,
// any other path's CORS preflight; the header set doesn't vary by path).
func (g *Gateway) HandleEventsPreflight(context.Context) *Response {
	return newResponse(204)
}

// RequireGripSig validates the Grip-Sig header on a /events GET or /mqtt
// POST call. An empty sig means the call didn't come through the
// fronting proxy at all; in production that's normally handled by the
// proxy handing the connection off to itself without ever reaching this
// gateway, so a direct hit here is surfaced as a 501 rather than faked
// into a 200.
func (g *Gateway) RequireGripSig(sig string) *Response {
	if sig == "" {
		return textResponse(501, "requires a fronting proxy in front of this gateway\n")
	}
	if g.GripPublic == nil {
		return textResponse(500, "grip signature validation is not configured\n")
	}
	if err := auth.ValidateGripSig(sig, g.GripPublic, g.Config.ServiceID); err != nil {
		return textResponse(403, "invalid grip-sig\n")
	}
	return nil
}
