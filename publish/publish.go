// Package publish assembles the cross-format fan-out payload for one
// message (an SSE text frame plus a binary MQTT PUBLISH frame) and hands
// it to one or more configured publish endpoints.
package publish

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fastly/pubsub/internal/metrics"
	"github.com/fastly/pubsub/internal/sseframe"
	"github.com/fastly/pubsub/packet"
	"github.com/fastly/pubsub/session"
	"github.com/golang-io/requests"
	"golang.org/x/sync/errgroup"
)

// Endpoint is one Fastly-style publish API this gateway forwards to. More
// than one is only useful when publishes should be mirrored to a second
// region or a federated companion service; the common case is a single
// endpoint.
type Endpoint struct {
	URL   string
	Token string
}

// HTTPClient is the production session.Publisher: it builds the
// fan-out body once and POSTs it to every configured Endpoint
// concurrently.
type HTTPClient struct {
	sess      *requests.Session
	endpoints []Endpoint
	Metrics   *metrics.Stat
}

// NewHTTPClient builds a client that publishes to every given endpoint.
func NewHTTPClient(endpoints []Endpoint) *HTTPClient {
	return &HTTPClient{
		sess:      requests.New(requests.Timeout(5 * time.Second)),
		endpoints: endpoints,
	}
}

// Publish implements session.Publisher.
func (c *HTTPClient) Publish(ctx context.Context, topic string, message []byte, sequencing *session.Sequencing, sender string) error {
	body, err := buildBody(topic, message, sequencing, sender)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range c.endpoints {
		ep := ep
		g.Go(func() error {
			resp, err := c.sess.DoRequest(gctx,
				requests.URL(ep.URL),
				requests.Path("/publish/"),
				requests.Header("Authorization", "Bearer "+ep.Token),
				requests.Header("content-type", "application/json"),
				requests.Body(body),
				requests.Logf(func(context.Context, *requests.Stat) {}),
			)
			if err != nil {
				return fmt.Errorf("publish to %s: %w", ep.URL, err)
			}
			if resp.StatusCode != 200 {
				return fmt.Errorf("publish to %s: status %d", ep.URL, resp.StatusCode)
			}
			return nil
		})
	}
	err = g.Wait()
	if c.Metrics != nil {
		c.Metrics.PublishSends.Inc()
		if err != nil {
			c.Metrics.PublishErrors.Inc()
		}
	}
	return err
}

type envelope struct {
	Items []item `json:"items"`
}

type item struct {
	Channel string  `json:"channel"`
	Formats formats `json:"formats"`
	Meta    *meta   `json:"meta,omitempty"`
}

type formats struct {
	HTTPStream httpStream      `json:"http-stream"`
	WSMessage  json.RawMessage `json:"ws-message"`
}

type httpStream struct {
	Content string `json:"content"`
}

type meta struct {
	Sender string `json:"sender"`
}

func buildBody(topic string, message []byte, sequencing *session.Sequencing, sender string) ([]byte, error) {
	wsMessage, err := wsMessageFrame(topic, message, sequencing)
	if err != nil {
		return nil, err
	}

	it := item{
		Channel: "s:" + topic,
		Formats: formats{
			HTTPStream: httpStream{Content: sseframe.Message("message", "", message)},
			WSMessage:  wsMessage,
		},
	}
	if sender != "" {
		it.Meta = &meta{Sender: sender}
	}
	return json.Marshal(envelope{Items: []item{it}})
}

// wsMessageFrame picks between a refresh directive (durable publishes:
// subscribers re-read via the MQTT sync pass instead of trusting this
// frame to arrive) and an embedded MQTT PUBLISH frame (non-durable
// publishes, delivered as-is).
func wsMessageFrame(topic string, message []byte, sequencing *session.Sequencing) (json.RawMessage, error) {
	if sequencing != nil {
		return json.RawMessage(`{"action":"refresh"}`), nil
	}

	mqttFrame, err := (packet.Publish{Topic: topic, Message: message}).Pack()
	if err != nil {
		return nil, fmt.Errorf("publish: encoding mqtt frame: %w", err)
	}
	return json.Marshal(map[string]string{
		"content-bin": base64.StdEncoding.EncodeToString(mqttFrame),
	})
}
