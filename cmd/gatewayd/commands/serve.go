package commands

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/fastly/pubsub"
	"github.com/fastly/pubsub/config"
	"github.com/golang-io/requests"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	src := config.Source(config.FileSource{Path: configPath})
	if configPath == "" {
		src = config.StaticSource{Value: config.DefaultConfig()}
	}
	cfg, err := src.Config()
	if err != nil {
		return err
	}

	gw, err := pubsub.New(cfg)
	if err != nil {
		return err
	}
	defer gw.Close()
	gw.Metrics.Register()
	gw.Metrics.RefreshUptime()

	mux := requests.NewServeMux(requests.URL(cfg.HTTP.URL), requests.Logf(accessLog))
	mux.Route("/", handleRoot(gw))
	mux.Route("/events", handleEvents(gw))
	mux.Route("/mqtt", handleMQTT(gw))
	mux.Route("/admin/keys", handleAdminKeys(gw))
	mux.Route("/metrics", promhttp.Handler())
	mux.Pprof()

	s := requests.NewServer(context.Background(), mux, requests.OnStart(func(s *http.Server) {
		log.Printf("gatewayd: listening on %s", s.Addr)
	}))
	return s.ListenAndServe()
}

func accessLog(ctx context.Context, stat *requests.Stat) {
	log.Printf("%s", stat.Print())
}

func handleRoot(gw *pubsub.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, pubsub.WithCORS(gw.HandleRoot(r.Context())))
	}
}

func handleEvents(gw *pubsub.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			writeResponse(w, pubsub.WithCORS(gw.HandleEventsPreflight(r.Context())))
		case http.MethodGet:
			if !gw.Config.SSEEnabled {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			handleEventsGet(gw, w, r)
		case http.MethodPost:
			if !gw.Config.HTTPPublishEnabled {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			handleEventsPost(gw, w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func handleEventsGet(gw *pubsub.Gateway, w http.ResponseWriter, r *http.Request) {
	if resp := gw.RequireGripSig(r.Header.Get("Grip-Sig")); resp != nil {
		writeResponse(w, pubsub.WithCORS(resp))
		return
	}
	q := r.URL.Query()
	resp := gw.HandleEventsGet(r.Context(), pubsub.EventsGetRequest{
		Topics:        q["topic"],
		Durable:       q.Get("durable") == "true",
		LastEventID:   firstNonEmpty(r.Header.Get("Last-Event-ID"), q.Get("lastEventId")),
		AuthQuery:     q.Get("auth"),
		Authorization: r.Header.Get("Authorization"),
		FastlyKey:     r.Header.Get("Fastly-Key"),
		GripLast:      r.Header.Values("Grip-Last"),
	})
	writeResponse(w, pubsub.WithCORS(resp))
}

func handleEventsPost(gw *pubsub.Gateway, w http.ResponseWriter, r *http.Request) {
	buf, err := requests.ParseBody(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	ttl, hasTTL, err := pubsub.ParseTTLQuery(q.Get("ttl"))
	if err != nil {
		http.Error(w, "invalid ttl\n", http.StatusBadRequest)
		return
	}
	resp := gw.HandleEventsPost(r.Context(), pubsub.EventsPostRequest{
		Topic:         q.Get("topic"),
		Retain:        q.Get("retain") == "true",
		TTLSeconds:    ttl,
		HasTTL:        hasTTL,
		Authorization: r.Header.Get("Authorization"),
		FastlyKey:     r.Header.Get("Fastly-Key"),
		Body:          buf.Bytes(),
	})
	writeResponse(w, pubsub.WithCORS(resp))
}

func handleMQTT(gw *pubsub.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !gw.Config.MQTTEnabled {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if resp := gw.RequireGripSig(r.Header.Get("Grip-Sig")); resp != nil {
			writeResponse(w, pubsub.WithCORS(resp))
			return
		}
		if r.Header.Get("Content-Type") != "application/websocket-events" {
			http.Error(w, "Not Acceptable\n", http.StatusNotAcceptable)
			return
		}
		buf, err := requests.ParseBody(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		replayed, _ := strconv.Atoi(r.Header.Get("Content-Bytes-Replayed"))
		resp, err := gw.HandleMQTT(r.Context(), pubsub.MQTTRequest{
			Body:            buf.Bytes(),
			ConnectionID:    r.Header.Get("Connection-Id"),
			MetaState:       r.Header.Get("Meta-State"),
			BytesReplayed:   replayed,
			WantsExtensions: strings.Contains(r.Header.Get("Sec-WebSocket-Extensions"), "grip"),
			WantsProtocol:   strings.Contains(r.Header.Get("Sec-WebSocket-Protocol"), "mqtt"),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeResponse(w, pubsub.WithCORS(resp))
	}
}

func handleAdminKeys(gw *pubsub.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := gw.HandleAdminKeys(r.Context(), pubsub.AdminKeysRequest{FastlyKey: r.Header.Get("Fastly-Key")})
		writeResponse(w, pubsub.WithCORS(resp))
	}
}

func writeResponse(w http.ResponseWriter, resp *pubsub.Response) {
	for k, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
