// Package metrics exposes the gateway's prometheus counters and gauges:
// one counter family per broker surface, registered once at process
// start.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stat is the process-wide metrics registry: one field per observable
// event.
type Stat struct {
	Uptime prometheus.Counter

	PacketCodecErrors prometheus.Counter
	PacketsIn         prometheus.Counter
	PacketsOut        prometheus.Counter

	RetainedCASRetries   prometheus.Counter
	RetainedCASConflicts prometheus.Counter
	RetainedWrites       prometheus.Counter

	SSEOpens      prometheus.Counter
	SSEResumes    prometheus.Counter
	SSERejections prometheus.Counter

	PublishSends   prometheus.Counter
	PublishErrors  prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// New builds an unregistered Stat. Callers register it with Register
// before serving /metrics.
func New() *Stat {
	return &Stat{
		Uptime: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_uptime_seconds", Help: "Process uptime in seconds.",
		}),
		PacketCodecErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_packet_codec_errors_total", Help: "MQTT packets rejected by the codec as malformed.",
		}),
		PacketsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_packets_in_total", Help: "MQTT packets decoded from inbound WS-HTTP events.",
		}),
		PacketsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_packets_out_total", Help: "MQTT packets encoded into outbound WS-HTTP events.",
		}),
		RetainedCASRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_retained_cas_retries_total", Help: "Retained-slot CAS write attempts beyond the first.",
		}),
		RetainedCASConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_retained_cas_conflicts_total", Help: "Retained-slot CAS writes that lost a generation race.",
		}),
		RetainedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_retained_writes_total", Help: "Successful retained-slot writes.",
		}),
		SSEOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_sse_opens_total", Help: "SSE subscribe calls in open mode.",
		}),
		SSEResumes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_sse_resumes_total", Help: "SSE subscribe calls in next/resume mode.",
		}),
		SSERejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_sse_rejections_total", Help: "SSE subscribe calls rejected by authorization.",
		}),
		PublishSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_publish_sends_total", Help: "Publish fan-out calls to configured endpoints.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubsub_publish_errors_total", Help: "Publish fan-out calls that failed on at least one endpoint.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsub_active_mqtt_sessions", Help: "MQTT sessions currently marked connected in the last-seen state.",
		}),
	}
}

// RefreshUptime ticks the Uptime counter once per second for the life of
// the process.
func (s *Stat) RefreshUptime() {
	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for range tick.C {
			s.Uptime.Inc()
		}
	}()
}

// Register registers every metric with the default prometheus registry.
func (s *Stat) Register() {
	prometheus.MustRegister(
		s.Uptime,
		s.PacketCodecErrors, s.PacketsIn, s.PacketsOut,
		s.RetainedCASRetries, s.RetainedCASConflicts, s.RetainedWrites,
		s.SSEOpens, s.SSEResumes, s.SSERejections,
		s.PublishSends, s.PublishErrors, s.ActiveSessions,
	)
}
