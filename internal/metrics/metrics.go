// Package metrics exposes Prometheus instrumentation for the relay pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects counters for the chat pipeline and its degradation paths.
// Stage fallbacks are counted so that "why did this request degrade" survives
// even though the HTTP response carries substituted text.
type Metrics struct {
	ChatRequests prometheus.Counter
	ChatFailures prometheus.Counter
	ChatDuration prometheus.Histogram

	TranscribeFallbacks prometheus.Counter
	DialogueFallbacks   prometheus.Counter
	SynthesisFallbacks  prometheus.Counter
	ToneFallbacks       prometheus.Counter

	SynthesisChunks prometheus.Histogram
}

// New registers all relay metrics on the given registerer. Tests pass a
// private prometheus.NewRegistry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChatRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_chat_requests_total",
			Help: "Total number of chat pipeline requests",
		}),
		ChatFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_chat_failures_total",
			Help: "Total number of chat requests aborted by fatal input errors",
		}),
		ChatDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_chat_duration_seconds",
			Help:    "End-to-end chat pipeline duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		TranscribeFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_transcribe_fallbacks_total",
			Help: "Chat turns where transcription degraded to the placeholder text",
		}),
		DialogueFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_dialogue_fallbacks_total",
			Help: "Chat turns where the language model degraded to the apology text",
		}),
		SynthesisFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_synthesis_fallbacks_total",
			Help: "Chat turns where speech synthesis failed outright",
		}),
		ToneFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_tone_fallbacks_total",
			Help: "Synthesis failures answered with the generated tone clip",
		}),
		SynthesisChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_synthesis_chunks",
			Help:    "Number of text chunks per synthesized reply",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
	}
}
