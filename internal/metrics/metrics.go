// Package metrics exposes Prometheus counters/gauges for the NxScope stack
// (spec §4.10), adapted from the teacher's internal/metrics/metrics.go
// promauto-plus-local-atomic-mirror style.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/railab/nxslib-go/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame-error kind labels (stable values to bound cardinality).
const (
	ErrKindHdr      = "hdr"
	ErrKindFoot     = "foot"
	ErrKindProtocol = "protocol"
	ErrKindTimeout  = "timeout"
	ErrKindOther    = "other"
)

// Prometheus series.
var (
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nxslib_frames_decoded_total",
		Help: "Total wire frames successfully decoded, by frame id.",
	}, []string{"id"})
	FrameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nxslib_frame_errors_total",
		Help: "Total frame decode failures, by error kind (hdr, foot, protocol).",
	}, []string{"kind"})
	Resyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nxslib_resyncs_total",
		Help: "Total byte-level resyncs performed by the receive pipeline after a CRC or header failure.",
	})
	Overflow = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nxslib_overflow_total",
		Help: "Total STREAM frames decoded with the OVERFLOW flag set.",
	})
	HandshakeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nxslib_handshake_retries_total",
		Help: "Total connect handshake retries (each a repeated CMNINFO plus full CHINFO sweep).",
	})
	AckTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nxslib_ack_timeouts_total",
		Help: "Total command/ACK round trips that exceeded the ack timeout.",
	})
	StreamQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nxslib_stream_queue_depth",
		Help: "Current number of STREAM frames buffered awaiting dispatch.",
	})
	ControlQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nxslib_control_queue_depth",
		Help: "Current number of CMNINFO/CHINFO/ACK frames buffered awaiting the command layer.",
	})
	SubscriberFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nxslib_subscriber_fanout",
		Help: "Number of subscriber queues that received the most recently published channel batch.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local atomic mirrors, kept alongside the Prometheus series so callers
// (e.g. a periodic log line) can read cheap snapshots without scraping.
var (
	localFramesDecoded    uint64
	localFrameErrors      uint64
	localResyncs          uint64
	localOverflow         uint64
	localHandshakeRetries uint64
	localAckTimeouts      uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	FramesDecoded    uint64
	FrameErrors      uint64
	Resyncs          uint64
	Overflow         uint64
	HandshakeRetries uint64
	AckTimeouts      uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesDecoded:    atomic.LoadUint64(&localFramesDecoded),
		FrameErrors:      atomic.LoadUint64(&localFrameErrors),
		Resyncs:          atomic.LoadUint64(&localResyncs),
		Overflow:         atomic.LoadUint64(&localOverflow),
		HandshakeRetries: atomic.LoadUint64(&localHandshakeRetries),
		AckTimeouts:      atomic.LoadUint64(&localAckTimeouts),
	}
}

// IncFrameDecoded records a successfully decoded frame of the given id.
func IncFrameDecoded(id string) {
	FramesDecoded.WithLabelValues(id).Inc()
	atomic.AddUint64(&localFramesDecoded, 1)
}

// IncFrameError records a frame decode failure of the given kind.
func IncFrameError(kind string) {
	FrameErrors.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localFrameErrors, 1)
}

func IncResync() {
	Resyncs.Inc()
	atomic.AddUint64(&localResyncs, 1)
}

func IncOverflow() {
	Overflow.Inc()
	atomic.AddUint64(&localOverflow, 1)
}

func IncHandshakeRetry() {
	HandshakeRetries.Inc()
	atomic.AddUint64(&localHandshakeRetries, 1)
}

func IncAckTimeout() {
	AckTimeouts.Inc()
	atomic.AddUint64(&localAckTimeouts, 1)
}

func SetStreamQueueDepth(n int)  { StreamQueueDepth.Set(float64(n)) }
func SetControlQueueDepth(n int) { ControlQueueDepth.Set(float64(n)) }
func SetSubscriberFanout(n int)  { SubscriberFanout.Set(float64(n)) }

// InitBuildInfo sets the build info gauge (called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, kind := range []string{ErrKindHdr, ErrKindFoot, ErrKindProtocol, ErrKindTimeout, ErrKindOther} {
		FrameErrors.WithLabelValues(kind).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function, defaulting to true if unset.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
