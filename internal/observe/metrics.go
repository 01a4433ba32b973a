// Package observe provides application-wide observability primitives for
// voxduct: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Routing counters are bumped as plain atomics inside the real-time
// callbacks and exported through observable instruments, so the hot path
// never touches the metrics SDK. Register the bridge with
// [Metrics.RegisterRouteCounters]. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxduct metrics.
const meterName = "github.com/voxduct/voxduct"

// RouteCounters is a snapshot of the routing core's cumulative counters.
type RouteCounters struct {
	FramesCaptured       int64
	FramesPlayed         int64
	SilenceSubstitutions int64
	PlaybackUnderruns    int64
	DroppedFrames        int64
	MonitorDrops         int64
	MonitorUnderruns     int64
	AgentBytesOut        int64
	AgentBytesIn         int64
	QueueDepth           int64
}

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// StateTransitions counts routing state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// Transcripts counts transcript entries by role.
	Transcripts metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// Observable bridge instruments, fed by RegisterRouteCounters.
	framesCaptured       metric.Int64ObservableCounter
	framesPlayed         metric.Int64ObservableCounter
	silenceSubstitutions metric.Int64ObservableCounter
	playbackUnderruns    metric.Int64ObservableCounter
	droppedFrames        metric.Int64ObservableCounter
	monitorDrops         metric.Int64ObservableCounter
	monitorUnderruns     metric.Int64ObservableCounter
	agentBytesOut        metric.Int64ObservableCounter
	agentBytesIn         metric.Int64ObservableCounter
	queueDepth           metric.Int64ObservableGauge
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	// Counters.
	if met.StateTransitions, err = m.Int64Counter("voxduct.state.transitions",
		metric.WithDescription("Total routing state transitions by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("voxduct.transcripts",
		metric.WithDescription("Total transcript entries by role."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxduct.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Routing bridge instruments.
	if met.framesCaptured, err = m.Int64ObservableCounter("voxduct.capture.frames",
		metric.WithDescription("Total frames delivered by the capture device."),
	); err != nil {
		return nil, err
	}
	if met.framesPlayed, err = m.Int64ObservableCounter("voxduct.playback.frames",
		metric.WithDescription("Total source frames written to the playback device."),
	); err != nil {
		return nil, err
	}
	if met.silenceSubstitutions, err = m.Int64ObservableCounter("voxduct.silence.substitutions",
		metric.WithDescription("Total callbacks that substituted silence while paused."),
	); err != nil {
		return nil, err
	}
	if met.playbackUnderruns, err = m.Int64ObservableCounter("voxduct.playback.underruns",
		metric.WithDescription("Total playback callbacks that ran short of queued audio."),
	); err != nil {
		return nil, err
	}
	if met.droppedFrames, err = m.Int64ObservableCounter("voxduct.queue.dropped_frames",
		metric.WithDescription("Total queued frames discarded by pauses and interruptions."),
	); err != nil {
		return nil, err
	}
	if met.monitorDrops, err = m.Int64ObservableCounter("voxduct.monitor.drops",
		metric.WithDescription("Total monitor buffers dropped on a full bridge ring."),
	); err != nil {
		return nil, err
	}
	if met.monitorUnderruns, err = m.Int64ObservableCounter("voxduct.monitor.underruns",
		metric.WithDescription("Total monitor callbacks zero-filled on an empty bridge ring."),
	); err != nil {
		return nil, err
	}
	if met.agentBytesOut, err = m.Int64ObservableCounter("voxduct.agent.bytes_out",
		metric.WithDescription("Total PCM bytes sent to the agent."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.agentBytesIn, err = m.Int64ObservableCounter("voxduct.agent.bytes_in",
		metric.WithDescription("Total PCM bytes received from the agent."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.queueDepth, err = m.Int64ObservableGauge("voxduct.queue.depth",
		metric.WithDescription("Current output queue depth in frames."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterRouteCounters wires the routing core's counters into the
// observable instruments. snapshot is called on every metric collection; it
// must be cheap and safe to call concurrently. The returned registration can
// be unregistered when the controller goes away.
func (m *Metrics) RegisterRouteCounters(snapshot func() RouteCounters) (metric.Registration, error) {
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		c := snapshot()
		o.ObserveInt64(m.framesCaptured, c.FramesCaptured)
		o.ObserveInt64(m.framesPlayed, c.FramesPlayed)
		o.ObserveInt64(m.silenceSubstitutions, c.SilenceSubstitutions)
		o.ObserveInt64(m.playbackUnderruns, c.PlaybackUnderruns)
		o.ObserveInt64(m.droppedFrames, c.DroppedFrames)
		o.ObserveInt64(m.monitorDrops, c.MonitorDrops)
		o.ObserveInt64(m.monitorUnderruns, c.MonitorUnderruns)
		o.ObserveInt64(m.agentBytesOut, c.AgentBytesOut)
		o.ObserveInt64(m.agentBytesIn, c.AgentBytesIn)
		o.ObserveInt64(m.queueDepth, c.QueueDepth)
		return nil
	},
		m.framesCaptured, m.framesPlayed, m.silenceSubstitutions,
		m.playbackUnderruns, m.droppedFrames, m.monitorDrops,
		m.monitorUnderruns, m.agentBytesOut, m.agentBytesIn, m.queueDepth,
	)
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStateTransition records one routing state change.
func (m *Metrics) RecordStateTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordTranscript records one transcript entry.
func (m *Metrics) RecordTranscript(ctx context.Context, role string) {
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}
