package observability

import (
	"errors"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"nmpoll/pkg/outcome"
	"nmpoll/pkg/protocol"
)

// LoggingFactory wraps an outcome.Factory and logs every minted outcome.
// The wrapped factory's record is always returned; a panicking log hook
// never masks the real outcome.
type LoggingFactory struct {
	Next outcome.Factory
	Log  *zap.Logger
}

// NewLoggingFactory wraps next (outcome.DefaultFactory when nil).
func NewLoggingFactory(next outcome.Factory, log *zap.Logger) *LoggingFactory {
	if next == nil {
		next = outcome.DefaultFactory{}
	}
	if log == nil {
		log = zap.L()
	}
	return &LoggingFactory{Next: next, Log: log}
}

func (f *LoggingFactory) CreateOutcome(source string, peer net.Addr, request, reply *protocol.PDU, userObj any, elapsed time.Duration, err error) *outcome.Record {
	rec := f.Next.CreateOutcome(source, peer, request, reply, userObj, elapsed, err)
	func() {
		defer func() { _ = recover() }()
		f.Log.Debug("outcome",
			zap.String("source", rec.Source()),
			zap.Uint32("request_id", rec.Request().RequestID),
			zap.String("result", resultLabel(rec)),
			zap.Duration("elapsed", rec.Elapsed()),
			zap.Error(rec.Err()))
	}()
	return rec
}

// MetricsFactory wraps an outcome.Factory and counts outcomes by result,
// recording round-trip latency for measured ones.
type MetricsFactory struct {
	Next outcome.Factory

	outcomes *prometheus.CounterVec
	rtt      prometheus.Histogram
}

// NewMetricsFactory wraps next and registers its collectors with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetricsFactory(next outcome.Factory, reg prometheus.Registerer) *MetricsFactory {
	if next == nil {
		next = outcome.DefaultFactory{}
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := &MetricsFactory{
		Next: next,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nmpoll_outcomes_total",
			Help: "Resolved requests by result.",
		}, []string{"result"}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nmpoll_round_trip_seconds",
			Help:    "Round-trip time of successfully measured requests.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
	}
	f.outcomes = registerOrExisting(reg, f.outcomes).(*prometheus.CounterVec)
	f.rtt = registerOrExisting(reg, f.rtt).(prometheus.Histogram)
	return f
}

// registerOrExisting registers c on reg, reusing the collector already
// present when another factory instance claimed the same names. Two
// clients with metrics on then share one set of collectors.
func registerOrExisting(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	err := reg.Register(c)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	return c
}

func (f *MetricsFactory) CreateOutcome(source string, peer net.Addr, request, reply *protocol.PDU, userObj any, elapsed time.Duration, err error) *outcome.Record {
	rec := f.Next.CreateOutcome(source, peer, request, reply, userObj, elapsed, err)
	func() {
		defer func() { _ = recover() }()
		f.outcomes.WithLabelValues(resultLabel(rec)).Inc()
		if rec.OK() && rec.Measured() {
			f.rtt.Observe(rec.Elapsed().Seconds())
		}
	}()
	return rec
}

func resultLabel(rec *outcome.Record) string {
	switch {
	case rec.Failed():
		return "error"
	case rec.TimedOut():
		return "timeout"
	default:
		return "ok"
	}
}
