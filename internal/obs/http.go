package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultHTTPBuckets suits an API whose slowest routes wait on the payment
// gateway.
var DefaultHTTPBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPMetrics holds the server-side request collectors.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers <namespace>_http_* collectors with reg.
// Registering twice against the same registry reuses the first set.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = DefaultHTTPBuckets
	}
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by route and status class.",
		}, []string{"method", "route", "class"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency by route.",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served.",
		}),
	}
	mustRegisterCollector(reg, m.Requests, func(c prometheus.Collector) { m.Requests = c.(*prometheus.CounterVec) })
	mustRegisterCollector(reg, m.Duration, func(c prometheus.Collector) { m.Duration = c.(*prometheus.HistogramVec) })
	mustRegisterCollector(reg, m.InFlight, func(c prometheus.Collector) { m.InFlight = c.(prometheus.Gauge) })
	return m
}

// ParseBuckets reads comma separated bucket bounds in seconds. Invalid and
// non-positive entries are skipped.
func ParseBuckets(csv string) []float64 {
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Instrument wraps the router with one span and one set of metric samples
// per request. Both are labelled with the chi route pattern, which is only
// known once routing has run.
type Instrument struct {
	Metrics *HTTPMetrics
	Tracing bool
}

// Middleware implements chi middleware.
func (in Instrument) Middleware(next http.Handler) http.Handler {
	if in.Metrics == nil && !in.Tracing {
		return next
	}
	tracer := otel.Tracer("github.com/noah-isme/farmbridge/internal/obs")
	propagator := otel.GetTextMapPropagator()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		var span trace.Span
		if in.Tracing {
			ctx = propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span = tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		}
		if in.Metrics != nil {
			in.Metrics.InFlight.Inc()
			defer in.Metrics.InFlight.Dec()
		}

		sw := newStatusWriter(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(sw, r)

		route := routeLabel(r)
		if in.Metrics != nil {
			in.Metrics.Requests.WithLabelValues(r.Method, route, statusClass(sw.status)).Inc()
			in.Metrics.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
		if span != nil {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", sw.status),
				attribute.String("farmbridge.request_id", middleware.GetReqID(ctx)),
			)
			if ref := chi.URLParam(r, "reference"); ref != "" {
				span.SetAttributes(attribute.String("payment.reference", ref))
			}
			if sw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.status))
			}
		}
	})
}

// routeLabel returns the matched chi pattern, or "unmatched" so unknown
// paths share one series.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
	wrote  bool
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wrote {
		sw.status = code
		sw.wrote = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	sw.wrote = true
	n, err := sw.ResponseWriter.Write(p)
	sw.bytes += int64(n)
	return n, err
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }
