package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call to its upstream.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen admits a single trial call after the cool-off period.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) gauge() float64 {
	switch s {
	case Closed, Open, HalfOpen:
		return float64(s)
	default:
		return -1
	}
}

// BreakerConfig tunes a Breaker. Zero values take the defaults noted per field.
type BreakerConfig struct {
	// Target names the upstream in metrics and logs. Default "upstream".
	Target string
	// MinRequests is the sample size before the failure ratio is judged. Default 1.
	MinRequests int
	// FailureRatio in (0,1] at which the breaker opens. Default 0.5.
	FailureRatio float64
	// OpenFor is the cool-off before a trial call is allowed. Default 30s.
	OpenFor time.Duration
	// Window clears the closed-state counters once it elapses. Default 1m.
	Window time.Duration
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Breaker guards one upstream with a failure-ratio circuit. A nil *Breaker
// is always closed.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	total       int
	windowStart time.Time
	openedAt    time.Time
	trial       bool
}

// NewBreaker returns a closed breaker for cfg.Target.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "upstream"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg, windowStart: cfg.Now()}
	setStateGauge(cfg.Target, Closed)
	return b
}

// Target returns the upstream name.
func (b *Breaker) Target() string {
	if b == nil {
		return ""
	}
	return b.cfg.Target
}

// Allow reports whether a call may proceed. Once the cool-off has elapsed an
// open breaker moves to half-open and admits exactly one trial call; further
// calls are refused until that trial reports.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenFor {
			countRejected(b.cfg.Target)
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.trial = true
		return true
	case HalfOpen:
		if b.trial {
			countRejected(b.cfg.Target)
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.trial = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	now := b.cfg.Now()
	if now.Sub(b.windowStart) >= b.cfg.Window {
		b.failures, b.total = 0, 0
		b.windowStart = now
	}
	b.total++
	if !success {
		b.failures++
	}
	if b.total >= b.cfg.MinRequests && float64(b.failures)/float64(b.total) >= b.cfg.FailureRatio {
		b.moveLocked(ctx, Open)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.cfg.Now()
	b.state = next
	b.failures, b.total = 0, 0
	b.windowStart = now
	if next == Open {
		b.openedAt = now
	}
	setStateGauge(b.cfg.Target, next)
	countTransition(b.cfg.Target, prev, next)

	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled && b.cfg.Logger != nil {
		logger = b.cfg.Logger
	}
	evt := logger.Info().Str("target", b.cfg.Target).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}
