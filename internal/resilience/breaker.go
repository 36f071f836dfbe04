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

// ErrOpen is returned by Do while the breaker is rejecting calls.
var ErrOpen = errors.New("resilience: breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
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
	}
	return "unknown"
}

// Settings configures a Breaker. Zero values fall back to the defaults
// applied in New.
type Settings struct {
	// Name labels metrics and log lines, usually the upstream provider.
	Name string
	// MinRequests is the number of recorded outcomes required before the
	// failure ratio is evaluated.
	MinRequests int
	// FailureRatio opens the breaker once failures/outcomes reaches it.
	FailureRatio float64
	// Cooldown is how long the breaker stays open before admitting a probe.
	Cooldown time.Duration
	// Window caps how many recent outcomes are remembered.
	Window int
	// Tripping decides which errors count as failures. Nil counts all.
	Tripping func(error) bool
	Metrics  *Metrics
	Logger   zerolog.Logger
	Clock    func() time.Time
}

// Breaker is a failure-ratio circuit breaker over a sliding window of
// outcomes. A single probe is admitted after the cooldown; its result
// decides between closing and reopening.
type Breaker struct {
	cfg Settings

	mu       sync.Mutex
	state    State
	outcomes []bool
	next     int
	filled   int
	failures int
	until    time.Time
	probing  bool
}

// New builds a Breaker in the closed state.
func New(cfg Settings) *Breaker {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MinRequests < 1 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Window < cfg.MinRequests {
		cfg.Window = max(cfg.MinRequests*2, 10)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	b := &Breaker{cfg: cfg, outcomes: make([]bool, cfg.Window)}
	cfg.Metrics.setState(cfg.Name, Closed)
	return b
}

// Name returns the breaker label.
func (b *Breaker) Name() string { return b.cfg.Name }

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn unless the breaker is open. Errors that Tripping accepts are
// recorded as failures, everything else as success. ErrOpen is returned
// without calling fn.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.admit(ctx) {
		b.cfg.Metrics.reject(b.cfg.Name)
		return ErrOpen
	}
	err := fn(ctx)
	failed := err != nil && (b.cfg.Tripping == nil || b.cfg.Tripping(err))
	b.record(ctx, !failed)
	return err
}

func (b *Breaker) admit(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.cfg.Clock().Before(b.until) {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (b *Breaker) record(ctx context.Context, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if ok {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if b.filled == len(b.outcomes) {
		if !b.outcomes[b.next] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.outcomes[b.next] = ok
	b.next = (b.next + 1) % len(b.outcomes)
	if !ok {
		b.failures++
	}
	if b.filled < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(b.filled) >= b.cfg.FailureRatio {
		b.moveLocked(ctx, Open)
	}
}

func (b *Breaker) moveLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.next, b.filled, b.failures = 0, 0, 0
	if to == Open {
		b.until = b.cfg.Clock().Add(b.cfg.Cooldown)
	}
	b.cfg.Metrics.transition(b.cfg.Name, from, to)

	log := b.cfg.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		log = *l
	}
	evt := log.Info().Str("breaker", b.cfg.Name).Str("from", from.String()).Str("to", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker state changed")
}
