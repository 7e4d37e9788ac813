package mediarelay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/platform/retry"
	"github.com/yutopp/go-rtmp/handshake"
)

const (
	defaultProbeTimeout = 2 * time.Second
	breakerDelay        = 30 * time.Second
)

// The relay is a separate process that needs a moment to bind its port.
var defaultReadyPolicy = retry.Policy{
	MaxAttempts:    8,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     4 * time.Second,
}

// Probe checks that the RTMP relay completes a handshake.
type Probe struct {
	addr    string
	timeout time.Duration
	ready   retry.Policy
	breaker circuitbreaker.CircuitBreaker[any]
	metrics *metrics.MediaMetrics
}

// NewProbe creates a probe for addr (host:port). m may be nil.
func NewProbe(addr string, m *metrics.MediaMetrics) *Probe {
	p := &Probe{addr: addr, timeout: defaultProbeTimeout, ready: defaultReadyPolicy, metrics: m}
	p.breaker = newBreaker(m)
	return p
}

// newBreaker opens after 60% of at least 5 probes in 10s fail.
func newBreaker(m *metrics.MediaMetrics) circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(breakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "rtmp_relay",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.RelayBreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// Ready is Check behind the circuit breaker. Once the relay has failed
// repeatedly, readiness fails without dialing until the breaker half-opens.
func (p *Probe) Ready(ctx context.Context) error {
	if !p.breaker.TryAcquirePermit() {
		return fmt.Errorf("rtmp relay at %s: %w", p.addr, circuitbreaker.ErrOpen)
	}
	if err := p.Check(ctx); err != nil {
		p.breaker.RecordError(err)
		return err
	}
	p.breaker.RecordSuccess()
	return nil
}

// WaitReady polls Check until the relay answers, giving up after the ready policy's attempts.
func (p *Probe) WaitReady(ctx context.Context, clock clockwork.Clock) error {
	policy := p.ready
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.DebugContext(ctx, "RTMP relay not ready yet", "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.Do(ctx, clock, policy, retry.Transient, p.Check)
}

// Check dials the relay and completes an RTMP handshake. The connection
// carries a deadline and is closed when ctx ends, so a relay that accepts but
// never answers cannot pin the dial.
func (p *Probe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.handshake(ctx); err != nil {
		if p.metrics != nil {
			p.metrics.RelayProbeFailure.Inc()
		}
		return fmt.Errorf("rtmp relay at %s: %w", p.addr, err)
	}
	return nil
}

func (p *Probe) handshake(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	if err := handshake.HandshakeWithServer(conn, conn, &handshake.Config{}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
