package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State of the breaker. Closed passes calls through, Open rejects them, and
// HalfOpen lets a limited number of probes decide whether to close again.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker guards calls to a flaky dependency. It exists so a dead crawler
// endpoint cannot slow the inbound message path down with per-message
// connection timeouts.
type Breaker struct {
	name        string
	maxFailures uint32
	cooldown    time.Duration
	probeQuota  uint32

	mu            sync.Mutex
	state         State
	failures      uint32
	probeCalls    uint32
	probeOK       uint32
	lastFailureAt time.Time

	logger *logrus.Logger
}

func New(name string, maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		probeQuota:  3,
		state:       StateClosed,
		logger:      logger,
	}
}

// Execute runs fn unless the breaker is rejecting calls. The callee's error
// is returned as-is; an OpenError means fn was never invoked.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.admit() {
		return &OpenError{Name: b.name, State: b.State()}
	}

	if err := fn(ctx); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeEnterHalfOpen()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probeCalls < b.probeQuota {
			b.probeCalls++
			return true
		}
		return false
	default:
		return false
	}
}

// maybeEnterHalfOpen moves Open to HalfOpen once the cooldown has elapsed.
// Caller must hold b.mu.
func (b *Breaker) maybeEnterHalfOpen() {
	if b.state == StateOpen && time.Since(b.lastFailureAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.probeCalls = 0
		b.probeOK = 0
		b.logger.WithField("breaker", b.name).Info("Circuit breaker half-open, probing")
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probeOK++
		if b.probeOK >= b.probeQuota {
			b.state = StateClosed
			b.failures = 0
			b.logger.WithField("breaker", b.name).Info("Circuit breaker closed after recovery")
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureAt = time.Now()

	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.maxFailures) {
		b.state = StateOpen
		b.logger.WithFields(logrus.Fields{
			"breaker":  b.name,
			"failures": b.failures,
		}).Warn("Circuit breaker opened")
	}
}

// State reports the current state, applying the cooldown transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeEnterHalfOpen()
	return b.state
}

// OpenError is returned when a call is rejected without being attempted.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s", e.Name, e.State)
}
