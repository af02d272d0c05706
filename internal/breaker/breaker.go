// Package breaker isolates persistently failing worlds. A breaker refuses
// attempts after a run of consecutive failures and lets a single trial
// through once its cool-down has passed.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Call when the breaker refuses the attempt.
var ErrOpen = errors.New("circuit open")

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
		return "half-open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "closed", "":
		*s = Closed
	case "open":
		*s = Open
	case "half-open":
		*s = HalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", b)
	}
	return nil
}

type Settings struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

var DefaultSettings = Settings{FailureThreshold: 3, Cooldown: 5 * time.Minute}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = DefaultSettings.FailureThreshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultSettings.Cooldown
	}
	return s
}

// Counts is a point-in-time view of a breaker.
type Counts struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastTransition      time.Time `json:"last_transition,omitempty"`
}

type Breaker struct {
	settings Settings
	now      func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	changedAt   time.Time
	trial       bool // a half-open trial is in flight
}

func New(settings Settings) *Breaker {
	return &Breaker{settings: settings.withDefaults(), now: time.Now}
}

// WithClock replaces the breaker's time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
	return b
}

// State reports the current state. An open breaker whose cool-down has
// elapsed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

func (b *Breaker) currentLocked() State {
	if b.state == Open && b.now().Sub(b.changedAt) >= b.settings.Cooldown {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		State:               b.currentLocked(),
		ConsecutiveFailures: b.failures,
		LastFailure:         b.lastFailure,
		LastTransition:      b.changedAt,
	}
}

// Ignore marks err as saying nothing about the protected operation's
// health, so Call records neither success nor failure for it.
func Ignore(err error) error {
	if err == nil {
		return nil
	}
	return ignored{err}
}

type ignored struct{ err error }

func (e ignored) Error() string { return e.err.Error() }
func (e ignored) Unwrap() error { return e.err }

// Call runs op if the breaker permits it and records the outcome. The lock
// is not held while op runs. An op that ends with context.Canceled, or an
// error wrapped by Ignore, was abandoned by its caller and is recorded as
// neither success nor failure.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := op(ctx)
	var ig ignored
	if errors.Is(err, context.Canceled) || errors.As(err, &ig) {
		b.release()
		return err
	}
	b.record(err == nil)
	return err
}

// Execute is Call for operations that produce a value.
func Execute[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = op(ctx)
		return err
	})
	return out, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentLocked() {
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.transitionLocked(HalfOpen)
		b.trial = true
	}
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	b.trial = false
	b.mu.Unlock()
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasTrial := b.trial
	b.trial = false
	if success {
		b.failures = 0
		if b.state != Closed {
			b.transitionLocked(Closed)
		}
		return
	}
	b.failures++
	b.lastFailure = b.now()
	if wasTrial || b.failures >= b.settings.FailureThreshold {
		b.transitionLocked(Open)
	}
}

func (b *Breaker) transitionLocked(s State) {
	b.state = s
	b.changedAt = b.now()
}

// Reset closes the breaker and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	b.transitionLocked(Closed)
}

// restore loads persisted counts. A persisted half-open state becomes open
// with its original transition time so the cool-down still applies.
func (b *Breaker) restore(c Counts) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = c.State
	if b.state == HalfOpen {
		b.state = Open
	}
	b.failures = c.ConsecutiveFailures
	b.lastFailure = c.LastFailure
	b.changedAt = c.LastTransition
	b.trial = false
}
