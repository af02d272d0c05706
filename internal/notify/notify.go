// Package notify delivers fire-and-forget run events. A sink may be slow,
// may panic or may drop events; none of that reaches the caller.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Event names emitted by the executor.
const (
	RunStarted       = "run.started"
	SandboxesSpawned = "sandboxes.spawned"
	ModeSelected     = "mode.selected"
	WinnerSelected   = "winner.selected"
	WinnerNone       = "winner.none"
	CleanupPerformed = "cleanup.performed"
	RunSummary       = "run.summary"
)

// Sink receives events. Notify must not be relied on for control flow.
type Sink interface {
	Notify(event string, params map[string]string)
}

type SinkFunc func(event string, params map[string]string)

func (f SinkFunc) Notify(event string, params map[string]string) { f(event, params) }

// Nop discards everything.
var Nop Sink = SinkFunc(func(string, map[string]string) {})

type safe struct {
	next   Sink
	logger *slog.Logger
}

// Safe wraps next so a panicking sink is logged instead of propagated.
func Safe(next Sink, logger *slog.Logger) Sink {
	if next == nil {
		return Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return safe{next: next, logger: logger}
}

func (s safe) Notify(event string, params map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("notification sink panicked", "event", event, "panic", fmt.Sprint(r))
		}
	}()
	s.next.Notify(event, params)
}

// Log writes each event as a structured log line.
func Log(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return SinkFunc(func(event string, params map[string]string) {
		args := make([]any, 0, 2+2*len(params))
		args = append(args, "event", event)
		for k, v := range params {
			args = append(args, k, v)
		}
		logger.Info("notification", args...)
	})
}

// Multi fans an event out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(event string, params map[string]string) {
		for _, s := range sinks {
			s.Notify(event, params)
		}
	})
}

const asyncBufferSize = 64

type envelope struct {
	event  string
	params map[string]string
}

// Async delivers events to a sink from a background goroutine. Notify never
// blocks; when the buffer is full the event is dropped.
type Async struct {
	next   Sink
	logger *slog.Logger
	ch     chan envelope
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAsync(next Sink, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:   Safe(next, logger),
		logger: logger,
		ch:     make(chan envelope, asyncBufferSize),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for env := range a.ch {
		a.next.Notify(env.event, env.params)
	}
}

func (a *Async) Notify(event string, params map[string]string) {
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- envelope{event: event, params: cp}:
	default:
		a.dropped.Add(1)
		a.logger.Warn("notification dropped (buffer full)", "event", event)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (a *Async) Dropped() int {
	return int(a.dropped.Load())
}

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
}
