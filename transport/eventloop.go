// Package transport implements the event-loop and transport-profile
// abstractions the PubSub control plane depends on but does not itself
// specify (spec.md §1: "the transport event loop... referenced only by
// interface"). EventLoop is the interface the rest of the module depends
// on; LoopEventLoop is one concrete, single-process implementation kept
// just complete enough to drive ticks, socket callbacks and delayed
// frees end to end in tests — modeled on the teacher's session.Manager
// expiry-checker goroutine and network.Pool cleanup-loop idioms.
package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CallbackID identifies a registered periodic timer so it can be removed
// later (spec.md §5: "Cyclic callbacks are cancelled by id at removal").
type CallbackID uint64

// EventLoop is the scheduling abstraction every Connection either owns
// exclusively or shares with the server default (spec.md §4.2 "Connect").
// Every callback registered through it runs with the service mutex held,
// by convention of the caller wrapping fn before registering it — the
// loop itself knows nothing about PubSub locking.
type EventLoop interface {
	// AddCyclicCallback registers fn to run every interval, starting
	// after the first interval elapses. Returns an id usable with
	// RemoveCyclicCallback. At most one concurrent invocation of fn runs
	// at a time; a slow invocation delays (not overlaps) the next tick —
	// "miss-tolerant", per spec.md §5's default timer policy.
	AddCyclicCallback(interval time.Duration, fn func()) CallbackID

	// RemoveCyclicCallback cancels a previously registered callback and
	// returns immediately, without waiting for any in-flight invocation to
	// finish. fn is assumed to acquire the service mutex itself (spec.md
	// §5), and every call site reaches RemoveCyclicCallback while already
	// holding that same mutex, so mutual exclusion between a racing
	// invocation and the caller's own teardown is already guaranteed by
	// the mutex — an additional blocking join here would only deadlock
	// against an invocation waiting on that same mutex, or, when a
	// callback cancels its own registration, against itself. Close waits
	// for every timer goroutine to fully exit instead, off any
	// service-mutex-held path.
	RemoveCyclicCallback(id CallbackID)

	// AddDelayedCallback enqueues fn to run once, after the current and
	// any previously queued delayed callbacks, on the event loop's
	// single delayed-callback thread. This is the "graveyard queue"
	// final-deallocation mechanism of spec.md §5.
	AddDelayedCallback(fn func())

	// Close stops accepting new work and waits for every timer goroutine
	// and the delayed-callback drain goroutine to exit.
	Close() error
}

type cyclicTimer struct {
	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
}

// LoopEventLoop is a cooperative, single-process EventLoop: one ticker
// goroutine per registered cyclic callback, plus one dedicated goroutine
// draining delayed callbacks strictly in FIFO order (so a Connection's
// delayed free can never run ahead of an earlier one queued for the same
// loop).
type LoopEventLoop struct {
	mu     sync.Mutex
	timers map[CallbackID]*cyclicTimer
	nextID atomic.Uint64

	delayed   chan func()
	closeOnce sync.Once
	closed    atomic.Bool

	group *errgroup.Group
}

// NewLoopEventLoop creates a ready-to-use event loop with a bounded
// delayed-callback queue.
func NewLoopEventLoop() *LoopEventLoop {
	l := &LoopEventLoop{
		timers:  make(map[CallbackID]*cyclicTimer),
		delayed: make(chan func(), 4096),
	}
	l.group = &errgroup.Group{}
	l.group.Go(l.drainDelayed)
	return l
}

func (l *LoopEventLoop) AddCyclicCallback(interval time.Duration, fn func()) CallbackID {
	id := CallbackID(l.nextID.Add(1))

	t := &cyclicTimer{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	l.mu.Lock()
	l.timers[id] = t
	l.mu.Unlock()

	go func() {
		defer close(t.doneCh)
		defer t.ticker.Stop()
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.stopCh:
				return
			}
		}
	}()

	return id
}

func (l *LoopEventLoop) RemoveCyclicCallback(id CallbackID) {
	l.mu.Lock()
	t, ok := l.timers[id]
	if ok {
		delete(l.timers, id)
	}
	l.mu.Unlock()

	if !ok {
		return
	}
	close(t.stopCh)
}

func (l *LoopEventLoop) AddDelayedCallback(fn func()) {
	if l.closed.Load() {
		return
	}
	l.delayed <- fn
}

func (l *LoopEventLoop) drainDelayed() error {
	for fn := range l.delayed {
		fn()
	}
	return nil
}

func (l *LoopEventLoop) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)

		l.mu.Lock()
		timers := make([]*cyclicTimer, 0, len(l.timers))
		for _, t := range l.timers {
			timers = append(timers, t)
		}
		l.timers = make(map[CallbackID]*cyclicTimer)
		l.mu.Unlock()

		// Unlike RemoveCyclicCallback, Close is never called while the
		// service mutex is held, so joining every timer goroutine here
		// cannot deadlock; it's what makes Close a clean, no-leaked-
		// goroutines shutdown.
		for _, t := range timers {
			close(t.stopCh)
		}
		for _, t := range timers {
			<-t.doneCh
		}

		close(l.delayed)
	})
	return l.group.Wait()
}

// PendingDelayedCallbacks reports the number of delayed callbacks still
// queued, exposed for the telemetry metrics hook (spec.md SPEC_FULL
// addendum: "reports its outstanding delayed-callback count").
func (l *LoopEventLoop) PendingDelayedCallbacks() int {
	return len(l.delayed)
}
