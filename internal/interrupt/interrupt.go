// Package interrupt turns process signals into context cancellation.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExitCode is the status used when a second signal forces termination.
const ExitCode = 130

// Source cancels a context on the first interrupt and forces process exit
// on the second. It fires at most once per process and is never reset.
type Source struct {
	signals <-chan os.Signal
	exit    func(int)
	stop    func()
	onFirst func(os.Signal)

	mu    sync.Mutex
	fired bool
}

// Option customizes a Source.
type Option func(*Source)

// WithSignals replaces the OS signal channel, mainly for tests.
func WithSignals(ch <-chan os.Signal) Option {
	return func(s *Source) {
		s.signals = ch
		s.stop = func() {}
	}
}

// WithExit replaces os.Exit.
func WithExit(exit func(int)) Option {
	return func(s *Source) {
		s.exit = exit
	}
}

// OnFirst registers a hook run when the first signal arrives, before the
// context is canceled.
func OnFirst(fn func(os.Signal)) Option {
	return func(s *Source) {
		s.onFirst = fn
	}
}

// New creates a source listening for SIGINT and SIGTERM.
func New(opts ...Option) *Source {
	s := &Source{
		exit: os.Exit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		s.signals = ch
		s.stop = func() { signal.Stop(ch) }
	}
	return s
}

// Arm derives a context from parent that is canceled by the first signal.
// The returned stop function releases the listener; it must be called
// once the run is over.
func (s *Source) Arm(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	var once sync.Once
	quit := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for {
			select {
			case <-quit:
				return
			case sig := <-s.signals:
				if s.markFired() {
					if s.onFirst != nil {
						s.onFirst(sig)
					}
					cancel(context.Canceled)
					continue
				}
				s.exit(ExitCode)
				return
			}
		}
	}()

	stop := func() {
		once.Do(func() {
			close(quit)
			<-finished
			s.stop()
			cancel(nil)
		})
	}
	return ctx, stop
}

// Fired reports whether an interrupt has been received.
func (s *Source) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

func (s *Source) markFired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return false
	}
	s.fired = true
	return true
}
