// Package limiter bounds the number of concurrently running sub-tasks within
// one stage invocation.
//
// Submissions are admitted in FIFO order: each submission waits for the one
// before it to be admitted before it competes for a slot, and slots are
// handed out by a weighted semaphore.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var ErrPanic = errors.New("task panicked")

type Limiter struct {
	max int
	sem *semaphore.Weighted

	mu   sync.Mutex
	tail chan struct{}

	inFlight atomic.Int64
	peak     atomic.Int64
	queued   atomic.Int64
}

func New(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{max: n, sem: semaphore.NewWeighted(int64(n))}
}

func (l *Limiter) Max() int { return l.max }

// InFlight is the number of tasks currently running.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }

// Queued is the number of submitted tasks still waiting for a slot.
func (l *Limiter) Queued() int { return int(l.queued.Load()) }

// Peak is the highest InFlight value observed so far.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }

// Result is the pending outcome of a submitted task.
type Result[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func (r *Result[T]) Done() <-chan struct{} { return r.done }

// Wait blocks until the task has finished and returns its outcome.
func (r *Result[T]) Wait() (T, error) {
	<-r.done
	return r.value, r.err
}

// Future is a Result carrying only an error.
type Future = Result[struct{}]

// Submit queues task and returns immediately. If ctx ends before the task is
// admitted, the task never runs and the result carries ctx.Err().
func Submit[T any](ctx context.Context, l *Limiter, task func(context.Context) (T, error)) *Result[T] {
	r := &Result[T]{done: make(chan struct{})}
	if ctx == nil {
		ctx = context.Background()
	}

	admitted := make(chan struct{})
	l.mu.Lock()
	prev := l.tail
	l.tail = admitted
	l.mu.Unlock()
	l.queued.Add(1)

	go func() {
		defer close(r.done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
			}
		}
		err := l.sem.Acquire(ctx, 1)
		l.queued.Add(-1)
		close(admitted)
		if err != nil {
			r.err = err
			return
		}
		defer l.sem.Release(1)

		n := l.inFlight.Add(1)
		for {
			p := l.peak.Load()
			if n <= p || l.peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer l.inFlight.Add(-1)

		r.value, r.err = run(ctx, task)
	}()
	return r
}

// Go is Submit for tasks that only report an error.
func (l *Limiter) Go(ctx context.Context, task func(context.Context) error) *Future {
	return Submit(ctx, l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
}

// Wait blocks on every future and joins their errors.
func Wait(futures ...*Future) error {
	var errs []error
	for _, f := range futures {
		if f == nil {
			continue
		}
		if _, err := f.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func run[T any](ctx context.Context, task func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}

type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("%v: %v", ErrPanic, e.Value) }

func (e *PanicError) Unwrap() error { return ErrPanic }
