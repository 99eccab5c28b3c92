package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// ErrExecutorClosed is returned when submitting work to a closed executor.
var ErrExecutorClosed = ouerrors.New("lua executor is closed")

// errQueueFull is returned by Submit when the queue has no room.
var errQueueFull = ouerrors.New("lua executor queue full")

// PanicError wraps a Go panic raised while running Lua work.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type luaCall struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Executor serializes all operations on one Lua state through a single
// goroutine. gopher-lua states are not goroutine-safe, so every access to L
// goes through Execute or Submit.
//
// The state is closed by the executor goroutine when Run returns.
type Executor struct {
	L     *lua.LState
	queue chan *luaCall

	closed    atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewExecutor creates an executor for L. The queue size bounds how many
// operations may be pending.
func NewExecutor(L *lua.LState, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Executor{
		L:       L,
		queue:   make(chan *luaCall, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run processes queued operations until Close is called. It must run on
// its own goroutine, which becomes the owner of the Lua state.
func (e *Executor) Run() {
	defer close(e.stopped)
	defer e.L.Close()

	for {
		select {
		case <-e.done:
			e.drain(ErrExecutorClosed)
			return
		case call := <-e.queue:
			call.result <- e.run(call)
			close(call.result)
		}
	}
}

func (e *Executor) run(call *luaCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return call.fn(e.L)
}

func (e *Executor) drain(err error) {
	for {
		select {
		case call := <-e.queue:
			call.result <- err
			close(call.result)
		default:
			return
		}
	}
}

// Execute runs fn on the executor goroutine and waits for it. If ctx ends
// first, Execute returns ctx.Err() without waiting; the queued operation
// still runs later.
func (e *Executor) Execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	call := &luaCall{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
	}
	e.reclaim()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-call.result:
		return callResult(err, ok)
	case <-e.stopped:
		select {
		case err, ok := <-call.result:
			return callResult(err, ok)
		default:
			return ErrExecutorClosed
		}
	}
}

func callResult(err error, ok bool) error {
	if !ok {
		return ErrExecutorClosed
	}
	return err
}

// Submit queues fn without waiting. onDone, if set, receives the result on
// the executor goroutine.
func (e *Executor) Submit(fn func(L *lua.LState) error, onDone func(error)) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	call := &luaCall{
		fn: func(L *lua.LState) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r}
				}
				if onDone != nil {
					onDone(err)
				}
			}()
			return fn(L)
		},
		result: make(chan error, 1),
	}

	select {
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
	default:
		return errQueueFull
	}
	if e.reclaim() {
		return ErrExecutorClosed
	}
	return nil
}

// reclaim fails everything still queued once the executor is closed. A Close
// can land between the closed check and the enqueue, after Run has already
// drained, and nothing else would read the queue again.
func (e *Executor) reclaim() bool {
	select {
	case <-e.stopped:
	default:
		if !e.closed.Load() {
			return false
		}
	}
	e.drain(ErrExecutorClosed)
	return true
}

// Close stops the executor. Pending operations fail with ErrExecutorClosed.
// It does not wait for an operation already running; see Wait.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// Wait blocks until Run has returned and the Lua state is closed, or ctx ends.
func (e *Executor) Wait(ctx context.Context) error {
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed returns true if the executor has been closed.
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}
