package app

import (
	"context"
	"sync/atomic"

	"alertrules/internal/actions"
	"alertrules/internal/notifyqueue"
	"alertrules/internal/rules"
)

// dispatcherRef lets reload swap the action dispatcher under running processors.
type dispatcherRef struct {
	current atomic.Pointer[actions.Dispatcher]
}

func newDispatcherRef(initial *actions.Dispatcher) *dispatcherRef {
	ref := &dispatcherRef{}
	ref.swap(initial)
	return ref
}

func (r *dispatcherRef) swap(next *actions.Dispatcher) {
	r.current.Store(next)
}

// DispatchAll forwards to the current dispatcher.
func (r *dispatcherRef) DispatchAll(ctx context.Context, groups []rules.FutureGroup) error {
	return r.current.Load().DispatchAll(ctx, groups)
}

// Deliver forwards queued jobs to the current dispatcher.
func (r *dispatcherRef) Deliver(ctx context.Context, job notifyqueue.Job) error {
	return r.current.Load().Deliver(ctx, job)
}
