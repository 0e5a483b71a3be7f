// Package reqctx binds the acting identity to one unit of work.
//
// The binding lives in a context.Context created at the request boundary, so
// code nested anywhere below can attribute writes to an actor without the
// identity being threaded through every signature. Contexts are immutable:
// a sub-task started with a derived context keeps the binding it saw at spawn
// time, and concurrent requests never share one.
package reqctx

import (
	"context"
	"sync"
)

// Actor is the identity acting within a unit of work.
type Actor struct {
	ID   string
	Role string
}

type binding struct {
	actor     Actor
	hasActor  bool
	requestID string
}

type bindingKey struct{}

func current(ctx context.Context) binding {
	if ctx == nil {
		return binding{}
	}
	b, _ := ctx.Value(bindingKey{}).(binding)
	return b
}

// WithActor returns a child context bound to actor. A nil actor binds
// "no identity", hiding any actor bound further up.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	b := current(ctx)
	if actor == nil {
		b.actor, b.hasActor = Actor{}, false
	} else {
		b.actor, b.hasActor = *actor, true
	}
	return context.WithValue(ctx, bindingKey{}, b)
}

// WithRequestID returns a child context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	b := current(ctx)
	b.requestID = id
	return context.WithValue(ctx, bindingKey{}, b)
}

// ActorFrom returns the actor bound to ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	b := current(ctx)
	return b.actor, b.hasActor
}

// ActorID returns the bound actor id or "" when no identity is bound.
func ActorID(ctx context.Context) string {
	return current(ctx).actor.ID
}

// RequestIDFrom returns the request id bound to ctx or "".
func RequestIDFrom(ctx context.Context) string {
	return current(ctx).requestID
}

// Run executes fn as one unit of work bound to actor.
func Run(ctx context.Context, actor *Actor, fn func(ctx context.Context) error) error {
	return fn(WithActor(ctx, actor))
}

// Detach returns a context that carries the same binding as ctx but is not
// cancelled with it. Use it for work that must outlive the request.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), bindingKey{}, current(ctx))
}

// Group runs sub-tasks of one unit of work. Each sub-task receives the
// binding captured when Go was called.
type Group struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Go starts fn in a new goroutine with a snapshot of ctx's binding.
func (g *Group) Go(ctx context.Context, fn func(ctx context.Context) error) {
	snapshot := context.WithValue(ctx, bindingKey{}, current(ctx))
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(snapshot); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every sub-task returned and reports their errors.
func (g *Group) Wait() []error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errs
}
