// Package guard provides the exclusive section every value-moving pool
// operation runs in. Calls are serialized; a call made from inside a held
// section (a collaborator calling back into the engine) is refused rather
// than deadlocking.
package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrReentrant is returned when Enter is called with a context that is
// already inside the section.
var ErrReentrant = errors.New("guard: reentrant call")

// Guard serializes value-moving operations. Enter blocks until the section
// is free and returns a context marked as inside it plus a release func.
type Guard interface {
	Enter(ctx context.Context) (context.Context, func(), error)
}

type heldKey struct{}

// Held reports whether ctx was produced by Enter.
func Held(ctx context.Context) bool {
	v, _ := ctx.Value(heldKey{}).(bool)
	return v
}

func mark(ctx context.Context) context.Context {
	return context.WithValue(ctx, heldKey{}, true)
}

// Local is an in-process Guard backed by a mutex.
type Local struct {
	mu sync.Mutex
}

// NewLocal creates a process-wide guard.
func NewLocal() *Local {
	return &Local{}
}

func (g *Local) Enter(ctx context.Context) (context.Context, func(), error) {
	if Held(ctx) {
		return ctx, func() {}, ErrReentrant
	}
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, err
	}
	g.mu.Lock()
	var once sync.Once
	return mark(ctx), func() { once.Do(g.mu.Unlock) }, nil
}
