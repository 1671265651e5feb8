// Package now provides the current time in a way that tests can control
// through the context, so code that stamps rows with a time stays
// deterministic under test.
package now

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type contextKeyType string

// ContextKey is the context key that overrides the value returned by Now.
// The value stored can be a time.Time or a NowProvider.
const ContextKey contextKeyType = "overwriteNow"

// NowProvider is a function evaluated every time Now is called on a context
// that carries it. It must be safe for concurrent use if the context is
// shared between goroutines.
type NowProvider func() time.Time

// Now returns the current time, or the time carried by the context.
func Now(ctx context.Context) time.Time {
	if ts := ctx.Value(ContextKey); ts != nil {
		switch v := ts.(type) {
		case NowProvider:
			return v()
		case time.Time:
			return v
		default:
			panic(fmt.Sprintf("Unknown value for ContextKey: %v", v))
		}
	}
	return time.Now()
}

// WithTime returns a context where Now always returns ts.
func WithTime(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, ContextKey, ts)
}

// WithProvider returns a context where Now returns the result of p.
func WithProvider(ctx context.Context, p NowProvider) context.Context {
	return context.WithValue(ctx, ContextKey, p)
}

// Stepper is a NowProvider for tests that advances by a fixed step on every
// call, starting at Start.
type Stepper struct {
	Start time.Time
	Step  time.Duration

	mutex sync.Mutex
	calls int
}

// Now implements NowProvider.
func (s *Stepper) Now() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ts := s.Start.Add(time.Duration(s.calls) * s.Step)
	s.calls++
	return ts
}
