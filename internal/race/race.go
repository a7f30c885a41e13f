// Package race runs several independent completion signals against a
// wait budget and keeps whichever resolves first.
package race

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned by First when no arm resolved in time.
var ErrBudgetExceeded = errors.New("wait budget exceeded")

const (
	budgetArm    = "budget"
	cancelledArm = "cancelled"
)

// Latch holds the first value resolved into it. Later resolutions are
// ignored.
type Latch[T any] struct {
	once   sync.Once
	done   chan struct{}
	value  T
	winner string
}

func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{done: make(chan struct{})}
}

// Resolve stores v if the latch is still open and reports whether this
// call won.
func (l *Latch[T]) Resolve(arm string, v T) bool {
	won := false
	l.once.Do(func() {
		l.value = v
		l.winner = arm
		won = true
		close(l.done)
	})
	return won
}

// Done is closed once the latch resolves.
func (l *Latch[T]) Done() <-chan struct{} { return l.done }

// Resolved reports whether the latch has a value.
func (l *Latch[T]) Resolved() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Value returns the resolved value and the name of the arm that won.
func (l *Latch[T]) Value() (T, string, bool) {
	if !l.Resolved() {
		var zero T
		return zero, "", false
	}
	return l.value, l.winner, true
}

// Arm is one completion signal. It should return when ctx is done. An
// arm that returns without resolving simply drops out of the race.
type Arm[T any] struct {
	Name string
	Run  func(ctx context.Context, resolve func(T) bool)
}

// Result is the outcome of a race.
type Result[T any] struct {
	Value  T
	Winner string
}

// First runs every arm concurrently and returns the first resolved value.
// All arms are cancelled and waited for before First returns. It fails
// with ErrBudgetExceeded when budget elapses first, or with the parent
// context's error when ctx ends first.
func First[T any](ctx context.Context, budget time.Duration, arms ...Arm[T]) (Result[T], error) {
	latch := NewLatch[T]()

	armCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, arm := range arms {
		wg.Add(1)
		go func(arm Arm[T]) {
			defer wg.Done()
			arm.Run(armCtx, func(v T) bool {
				return latch.Resolve(arm.Name, v)
			})
		}(arm)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	var zero T
	select {
	case <-latch.Done():
	case <-timer.C:
		// closing the latch here decides any arm resolving at the same instant
		if latch.Resolve(budgetArm, zero) {
			return Result[T]{}, ErrBudgetExceeded
		}
	case <-ctx.Done():
		if latch.Resolve(cancelledArm, zero) {
			return Result[T]{}, ctx.Err()
		}
	}
	v, winner, _ := latch.Value()
	return Result[T]{Value: v, Winner: winner}, nil
}
