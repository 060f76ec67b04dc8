// Package lazy provides a deferred value: a computation evaluated at most
// once, on first Force, whose result is cached for every later Force.
package lazy

import (
	"fmt"
	"sync"
)

// Value is a deferred, single-execution computation.
// The zero value is not usable; create one with New or Forced.
type Value struct {
	once sync.Once
	fn   func() (any, error)
	done chan struct{}

	// These fields are written once before done is closed
	// and are only read after done is closed.
	val any
	err error
}

// PanicError is returned by Force when the deferred computation panicked.
type PanicError struct {
	Recovered any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("lazy: computation panicked: %v", e.Recovered)
}

// New returns an unrealized Value that will run fn on first Force.
func New(fn func() (any, error)) *Value {
	return &Value{
		fn:   fn,
		done: make(chan struct{}),
	}
}

// Forced returns an already realized Value holding v.
func Forced(v any) *Value {
	d := &Value{
		done: make(chan struct{}),
		val:  v,
	}
	d.once.Do(func() {})
	close(d.done)
	return d
}

// Force evaluates the computation if no caller has yet, blocks until the
// single evaluation completes, and returns its result.
func (d *Value) Force() (any, error) {
	d.once.Do(d.run)
	<-d.done
	return d.val, d.err
}

func (d *Value) run() {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			d.val, d.err = nil, &PanicError{Recovered: r}
		}
	}()
	fn := d.fn
	d.fn = nil
	d.val, d.err = fn()
}

// Realized reports whether the computation has completed.
func (d *Value) Realized() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Failed reports whether the computation completed with an error.
func (d *Value) Failed() bool {
	return d.Realized() && d.err != nil
}

// Peek returns the result without forcing. ok is false until realized.
func (d *Value) Peek() (v any, ok bool, err error) {
	if !d.Realized() {
		return nil, false, nil
	}
	return d.val, true, d.err
}
