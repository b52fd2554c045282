// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"context"
	"sync"

	"httpremoting.io/errors"
)

// Result is a single-assignment slot for the outcome of decoding a body.
// The first call to Complete or Fail settles it; later calls have no effect.
// Every observer sees the same terminal value.
type Result[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	val       T
	err       error
	callbacks []func(T, error)
}

// NewResult returns an unsettled Result.
func NewResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// Complete settles r with v. It reports whether this call settled r.
func (r *Result[T]) Complete(v T) bool {
	return r.settle(v, nil)
}

// Fail settles r with err. It reports whether this call settled r.
func (r *Result[T]) Fail(err error) bool {
	if err == nil {
		err = errors.E(errors.Op("codec.Fail"), errors.Internal, errors.Str("nil error"))
	}
	var zero T
	return r.settle(zero, err)
}

func (r *Result[T]) settle(v T, err error) bool {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return false
	}
	r.settled = true
	r.val, r.err = v, err
	callbacks := r.callbacks
	r.callbacks = nil
	close(r.done)
	r.mu.Unlock()
	for _, fn := range callbacks {
		fn(v, err)
	}
	return true
}

// Done returns a channel that is closed once r is settled.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until r is settled or ctx is done.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.E(errors.Op("codec.Wait"), errors.Canceled, ctx.Err())
	}
}

// OnComplete arranges for fn to run with the terminal value. If r is
// already settled fn runs before OnComplete returns; otherwise it runs in
// the goroutine that settles r.
func (r *Result[T]) OnComplete(fn func(T, error)) {
	r.mu.Lock()
	if !r.settled {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn(r.val, r.err)
}
