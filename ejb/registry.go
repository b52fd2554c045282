// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ejb

import (
	"sync"

	"httpremoting.io/errors"
)

// CancelHandle is told to cancel one invocation. If interrupt is false
// only an invocation that has not started is abandoned. Handles are
// compared with ==, so they must be comparable.
type CancelHandle interface {
	Cancel(interrupt bool)
}

// Registry maps invocation identifiers to the handles that cancel them.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	pending map[string]CancelHandle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]CancelHandle)}
}

// Register records h as the handle of invocation id. It fails if id is
// already registered.
func (r *Registry) Register(id string, h CancelHandle) error {
	const op errors.Op = "ejb.Register"
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.pending[id]; dup {
		return errors.E(op, errors.Exist, errors.Errorf("invocation %q already in progress", id))
	}
	r.pending[id] = h
	return nil
}

// Complete removes the registration of id if it still belongs to h.
func (r *Registry) Complete(id string, h CancelHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.pending[id]; ok && cur == h {
		delete(r.pending, id)
	}
}

// Cancel removes the registration of id and cancels its handle. It
// reports whether a handle was found; a miss means the invocation has
// completed or never existed.
func (r *Registry) Cancel(id string, interrupt bool) bool {
	r.mu.Lock()
	h, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel(interrupt)
	return true
}

// CancelAll removes every registration and cancels its handle. It
// returns the number of handles cancelled.
func (r *Registry) CancelAll(interrupt bool) int {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]CancelHandle)
	r.mu.Unlock()
	for _, h := range pending {
		h.Cancel(interrupt)
	}
	return len(pending)
}

// Len returns the number of registered invocations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
