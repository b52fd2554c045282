// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inprocess implements an ejb.Dispatcher over beans registered
// as Go functions.
package inprocess // import "httpremoting.io/ejb/inprocess"

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"httpremoting.io/ejb"
	"httpremoting.io/errors"
)

// Method implements one bean method.
type Method func(ctx context.Context, inv *ejb.Invocation) (*ejb.Response, error)

type beanKey struct {
	module ejb.ModuleID
	bean   string
}

// Dispatcher is an in-memory ejb.Dispatcher.
type Dispatcher struct {
	mu       sync.RWMutex
	methods  map[beanKey]map[string]Method
	stateful map[beanKey]bool
}

var _ ejb.Dispatcher = (*Dispatcher)(nil)

// New returns a Dispatcher with no beans.
func New() *Dispatcher {
	return &Dispatcher{
		methods:  make(map[beanKey]map[string]Method),
		stateful: make(map[beanKey]bool),
	}
}

// signature names a method overload.
func signature(method string, params []string) string {
	return method + "(" + strings.Join(params, ",") + ")"
}

// Register deploys fn as the method of the given name and parameter
// types on bean in module.
func (d *Dispatcher) Register(module ejb.ModuleID, bean, method string, params []string, fn Method) {
	k := beanKey{module, bean}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.methods[k] == nil {
		d.methods[k] = make(map[string]Method)
	}
	d.methods[k][signature(method, params)] = fn
}

// SetStateful marks bean in module as accepting sessions.
func (d *Dispatcher) SetStateful(module ejb.ModuleID, bean string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateful[beanKey{module, bean}] = true
}

// Invoke implements ejb.Dispatcher.
func (d *Dispatcher) Invoke(ctx context.Context, inv *ejb.Invocation) (*ejb.Response, error) {
	const op errors.Op = "inprocess.Invoke"
	k := beanKey{inv.Locator.ModuleID, inv.Locator.Bean}
	sig := signature(inv.Method, inv.ParamTypes)
	d.mu.RLock()
	fn, ok := d.methods[k][sig]
	d.mu.RUnlock()
	if !ok {
		return nil, errors.E(op, errors.NotExist, errors.Errorf("no method %s on bean %s/%s", sig, inv.Locator.Module, inv.Locator.Bean))
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.Canceled, err)
	}
	return fn(ctx, inv)
}

// OpenSession implements ejb.Dispatcher.
func (d *Dispatcher) OpenSession(ctx context.Context, loc ejb.Locator, _ ejb.TransactionInfo) ([]byte, error) {
	const op errors.Op = "inprocess.OpenSession"
	d.mu.RLock()
	ok := d.stateful[beanKey{loc.ModuleID, loc.Bean}]
	d.mu.RUnlock()
	if !ok {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("bean %s/%s is not stateful", loc.Module, loc.Bean))
	}
	id := uuid.New()
	return id[:], nil
}

// Modules implements ejb.Dispatcher.
func (d *Dispatcher) Modules() []ejb.ModuleID {
	d.mu.RLock()
	seen := make(map[ejb.ModuleID]bool)
	for k := range d.methods {
		seen[k.module] = true
	}
	d.mu.RUnlock()
	mods := make([]ejb.ModuleID, 0, len(seen))
	for m := range seen {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool {
		a, b := mods[i], mods[j]
		if a.App != b.App {
			return a.App < b.App
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Distinct < b.Distinct
	})
	return mods
}
