// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inprocess implements an in-memory naming.Namespace.
//
// Names are slash separated. Empty components are ignored and each
// component is put in Unicode normalization form C, so "a//b/" and
// "a/b" name the same entry.
package inprocess // import "httpremoting.io/naming/inprocess"

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"httpremoting.io/errors"
	"httpremoting.io/naming"
)

// MaxLinks bounds the links Lookup follows before giving up.
const MaxLinks = 8

// Namespace is an in-memory naming.Namespace.
type Namespace struct {
	mu      sync.RWMutex
	entries map[string]*entry // keyed by clean name; "" is the root
}

type entry struct {
	context bool
	value   interface{}
}

var _ naming.Namespace = (*Namespace)(nil)

// New returns a Namespace holding only the root context.
func New() *Namespace {
	return &Namespace{entries: map[string]*entry{"": {context: true}}}
}

// Clean returns the canonical form of name.
func Clean(name string) (string, error) {
	const op errors.Op = "naming/inprocess.Clean"
	var elems []string
	for _, elem := range strings.Split(name, "/") {
		switch elem {
		case "", ".":
			continue
		case "..":
			return "", errors.E(op, errors.Name(name), errors.Syntax, errors.Str("parent reference in name"))
		}
		elems = append(elems, norm.NFC.String(elem))
	}
	return strings.Join(elems, "/"), nil
}

func parent(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

func base(name string) string {
	return name[strings.LastIndexByte(name, '/')+1:]
}

// context reports whether name is a context. The lock must be held.
func (ns *Namespace) context(op errors.Op, name string) error {
	e, ok := ns.entries[name]
	if !ok {
		return errors.E(op, errors.Name(name), errors.NotExist, errors.Str("no such context"))
	}
	if !e.context {
		return errors.E(op, errors.Name(name), errors.Invalid, errors.Str("not a context"))
	}
	return nil
}

func (ns *Namespace) get(op errors.Op, name string) (*entry, error) {
	e, ok := ns.entries[name]
	if !ok {
		return nil, errors.E(op, errors.Name(name), errors.NotExist)
	}
	return e, nil
}

// Lookup implements naming.Namespace.
func (ns *Namespace) Lookup(name string) (interface{}, error) {
	const op errors.Op = "naming/inprocess.Lookup"
	n, err := Clean(name)
	if err != nil {
		return nil, errors.E(op, err)
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	for hops := 0; ; hops++ {
		e, err := ns.get(op, n)
		if err != nil {
			return nil, err
		}
		if e.context {
			return &naming.Reference{Name: n}, nil
		}
		link, ok := e.value.(*naming.LinkRef)
		if !ok {
			return e.value, nil
		}
		if hops == MaxLinks {
			return nil, errors.E(op, errors.Name(name), errors.Invalid, errors.Errorf("more than %d links", MaxLinks))
		}
		if n, err = Clean(link.Target); err != nil {
			return nil, errors.E(op, err)
		}
	}
}

// LookupLink implements naming.Namespace.
func (ns *Namespace) LookupLink(name string) (interface{}, error) {
	const op errors.Op = "naming/inprocess.LookupLink"
	n, err := Clean(name)
	if err != nil {
		return nil, errors.E(op, err)
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	e, err := ns.get(op, n)
	if err != nil {
		return nil, err
	}
	if e.context {
		return &naming.Reference{Name: n}, nil
	}
	return e.value, nil
}

// Bind implements naming.Namespace.
func (ns *Namespace) Bind(name string, value interface{}) error {
	return ns.bind("naming/inprocess.Bind", name, value, false)
}

// Rebind implements naming.Namespace.
func (ns *Namespace) Rebind(name string, value interface{}) error {
	return ns.bind("naming/inprocess.Rebind", name, value, true)
}

func (ns *Namespace) bind(op errors.Op, name string, value interface{}, replace bool) error {
	n, err := Clean(name)
	if err != nil {
		return errors.E(op, err)
	}
	if n == "" {
		return errors.E(op, errors.Invalid, errors.Str("cannot bind the root"))
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if err := ns.context(op, parent(n)); err != nil {
		return err
	}
	if e, ok := ns.entries[n]; ok {
		if !replace {
			return errors.E(op, errors.Name(n), errors.Exist)
		}
		if e.context {
			return errors.E(op, errors.Name(n), errors.Invalid, errors.Str("cannot rebind a context"))
		}
	}
	ns.entries[n] = &entry{value: value}
	return nil
}

// Unbind implements naming.Namespace. Unbinding a name that is not
// bound in an existing context succeeds.
func (ns *Namespace) Unbind(name string) error {
	const op errors.Op = "naming/inprocess.Unbind"
	n, err := Clean(name)
	if err != nil {
		return errors.E(op, err)
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if err := ns.context(op, parent(n)); err != nil {
		return err
	}
	e, ok := ns.entries[n]
	if !ok {
		return nil
	}
	if e.context {
		return errors.E(op, errors.Name(n), errors.Invalid, errors.Str("cannot unbind a context"))
	}
	delete(ns.entries, n)
	return nil
}

// Rename implements naming.Namespace. Renaming a context moves
// everything beneath it.
func (ns *Namespace) Rename(oldName, newName string) error {
	const op errors.Op = "naming/inprocess.Rename"
	from, err := Clean(oldName)
	if err != nil {
		return errors.E(op, err)
	}
	to, err := Clean(newName)
	if err != nil {
		return errors.E(op, err)
	}
	if from == "" || to == "" {
		return errors.E(op, errors.Invalid, errors.Str("cannot rename the root"))
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	e, err := ns.get(op, from)
	if err != nil {
		return err
	}
	if _, ok := ns.entries[to]; ok {
		return errors.E(op, errors.Name(to), errors.Exist)
	}
	if err := ns.context(op, parent(to)); err != nil {
		return err
	}
	if e.context && strings.HasPrefix(to+"/", from+"/") {
		return errors.E(op, errors.Name(to), errors.Invalid, errors.Str("cannot move a context beneath itself"))
	}
	delete(ns.entries, from)
	ns.entries[to] = e
	if e.context {
		prefix := from + "/"
		for k, sub := range ns.entries {
			if strings.HasPrefix(k, prefix) {
				delete(ns.entries, k)
				ns.entries[to+"/"+k[len(prefix):]] = sub
			}
		}
	}
	return nil
}

// List implements naming.Namespace.
func (ns *Namespace) List(name string) ([]naming.NameClass, error) {
	bindings, err := ns.children("naming/inprocess.List", name)
	if err != nil {
		return nil, err
	}
	out := make([]naming.NameClass, len(bindings))
	for i, b := range bindings {
		out[i] = b.NameClass
	}
	return out, nil
}

// ListBindings implements naming.Namespace.
func (ns *Namespace) ListBindings(name string) ([]naming.Binding, error) {
	return ns.children("naming/inprocess.ListBindings", name)
}

// children returns the bindings directly beneath the context name,
// sorted by name.
func (ns *Namespace) children(op errors.Op, name string) ([]naming.Binding, error) {
	n, err := Clean(name)
	if err != nil {
		return nil, errors.E(op, err)
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if err := ns.context(op, n); err != nil {
		return nil, err
	}
	var out []naming.Binding
	for k, e := range ns.entries {
		if k == "" || parent(k) != n {
			continue
		}
		b := naming.Binding{NameClass: naming.NameClass{Name: base(k)}}
		if e.context {
			b.Class = naming.ContextClass
			b.Value = &naming.Reference{Name: k}
		} else {
			b.Class = fmt.Sprintf("%T", e.value)
			b.Value = e.value
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateSubcontext implements naming.Namespace.
func (ns *Namespace) CreateSubcontext(name string) (*naming.Reference, error) {
	const op errors.Op = "naming/inprocess.CreateSubcontext"
	n, err := Clean(name)
	if err != nil {
		return nil, errors.E(op, err)
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.entries[n]; ok {
		return nil, errors.E(op, errors.Name(n), errors.Exist)
	}
	if err := ns.context(op, parent(n)); err != nil {
		return nil, err
	}
	ns.entries[n] = &entry{context: true}
	return &naming.Reference{Name: n}, nil
}

// DestroySubcontext implements naming.Namespace. Destroying a context
// that does not exist succeeds.
func (ns *Namespace) DestroySubcontext(name string) error {
	const op errors.Op = "naming/inprocess.DestroySubcontext"
	n, err := Clean(name)
	if err != nil {
		return errors.E(op, err)
	}
	if n == "" {
		return errors.E(op, errors.Invalid, errors.Str("cannot destroy the root"))
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	e, ok := ns.entries[n]
	if !ok {
		return nil
	}
	if !e.context {
		return errors.E(op, errors.Name(n), errors.Invalid, errors.Str("not a context"))
	}
	prefix := n + "/"
	for k := range ns.entries {
		if strings.HasPrefix(k, prefix) {
			return errors.E(op, errors.Name(n), errors.Invalid, errors.Str("context not empty"))
		}
	}
	delete(ns.entries, n)
	return nil
}
