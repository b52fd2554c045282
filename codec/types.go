// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"encoding"
	"reflect"
	"strings"
	"sync"

	"httpremoting.io/errors"
)

// Object is a value the marshaller writes by type name. Objects must be
// registered in a Types table before they can cross the wire.
type Object interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Types resolves the type names written on the wire to constructors.
type Types struct {
	mu     sync.RWMutex
	byName map[string]func() Object
	byType map[reflect.Type]string
}

// NewTypes returns an empty type table.
func NewTypes() *Types {
	return &Types{
		byName: make(map[string]func() Object),
		byType: make(map[reflect.Type]string),
	}
}

// DefaultTypes is the table used by the Binary and Interop factories.
var DefaultTypes = NewTypes()

// Register records name as the wire name of the values made by newObject
// in DefaultTypes.
func Register(name string, newObject func() Object) {
	DefaultTypes.Register(name, newObject)
}

// Register records name as the wire name of the values made by newObject.
// It panics if name or the type is already registered.
func (t *Types) Register(name string, newObject func() Object) {
	typ := reflect.TypeOf(newObject())
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.byName[name]; dup {
		panic("codec: duplicate registration of type name " + name)
	}
	if _, dup := t.byType[typ]; dup {
		panic("codec: duplicate registration of type " + typ.String())
	}
	t.byName[name] = newObject
	t.byType[typ] = name
}

// nameOf returns the wire name of v's type.
func (t *Types) nameOf(v interface{}) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.byType[reflect.TypeOf(v)]
	return name, ok
}

// newObject returns a fresh value for the wire name. Names in the legacy
// namespace resolve to their current registration.
func (t *Types) newObject(name string) (Object, error) {
	t.mu.RLock()
	fn, ok := t.byName[name]
	if !ok {
		fn, ok = t.byName[LegacyNamespace.ToCurrent(name)]
	}
	t.mu.RUnlock()
	if !ok {
		return nil, errors.E(errors.Op("codec.ReadObject"), errors.Unsupported, errors.Errorf("unknown type %q", name))
	}
	return fn(), nil
}

// Translation renames types between a current and a legacy namespace.
type Translation struct {
	Current string // Prefix of current type names.
	Legacy  string // Prefix of the same names in the legacy namespace.
}

// LegacyNamespace is the renaming applied by the interoperability codec.
var LegacyNamespace = Translation{Current: "jakarta.", Legacy: "javax."}

// ToLegacy returns name as written for a legacy peer.
func (tr Translation) ToLegacy(name string) string {
	if strings.HasPrefix(name, tr.Current) {
		return tr.Legacy + name[len(tr.Current):]
	}
	return name
}

// ToCurrent returns name as registered locally.
func (tr Translation) ToCurrent(name string) string {
	if strings.HasPrefix(name, tr.Legacy) {
		return tr.Current + name[len(tr.Legacy):]
	}
	return name
}
