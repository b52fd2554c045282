// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package naming carries directory operations on a remote namespace
// over HTTP.
package naming // import "httpremoting.io/naming"

import (
	"net/http"

	"github.com/golang/protobuf/proto"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/protocol"
)

// Family is the path segment naming the naming operations.
const Family = "naming"

// NewNameQuery carries the target name of a rename.
const NewNameQuery = "new"

// ValueType labels request and response bodies holding a value.
var ValueType = protocol.NewContentType("application/x-wf-naming-jbmar-value", 1)

// Wire names of the naming objects.
const (
	ReferenceTypeName = "jakarta.naming.Reference"
	LinkRefTypeName   = "jakarta.naming.LinkRef"
)

// ContextClass is the class reported for subcontexts by List.
const ContextClass = "jakarta.naming.Context"

func init() {
	codec.Register(ReferenceTypeName, func() codec.Object { return new(Reference) })
	codec.Register(LinkRefTypeName, func() codec.Object { return new(LinkRef) })
}

// RequestType names a naming operation.
type RequestType int

// Naming operations.
const (
	Lookup RequestType = iota
	LookupLink
	Bind
	Rebind
	Unbind
	Rename
	List
	ListBindings
	CreateSubcontext
	DestroySubcontext
	numRequestTypes
)

var operations = [numRequestTypes]protocol.Operation{
	Lookup:            {Name: "naming.Lookup", Method: http.MethodPost, Path: "lookup"},
	LookupLink:        {Name: "naming.LookupLink", Method: http.MethodGet, Path: "lookuplink"},
	Bind:              {Name: "naming.Bind", Method: http.MethodPut, Path: "bind"},
	Rebind:            {Name: "naming.Rebind", Method: http.MethodPatch, Path: "rebind"},
	Unbind:            {Name: "naming.Unbind", Method: http.MethodDelete, Path: "unbind"},
	Rename:            {Name: "naming.Rename", Method: http.MethodPatch, Path: "rename"},
	List:              {Name: "naming.List", Method: http.MethodGet, Path: "list"},
	ListBindings:      {Name: "naming.ListBindings", Method: http.MethodGet, Path: "list-bindings"},
	CreateSubcontext:  {Name: "naming.CreateSubcontext", Method: http.MethodPut, Path: "create-subcontext"},
	DestroySubcontext: {Name: "naming.DestroySubcontext", Method: http.MethodDelete, Path: "dest-subctx"},
}

// Operation returns the wire description of t. It panics if t is not
// one of the declared request types.
func (t RequestType) Operation() protocol.Operation {
	if t < 0 || t >= numRequestTypes {
		panic(errors.E(errors.Op("naming.Operation"), errors.Internal, errors.Errorf("unknown request type %d", int(t))))
	}
	return operations[t]
}

func (t RequestType) String() string {
	return t.Operation().Name
}

// Namespace is the directory the server exposes. Names are slash
// separated; the empty name is the root context.
type Namespace interface {
	Lookup(name string) (interface{}, error)
	LookupLink(name string) (interface{}, error)
	Bind(name string, value interface{}) error
	Rebind(name string, value interface{}) error
	Unbind(name string) error
	Rename(oldName, newName string) error
	List(name string) ([]NameClass, error)
	ListBindings(name string) ([]Binding, error)
	CreateSubcontext(name string) (*Reference, error)
	DestroySubcontext(name string) error
}

// NameClass is an entry of a context listing.
type NameClass struct {
	Name  string
	Class string
}

// Binding is an entry of a context listing with its value.
type Binding struct {
	NameClass
	Value interface{}
}

// Reference refers to a context of the remote namespace.
type Reference struct {
	Name string
}

// LinkRef is a value that names another entry. Lookup follows links;
// LookupLink returns them.
type LinkRef struct {
	Target string
}

var (
	_ codec.Object = (*Reference)(nil)
	_ codec.Object = (*LinkRef)(nil)
)

func marshalString(s string) []byte {
	buf := proto.NewBuffer(nil)
	buf.EncodeStringBytes(s)
	return buf.Bytes()
}

func unmarshalString(op errors.Op, data []byte) (string, error) {
	buf := proto.NewBuffer(data)
	s, err := buf.DecodeStringBytes()
	if err != nil {
		return "", errors.E(op, errors.Syntax, err)
	}
	return s, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *Reference) MarshalBinary() ([]byte, error) { return marshalString(r.Name), nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Reference) UnmarshalBinary(data []byte) (err error) {
	r.Name, err = unmarshalString("naming.UnmarshalReference", data)
	return err
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (l *LinkRef) MarshalBinary() ([]byte, error) { return marshalString(l.Target), nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (l *LinkRef) UnmarshalBinary(data []byte) (err error) {
	l.Target, err = unmarshalString("naming.UnmarshalLinkRef", data)
	return err
}

// Keys of the maps that carry listing entries.
const (
	nameKey  = "name"
	classKey = "class"
	valueKey = "value"
)

func writeNameClasses(m codec.Marshaller, list []NameClass) error {
	out := make([]interface{}, len(list))
	for i, nc := range list {
		out[i] = map[string]interface{}{nameKey: nc.Name, classKey: nc.Class}
	}
	return m.WriteObject(out)
}

func writeBindings(m codec.Marshaller, list []Binding) error {
	out := make([]interface{}, len(list))
	for i, b := range list {
		out[i] = map[string]interface{}{nameKey: b.Name, classKey: b.Class, valueKey: b.Value}
	}
	return m.WriteObject(out)
}

// readEntries reads a listing written by writeNameClasses or
// writeBindings.
func readEntries(u codec.Unmarshaller) ([]Binding, error) {
	const op errors.Op = "naming.readEntries"
	v, err := u.ReadObject()
	if err != nil {
		return nil, err
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("listing is %T, not a list", v))
	}
	out := make([]Binding, len(list))
	for i, elem := range list {
		entry, ok := elem.(map[string]interface{})
		if !ok {
			return nil, errors.E(op, errors.Syntax, errors.Errorf("entry %d is %T, not a map", i, elem))
		}
		name, _ := entry[nameKey].(string)
		class, _ := entry[classKey].(string)
		out[i] = Binding{NameClass: NameClass{Name: name, Class: class}, Value: entry[valueKey]}
	}
	return out, nil
}
