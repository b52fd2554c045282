// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package naming

import (
	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/rpc"
)

// Server serves the naming operations against a Namespace.
type Server struct {
	ns Namespace
}

// NewServer returns a Server exposing ns.
func NewServer(ns Namespace) *Server {
	return &Server{ns: ns}
}

// Endpoints returns the endpoints of every naming operation, for
// registration under Family.
func (s *Server) Endpoints() []*rpc.Endpoint {
	endpoints := make([]*rpc.Endpoint, numRequestTypes)
	for t := RequestType(0); t < numRequestTypes; t++ {
		endpoints[t] = s.endpoint(t)
	}
	return endpoints
}

func (s *Server) endpoint(t RequestType) *rpc.Endpoint {
	e := &rpc.Endpoint{Op: t.Operation()}
	switch t {
	case Lookup:
		e.Process = s.value(s.ns.Lookup)
	case LookupLink:
		e.Process = s.value(s.ns.LookupLink)
	case Bind:
		e.ContentType = &ValueType
		e.Process = s.store(s.ns.Bind)
	case Rebind:
		e.ContentType = &ValueType
		e.Process = s.store(s.ns.Rebind)
	case Unbind:
		e.Process = s.void(s.ns.Unbind)
	case Rename:
		e.Query = []string{NewNameQuery}
		e.Process = s.rename
	case List:
		e.Process = s.list
	case ListBindings:
		e.Process = s.listBindings
	case CreateSubcontext:
		e.Process = s.value(func(name string) (interface{}, error) {
			ref, err := s.ns.CreateSubcontext(name)
			if err != nil {
				return nil, err
			}
			return ref, nil
		})
	case DestroySubcontext:
		e.Process = s.void(s.ns.DestroySubcontext)
	default:
		panic(errors.E(errors.Op("naming.endpoint"), errors.Internal, errors.Errorf("unknown request type %d", int(t))))
	}
	return e
}

// value runs fn on the requested name and sends its result. A nil
// result is sent as an empty response.
func (s *Server) value(fn func(name string) (interface{}, error)) func(*rpc.Exchange) error {
	return func(x *rpc.Exchange) error {
		v, err := fn(x.Segment(0))
		if err != nil {
			return err
		}
		if v == nil {
			x.NoContent()
			return nil
		}
		return x.Write(ValueType, func(m codec.Marshaller) error {
			return m.WriteObject(v)
		})
	}
}

// store reads the value in the request body and hands it to fn with the
// requested name.
func (s *Server) store(fn func(name string, v interface{}) error) func(*rpc.Exchange) error {
	const op errors.Op = "naming.readValue"
	return func(x *rpc.Exchange) error {
		var v interface{}
		err := x.Read(func(u codec.Unmarshaller) error {
			var err error
			v, err = u.ReadObject()
			return err
		})
		if err != nil {
			return errors.E(op, err)
		}
		if err := fn(x.Segment(0), v); err != nil {
			return err
		}
		x.NoContent()
		return nil
	}
}

func (s *Server) void(fn func(name string) error) func(*rpc.Exchange) error {
	return func(x *rpc.Exchange) error {
		if err := fn(x.Segment(0)); err != nil {
			return err
		}
		x.NoContent()
		return nil
	}
}

func (s *Server) rename(x *rpc.Exchange) error {
	if err := s.ns.Rename(x.Segment(0), x.R.URL.Query().Get(NewNameQuery)); err != nil {
		return err
	}
	x.NoContent()
	return nil
}

func (s *Server) list(x *rpc.Exchange) error {
	list, err := s.ns.List(x.Segment(0))
	if err != nil {
		return err
	}
	return x.Write(ValueType, func(m codec.Marshaller) error {
		return writeNameClasses(m, list)
	})
}

func (s *Server) listBindings(x *rpc.Exchange) error {
	list, err := s.ns.ListBindings(x.Segment(0))
	if err != nil {
		return err
	}
	return x.Write(ValueType, func(m codec.Marshaller) error {
		return writeBindings(m, list)
	})
}
