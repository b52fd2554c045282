// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package naming

import (
	"context"
	"io"
	"net/http"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/protocol"
	"httpremoting.io/rpc"
)

// Client issues naming operations to a remote server.
type Client struct {
	target *rpc.Target
	rpc    *rpc.Client
}

// NewClient returns a Client for the server at t.
func NewClient(t *rpc.Target, c *rpc.Client) *Client {
	return &Client{target: t, rpc: c}
}

// Lookup returns the value bound to name. Subcontexts are returned as
// *Reference.
func (c *Client) Lookup(ctx context.Context, name string) (interface{}, error) {
	return c.value(ctx, Lookup, name, nil)
}

// LookupLink is like Lookup but returns a final *LinkRef without
// following it.
func (c *Client) LookupLink(ctx context.Context, name string) (interface{}, error) {
	return c.value(ctx, LookupLink, name, nil)
}

// Bind binds value to name, which must not be bound.
func (c *Client) Bind(ctx context.Context, name string, value interface{}) error {
	_, err := c.value(ctx, Bind, name, objectEncoder(c.target.Codec(), value))
	return err
}

// Rebind binds value to name, replacing any earlier binding.
func (c *Client) Rebind(ctx context.Context, name string, value interface{}) error {
	_, err := c.value(ctx, Rebind, name, objectEncoder(c.target.Codec(), value))
	return err
}

// Unbind removes the binding of name.
func (c *Client) Unbind(ctx context.Context, name string) error {
	_, err := c.value(ctx, Unbind, name, nil)
	return err
}

// Rename moves the binding of oldName to newName.
func (c *Client) Rename(ctx context.Context, oldName, newName string) error {
	b := c.builder(Rename, oldName).Query(NewNameQuery, newName)
	_, err := c.send(ctx, Rename, b, nil)
	return err
}

// List returns the names and classes bound in the context name.
func (c *Client) List(ctx context.Context, name string) ([]NameClass, error) {
	list, err := c.listing(ctx, List, name)
	if err != nil {
		return nil, err
	}
	out := make([]NameClass, len(list))
	for i, b := range list {
		out[i] = b.NameClass
	}
	return out, nil
}

// ListBindings returns the bindings of the context name.
func (c *Client) ListBindings(ctx context.Context, name string) ([]Binding, error) {
	return c.listing(ctx, ListBindings, name)
}

// CreateSubcontext creates the context name and returns a reference to it.
func (c *Client) CreateSubcontext(ctx context.Context, name string) (*Reference, error) {
	const op errors.Op = "naming.CreateSubcontext"
	v, err := c.value(ctx, CreateSubcontext, name, nil)
	if err != nil {
		return nil, err
	}
	ref, ok := v.(*Reference)
	if !ok {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("server returned %T, not a reference", v))
	}
	return ref, nil
}

// DestroySubcontext removes the empty context name.
func (c *Client) DestroySubcontext(ctx context.Context, name string) error {
	_, err := c.value(ctx, DestroySubcontext, name, nil)
	return err
}

func (c *Client) builder(t RequestType, name string) *rpc.Builder {
	return rpc.NewBuilder(c.target, Family, t.Operation()).
		Segment(name, true).
		Accept(ValueType, protocol.ExceptionType)
}

func (c *Client) value(ctx context.Context, t RequestType, n string, enc codec.Encoder) (interface{}, error) {
	return c.send(ctx, t, c.builder(t, n), enc)
}

// send issues the request built by b, with a value body if enc is
// non-nil. The response is an optional value: an empty response yields
// nil.
func (c *Client) send(ctx context.Context, t RequestType, b *rpc.Builder, enc codec.Encoder) (interface{}, error) {
	op := errors.Op(t.Operation().Name)
	if enc != nil {
		b.ContentType(ValueType)
	}
	res := codec.NewResult[interface{}]()
	if err := c.do(ctx, b, enc, optionalValue(c.target.Codec(), res)); err != nil {
		return nil, errors.E(op, err)
	}
	v, err := res.Wait(ctx)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return v, nil
}

func (c *Client) listing(ctx context.Context, t RequestType, n string) ([]Binding, error) {
	op := errors.Op(t.Operation().Name)
	res := codec.NewResult[[]Binding]()
	if err := c.do(ctx, c.builder(t, n), nil, codec.ValueDecoder(c.target.Codec(), res, readEntries)); err != nil {
		return nil, errors.E(op, err)
	}
	list, err := res.Wait(ctx)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, b *rpc.Builder, enc codec.Encoder, dec codec.Decoder) error {
	req, err := b.Request(ctx)
	if err != nil {
		return err
	}
	return c.rpc.Do(req, enc, dec)
}

func objectEncoder(f codec.Factory, v interface{}) codec.Encoder {
	return codec.ValueEncoder(f, func(m codec.Marshaller) error {
		return m.WriteObject(v)
	})
}

// optionalValue decodes a response that carries one object, or nothing
// when the status is 204.
func optionalValue(f codec.Factory, res *codec.Result[interface{}]) codec.Decoder {
	empty := codec.EmptyDecoder(res, nil)
	value := codec.ValueDecoder(f, res, func(u codec.Unmarshaller) (interface{}, error) {
		return u.ReadObject()
	})
	return codec.DecoderFunc(func(body io.ReadCloser, resp *http.Response) {
		if resp.StatusCode == http.StatusNoContent {
			empty.Decode(body, resp)
			return
		}
		value.Decode(body, resp)
	})
}
