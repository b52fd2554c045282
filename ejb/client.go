// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ejb

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/protocol"
	"httpremoting.io/rpc"
)

// Client issues invocation operations to a remote server.
type Client struct {
	target *rpc.Target
	rpc    *rpc.Client

	compressRequest  bool
	compressResponse bool
}

// NewClient returns a Client for the server at t.
func NewClient(t *rpc.Target, c *rpc.Client) *Client {
	return &Client{target: t, rpc: c}
}

// SetCompression selects gzip compression of invocation requests and
// responses.
func (c *Client) SetCompression(request, response bool) {
	c.compressRequest, c.compressResponse = request, response
}

// NewInvocationID returns a fresh invocation identifier.
func NewInvocationID() string {
	return uuid.NewString()
}

func (c *Client) beanPath(t RequestType, loc Locator) *rpc.Builder {
	return rpc.NewBuilder(c.target, Family, t.Operation()).
		Segment(loc.App, true).
		Segment(loc.Module, true).
		Segment(loc.Distinct, true).
		Segment(loc.Bean, true)
}

// Invoke starts inv and returns the slot its outcome is delivered to.
// If inv has no ID one is assigned, so the invocation can be cancelled.
func (c *Client) Invoke(ctx context.Context, inv *Invocation) *codec.Result[*Response] {
	res := codec.NewResult[*Response]()
	if inv.ID == "" {
		inv.ID = NewInvocationID()
	}
	b := c.beanPath(Invoke, inv.Locator).
		Segment(base64.RawURLEncoding.EncodeToString(inv.Locator.SessionID), false).
		Segment(inv.View, false).
		Segment(inv.Method, false)
	for _, p := range inv.ParamTypes {
		b.Segment(p, true)
	}
	b.Accept(ResponseType, protocol.ExceptionType).
		ContentType(InvocationType).
		InvocationID(inv.ID).
		Compress(c.compressRequest, c.compressResponse).
		Chunked()
	req, err := b.Request(ctx)
	if err != nil {
		res.Fail(err)
		return res
	}
	f := c.target.Codec()
	go func() {
		if err := c.rpc.Do(req, InvocationEncoder(f, inv), codec.ValueDecoder(f, res, readResponse)); err != nil {
			res.Fail(err)
		}
	}()
	return res
}

// Call runs inv and waits for its outcome.
func (c *Client) Call(ctx context.Context, inv *Invocation) (*Response, error) {
	return c.Invoke(ctx, inv).Wait(ctx)
}

// Cancel asks the server to cancel invocation id of the bean at loc. If
// interrupt is set a running invocation is interrupted; otherwise only an
// invocation that has not started is abandoned. A cancellation that finds
// nothing to cancel still succeeds.
func (c *Client) Cancel(ctx context.Context, loc Locator, id string, interrupt bool) (bool, error) {
	const op errors.Op = "ejb.Cancel"
	b := c.beanPath(Cancel, loc).
		Segment(id, false).
		Segment(strconv.FormatBool(interrupt), false)
	res := codec.NewResult[bool]()
	dec := codec.EmptyDecoder(res, func(*http.Response) (bool, error) { return true, nil })
	if err := c.do(ctx, b, nil, dec); err != nil {
		return false, errors.E(op, err)
	}
	return res.Wait(ctx)
}

// OpenSession opens a session with the stateful bean at loc and returns
// its identifier.
func (c *Client) OpenSession(ctx context.Context, loc Locator, t TransactionInfo) ([]byte, error) {
	const op errors.Op = "ejb.OpenSession"
	b := c.beanPath(CreateSession, loc).
		Accept(protocol.ExceptionType).
		ContentType(SessionOpen)
	enc := codec.ValueEncoder(c.target.Codec(), func(m codec.Marshaller) error {
		return writeTransaction(m, t)
	})
	res := codec.NewResult[[]byte]()
	dec := codec.EmptyDecoder(res, func(resp *http.Response) ([]byte, error) {
		raw := resp.Header.Get(SessionIDHeader)
		if raw == "" {
			return nil, errors.E(op, errors.Invalid, errors.Str("no session id in response"))
		}
		sid, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return nil, errors.E(op, errors.Invalid, err)
		}
		return sid, nil
	})
	if err := c.do(ctx, b, enc, dec); err != nil {
		return nil, errors.E(op, err)
	}
	return res.Wait(ctx)
}

// Discover lists the modules deployed on the server.
func (c *Client) Discover(ctx context.Context) ([]ModuleID, error) {
	const op errors.Op = "ejb.Discover"
	b := rpc.NewBuilder(c.target, Family, Discover.Operation()).
		Accept(DiscoveryType, protocol.ExceptionType)
	res := codec.NewResult[[]ModuleID]()
	if err := c.do(ctx, b, nil, codec.ValueDecoder(c.target.Codec(), res, readModules)); err != nil {
		return nil, errors.E(op, err)
	}
	return res.Wait(ctx)
}

func (c *Client) do(ctx context.Context, b *rpc.Builder, enc codec.Encoder, dec codec.Decoder) error {
	req, err := b.Request(ctx)
	if err != nil {
		return err
	}
	return c.rpc.Do(req, enc, dec)
}
