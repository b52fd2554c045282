// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package txn

import (
	"context"
	"strconv"
	"time"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/protocol"
	"httpremoting.io/rpc"
)

// Client issues transaction operations to a remote server.
type Client struct {
	target *rpc.Target
	rpc    *rpc.Client
}

// NewClient returns a Client for the server at t.
func NewClient(t *rpc.Target, c *rpc.Client) *Client {
	return &Client{target: t, rpc: c}
}

func (c *Client) builder(t RequestType) *rpc.Builder {
	return rpc.NewBuilder(c.target, Family, t.Operation())
}

// Begin starts a remote transaction that expires after timeout and
// returns its identifier.
func (c *Client) Begin(ctx context.Context, timeout time.Duration) (Xid, error) {
	const op errors.Op = "txn.Begin"
	b := c.builder(UTBegin).
		Accept(protocol.ExceptionType, NewTransaction).
		Header(TimeoutHeader, strconv.Itoa(int(timeout/time.Second)))
	res := codec.NewResult[Xid]()
	if err := c.do(ctx, b, nil, codec.ValueDecoder(c.target.Codec(), res, readXid)); err != nil {
		return Xid{}, errors.E(op, err)
	}
	return res.Wait(ctx)
}

// Commit commits the transaction begun by Begin.
func (c *Client) Commit(ctx context.Context, xid Xid) error {
	return c.xidOp(ctx, UTCommit, xid, false)
}

// Rollback rolls back the transaction begun by Begin.
func (c *Client) Rollback(ctx context.Context, xid Xid) error {
	return c.xidOp(ctx, UTRollback, xid, false)
}

// BeforeCompletion runs the before-completion callbacks of the branch.
func (c *Client) BeforeCompletion(ctx context.Context, xid Xid) error {
	return c.xidOp(ctx, XABeforeCompletion, xid, false)
}

// Prepare runs the first phase of a two-phase commit of the branch.
func (c *Client) Prepare(ctx context.Context, xid Xid) error {
	return c.xidOp(ctx, XAPrepare, xid, false)
}

// XACommit commits the branch, in one phase if onePhase is set.
func (c *Client) XACommit(ctx context.Context, xid Xid, onePhase bool) error {
	return c.xidOp(ctx, XACommit, xid, onePhase)
}

// XARollback rolls back the branch.
func (c *Client) XARollback(ctx context.Context, xid Xid) error {
	return c.xidOp(ctx, XARollback, xid, false)
}

// Forget discards the server's knowledge of the completed branch.
func (c *Client) Forget(ctx context.Context, xid Xid) error {
	return c.xidOp(ctx, XAForget, xid, false)
}

// Recover returns the in-doubt branches known to the server.
func (c *Client) Recover(ctx context.Context, flags int, parent string) ([]Xid, error) {
	const op errors.Op = "txn.Recover"
	b := c.builder(XARecover).
		Segment(parent, false).
		Accept(XidListType, NewTransaction).
		Header(RecoveryParentHeader, parent).
		Header(RecoveryFlagsHeader, strconv.Itoa(flags))
	res := codec.NewResult[[]Xid]()
	if err := c.do(ctx, b, nil, codec.ValueDecoder(c.target.Codec(), res, readXids)); err != nil {
		return nil, errors.E(op, err)
	}
	return res.Wait(ctx)
}

// xidOp sends an operation whose request body is xid and whose response
// is empty.
func (c *Client) xidOp(ctx context.Context, t RequestType, xid Xid, onePhase bool) error {
	op := errors.Op(t.Operation().Name)
	b := c.builder(t).
		Accept(protocol.ExceptionType).
		ContentType(XidType).
		Chunked()
	if t == XACommit && onePhase {
		b.Query(OnePhaseQuery, "true")
	}
	enc := codec.ValueEncoder(c.target.Codec(), func(m codec.Marshaller) error {
		return writeXid(m, xid)
	})
	res := codec.NewResult[struct{}]()
	if err := c.do(ctx, b, enc, codec.EmptyDecoder(res, nil)); err != nil {
		return errors.E(op, err)
	}
	_, err := res.Wait(ctx)
	return err
}

func (c *Client) do(ctx context.Context, b *rpc.Builder, enc codec.Encoder, dec codec.Decoder) error {
	req, err := b.Request(ctx)
	if err != nil {
		return err
	}
	return c.rpc.Do(req, enc, dec)
}
