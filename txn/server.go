// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package txn

import (
	"strconv"
	"strings"
	"time"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/log"
	"httpremoting.io/rpc"
)

// Server serves the transaction operations against a Manager. It keeps no
// per-transaction state of its own.
type Server struct {
	manager Manager
	xidOf   func(LocalTransaction) (Xid, error)
}

// NewServer returns a Server driving m. xidOf resolves the identifier of
// a transaction started by Begin; if nil, the transaction's own Xid is
// used.
func NewServer(m Manager, xidOf func(LocalTransaction) (Xid, error)) *Server {
	if xidOf == nil {
		xidOf = func(tx LocalTransaction) (Xid, error) { return tx.Xid(), nil }
	}
	return &Server{manager: m, xidOf: xidOf}
}

// Endpoints returns the endpoints of every transaction operation, for
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
	case UTBegin:
		e.Headers = []string{TimeoutHeader}
		e.Process = s.begin
	case XARecover:
		e.Headers = []string{RecoveryFlagsHeader, RecoveryParentHeader}
		e.Process = s.recover
	case UTCommit:
		e.Process = s.imported(func(imp *Imported, _ *rpc.Exchange) error {
			return imp.Transaction.Commit()
		})
	case UTRollback:
		e.Process = s.imported(func(imp *Imported, _ *rpc.Exchange) error {
			return imp.Transaction.Rollback()
		})
	case XABeforeCompletion:
		e.Process = s.imported(func(imp *Imported, _ *rpc.Exchange) error {
			return imp.Control.BeforeCompletion()
		})
	case XACommit:
		e.Process = s.imported(func(imp *Imported, x *rpc.Exchange) error {
			return imp.Control.Commit(onePhase(x))
		})
	case XAForget:
		e.Process = s.imported(func(imp *Imported, _ *rpc.Exchange) error {
			return imp.Control.Forget()
		})
	case XAPrepare:
		e.Process = s.imported(func(imp *Imported, _ *rpc.Exchange) error {
			return imp.Control.Prepare()
		})
	case XARollback:
		e.Process = s.imported(func(imp *Imported, _ *rpc.Exchange) error {
			return imp.Control.Rollback()
		})
	default:
		panic(errors.E(errors.Op("txn.endpoint"), errors.Internal, errors.Errorf("unknown request type %d", int(t))))
	}
	if t != UTBegin && t != XARecover {
		e.ContentType = &XidType
	}
	return e
}

// onePhase reports whether the commit request asks for a one-phase commit.
// An absent or unparsable flag means two phases.
func onePhase(x *rpc.Exchange) bool {
	return strings.EqualFold(x.R.URL.Query().Get(OnePhaseQuery), "true")
}

// imported returns a Process function that decodes the Xid in the body,
// imports it and runs fn inside the imported transaction.
func (s *Server) imported(fn func(*Imported, *rpc.Exchange) error) func(*rpc.Exchange) error {
	return func(x *rpc.Exchange) error {
		var xid Xid
		err := x.Read(func(u codec.Unmarshaller) error {
			var err error
			xid, err = readXid(u)
			return err
		})
		if err != nil {
			return err
		}
		imp, err := s.manager.FindOrImport(xid, 0)
		if err != nil {
			return err
		}
		if imp.New {
			log.Debug.Printf("txn: imported %v", xid)
		}
		return imp.Transaction.Perform(func() error {
			return fn(imp, x)
		})
	}
}

func (s *Server) begin(x *rpc.Exchange) error {
	const op errors.Op = "txn.Begin"
	secs, err := strconv.Atoi(x.R.Header.Get(TimeoutHeader))
	if err != nil || secs < 0 {
		return errors.E(op, errors.Invalid, errors.Errorf("bad timeout %q", x.R.Header.Get(TimeoutHeader)))
	}
	tx, err := s.manager.Begin(time.Duration(secs) * time.Second)
	if err != nil {
		return errors.E(op, err)
	}
	xid, err := s.xidOf(tx)
	if err != nil {
		return errors.E(op, err)
	}
	return x.Write(NewTransaction, func(m codec.Marshaller) error {
		return writeXid(m, xid)
	})
}

func (s *Server) recover(x *rpc.Exchange) error {
	const op errors.Op = "txn.Recover"
	raw := x.R.Header.Get(RecoveryFlagsHeader)
	flags, err := strconv.Atoi(raw)
	if err != nil {
		return errors.E(op, errors.Invalid, errors.Errorf("bad recovery flags %q", raw))
	}
	xids, err := s.manager.Recover(flags, x.R.Header.Get(RecoveryParentHeader))
	if err != nil {
		return errors.E(op, err)
	}
	return x.Write(XidListType, func(m codec.Marshaller) error {
		return writeXids(m, xids)
	})
}

