// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package txn carries the two-phase commit protocol over HTTP. The server
// side imports transactions minted by a remote coordinator into a local
// Manager and drives them through their lifecycle; the client side is the
// coordinator's view of the same operations.
package txn // import "httpremoting.io/txn"

import (
	"net/http"
	"time"

	"httpremoting.io/errors"
	"httpremoting.io/protocol"
)

// Family is the path segment naming the transaction operations.
const Family = "txn"

// Headers and query parameters of the transaction operations.
const (
	TimeoutHeader        = "X-Wf-Txn-Timeout"
	RecoveryFlagsHeader  = "X-Wf-Txn-Recovery-Flags"
	RecoveryParentHeader = "X-Wf-Txn-Recovery-Parent"
	OnePhaseQuery        = "opc"
)

// Body content types.
var (
	XidType        = protocol.NewContentType("application/x-wf-txn-jbmar-xid", 1)
	XidListType    = protocol.NewContentType("application/x-wf-txn-jbmar-xid-list", 1)
	NewTransaction = protocol.NewContentType("application/x-wf-jbmar-new-txn", 1)
)

// Recovery scan flags.
const (
	NoFlags       = 0
	StartRecovery = 0x01000000
	EndRecovery   = 0x00800000
	recoveryFlags = StartRecovery | EndRecovery
)

// ValidRecoveryFlags reports whether flags combine only the recovery
// scan flags.
func ValidRecoveryFlags(flags int) bool {
	return flags&^recoveryFlags == 0
}

// RequestType names a transaction operation.
type RequestType int

// Transaction operations.
const (
	UTBegin RequestType = iota
	UTCommit
	UTRollback
	XABeforeCompletion
	XACommit
	XAForget
	XAPrepare
	XARecover
	XARollback
	numRequestTypes
)

var operations = [numRequestTypes]protocol.Operation{
	UTBegin:            {Name: "txn.Begin", Method: http.MethodPost, Path: "ut/begin"},
	UTCommit:           {Name: "txn.Commit", Method: http.MethodPost, Path: "ut/commit"},
	UTRollback:         {Name: "txn.Rollback", Method: http.MethodPost, Path: "ut/rollback"},
	XABeforeCompletion: {Name: "txn.BeforeCompletion", Method: http.MethodPost, Path: "xa/bc"},
	XACommit:           {Name: "txn.XACommit", Method: http.MethodPost, Path: "xa/commit"},
	XAForget:           {Name: "txn.Forget", Method: http.MethodPost, Path: "xa/forget"},
	XAPrepare:          {Name: "txn.Prepare", Method: http.MethodPost, Path: "xa/prep"},
	XARecover:          {Name: "txn.Recover", Method: http.MethodGet, Path: "xa/recover"},
	XARollback:         {Name: "txn.XARollback", Method: http.MethodPost, Path: "xa/rollback"},
}

// Operation returns the wire description of t. It panics if t is not
// one of the declared request types.
func (t RequestType) Operation() protocol.Operation {
	if t < 0 || t >= numRequestTypes {
		panic(errors.E(errors.Op("txn.Operation"), errors.Internal, errors.Errorf("unknown request type %d", int(t))))
	}
	return operations[t]
}

func (t RequestType) String() string {
	return t.Operation().Name
}

// Manager is the local transaction manager the server drives.
type Manager interface {
	// Begin starts a local transaction that expires after timeout.
	// A zero timeout selects the manager's default.
	Begin(timeout time.Duration) (LocalTransaction, error)

	// FindOrImport returns the local transaction for xid, importing it
	// if this is the first time xid is seen. Concurrent calls with the
	// same xid return the same transaction.
	FindOrImport(xid Xid, timeout time.Duration) (*Imported, error)

	// Recover returns the prepared transactions awaiting an outcome.
	Recover(flags int, parent string) ([]Xid, error)
}

// Imported is the outcome of importing an Xid.
type Imported struct {
	Transaction LocalTransaction
	Control     Control

	// New is set when the import created the transaction.
	New bool
}

// LocalTransaction is a transaction of the local manager.
type LocalTransaction interface {
	// Xid returns the identifier a coordinator uses for the transaction.
	Xid() Xid

	// Perform runs fn with the transaction associated. Calls to Perform
	// on one transaction do not overlap.
	Perform(fn func() error) error

	// Commit commits the transaction in one phase.
	Commit() error

	// Rollback rolls the transaction back.
	Rollback() error
}

// Control drives an imported transaction as a subordinate.
type Control interface {
	BeforeCompletion() error
	Prepare() error
	Commit(onePhase bool) error
	Rollback() error
	Forget() error
}
