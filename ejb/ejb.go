// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ejb carries remote bean invocations over HTTP: method
// invocation, cancellation, session creation and module discovery.
package ejb // import "httpremoting.io/ejb"

import (
	"net/http"
	"time"

	"github.com/golang/protobuf/proto"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/protocol"
	"httpremoting.io/txn"
)

// Family is the path segment naming the invocation operations.
const Family = "ejb"

// SessionIDHeader carries the identifier of a newly opened session.
const SessionIDHeader = "X-Wf-Ejb-Session-Id"

// Body content types.
var (
	InvocationType = protocol.NewContentType("application/x-wf-ejb-jbmar-invocation", 1)
	ResponseType   = protocol.NewContentType("application/x-wf-ejb-jbmar-response", 1)
	SessionOpen    = protocol.NewContentType("application/x-wf-jbmar-sess-open", 1)
	DiscoveryType  = protocol.NewContentType("application/x-wf-ejb-jbmar-discovery-response", 1)
)

// ModuleTypeName is the wire name of ModuleID values.
const ModuleTypeName = "jakarta.ejb.ModuleIdentifier"

func init() {
	codec.Register(ModuleTypeName, func() codec.Object { return new(ModuleID) })
}

// RequestType names an invocation operation.
type RequestType int

// Invocation operations.
const (
	Invoke RequestType = iota
	Cancel
	CreateSession
	Discover
	numRequestTypes
)

var operations = [numRequestTypes]protocol.Operation{
	Invoke:        {Name: "ejb.Invoke", Method: http.MethodPost, Path: "invoke"},
	Cancel:        {Name: "ejb.Cancel", Method: http.MethodDelete, Path: "cancel"},
	CreateSession: {Name: "ejb.OpenSession", Method: http.MethodPost, Path: "open"},
	Discover:      {Name: "ejb.Discover", Method: http.MethodGet, Path: "discover"},
}

// Operation returns the wire description of t. It panics if t is not
// one of the declared request types.
func (t RequestType) Operation() protocol.Operation {
	if t < 0 || t >= numRequestTypes {
		panic(errors.E(errors.Op("ejb.Operation"), errors.Internal, errors.Errorf("unknown request type %d", int(t))))
	}
	return operations[t]
}

func (t RequestType) String() string {
	return t.Operation().Name
}

// ModuleID names a deployed module.
type ModuleID struct {
	App      string
	Module   string
	Distinct string
}

var _ codec.Object = (*ModuleID)(nil)

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *ModuleID) MarshalBinary() ([]byte, error) {
	buf := proto.NewBuffer(nil)
	buf.EncodeStringBytes(m.App)
	buf.EncodeStringBytes(m.Module)
	buf.EncodeStringBytes(m.Distinct)
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *ModuleID) UnmarshalBinary(data []byte) error {
	const op errors.Op = "ejb.UnmarshalModuleID"
	buf := proto.NewBuffer(data)
	var parts [3]string
	for i := range parts {
		s, err := buf.DecodeStringBytes()
		if err != nil {
			return errors.E(op, errors.Syntax, err)
		}
		parts[i] = s
	}
	m.App, m.Module, m.Distinct = parts[0], parts[1], parts[2]
	return nil
}

// Locator addresses a bean.
type Locator struct {
	ModuleID
	Bean string

	// SessionID names a session opened with OpenSession. It is empty
	// for stateless beans.
	SessionID []byte
}

// TxnKind tells whether an invocation carries a transaction.
type TxnKind int64

// Transaction kinds.
const (
	NoTransaction TxnKind = iota
	XATransaction
)

// TransactionInfo is the transaction an invocation or session runs in.
type TransactionInfo struct {
	Kind TxnKind

	// Xid and Timeout are set for XATransaction.
	Xid     txn.Xid
	Timeout time.Duration
}

func writeTransaction(m codec.Marshaller, t TransactionInfo) error {
	if err := m.WriteInt(int64(t.Kind)); err != nil {
		return err
	}
	if t.Kind != XATransaction {
		return nil
	}
	xid := t.Xid
	if err := m.WriteObject(&xid); err != nil {
		return err
	}
	return m.WriteInt(int64(t.Timeout / time.Second))
}

func readTransaction(u codec.Unmarshaller) (TransactionInfo, error) {
	const op errors.Op = "ejb.readTransaction"
	kind, err := u.ReadInt()
	if err != nil {
		return TransactionInfo{}, err
	}
	switch TxnKind(kind) {
	case NoTransaction:
		return TransactionInfo{}, nil
	case XATransaction:
	default:
		return TransactionInfo{}, errors.E(op, errors.Syntax, errors.Errorf("unknown transaction kind %d", kind))
	}
	v, err := u.ReadObject()
	if err != nil {
		return TransactionInfo{}, err
	}
	xid, ok := v.(*txn.Xid)
	if !ok || xid == nil {
		return TransactionInfo{}, errors.E(op, errors.Syntax, errors.Errorf("transaction holds %T, not an Xid", v))
	}
	secs, err := u.ReadInt()
	if err != nil {
		return TransactionInfo{}, err
	}
	return TransactionInfo{Kind: XATransaction, Xid: *xid, Timeout: time.Duration(secs) * time.Second}, nil
}

// Invocation is a method call on a bean.
type Invocation struct {
	Locator Locator
	View    string
	Method  string

	// ParamTypes name the types of the method's parameters. Together
	// with Method they select an overload.
	ParamTypes []string

	Args        []interface{}
	Attachments map[string]interface{}
	Transaction TransactionInfo

	// ID correlates the invocation with a later Cancel. It may be empty,
	// in which case the invocation cannot be cancelled.
	ID string
}

// Response is the outcome of a successful invocation.
type Response struct {
	Value       interface{}
	Attachments map[string]interface{}
}

// InvocationEncoder returns the Encoder of the body of an invocation
// request: its transaction, arguments and attachments.
func InvocationEncoder(f codec.Factory, inv *Invocation) codec.Encoder {
	return codec.ValueEncoder(f, func(m codec.Marshaller) error {
		return writeInvocation(m, inv)
	})
}

func writeInvocation(m codec.Marshaller, inv *Invocation) error {
	if err := writeTransaction(m, inv.Transaction); err != nil {
		return err
	}
	args := inv.Args
	if args == nil {
		args = []interface{}{}
	}
	if err := m.WriteObject(args); err != nil {
		return err
	}
	return m.WriteObject(attachments(inv.Attachments))
}

// readInvocationBody fills in the parts of inv carried by the body.
func readInvocationBody(u codec.Unmarshaller, inv *Invocation) error {
	const op errors.Op = "ejb.readInvocation"
	t, err := readTransaction(u)
	if err != nil {
		return err
	}
	inv.Transaction = t
	v, err := u.ReadObject()
	if err != nil {
		return err
	}
	args, ok := v.([]interface{})
	if !ok {
		return errors.E(op, errors.Syntax, errors.Errorf("arguments are %T, not a list", v))
	}
	inv.Args = args
	inv.Attachments, err = readAttachments(u)
	return err
}

func writeResponse(m codec.Marshaller, r *Response) error {
	if err := m.WriteObject(r.Value); err != nil {
		return err
	}
	return m.WriteObject(attachments(r.Attachments))
}

func readResponse(u codec.Unmarshaller) (*Response, error) {
	v, err := u.ReadObject()
	if err != nil {
		return nil, err
	}
	a, err := readAttachments(u)
	if err != nil {
		return nil, err
	}
	return &Response{Value: v, Attachments: a}, nil
}

func attachments(a map[string]interface{}) map[string]interface{} {
	if a == nil {
		return map[string]interface{}{}
	}
	return a
}

func readAttachments(u codec.Unmarshaller) (map[string]interface{}, error) {
	const op errors.Op = "ejb.readAttachments"
	v, err := u.ReadObject()
	if err != nil {
		return nil, err
	}
	a, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("attachments are %T, not a map", v))
	}
	return a, nil
}

func writeModules(m codec.Marshaller, mods []ModuleID) error {
	list := make([]interface{}, len(mods))
	for i := range mods {
		list[i] = &mods[i]
	}
	return m.WriteObject(list)
}

func readModules(u codec.Unmarshaller) ([]ModuleID, error) {
	const op errors.Op = "ejb.readModules"
	v, err := u.ReadObject()
	if err != nil {
		return nil, err
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("modules are %T, not a list", v))
	}
	mods := make([]ModuleID, len(list))
	for i, elem := range list {
		m, ok := elem.(*ModuleID)
		if !ok || m == nil {
			return nil, errors.E(op, errors.Syntax, errors.Errorf("element %d is %T, not a module", i, elem))
		}
		mods[i] = *m
	}
	return mods, nil
}
