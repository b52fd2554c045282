// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package txn

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/golang/protobuf/proto"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
)

// Maximum sizes of the parts of an Xid.
const (
	MaxGlobalIDSize        = 64
	MaxBranchQualifierSize = 64
)

// XidTypeName is the wire name of Xid values.
const XidTypeName = "jakarta.transaction.xa.Xid"

func init() {
	codec.Register(XidTypeName, func() codec.Object { return new(Xid) })
}

// Xid identifies a transaction branch minted by a coordinator.
type Xid struct {
	FormatID        int32
	GlobalID        []byte
	BranchQualifier []byte
}

var _ codec.Object = (*Xid)(nil)

// Key returns a string that is equal for two Xids exactly when their
// parts are byte-for-byte equal.
func (x Xid) Key() string {
	var b bytes.Buffer
	var hdr [6]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(x.FormatID))
	hdr[4] = byte(len(x.GlobalID))
	hdr[5] = byte(len(x.BranchQualifier))
	b.Write(hdr[:])
	b.Write(x.GlobalID)
	b.Write(x.BranchQualifier)
	return b.String()
}

// Equal reports whether x and y name the same branch.
func (x Xid) Equal(y Xid) bool {
	return x.Key() == y.Key()
}

func (x Xid) String() string {
	return fmt.Sprintf("%d:%x:%x", x.FormatID, x.GlobalID, x.BranchQualifier)
}

// Valid reports whether the parts of x are within their size limits.
func (x Xid) Valid() error {
	const op errors.Op = "txn.Xid"
	if len(x.GlobalID) == 0 || len(x.GlobalID) > MaxGlobalIDSize {
		return errors.E(op, errors.Invalid, errors.Errorf("global id of %d bytes", len(x.GlobalID)))
	}
	if len(x.BranchQualifier) > MaxBranchQualifierSize {
		return errors.E(op, errors.Invalid, errors.Errorf("branch qualifier of %d bytes", len(x.BranchQualifier)))
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (x *Xid) MarshalBinary() ([]byte, error) {
	if err := x.Valid(); err != nil {
		return nil, err
	}
	buf := proto.NewBuffer(nil)
	buf.EncodeZigzag32(uint64(x.FormatID))
	buf.EncodeRawBytes(x.GlobalID)
	buf.EncodeRawBytes(x.BranchQualifier)
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (x *Xid) UnmarshalBinary(data []byte) error {
	const op errors.Op = "txn.UnmarshalXid"
	buf := proto.NewBuffer(data)
	format, err := buf.DecodeZigzag32()
	if err != nil {
		return errors.E(op, errors.Syntax, err)
	}
	gtrid, err := buf.DecodeRawBytes(true)
	if err != nil {
		return errors.E(op, errors.Syntax, err)
	}
	bqual, err := buf.DecodeRawBytes(true)
	if err != nil {
		return errors.E(op, errors.Syntax, err)
	}
	if len(buf.Unread()) != 0 {
		return errors.E(op, errors.Syntax, errors.Str("trailing bytes"))
	}
	*x = Xid{FormatID: int32(format), GlobalID: gtrid, BranchQualifier: bqual}
	return x.Valid()
}

// writeXid writes x as an object.
func writeXid(m codec.Marshaller, x Xid) error {
	return m.WriteObject(&x)
}

// readXid reads an object written by writeXid.
func readXid(u codec.Unmarshaller) (Xid, error) {
	const op errors.Op = "txn.readXid"
	v, err := u.ReadObject()
	if err != nil {
		return Xid{}, errors.E(op, err)
	}
	x, ok := v.(*Xid)
	if !ok || x == nil {
		return Xid{}, errors.E(op, errors.Syntax, errors.Errorf("body holds %T, not an Xid", v))
	}
	return *x, nil
}

func writeXids(m codec.Marshaller, xids []Xid) error {
	list := make([]interface{}, len(xids))
	for i := range xids {
		list[i] = &xids[i]
	}
	return m.WriteObject(list)
}

func readXids(u codec.Unmarshaller) ([]Xid, error) {
	const op errors.Op = "txn.readXids"
	v, err := u.ReadObject()
	if err != nil {
		return nil, errors.E(op, err)
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("body holds %T, not a list", v))
	}
	xids := make([]Xid, len(list))
	for i, elem := range list {
		x, ok := elem.(*Xid)
		if !ok || x == nil {
			return nil, errors.E(op, errors.Syntax, errors.Errorf("element %d is %T, not an Xid", i, elem))
		}
		xids[i] = *x
	}
	return xids, nil
}
