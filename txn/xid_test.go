// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package txn

import (
	"bytes"
	"testing"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
)

var testXid = Xid{FormatID: -7, GlobalID: []byte("global"), BranchQualifier: []byte("branch")}

func TestXidCodec(t *testing.T) {
	for _, f := range []codec.Factory{codec.Binary, codec.Interop} {
		var buf bytes.Buffer
		err := codec.Marshal(&buf, f, func(m codec.Marshaller) error {
			return writeXids(m, []Xid{testXid, {FormatID: 1, GlobalID: []byte{0}}})
		})
		if err != nil {
			t.Fatal(err)
		}
		var got []Xid
		err = codec.Unmarshal(&buf, codec.Binary, func(u codec.Unmarshaller) error {
			var err error
			got, err = readXids(u)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || !got[0].Equal(testXid) || got[1].FormatID != 1 {
			t.Errorf("got %v", got)
		}
	}
}

func TestXidKey(t *testing.T) {
	a := Xid{FormatID: 1, GlobalID: []byte("ab"), BranchQualifier: []byte("c")}
	b := Xid{FormatID: 1, GlobalID: []byte("a"), BranchQualifier: []byte("bc")}
	if a.Key() == b.Key() {
		t.Errorf("distinct xids %v and %v share a key", a, b)
	}
	c := Xid{FormatID: 1, GlobalID: []byte("ab"), BranchQualifier: []byte("c")}
	if !a.Equal(c) {
		t.Errorf("%v and %v not equal", a, c)
	}
}

func TestXidInvalid(t *testing.T) {
	tests := []Xid{
		{FormatID: 1},
		{FormatID: 1, GlobalID: make([]byte, MaxGlobalIDSize+1)},
		{FormatID: 1, GlobalID: []byte("g"), BranchQualifier: make([]byte, MaxBranchQualifierSize+1)},
	}
	for _, x := range tests {
		if _, err := x.MarshalBinary(); !errors.Is(errors.Invalid, err) {
			t.Errorf("MarshalBinary(%v) = %v, want Invalid", x, err)
		}
	}
	var x Xid
	if err := x.UnmarshalBinary([]byte{0x80}); !errors.Is(errors.Syntax, err) {
		t.Errorf("UnmarshalBinary of truncated data = %v, want Syntax", err)
	}
}

func TestUnknownRequestType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("no panic for unknown request type")
		}
	}()
	RequestType(99).Operation()
}
