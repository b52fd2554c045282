// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errors

import (
	"io"
	"testing"
)

func TestMarshal(t *testing.T) {
	name := Name("java:global/app/Bean")
	err := Str("network unreachable")

	// Single error.
	e1 := E(Op("Get"), IO, err)

	// Nested error.
	e2 := E(name, Op("Read"), Other, e1)

	b := MarshalError(e2)
	e3 := UnmarshalError(b)

	in := e2.(*Error)
	out := e3.(*Error)
	// Compare elementwise.
	if in.Name != out.Name {
		t.Errorf("expected Name %q; got %q", in.Name, out.Name)
	}
	if in.Op != out.Op {
		t.Errorf("expected Op %q; got %q", in.Op, out.Op)
	}
	if in.Kind != out.Kind {
		t.Errorf("expected kind %d; got %d", in.Kind, out.Kind)
	}
	// Note that error will have lost type information, so just check its Error string.
	if in.Err.Error() != out.Err.Error() {
		t.Errorf("expected Err %q; got %q", in.Err, out.Err)
	}
}

func TestMarshalSuppressed(t *testing.T) {
	orig := E(Op("txn.Commit"), Transaction, "heuristic rollback")
	err := Suppressed(E(Op("rpc.sendException"), IO, "broken pipe"), orig)

	out := UnmarshalError(MarshalError(err))
	if !Is(IO, out) {
		t.Fatalf("got %v, want IO kind", out)
	}
	if Is(Transaction, out) {
		t.Fatalf("suppressed cause must not be marshalled: %v", out)
	}
	if !Is(IO, err) {
		t.Fatalf("Is must see through Suppressed: %v", err)
	}
}

func TestSeparator(t *testing.T) {
	defer func(prev string) {
		Separator = prev
	}(Separator)
	Separator = ":: "

	// Same pattern as above.
	name := Name("jane/file")
	err := Str("network unreachable")

	e1 := E(Op("Get"), IO, err)
	e2 := E(Op("Read"), name, Other, e1)

	want := "Read: jane/file: I/O error:: Get: network unreachable"
	if e2.Error() != want {
		t.Errorf("expected %q; got %q", want, e2)
	}
}

func TestDoesNotChangePreviousError(t *testing.T) {
	err := E(Permission)
	err2 := E(Op("I will NOT modify err"), err)

	expected := "I will NOT modify err: permission denied"
	if err2.Error() != expected {
		t.Fatalf("Expected %q, got %q", expected, err2)
	}
	kind := err.(*Error).Kind
	if kind != Permission {
		t.Fatalf("Expected kind %v, got %v", Permission, kind)
	}
}

func TestNoArgs(t *testing.T) {
	defer func() {
		err := recover()
		if err == nil {
			t.Fatal("E() did not panic")
		}
	}()
	_ = E()
}

type matchTest struct {
	err1, err2 error
	matched    bool
}

const (
	name1 = Name("ctx/x")
	name2 = Name("ctx/y")
)

var matchTests = []matchTest{
	// Errors not of type *Error fail outright.
	{nil, nil, false},
	{io.EOF, io.EOF, false},
	{E(io.EOF), io.EOF, false},
	{io.EOF, E(io.EOF), false},
	// Success. We can drop fields from the first argument and still match.
	{E(io.EOF), E(io.EOF), true},
	{E(Op("Op"), Syntax, io.EOF, name1), E(Op("Op"), Syntax, io.EOF, name1), true},
	{E(Op("Op"), Syntax, io.EOF), E(Op("Op"), Syntax, io.EOF, name1), true},
	{E(Op("Op"), Syntax), E(Op("Op"), Syntax, io.EOF, name1), true},
	{E(Op("Op")), E(Op("Op"), Syntax, io.EOF, name1), true},
	// Failure.
	{E(io.EOF), E(io.ErrClosedPipe), false},
	{E(Op("Op1")), E(Op("Op2")), false},
	{E(Syntax), E(Permission), false},
	{E(name1), E(name2), false},
	{E(name1, Str("something")), E(name1), false}, // Test nil error on rhs.
}

func TestMatch(t *testing.T) {
	for _, test := range matchTests {
		matched := Match(test.err1, test.err2)
		if matched != test.matched {
			t.Errorf("Match(%q, %q)=%t; want %t", test.err1, test.err2, matched, test.matched)
		}
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		want bool
	}{
		{nil, NotExist, false},
		{io.EOF, IO, false},
		{E(NotExist), NotExist, true},
		{E(Op("outer"), E(Op("inner"), Canceled)), Canceled, true},
		{E(Op("outer"), Invalid, E(Canceled)), Canceled, false},
	}
	for _, test := range tests {
		if got := Is(test.kind, test.err); got != test.want {
			t.Errorf("Is(%v, %q)=%t; want %t", test.kind, test.err, got, test.want)
		}
	}
}
