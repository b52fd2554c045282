// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"net/http"
	"testing"

	"httpremoting.io/errors"
)

func TestCanonicalIdentity(t *testing.T) {
	for _, v := range []*Version{Legacy, EE9, EE10} {
		got, err := VersionOf(v.Bits())
		if err != nil {
			t.Fatalf("VersionOf(%#x): %v", v.Bits(), err)
		}
		if got != v {
			t.Errorf("VersionOf(%#x) = %p, want canonical %p", v.Bits(), got, v)
		}
	}
}

func TestCanonicalBits(t *testing.T) {
	tests := []struct {
		v    *Version
		bits int
	}{
		{Legacy, 0x1f81},
		{EE9, 0x0002},
		{EE10, 0x0082},
	}
	for _, test := range tests {
		if got := test.v.Bits(); got != test.bits {
			t.Errorf("%v.Bits() = %#x, want %#x", test.v, got, test.bits)
		}
	}
}

func TestVersionRoundTrip(t *testing.T) {
	// Every valid combination of fields.
	for _, interop := range []bool{false, true} {
		for _, h := range []Handler{HandlerV1, HandlerV2} {
			for _, s := range []Specification{SpecEE8, SpecEE9, SpecEE10} {
				v := &Version{Interop: interop, Handler: h, Spec: s, Encoding: EncodingBinary}
				hdr, ok := v.Header()
				if !ok {
					if *v != *Latest {
						t.Fatalf("%v: header omitted for non-latest version", v)
					}
					continue
				}
				got, err := ParseVersion(hdr)
				if err != nil {
					t.Fatalf("ParseVersion(%q): %v", hdr, err)
				}
				if *got != *v {
					t.Errorf("ParseVersion(%q) = %+v, want %+v", hdr, *got, *v)
				}
			}
		}
	}
}

func TestParseVersionForms(t *testing.T) {
	tests := []struct {
		in   string
		want *Version
	}{
		{"2", EE9},
		{"0x82", EE10},
		{"130", EE10},
		{"0x1f81", Legacy},
	}
	for _, test := range tests {
		got, err := ParseVersion(test.in)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", test.in, err)
		}
		if got != test.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestParseVersionUnsupported(t *testing.T) {
	for _, in := range []string{
		"4",       // handler generation 2
		"0x0102",  // specification 2
		"0x2002",  // encoding 1
		"0x10002", // bit beyond the layout
		"-1",
		"abc",
	} {
		_, err := ParseVersion(in)
		if !errors.Is(errors.Unsupported, err) {
			t.Errorf("ParseVersion(%q) error = %v, want Unsupported", in, err)
		}
	}
}

func TestReadWriteVersion(t *testing.T) {
	h := make(http.Header)
	v, err := ReadVersion(h)
	if err != nil {
		t.Fatal(err)
	}
	if v != Legacy {
		t.Fatalf("missing header gave %v, want Legacy", v)
	}
	if !v.RequiresTransformation() {
		t.Fatal("Legacy must require transformation")
	}

	WriteVersion(h, Latest)
	if _, ok := h[VersionHeader]; ok {
		t.Fatal("header written for Latest")
	}
	WriteVersion(h, EE9)
	if got := h.Get(VersionHeader); got != "2" {
		t.Fatalf("header = %q, want %q", got, "2")
	}
	v, err = ReadVersion(h)
	if err != nil {
		t.Fatal(err)
	}
	if v != EE9 {
		t.Fatalf("ReadVersion = %v, want EE9", v)
	}
}

func TestContentTypeRoundTrip(t *testing.T) {
	for _, s := range []string{"app/x;version=3", "application/x-wf-jbmar-exception;version=1"} {
		ct, ok := ParseContentType(s)
		if !ok {
			t.Fatalf("ParseContentType(%q) failed", s)
		}
		if ct.String() != s {
			t.Errorf("ParseContentType(%q).String() = %q", s, ct)
		}
	}
}

func TestParseContentType(t *testing.T) {
	tests := []struct {
		in      string
		ok      bool
		typ     string
		version int
	}{
		{"", false, "", 0},
		{"  ;version=1", false, "", 0},
		{"app/x", true, "app/x", -1},
		{" app/x ; charset=utf-8; version=2; version=3", true, "app/x", 2},
		{"app/x;version=two", false, "", 0},
	}
	for _, test := range tests {
		ct, ok := ParseContentType(test.in)
		if ok != test.ok {
			t.Errorf("ParseContentType(%q) ok = %t, want %t", test.in, ok, test.ok)
			continue
		}
		if !ok {
			continue
		}
		if ct.Type() != test.typ || ct.Version() != test.version {
			t.Errorf("ParseContentType(%q) = %q/%d, want %q/%d", test.in, ct.Type(), ct.Version(), test.typ, test.version)
		}
	}
}

func TestContentTypeEquality(t *testing.T) {
	implicit, _ := ParseContentType("app/x")
	explicit, _ := ParseContentType("app/x;version=-1")
	if implicit == explicit {
		t.Error("default version equals explicit version=-1")
	}
	one, _ := ParseContentType("app/x;version=1")
	if one != NewContentType("app/x", 1) {
		t.Error("parsed and constructed types differ")
	}
	if one == NewContentType("app/x", 2) {
		t.Error("types with different versions are equal")
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		in     string
		encode bool
		want   string
	}{
		{"", true, "-"},
		{"", false, "-"},
		{"a b/c", true, "a%20b%2Fc"},
		{"plain", false, "plain"},
		{"-", true, "%2D"},
		{"a-b", true, "a-b"},
	}
	for _, test := range tests {
		if got := EscapeSegment(test.in, test.encode); got != test.want {
			t.Errorf("EscapeSegment(%q, %t) = %q, want %q", test.in, test.encode, got, test.want)
		}
	}
	for _, in := range []string{"", "-", "--", "a b/c"} {
		got, err := UnescapeSegment(EscapeSegment(in, true))
		if err != nil || got != in {
			t.Errorf("round trip of %q = %q, %v", in, got, err)
		}
	}
	segs, err := SplitSegments("/app/-/a%20b%2Fc/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"app", "", "a b/c"}
	if len(segs) != len(want) {
		t.Fatalf("SplitSegments = %q, want %q", segs, want)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d = %q, want %q", i, segs[i], want[i])
		}
	}
}
