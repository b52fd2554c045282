// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"net/http"
	"strconv"

	"httpremoting.io/errors"
)

// VersionHeader carries the negotiated protocol version. A request without
// it speaks the Legacy version.
const VersionHeader = "X-Wf-Version"

// Handler is the generation of the server-side handlers.
type Handler uint8

// Handler generations.
const (
	HandlerV1 Handler = 0
	HandlerV2 Handler = 1
)

// Generation returns the number used in the "v<N>" path segment.
func (h Handler) Generation() int {
	return int(h) + 1
}

// Specification is the generation of the component specification
// the payload types belong to. Specifications are ordered.
type Specification int8

// Specification generations. SpecEE8 is the legacy sentinel.
const (
	SpecEE8  Specification = -1
	SpecEE9  Specification = 0
	SpecEE10 Specification = 1
)

// Encoding is the body encoding.
type Encoding uint8

// Body encodings.
const (
	EncodingBinary Encoding = 0
)

// Version is a negotiated protocol version. Versions are immutable;
// the canonical versions below are shared and may be compared by pointer.
type Version struct {
	// Interop reports whether payload type names must be transformed
	// between specification generations.
	Interop  bool
	Handler  Handler
	Spec     Specification
	Encoding Encoding
}

// Canonical versions.
var (
	Legacy = &Version{Interop: true, Handler: HandlerV1, Spec: SpecEE8, Encoding: EncodingBinary}
	EE9    = &Version{Handler: HandlerV2, Spec: SpecEE9, Encoding: EncodingBinary}
	EE10   = &Version{Handler: HandlerV2, Spec: SpecEE10, Encoding: EncodingBinary}

	// Latest is the version spoken by this build. It is never
	// written to the wire: omitting the header means Latest.
	Latest = EE10
)

var canonical = []*Version{Legacy, EE9, EE10}

// Bit layout of the version header value.
const (
	maskInterop  = 0x0001 // bit 0
	maskHandler  = 0x007e // bits 1-6
	maskSpec     = 0x1f80 // bits 7-12
	maskEncoding = 0xe000 // bits 13-15

	shiftHandler  = 1
	shiftSpec     = 7
	shiftEncoding = 13

	specWidth = 6
)

// Bits returns the bit pattern of v.
func (v *Version) Bits() int {
	bits := 0
	if v.Interop {
		bits |= maskInterop
	}
	bits |= int(v.Handler) << shiftHandler & maskHandler
	// The specification field is a 6-bit two's complement number
	// so the -1 sentinel is representable.
	bits |= (int(v.Spec) & (1<<specWidth - 1)) << shiftSpec
	bits |= int(v.Encoding) << shiftEncoding & maskEncoding
	return bits
}

// Header returns the value of the version header for v.
// It returns false if the header should be omitted because v is Latest.
func (v *Version) Header() (string, bool) {
	if *v == *Latest {
		return "", false
	}
	return strconv.Itoa(v.Bits()), true
}

func (v *Version) String() string {
	return "version 0x" + strconv.FormatInt(int64(v.Bits()), 16)
}

// RequiresTransformation reports whether bodies exchanged at v must go
// through the interoperability codec.
func (v *Version) RequiresTransformation() bool {
	return v.Interop
}

// VersionOf returns the Version with the given bit pattern.
// The canonical versions are returned by identity.
func VersionOf(bits int) (*Version, error) {
	const op errors.Op = "protocol.VersionOf"
	for _, c := range canonical {
		if c.Bits() == bits {
			return c, nil
		}
	}
	if bits&^(maskInterop|maskHandler|maskSpec|maskEncoding) != 0 {
		return nil, errors.E(op, errors.Unsupported, errors.Errorf("unknown bits in version %#x", bits))
	}
	v := &Version{Interop: bits&maskInterop != 0}

	switch h := Handler((bits & maskHandler) >> shiftHandler); h {
	case HandlerV1, HandlerV2:
		v.Handler = h
	default:
		return nil, errors.E(op, errors.Unsupported, errors.Errorf("unsupported handler version %d", h))
	}

	spec := (bits & maskSpec) >> shiftSpec
	if spec&(1<<(specWidth-1)) != 0 {
		spec -= 1 << specWidth // sign extend
	}
	switch s := Specification(spec); s {
	case SpecEE8, SpecEE9, SpecEE10:
		v.Spec = s
	default:
		return nil, errors.E(op, errors.Unsupported, errors.Errorf("unsupported specification version %d", spec))
	}

	switch e := Encoding((bits & maskEncoding) >> shiftEncoding); e {
	case EncodingBinary:
		v.Encoding = e
	default:
		return nil, errors.E(op, errors.Unsupported, errors.Errorf("unsupported encoding version %d", e))
	}
	return v, nil
}

// ParseVersion parses a version header value, which may be written in
// decimal or with a 0x prefix.
func ParseVersion(s string) (*Version, error) {
	const op errors.Op = "protocol.ParseVersion"
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil || n < 0 {
		return nil, errors.E(op, errors.Unsupported, errors.Errorf("malformed version %q", s))
	}
	return VersionOf(int(n))
}

// ReadVersion returns the version announced by the header.
// A missing header is not an error: it denotes the Legacy version.
func ReadVersion(h http.Header) (*Version, error) {
	s := h.Get(VersionHeader)
	if s == "" {
		return Legacy, nil
	}
	return ParseVersion(s)
}

// WriteVersion records v in the header, omitting it for Latest.
func WriteVersion(h http.Header, v *Version) {
	if s, ok := v.Header(); ok {
		h.Set(VersionHeader, s)
		return
	}
	h.Del(VersionHeader)
}
