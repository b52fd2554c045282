// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"strconv"
	"strings"
)

const (
	versionPrefix    = "version="
	versionSeparator = ";"
)

// ContentType is a versioned media type such as
// "application/x-wf-txn-jbmar-xid;version=1".
//
// ContentType values are comparable with ==. A type parsed without a
// version parameter is not equal to one that states version=-1.
type ContentType struct {
	typ      string
	version  int
	explicit bool
}

// NewContentType returns the content type with an explicit version.
func NewContentType(typ string, version int) ContentType {
	return ContentType{typ: typ, version: version, explicit: true}
}

// ParseContentType parses a Content-Type header value. The first
// parameter of the form version=N gives the version; without one the
// version is -1. It returns false if raw has no media type or carries a
// malformed version.
func ParseContentType(raw string) (ContentType, bool) {
	parts := strings.Split(raw, versionSeparator)
	typ := strings.TrimSpace(parts[0])
	if typ == "" {
		return ContentType{}, false
	}
	ct := ContentType{typ: typ, version: -1}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, versionPrefix) {
			continue
		}
		v, err := strconv.Atoi(part[len(versionPrefix):])
		if err != nil {
			return ContentType{}, false
		}
		ct.version = v
		ct.explicit = true
		break
	}
	return ct, true
}

// Type returns the media type.
func (c ContentType) Type() string { return c.typ }

// Version returns the version, or -1 if none was given.
func (c ContentType) Version() int { return c.version }

// IsZero reports whether c is the zero ContentType.
func (c ContentType) IsZero() bool { return c.typ == "" }

func (c ContentType) String() string {
	return c.typ + versionSeparator + versionPrefix + strconv.Itoa(c.version)
}

// Accept formats types as the value of an Accept header.
func Accept(types ...ContentType) string {
	s := make([]string, len(types))
	for i, t := range types {
		s[i] = t.String()
	}
	return strings.Join(s, ",")
}

// ExceptionType labels a response body holding a marshalled error.
var ExceptionType = NewContentType("application/x-wf-jbmar-exception", 1)
