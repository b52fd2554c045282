// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"net/url"
	"strings"
)

// Operation describes one remote operation of a sub-protocol: its
// human-readable name, HTTP method and path below the version segment.
//
// Each sub-protocol declares a closed enumeration of request types and a
// single table mapping each to its Operation.
type Operation struct {
	Name   string
	Method string
	Path   string
}

func (o Operation) String() string {
	return o.Name
}

// Placeholder stands for an empty path segment so that the number of
// segments does not depend on which optional values are present.
const Placeholder = "-"

// EscapeSegment returns s as a path segment. When encode is set, reserved
// characters are percent-encoded, and so is a literal Placeholder. An
// empty s becomes the Placeholder.
func EscapeSegment(s string, encode bool) string {
	switch {
	case s == "":
		return Placeholder
	case encode && s == Placeholder:
		return "%2D"
	case encode:
		return url.PathEscape(s)
	}
	return s
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(s string) (string, error) {
	if s == Placeholder {
		return "", nil
	}
	return url.PathUnescape(s)
}

// SplitSegments splits the operation-specific tail of a request path into
// its unescaped segments.
func SplitSegments(rawTail string) ([]string, error) {
	rawTail = strings.Trim(rawTail, "/")
	if rawTail == "" {
		return nil, nil
	}
	parts := strings.Split(rawTail, "/")
	for i, p := range parts {
		s, err := UnescapeSegment(p)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return parts, nil
}
