// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/protocol"
)

// Headers shared by the sub-protocols.
const (
	InvocationIDHeader = "X-Wf-Invocation-Id"

	acceptHeader          = "Accept"
	contentTypeHeader     = "Content-Type"
	contentEncodingHeader = "Content-Encoding"
	acceptEncodingHeader  = "Accept-Encoding"
	gzipEncoding          = "gzip"
)

// Target identifies a remoting server.
type Target struct {
	// URL holds the scheme and host of the server. Its path is the
	// context root.
	URL *url.URL

	// Version is the protocol version to speak. Nil means protocol.Latest.
	Version *protocol.Version

	// EncodeAll percent-encodes every operation-specific segment,
	// not only those flagged as possibly holding reserved characters.
	EncodeAll bool
}

// ParseTarget returns the Target for a server URL.
func ParseTarget(rawURL string, v *protocol.Version) (*Target, error) {
	const op errors.Op = "rpc.ParseTarget"
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.E(op, errors.Syntax, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("unsupported scheme %q", u.Scheme))
	}
	return &Target{URL: u, Version: v}, nil
}

func (t *Target) version() *protocol.Version {
	if t.Version == nil {
		return protocol.Latest
	}
	return t.Version
}

// Codec returns the codec for bodies exchanged with the target: the
// interoperability codec when its version requires transformation,
// the standard binary codec otherwise.
func (t *Target) Codec() codec.Factory {
	if t.version().RequiresTransformation() {
		return codec.Interop
	}
	return codec.Binary
}

// Builder assembles the HTTP request for one operation. Its methods
// return the Builder so calls may be chained.
type Builder struct {
	target   *Target
	family   string
	op       protocol.Operation
	segments []string
	query    url.Values
	header   http.Header
	chunked  bool
}

// NewBuilder returns a Builder for op of the given operation family.
func NewBuilder(t *Target, family string, op protocol.Operation) *Builder {
	return &Builder{
		target: t,
		family: family,
		op:     op,
		query:  make(url.Values),
		header: make(http.Header),
	}
}

// Segment appends an operation-specific path segment. When encode is set,
// or the target encodes all segments, reserved characters are
// percent-encoded. An empty value is written as protocol.Placeholder.
func (b *Builder) Segment(value string, encode bool) *Builder {
	b.segments = append(b.segments, protocol.EscapeSegment(value, encode || b.target.EncodeAll))
	return b
}

// Query adds a query parameter.
func (b *Builder) Query(key, value string) *Builder {
	b.query.Add(key, value)
	return b
}

// Header sets a request header.
func (b *Builder) Header(key, value string) *Builder {
	b.header.Set(key, value)
	return b
}

// Accept lists the content types the caller can decode.
func (b *Builder) Accept(types ...protocol.ContentType) *Builder {
	b.header.Set(acceptHeader, protocol.Accept(types...))
	return b
}

// ContentType labels the request body.
func (b *Builder) ContentType(ct protocol.ContentType) *Builder {
	b.header.Set(contentTypeHeader, ct.String())
	return b
}

// Compress asks for a gzip compressed request body, response body, or both.
func (b *Builder) Compress(request, response bool) *Builder {
	if request {
		b.header.Set(contentEncodingHeader, gzipEncoding)
	}
	if response {
		b.header.Set(acceptEncodingHeader, gzipEncoding)
	}
	return b
}

// InvocationID correlates the request with a later cancellation.
// An empty id is ignored.
func (b *Builder) InvocationID(id string) *Builder {
	if id != "" {
		b.header.Set(InvocationIDHeader, id)
	}
	return b
}

// Chunked marks the body as streamed with unknown length.
func (b *Builder) Chunked() *Builder {
	b.chunked = true
	return b
}

// Path returns the escaped request path.
func (b *Builder) Path() string {
	var p strings.Builder
	p.WriteString(strings.TrimSuffix(b.target.URL.EscapedPath(), "/"))
	p.WriteString("/")
	p.WriteString(b.family)
	p.WriteString("/v")
	p.WriteString(strconv.Itoa(b.target.version().Handler.Generation()))
	p.WriteString("/")
	p.WriteString(b.op.Path)
	for _, s := range b.segments {
		p.WriteString("/")
		p.WriteString(s)
	}
	return p.String()
}

// Request returns the request, ready to send. It performs no I/O; the body
// is attached by Client.Do.
func (b *Builder) Request(ctx context.Context) (*http.Request, error) {
	const op errors.Op = "rpc.Request"
	u := *b.target.URL
	u.RawPath = b.Path()
	path, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return nil, errors.E(op, errors.Syntax, err)
	}
	u.Path = path
	u.RawQuery = b.query.Encode()
	u.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, b.op.Method, u.String(), nil)
	if err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	for k, v := range b.header {
		req.Header[k] = v
	}
	protocol.WriteVersion(req.Header, b.target.version())
	if b.chunked {
		req.TransferEncoding = []string{"chunked"}
	}
	return req, nil
}
