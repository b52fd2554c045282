// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package rpc carries the remoting sub-protocols over HTTP.

Wire protocol

A client addresses an operation with a request to

	<context root>/<family>/v<handler generation>/<operation path>/<segments...>

using the operation's HTTP method. The X-Wf-Version header states the
protocol version; it is omitted for the latest version, and a request
without it is served as the legacy version with type names translated by
the interoperability codec. Bodies are labelled with versioned content
types.

The server validates each request in a fixed order before running the
operation: the content type must equal the one the operation expects,
every required header must be present, and every required query
parameter must have a value. The first failing check answers 400 Bad
Request with no body.

If an operation fails, the server answers 500 Internal Server Error with
the content type

	application/x-wf-jbmar-exception;version=1

and the error, marshalled with the negotiated codec, as the body. The
client unmarshals it into an equivalent error value. If even the error
cannot be written, the connection is aborted.

Bodies are compressed with gzip when the peer asks for it.
*/
package rpc // import "httpremoting.io/rpc"
