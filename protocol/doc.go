// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package protocol defines the wire vocabulary shared by the invocation,
naming and transaction sub-protocols.

Version negotiation

A client states its protocol version in the X-Wf-Version header as a 16-bit
pattern: bit 0 requests interoperability transformation, bits 1-6 hold the
handler generation, bits 7-12 the specification generation (two's
complement, so the legacy sentinel -1 is all ones) and bits 13-15 the body
encoding. The header is omitted for the latest version; a request without
it speaks the legacy version.

Content types

Bodies are labelled with versioned media types of the form
	type;version=N
and servers reject a request whose content type does not equal the one the
operation expects, version included.

Paths

Every request is addressed to
	<context root>/<family>/v<handler generation>/<operation path>/<segments...>
where empty segments are written as "-".
*/
package protocol // import "httpremoting.io/protocol"
