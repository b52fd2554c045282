// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/log"
	"httpremoting.io/metric"
	"httpremoting.io/protocol"
)

// Endpoint describes how the server validates and runs one operation.
// The zero value of each requirement means no requirement.
type Endpoint struct {
	Op protocol.Operation

	// ContentType, if non-nil, must equal the request's content type,
	// version included.
	ContentType *protocol.ContentType

	// Headers must all be present. Their values are not checked.
	Headers []string

	// Query parameters must all have at least one value.
	Query []string

	// Process runs the operation. A returned error, or a panic, is sent
	// to the client as an exception.
	Process func(x *Exchange) error
}

// Exchange is one request being served.
type Exchange struct {
	W http.ResponseWriter
	R *http.Request

	// Version is the negotiated protocol version.
	Version *protocol.Version

	// Factory is the codec for both bodies of this exchange.
	Factory codec.Factory

	// Segments are the unescaped operation-specific path segments.
	Segments []string

	// Span measures the exchange.
	Span *metric.Span

	resp *response
}

// Segment returns the i'th path segment, or the empty string.
func (x *Exchange) Segment(i int) string {
	if i < len(x.Segments) {
		return x.Segments[i]
	}
	return ""
}

// Read unmarshals the request body.
func (x *Exchange) Read(fn func(codec.Unmarshaller) error) error {
	return codec.Unmarshal(x.R.Body, x.Factory, fn)
}

// Write sends a response body of the given content type. The body is
// encoded before the status is sent, so an encoding failure can still be
// reported as an exception.
func (x *Exchange) Write(ct protocol.ContentType, fn func(codec.Marshaller) error) error {
	var body bytes.Buffer
	if err := codec.Marshal(&body, x.Factory, fn); err != nil {
		return err
	}
	x.W.Header().Set(contentTypeHeader, ct.String())
	x.W.WriteHeader(http.StatusOK)
	if _, err := body.WriteTo(x.W); err != nil {
		return errors.E(errors.Op("rpc.Write"), errors.IO, err)
	}
	return nil
}

// NoContent sends an empty 204 response.
func (x *Exchange) NoContent() {
	x.W.WriteHeader(http.StatusNoContent)
}

// Codecs holds the standard codec and the one used for exchanges whose
// version requires transformation.
type Codecs struct {
	Standard codec.Factory
	Interop  codec.Factory
}

// DefaultCodecs are the binary codecs over codec.DefaultTypes.
var DefaultCodecs = Codecs{Standard: codec.Binary, Interop: codec.Interop}

// Negotiated is the outcome of reading a request's version.
type Negotiated struct {
	Version *protocol.Version
	Factory codec.Factory
}

// Negotiate reads the version of r and selects the codec for the exchange.
// A request without a version header speaks protocol.Legacy, which
// requires the interoperability codec for both bodies.
func Negotiate(r *http.Request, c Codecs) (Negotiated, error) {
	const op errors.Op = "rpc.Negotiate"
	v, err := protocol.ReadVersion(r.Header)
	if err != nil {
		return Negotiated{}, errors.E(op, err)
	}
	n := Negotiated{Version: v, Factory: c.Standard}
	if v.RequiresTransformation() {
		n.Factory = c.Interop
	}
	return n, nil
}

// Server routes requests to Endpoints.
type Server struct {
	root   string
	codecs Codecs
	router *mux.Router
}

// NewServer returns a Server for operations under the context root.
func NewServer(root string, c Codecs) *Server {
	r := mux.NewRouter()
	r.UseEncodedPath()
	return &Server{
		root:   "/" + strings.Trim(root, "/"),
		codecs: c,
		router: r,
	}
}

// Handle registers the endpoints of an operation family for every handler
// generation.
func (s *Server) Handle(family string, endpoints ...*Endpoint) {
	for _, e := range endpoints {
		for _, h := range []protocol.Handler{protocol.HandlerV1, protocol.HandlerV2} {
			prefix := strings.TrimSuffix(s.root, "/") + "/" + family + "/v" + strconv.Itoa(h.Generation()) + "/" + e.Op.Path
			handler := s.serve(e, prefix)
			s.router.Methods(e.Op.Method).Path(prefix).Handler(handler)
			s.router.Methods(e.Op.Method).PathPrefix(prefix + "/").Handler(handler)
		}
	}
}

// ServeHTTP implements http.Handler. Responses are compressed when the
// client accepts gzip; compressed request bodies are inflated.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// Handler returns the server's handler chain.
func (s *Server) Handler() http.Handler {
	return gziphandler.GzipHandler(inflate(s.router))
}

// inflate decompresses request bodies sent with Content-Encoding: gzip.
func inflate(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(contentEncodingHeader) != gzipEncoding {
			h.ServeHTTP(w, r)
			return
		}
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			log.Debug.Printf("rpc: %s %s: bad gzip body: %v", r.Method, r.URL.Path, err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body := r.Body
		defer body.Close()
		r.Body = zr
		r.Header.Del(contentEncodingHeader)
		h.ServeHTTP(w, r)
	})
}

// response records whether anything has been sent to the client.
type response struct {
	http.ResponseWriter
	wrote bool
}

func (r *response) WriteHeader(code int) {
	r.wrote = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *response) Write(p []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(p)
}

func (s *Server) serve(e *Endpoint, prefix string) http.Handler {
	name := errors.Op("rpc.Serve " + e.Op.Name)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, span := metric.NewSpan(name)
		defer m.Done()

		resp := &response{ResponseWriter: w}
		x := &Exchange{
			W:       resp,
			R:       r,
			Factory: s.codecs.Standard,
			Span:    span,
			resp:    resp,
		}
		err := s.process(e, prefix, x)
		if err == nil {
			return
		}
		span.SetAnnotation(err.Error())
		s.exception(e, x, err)
	})
}

// process runs the gates and the operation. Panics are returned as
// internal errors.
func (s *Server) process(e *Endpoint, prefix string, x *Exchange) (err error) {
	const op errors.Op = "rpc.process"
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			err = errors.E(errors.Op(e.Op.Name), errors.Internal, errors.Errorf("panic: %v", p))
		}
	}()

	n, err := Negotiate(x.R, s.codecs)
	if err != nil {
		return err
	}
	x.Version, x.Factory = n.Version, n.Factory

	if reason := gates(e, x.R); reason != "" {
		log.Debug.Printf("rpc: %s %s: %s", x.R.Method, x.R.URL.Path, reason)
		x.W.WriteHeader(http.StatusBadRequest)
		return nil
	}

	x.Segments, err = protocol.SplitSegments(strings.TrimPrefix(x.R.URL.EscapedPath(), prefix))
	if err != nil {
		log.Debug.Printf("rpc: %s %s: bad path: %v", x.R.Method, x.R.URL.Path, err)
		x.W.WriteHeader(http.StatusBadRequest)
		return nil
	}

	sp := x.Span.StartSpan(errors.Op(e.Op.Name))
	defer sp.End()
	return e.Process(x)
}

// gates checks the endpoint's requirements in order and describes the
// first that is not met.
func gates(e *Endpoint, r *http.Request) string {
	if e.ContentType != nil {
		raw := r.Header.Get(contentTypeHeader)
		ct, ok := protocol.ParseContentType(raw)
		if !ok || ct != *e.ContentType {
			return fmt.Sprintf("content type %q, want %q", raw, e.ContentType)
		}
	}
	for _, h := range e.Headers {
		if _, ok := r.Header[http.CanonicalHeaderKey(h)]; !ok {
			return fmt.Sprintf("missing header %s", h)
		}
	}
	if len(e.Query) > 0 {
		q := r.URL.Query()
		for _, k := range e.Query {
			if len(q[k]) == 0 {
				return fmt.Sprintf("missing query parameter %s", k)
			}
		}
	}
	return ""
}

// exception sends err as an exception response. If that is impossible the
// connection is aborted.
func (s *Server) exception(e *Endpoint, x *Exchange, err error) {
	log.Debug.Printf("rpc: %s: %v", e.Op.Name, err)
	if x.resp.wrote {
		s.abort(e, errors.E(errors.IO, errors.Str("response already started")), err)
	}
	h := x.W.Header()
	h.Set(contentTypeHeader, protocol.ExceptionType.String())
	x.W.WriteHeader(http.StatusInternalServerError)
	werr := codec.Marshal(writerOnly{x.W}, x.Factory, func(m codec.Marshaller) error {
		return m.WriteObject(err)
	})
	if werr != nil {
		s.abort(e, werr, err)
	}
}

// abort logs a failure to report err and terminates the exchange.
func (s *Server) abort(e *Endpoint, writeErr, err error) {
	log.Error.Printf("rpc: %s: cannot send exception: %v", e.Op.Name, errors.Suppressed(writeErr, err))
	panic(http.ErrAbortHandler)
}
