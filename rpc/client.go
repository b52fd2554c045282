// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"compress/gzip"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"httpremoting.io/codec"
	"httpremoting.io/config"
	"httpremoting.io/errors"
	"httpremoting.io/log"
	"httpremoting.io/protocol"
)

// Client sends requests built by a Builder and hands their bodies to
// Encoders and Decoders.
type Client struct {
	client *http.Client
}

// NewClient returns a Client configured by cfg.
func NewClient(cfg *config.Client) (*Client, error) {
	const op errors.Op = "rpc.NewClient"

	pool, err := cfg.CertPool()
	if err != nil {
		return nil, errors.E(op, err)
	}
	t := &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: pool},
		// The following values are the same as
		// net/http.DefaultTransport.
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			return nil, errors.E(op, err)
		}
	}
	return &Client{client: &http.Client{
		Transport: t,
		Timeout:   cfg.TimeoutDuration(),
	}}, nil
}

// NewClientFrom returns a Client that sends requests with hc.
func NewClientFrom(hc *http.Client) *Client {
	return &Client{client: hc}
}

// Do sends req. If enc is non-nil it streams the request body, compressed
// if the request asks for it. A successful response body is handed to dec,
// or discarded if dec is nil; dec reports its outcome through its own
// Result. An exception response is returned as the error it carries.
// Other failures are returned as I/O errors.
func (c *Client) Do(req *http.Request, enc codec.Encoder, dec codec.Decoder) error {
	const op errors.Op = "rpc.Do"

	encErr := make(chan error, 1)
	if enc != nil {
		pr, pw := io.Pipe()
		gz := req.Header.Get(contentEncodingHeader) == gzipEncoding
		go func() {
			err := encodeBody(pw, gz, enc)
			encErr <- err
			pw.CloseWithError(err)
		}()
		req.Body = pr
		req.ContentLength = -1
	} else {
		encErr <- nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if enc != nil {
			// The body may still be streaming into a dead request.
			req.Body.Close()
		}
		if e := <-encErr; e != nil && !errors.Is(errors.IO, e) {
			return errors.E(op, e)
		}
		return errors.E(op, errors.IO, err)
	}
	if enc != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		// The server answered without consuming the whole body.
		req.Body.Close()
	}
	body, err := responseBody(resp)
	if err != nil {
		resp.Body.Close()
		return errors.E(op, errors.IO, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if dec == nil {
			io.Copy(io.Discard, io.LimitReader(body, codec.MaxFrame))
			body.Close()
			return nil
		}
		dec.Decode(body, resp)
		return nil
	case resp.StatusCode == http.StatusInternalServerError && isException(resp):
		return readException(body)
	}
	msg, _ := io.ReadAll(io.LimitReader(body, 1024))
	body.Close()
	kind := errors.IO
	switch resp.StatusCode {
	case http.StatusBadRequest:
		kind = errors.Invalid
	case http.StatusNotFound:
		kind = errors.NotExist
	case http.StatusMethodNotAllowed:
		kind = errors.Unsupported
	}
	return errors.E(op, kind, errors.Errorf("%s: %s", resp.Status, msg))
}

// encodeBody runs enc over w, compressing when gz is set. The pipe is
// closed by the caller so that an encoding failure reaches the transport.
func encodeBody(pw *io.PipeWriter, gz bool, enc codec.Encoder) error {
	w := writerOnly{pw}
	if !gz {
		return enc.Encode(w)
	}
	zw := gzip.NewWriter(w)
	if err := enc.Encode(writerOnly{zw}); err != nil {
		return err
	}
	return zw.Close()
}

// writerOnly hides the Close and Flush methods of its Writer.
type writerOnly struct {
	io.Writer
}

// responseBody returns the body of resp, inflated if the server
// compressed it.
func responseBody(resp *http.Response) (io.ReadCloser, error) {
	if resp.Header.Get(contentEncodingHeader) != gzipEncoding {
		return resp.Body, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err == io.EOF {
		return resp.Body, nil
	}
	if err != nil {
		return nil, err
	}
	return &gzipBody{Reader: zr, body: resp.Body}, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipBody) Close() error {
	g.Reader.Close()
	return g.body.Close()
}

func isException(resp *http.Response) bool {
	ct, ok := protocol.ParseContentType(resp.Header.Get(contentTypeHeader))
	return ok && ct == protocol.ExceptionType
}

// readException unmarshals the error carried by an exception body.
func readException(body io.ReadCloser) error {
	const op errors.Op = "rpc.readException"
	var remote error
	err := codec.Unmarshal(body, codec.Binary, func(u codec.Unmarshaller) error {
		v, err := u.ReadObject()
		if err != nil {
			return err
		}
		e, ok := v.(error)
		if !ok {
			return errors.E(errors.Syntax, errors.Errorf("exception body holds %T", v))
		}
		remote = e
		return nil
	})
	if err != nil {
		log.Debug.Printf("rpc: unreadable exception body: %v", err)
		return errors.E(op, errors.IO, err)
	}
	return remote
}
