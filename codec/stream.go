// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"io"
	"sync"

	"httpremoting.io/errors"
)

// OutputOf returns a stream that writes to w and, when closed, closes w if
// w is an io.Closer. The returned stream's Flush is a no-op and it does not
// expose w's http.Flusher, so partial frames are never pushed to the peer.
// Writes after Close fail.
func OutputOf(w io.Writer) io.WriteCloser {
	return &output{w: w}
}

type output struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, errors.E(errors.Op("codec.Write"), errors.IO, errors.Str("write on closed stream"))
	}
	return o.w.Write(p)
}

// Flush does nothing. Only a Marshaller's Finish completes a frame.
func (o *output) Flush() {}

func (o *output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if c, ok := o.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// InputOf returns a stream that reads from r and, when closed, closes r if
// r is an io.Closer. Close is idempotent.
func InputOf(r io.Reader) io.ReadCloser {
	return &input{r: r}
}

type input struct {
	once sync.Once
	r    io.Reader
	err  error
}

func (i *input) Read(p []byte) (int, error) {
	return i.r.Read(p)
}

func (i *input) Close() error {
	i.once.Do(func() {
		if c, ok := i.r.(io.Closer); ok {
			i.err = c.Close()
		}
	})
	return i.err
}
