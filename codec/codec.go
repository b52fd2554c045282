// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec pairs payload encodings with HTTP bodies.
//
// A body is written by an Encoder and read by a Decoder. Both are built on
// an opaque Marshaller or Unmarshaller whose lifecycle is Start, a sequence
// of payload-specific writes or reads, then Finish. Marshal and Unmarshal
// run that lifecycle and always release the underlying stream.
package codec // import "httpremoting.io/codec"

import (
	"io"
	"net/http"

	"httpremoting.io/errors"
)

// Marshaller writes a payload to a stream. Nothing reaches the stream
// before Finish.
type Marshaller interface {
	// Start prepares the marshaller to write a frame to w.
	Start(w io.Writer) error
	// WriteObject writes a value of any supported kind: nil, bool,
	// integers, string, []byte, []interface{}, map[string]interface{},
	// error, or an Object registered in the type table.
	WriteObject(v interface{}) error
	WriteString(s string) error
	WriteInt(i int64) error
	WriteBool(b bool) error
	WriteBytes(b []byte) error
	// Finish writes the frame to the stream.
	Finish() error
}

// Unmarshaller reads a payload written by a Marshaller.
type Unmarshaller interface {
	// Start reads the frame from r.
	Start(r io.Reader) error
	ReadObject() (interface{}, error)
	ReadString() (string, error)
	ReadInt() (int64, error)
	ReadBool() (bool, error)
	ReadBytes() ([]byte, error)
	// Finish releases the frame.
	Finish() error
}

// Factory creates marshallers and unmarshallers for one encoding.
type Factory interface {
	NewMarshaller() Marshaller
	NewUnmarshaller() Unmarshaller
}

// Encoder writes a request or response body.
type Encoder interface {
	Encode(w io.Writer) error
}

// EncoderFunc adapts a function to an Encoder.
type EncoderFunc func(w io.Writer) error

// Encode calls f(w).
func (f EncoderFunc) Encode(w io.Writer) error { return f(w) }

// Decoder reads a response body. Decoders report their outcome through a
// Result rather than a return value, and must close body.
type Decoder interface {
	Decode(body io.ReadCloser, resp *http.Response)
}

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc func(body io.ReadCloser, resp *http.Response)

// Decode calls f(body, resp).
func (f DecoderFunc) Decode(body io.ReadCloser, resp *http.Response) { f(body, resp) }

// Marshal runs the marshalling lifecycle of a Marshaller made by f over w.
// The stream is closed on every path; flushes requested by w's users
// before Finish are suppressed.
func Marshal(w io.Writer, f Factory, fn func(Marshaller) error) (err error) {
	const op errors.Op = "codec.Marshal"
	out := OutputOf(w)
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = errors.E(op, errors.IO, cerr)
		}
	}()
	m := f.NewMarshaller()
	if err := m.Start(out); err != nil {
		return errors.E(op, err)
	}
	if err := fn(m); err != nil {
		return err
	}
	if err := m.Finish(); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// Unmarshal runs the unmarshalling lifecycle of an Unmarshaller made by f
// over r. The stream is closed on every path.
func Unmarshal(r io.Reader, f Factory, fn func(Unmarshaller) error) (err error) {
	const op errors.Op = "codec.Unmarshal"
	in := InputOf(r)
	defer func() {
		if cerr := in.Close(); err == nil && cerr != nil {
			err = errors.E(op, errors.IO, cerr)
		}
	}()
	u := f.NewUnmarshaller()
	if err := u.Start(in); err != nil {
		return errors.E(op, err)
	}
	if err := fn(u); err != nil {
		return err
	}
	return u.Finish()
}
