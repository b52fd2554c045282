// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"io"
	"net/http"

	"httpremoting.io/errors"
)

// EmptyDecoder returns a Decoder for bodies that carry no payload. The body
// is drained and closed, then res is completed with fn(resp), or with the
// zero value if fn is nil.
func EmptyDecoder[T any](res *Result[T], fn func(*http.Response) (T, error)) Decoder {
	return DecoderFunc(func(body io.ReadCloser, resp *http.Response) {
		in := InputOf(body)
		io.Copy(io.Discard, io.LimitReader(in, MaxFrame))
		in.Close()
		if fn == nil {
			var zero T
			res.Complete(zero)
			return
		}
		v, err := fn(resp)
		if err != nil {
			res.Fail(err)
			return
		}
		res.Complete(v)
	})
}

// ValueDecoder returns a Decoder that unmarshals the body with a
// unmarshaller made by f and completes res with the value read.
func ValueDecoder[T any](f Factory, res *Result[T], read func(Unmarshaller) (T, error)) Decoder {
	const op errors.Op = "codec.Decode"
	return DecoderFunc(func(body io.ReadCloser, resp *http.Response) {
		var v T
		err := Unmarshal(body, f, func(u Unmarshaller) error {
			var err error
			v, err = read(u)
			return err
		})
		if err != nil {
			res.Fail(errors.E(op, err))
			return
		}
		res.Complete(v)
	})
}

// ValueEncoder returns an Encoder that marshals with a marshaller made by
// f, calling write between Start and Finish.
func ValueEncoder(f Factory, write func(Marshaller) error) Encoder {
	return EncoderFunc(func(w io.Writer) error {
		return Marshal(w, f, write)
	})
}
