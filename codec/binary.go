// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"io"
	"sort"

	"github.com/golang/protobuf/proto"

	"httpremoting.io/errors"
)

// MaxFrame is the largest body an Unmarshaller accepts.
const MaxFrame = 64 << 20

// MaxDepth is the deepest nesting of lists and maps either side of the
// binary encoding accepts.
const MaxDepth = 256

// frameMagic starts every frame of the binary encoding.
const frameMagic = 0xb1

// Value tags of the binary encoding. Do not reorder.
const (
	tagNil byte = iota
	tagBool
	tagInt
	tagString
	tagBytes
	tagList
	tagMap
	tagError
	tagObject
)

// Binary is the binary encoding over DefaultTypes.
var Binary Factory = NewBinary(DefaultTypes)

// Interop is the binary encoding over DefaultTypes that writes type names
// in the legacy namespace. It is used for exchanges whose version requires
// transformation.
var Interop Factory = NewInterop(DefaultTypes)

// NewBinary returns the binary encoding resolving objects in types.
func NewBinary(types *Types) Factory {
	return &binaryFactory{types: types}
}

// NewInterop returns the binary encoding resolving objects in types and
// writing their names in LegacyNamespace. Reading accepts either namespace.
func NewInterop(types *Types) Factory {
	return &binaryFactory{types: types, legacy: true}
}

type binaryFactory struct {
	types  *Types
	legacy bool
}

func (f *binaryFactory) NewMarshaller() Marshaller {
	return &marshaller{f: f}
}

func (f *binaryFactory) NewUnmarshaller() Unmarshaller {
	return &unmarshaller{f: f}
}

type marshaller struct {
	f   *binaryFactory
	w   io.Writer
	buf *proto.Buffer
}

var _ Marshaller = (*marshaller)(nil)

func (m *marshaller) Start(w io.Writer) error {
	if m.w != nil {
		return errors.E(errors.Op("codec.Start"), errors.Internal, errors.Str("marshaller already started"))
	}
	m.w = w
	m.buf = proto.NewBuffer([]byte{frameMagic})
	return nil
}

func (m *marshaller) check(op errors.Op) error {
	if m.buf == nil {
		return errors.E(op, errors.Internal, errors.Str("marshaller not started"))
	}
	return nil
}

func (m *marshaller) tag(t byte) error {
	return m.buf.EncodeVarint(uint64(t))
}

func (m *marshaller) WriteString(s string) error {
	const op errors.Op = "codec.WriteString"
	if err := m.check(op); err != nil {
		return err
	}
	return m.buf.EncodeStringBytes(s)
}

func (m *marshaller) WriteInt(i int64) error {
	const op errors.Op = "codec.WriteInt"
	if err := m.check(op); err != nil {
		return err
	}
	return m.buf.EncodeZigzag64(uint64(i))
}

func (m *marshaller) WriteBool(b bool) error {
	const op errors.Op = "codec.WriteBool"
	if err := m.check(op); err != nil {
		return err
	}
	var v uint64
	if b {
		v = 1
	}
	return m.buf.EncodeVarint(v)
}

func (m *marshaller) WriteBytes(b []byte) error {
	const op errors.Op = "codec.WriteBytes"
	if err := m.check(op); err != nil {
		return err
	}
	return m.buf.EncodeRawBytes(b)
}

func (m *marshaller) WriteObject(v interface{}) error {
	const op errors.Op = "codec.WriteObject"
	if err := m.check(op); err != nil {
		return err
	}
	return m.writeObject(op, v, 0)
}

func (m *marshaller) writeObject(op errors.Op, v interface{}, depth int) error {
	if depth > MaxDepth {
		return errors.E(op, errors.Unsupported, errors.Errorf("nesting exceeds %d levels", MaxDepth))
	}
	switch v := v.(type) {
	case nil:
		return m.tag(tagNil)
	case bool:
		if err := m.tag(tagBool); err != nil {
			return err
		}
		return m.WriteBool(v)
	case int:
		if err := m.tag(tagInt); err != nil {
			return err
		}
		return m.WriteInt(int64(v))
	case int32:
		if err := m.tag(tagInt); err != nil {
			return err
		}
		return m.WriteInt(int64(v))
	case int64:
		if err := m.tag(tagInt); err != nil {
			return err
		}
		return m.WriteInt(v)
	case string:
		if err := m.tag(tagString); err != nil {
			return err
		}
		return m.WriteString(v)
	case []byte:
		if err := m.tag(tagBytes); err != nil {
			return err
		}
		return m.WriteBytes(v)
	case []interface{}:
		if err := m.header(tagList, len(v)); err != nil {
			return err
		}
		for _, elem := range v {
			if err := m.writeObject(op, elem, depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		if err := m.header(tagMap, len(v)); err != nil {
			return err
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := m.WriteString(k); err != nil {
				return err
			}
			if err := m.writeObject(op, v[k], depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if name, ok := m.f.types.nameOf(v); ok {
		data, err := v.(Object).MarshalBinary()
		if err != nil {
			return errors.E(op, err)
		}
		if m.f.legacy {
			name = LegacyNamespace.ToLegacy(name)
		}
		if err := m.tag(tagObject); err != nil {
			return err
		}
		if err := m.buf.EncodeStringBytes(name); err != nil {
			return err
		}
		return m.buf.EncodeRawBytes(data)
	}
	if err, ok := v.(error); ok {
		if err := m.tag(tagError); err != nil {
			return err
		}
		return m.buf.EncodeRawBytes(errors.MarshalError(err))
	}
	return errors.E(op, errors.Unsupported, errors.Errorf("cannot marshal value of type %T", v))
}

// header writes a collection tag and its length.
func (m *marshaller) header(t byte, n int) error {
	if err := m.tag(t); err != nil {
		return err
	}
	return m.buf.EncodeVarint(uint64(n))
}

func (m *marshaller) Finish() error {
	const op errors.Op = "codec.Finish"
	if err := m.check(op); err != nil {
		return err
	}
	_, err := m.w.Write(m.buf.Bytes())
	m.buf = nil
	return err
}

type unmarshaller struct {
	f   *binaryFactory
	buf *proto.Buffer
}

var _ Unmarshaller = (*unmarshaller)(nil)

func (u *unmarshaller) Start(r io.Reader) error {
	const op errors.Op = "codec.Start"
	data, err := io.ReadAll(io.LimitReader(r, MaxFrame+1))
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	if len(data) > MaxFrame {
		return errors.E(op, errors.IO, errors.Errorf("frame exceeds %d bytes", MaxFrame))
	}
	if len(data) == 0 || data[0] != frameMagic {
		return errors.E(op, errors.Syntax, errors.Str("missing frame header"))
	}
	u.buf = proto.NewBuffer(data[1:])
	return nil
}

func (u *unmarshaller) check(op errors.Op) error {
	if u.buf == nil {
		return errors.E(op, errors.Internal, errors.Str("unmarshaller not started"))
	}
	return nil
}

func (u *unmarshaller) wrap(op errors.Op, err error) error {
	if err == nil {
		return nil
	}
	return errors.E(op, errors.Syntax, err)
}

func (u *unmarshaller) ReadString() (string, error) {
	const op errors.Op = "codec.ReadString"
	if err := u.check(op); err != nil {
		return "", err
	}
	s, err := u.buf.DecodeStringBytes()
	return s, u.wrap(op, err)
}

func (u *unmarshaller) ReadInt() (int64, error) {
	const op errors.Op = "codec.ReadInt"
	if err := u.check(op); err != nil {
		return 0, err
	}
	i, err := u.buf.DecodeZigzag64()
	return int64(i), u.wrap(op, err)
}

func (u *unmarshaller) ReadBool() (bool, error) {
	const op errors.Op = "codec.ReadBool"
	if err := u.check(op); err != nil {
		return false, err
	}
	v, err := u.buf.DecodeVarint()
	return v != 0, u.wrap(op, err)
}

func (u *unmarshaller) ReadBytes() ([]byte, error) {
	const op errors.Op = "codec.ReadBytes"
	if err := u.check(op); err != nil {
		return nil, err
	}
	b, err := u.buf.DecodeRawBytes(true)
	return b, u.wrap(op, err)
}

func (u *unmarshaller) length(op errors.Op) (int, error) {
	n, err := u.buf.DecodeVarint()
	if err != nil {
		return 0, u.wrap(op, err)
	}
	if n > uint64(len(u.buf.Unread())) {
		return 0, errors.E(op, errors.Syntax, errors.Errorf("collection length %d exceeds frame", n))
	}
	return int(n), nil
}

func (u *unmarshaller) ReadObject() (interface{}, error) {
	const op errors.Op = "codec.ReadObject"
	if err := u.check(op); err != nil {
		return nil, err
	}
	return u.readObject(op, 0)
}

func (u *unmarshaller) readObject(op errors.Op, depth int) (interface{}, error) {
	if depth > MaxDepth {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("nesting exceeds %d levels", MaxDepth))
	}
	t, err := u.buf.DecodeVarint()
	if err != nil {
		return nil, u.wrap(op, err)
	}
	switch byte(t) {
	case tagNil:
		return nil, nil
	case tagBool:
		return u.ReadBool()
	case tagInt:
		return u.ReadInt()
	case tagString:
		return u.ReadString()
	case tagBytes:
		return u.ReadBytes()
	case tagList:
		n, err := u.length(op)
		if err != nil {
			return nil, err
		}
		list := make([]interface{}, n)
		for i := range list {
			if list[i], err = u.readObject(op, depth+1); err != nil {
				return nil, err
			}
		}
		return list, nil
	case tagMap:
		n, err := u.length(op)
		if err != nil {
			return nil, err
		}
		m := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			k, err := u.ReadString()
			if err != nil {
				return nil, err
			}
			if m[k], err = u.readObject(op, depth+1); err != nil {
				return nil, err
			}
		}
		return m, nil
	case tagError:
		b, err := u.ReadBytes()
		if err != nil {
			return nil, err
		}
		return errors.UnmarshalError(b), nil
	case tagObject:
		name, err := u.ReadString()
		if err != nil {
			return nil, err
		}
		data, err := u.ReadBytes()
		if err != nil {
			return nil, err
		}
		obj, err := u.f.types.newObject(name)
		if err != nil {
			return nil, err
		}
		if err := obj.UnmarshalBinary(data); err != nil {
			return nil, errors.E(op, errors.Syntax, err)
		}
		return obj, nil
	}
	return nil, errors.E(op, errors.Syntax, errors.Errorf("unknown value tag %d", t))
}

func (u *unmarshaller) Finish() error {
	u.buf = nil
	return nil
}
