// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"httpremoting.io/errors"
)

type point struct {
	X, Y int32
}

func (p *point) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b, uint32(p.X))
	binary.BigEndian.PutUint32(b[4:], uint32(p.Y))
	return b, nil
}

func (p *point) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return errors.Str("bad point")
	}
	p.X = int32(binary.BigEndian.Uint32(b))
	p.Y = int32(binary.BigEndian.Uint32(b[4:]))
	return nil
}

func testTypes() *Types {
	types := NewTypes()
	types.Register("jakarta.test.Point", func() Object { return new(point) })
	return types
}

// closeBuffer records whether it was closed.
type closeBuffer struct {
	bytes.Buffer
	closed int
}

func (c *closeBuffer) Close() error {
	c.closed++
	return nil
}

func TestRoundTrip(t *testing.T) {
	f := NewBinary(testTypes())
	values := []interface{}{
		nil,
		true,
		int64(-42),
		"hello",
		[]byte{1, 2, 3},
		[]interface{}{int64(1), "two", nil},
		map[string]interface{}{"a": int64(1), "b": "c"},
		&point{X: 3, Y: -4},
	}
	var buf closeBuffer
	err := Marshal(&buf, f, func(m Marshaller) error {
		for _, v := range values {
			if err := m.WriteObject(v); err != nil {
				return err
			}
		}
		if err := m.WriteString("tail"); err != nil {
			return err
		}
		return m.WriteInt(7)
	})
	if err != nil {
		t.Fatal(err)
	}
	if buf.closed != 1 {
		t.Fatalf("stream closed %d times, want 1", buf.closed)
	}
	err = Unmarshal(&buf, f, func(u Unmarshaller) error {
		for i, want := range values {
			got, err := u.ReadObject()
			if err != nil {
				return err
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("value %d = %#v, want %#v", i, got, want)
			}
		}
		s, err := u.ReadString()
		if err != nil || s != "tail" {
			t.Errorf("ReadString = %q, %v", s, err)
		}
		n, err := u.ReadInt()
		if err != nil || n != 7 {
			t.Errorf("ReadInt = %d, %v", n, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestError(t *testing.T) {
	f := NewBinary(testTypes())
	want := errors.E(errors.Op("txn.Commit"), errors.Transaction, errors.Str("heuristic rollback"))
	var buf bytes.Buffer
	if err := Marshal(&buf, f, func(m Marshaller) error { return m.WriteObject(want) }); err != nil {
		t.Fatal(err)
	}
	var got interface{}
	err := Unmarshal(&buf, f, func(u Unmarshaller) (err error) {
		got, err = u.ReadObject()
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	gotErr, ok := got.(error)
	if !ok {
		t.Fatalf("got %T, want error", got)
	}
	if !errors.Match(want, gotErr) {
		t.Errorf("got %v, want %v", gotErr, want)
	}
}

func TestInterop(t *testing.T) {
	types := testTypes()
	var buf bytes.Buffer
	err := Marshal(&buf, NewInterop(types), func(m Marshaller) error {
		return m.WriteObject(&point{X: 1, Y: 2})
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("javax.test.Point")) {
		t.Fatalf("interop frame does not carry the legacy name: %q", buf.Bytes())
	}
	// The current encoding reads either namespace.
	var got interface{}
	err = Unmarshal(&buf, NewBinary(types), func(u Unmarshaller) (err error) {
		got, err = u.ReadObject()
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := got.(*point); !ok || *p != (point{1, 2}) {
		t.Errorf("got %#v", got)
	}
}

func TestUnknownType(t *testing.T) {
	var buf bytes.Buffer
	err := Marshal(&buf, NewBinary(testTypes()), func(m Marshaller) error {
		return m.WriteObject(&point{})
	})
	if err != nil {
		t.Fatal(err)
	}
	err = Unmarshal(&buf, NewBinary(NewTypes()), func(u Unmarshaller) error {
		_, err := u.ReadObject()
		return err
	})
	if !errors.Is(errors.Unsupported, err) {
		t.Fatalf("err = %v, want Unsupported", err)
	}
}

func TestUnregisteredValue(t *testing.T) {
	var buf closeBuffer
	err := Marshal(&buf, NewBinary(NewTypes()), func(m Marshaller) error {
		return m.WriteObject(struct{}{})
	})
	if !errors.Is(errors.Unsupported, err) {
		t.Fatalf("err = %v, want Unsupported", err)
	}
	if buf.closed != 1 {
		t.Errorf("stream closed %d times, want 1", buf.closed)
	}
	if buf.Len() != 0 {
		t.Errorf("partial frame written: %q", buf.Bytes())
	}
}

// nested returns a frame of depth singleton lists around a nil.
func nested(depth int) []byte {
	b := []byte{frameMagic}
	for i := 0; i < depth; i++ {
		b = append(b, tagList, 1)
	}
	return append(b, tagNil)
}

func TestNesting(t *testing.T) {
	read := func(frame []byte) (interface{}, error) {
		var v interface{}
		err := Unmarshal(bytes.NewReader(frame), Binary, func(u Unmarshaller) (err error) {
			v, err = u.ReadObject()
			return err
		})
		return v, err
	}

	v, err := read(nested(MaxDepth))
	if err != nil {
		t.Fatalf("depth %d: %v", MaxDepth, err)
	}
	for i := 0; i < MaxDepth; i++ {
		list, ok := v.([]interface{})
		if !ok || len(list) != 1 {
			t.Fatalf("level %d: got %#v", i, v)
		}
		v = list[0]
	}
	if v != nil {
		t.Fatalf("innermost value = %#v, want nil", v)
	}

	for _, depth := range []int{MaxDepth + 1, 1 << 20} {
		if _, err := read(nested(depth)); !errors.Is(errors.Syntax, err) {
			t.Errorf("depth %d: err = %v, want Syntax", depth, err)
		}
	}

	deep := interface{}(nil)
	for i := 0; i <= MaxDepth; i++ {
		deep = map[string]interface{}{"k": deep}
	}
	err = Marshal(&closeBuffer{}, Binary, func(m Marshaller) error {
		return m.WriteObject(deep)
	})
	if !errors.Is(errors.Unsupported, err) {
		t.Errorf("marshal: err = %v, want Unsupported", err)
	}
}

func TestNoFrame(t *testing.T) {
	body := &closeBuffer{}
	body.WriteString("not a frame")
	err := Unmarshal(body, Binary, func(u Unmarshaller) error { return nil })
	if !errors.Is(errors.Syntax, err) {
		t.Fatalf("err = %v, want Syntax", err)
	}
	if body.closed != 1 {
		t.Errorf("stream closed %d times, want 1", body.closed)
	}
}

func TestFlushSuppressed(t *testing.T) {
	rec := httptest.NewRecorder()
	out := OutputOf(rec)
	out.Write([]byte("x"))
	out.(http.Flusher).Flush()
	if rec.Flushed {
		t.Fatal("flush reached the response writer")
	}
	out.Close()
	if _, err := out.Write([]byte("y")); err == nil {
		t.Fatal("write after close succeeded")
	}
}

func TestResultOnce(t *testing.T) {
	res := NewResult[int]()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			if i%2 == 0 {
				ok = res.Complete(i)
			} else {
				ok = res.Fail(errors.Errorf("fail %d", i))
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d settlements, want 1", wins)
	}
	v1, err1 := res.Wait(context.Background())
	var v2 int
	var err2 error
	res.OnComplete(func(v int, err error) { v2, err2 = v, err })
	if v1 != v2 || err1 != err2 {
		t.Errorf("observers disagree: (%d, %v) vs (%d, %v)", v1, err1, v2, err2)
	}
}

func TestResultOnCompleteBefore(t *testing.T) {
	res := NewResult[string]()
	got := make(chan string, 1)
	res.OnComplete(func(v string, err error) { got <- v })
	go res.Complete("done")
	select {
	case v := <-got:
		if v != "done" {
			t.Fatalf("got %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not run")
	}
}

func TestResultWaitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResult[int]().Wait(ctx)
	if !errors.Is(errors.Canceled, err) {
		t.Fatalf("err = %v, want Canceled", err)
	}
}

func TestStockCodecs(t *testing.T) {
	var buf bytes.Buffer
	enc := ValueEncoder(Binary, func(m Marshaller) error { return m.WriteString("payload") })
	if err := enc.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	res := NewResult[string]()
	ValueDecoder(Binary, res, func(u Unmarshaller) (string, error) { return u.ReadString() }).
		Decode(io.NopCloser(&buf), &http.Response{StatusCode: 200})
	v, err := res.Wait(context.Background())
	if err != nil || v != "payload" {
		t.Fatalf("ValueDecoder = %q, %v", v, err)
	}

	empty := NewResult[int]()
	EmptyDecoder(empty, func(r *http.Response) (int, error) { return r.StatusCode, nil }).
		Decode(io.NopCloser(strings.NewReader("ignored")), &http.Response{StatusCode: 204})
	n, err := empty.Wait(context.Background())
	if err != nil || n != 204 {
		t.Fatalf("EmptyDecoder = %d, %v", n, err)
	}
}
