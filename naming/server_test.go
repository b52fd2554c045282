// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package naming_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/naming"
	"httpremoting.io/naming/inprocess"
	"httpremoting.io/protocol"
	"httpremoting.io/rpc"
)

type env struct {
	ts     *httptest.Server
	ns     *inprocess.Namespace
	target *rpc.Target
	client *naming.Client
}

func setup(t *testing.T, v *protocol.Version) *env {
	t.Helper()
	ns := inprocess.New()
	rs := rpc.NewServer("/wildfly-services", rpc.DefaultCodecs)
	rs.Handle(naming.Family, naming.NewServer(ns).Endpoints()...)
	ts := httptest.NewServer(rs.Handler())
	t.Cleanup(ts.Close)
	target, err := rpc.ParseTarget(ts.URL+"/wildfly-services", v)
	if err != nil {
		t.Fatal(err)
	}
	return &env{
		ts:     ts,
		ns:     ns,
		target: target,
		client: naming.NewClient(target, rpc.NewClientFrom(ts.Client())),
	}
}

func TestOperations(t *testing.T) {
	ctx := context.Background()
	for _, v := range []*protocol.Version{protocol.Legacy, protocol.EE9, protocol.EE10} {
		e := setup(t, v)
		c := e.client

		ref, err := c.CreateSubcontext(ctx, "java:global/apps")
		if err != nil {
			t.Fatalf("%v: CreateSubcontext: %v", v, err)
		}
		if ref.Name != "java:global/apps" {
			t.Errorf("%v: reference %q", v, ref.Name)
		}
		if err := c.Bind(ctx, "java:global/apps/a b", "first"); err != nil {
			t.Fatalf("%v: Bind: %v", v, err)
		}
		if err := c.Rebind(ctx, "java:global/apps/a b", int64(2)); err != nil {
			t.Fatalf("%v: Rebind: %v", v, err)
		}
		if got, err := c.Lookup(ctx, "java:global/apps/a b"); err != nil || got != int64(2) {
			t.Errorf("%v: Lookup = %v, %v", v, got, err)
		}
		if err := c.Bind(ctx, "java:global/apps/link", &naming.LinkRef{Target: "java:global/apps/a b"}); err != nil {
			t.Fatalf("%v: Bind link: %v", v, err)
		}
		if got, err := c.Lookup(ctx, "java:global/apps/link"); err != nil || got != int64(2) {
			t.Errorf("%v: Lookup through link = %v, %v", v, got, err)
		}
		got, err := c.LookupLink(ctx, "java:global/apps/link")
		if link, ok := got.(*naming.LinkRef); err != nil || !ok || link.Target != "java:global/apps/a b" {
			t.Errorf("%v: LookupLink = %#v, %v", v, got, err)
		}

		if err := c.Rename(ctx, "java:global/apps/a b", "java:global/apps/c?d"); err != nil {
			t.Fatalf("%v: Rename: %v", v, err)
		}
		list, err := c.List(ctx, "java:global/apps")
		if err != nil {
			t.Fatalf("%v: List: %v", v, err)
		}
		want := []naming.NameClass{
			{Name: "c?d", Class: "int64"},
			{Name: "link", Class: "*naming.LinkRef"},
		}
		if !reflect.DeepEqual(list, want) {
			t.Errorf("%v: List = %v, want %v", v, list, want)
		}
		bindings, err := c.ListBindings(ctx, "java:global")
		if err != nil {
			t.Fatalf("%v: ListBindings: %v", v, err)
		}
		if len(bindings) != 1 || bindings[0].Class != naming.ContextClass {
			t.Fatalf("%v: ListBindings = %v", v, bindings)
		}
		if r, ok := bindings[0].Value.(*naming.Reference); !ok || r.Name != "java:global/apps" {
			t.Errorf("%v: binding value %#v", v, bindings[0].Value)
		}

		for _, n := range []string{"java:global/apps/c?d", "java:global/apps/link"} {
			if err := c.Unbind(ctx, n); err != nil {
				t.Errorf("%v: Unbind(%q): %v", v, n, err)
			}
		}
		if err := c.DestroySubcontext(ctx, "java:global/apps"); err != nil {
			t.Errorf("%v: DestroySubcontext: %v", v, err)
		}
		if _, err := c.Lookup(ctx, "java:global/apps"); !errors.Is(errors.NotExist, err) {
			t.Errorf("%v: Lookup after destroy: %v", v, err)
		}
	}
}

func TestNilValue(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	if err := e.client.Bind(ctx, "empty", nil); err != nil {
		t.Fatal(err)
	}
	v, err := e.client.Lookup(ctx, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("Lookup = %v, want nil", v)
	}
}

func TestDashName(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	if err := e.client.Bind(ctx, "-", "dash"); err != nil {
		t.Fatal(err)
	}
	v, err := e.client.Lookup(ctx, "-")
	if err != nil {
		t.Fatal(err)
	}
	if v != "dash" {
		t.Errorf("Lookup(%q) = %v, want %q", "-", v, "dash")
	}
	list, err := e.client.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "-" {
		t.Errorf("List of root = %v", list)
	}
}

func TestExceptions(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	if err := e.client.Bind(ctx, "x", "v"); err != nil {
		t.Fatal(err)
	}
	if err := e.client.Bind(ctx, "x", "v"); !errors.Is(errors.Exist, err) {
		t.Errorf("second Bind: %v", err)
	}
	if _, err := e.client.Lookup(ctx, "nope"); !errors.Is(errors.NotExist, err) {
		t.Errorf("Lookup of unbound name: %v", err)
	}
	if err := e.client.DestroySubcontext(ctx, ""); !errors.Is(errors.Invalid, err) {
		t.Errorf("destroying the root: %v", err)
	}
}

// TestRawResponses checks status codes and content types on the wire.
func TestRawResponses(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	var body bytes.Buffer
	err := codec.Marshal(&body, codec.Binary, func(m codec.Marshaller) error {
		return m.WriteObject("value")
	})
	if err != nil {
		t.Fatal(err)
	}
	bind := func(ct protocol.ContentType) *http.Response {
		b := rpc.NewBuilder(e.target, naming.Family, naming.Bind.Operation()).
			Segment("raw", true).
			Accept(naming.ValueType, protocol.ExceptionType)
		if !ct.IsZero() {
			b.ContentType(ct)
		}
		req, err := b.Request(ctx)
		if err != nil {
			t.Fatal(err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body.Bytes()))
		req.ContentLength = int64(body.Len())
		resp, err := e.ts.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := bind(protocol.ContentType{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bind without content type: %s", resp.Status)
	}
	if _, err := e.ns.Lookup("raw"); !errors.Is(errors.NotExist, err) {
		t.Errorf("rejected bind changed the namespace: %v", err)
	}
	if resp := bind(naming.ValueType); resp.StatusCode != http.StatusNoContent {
		t.Errorf("bind: %s", resp.Status)
	}

	req, err := rpc.NewBuilder(e.target, naming.Family, naming.Lookup.Operation()).
		Segment("raw", true).
		Accept(naming.ValueType, protocol.ExceptionType).
		Request(ctx)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lookup: %s", resp.Status)
	}
	if got := resp.Header.Get("Content-Type"); got != naming.ValueType.String() {
		t.Errorf("lookup content type %q", got)
	}

	req, err = rpc.NewBuilder(e.target, naming.Family, naming.Rename.Operation()).
		Segment("raw", true).
		Request(ctx)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = e.ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("rename without new name: %s", resp.Status)
	}
}
