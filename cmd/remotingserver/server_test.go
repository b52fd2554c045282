// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"httpremoting.io/config"
	"httpremoting.io/ejb"
	"httpremoting.io/errors"
	"httpremoting.io/log"
	"httpremoting.io/metric"
	"httpremoting.io/naming"
	"httpremoting.io/rpc"
	"httpremoting.io/txn"
)

func TestServer(t *testing.T) {
	cfg := config.NewServer()
	s, err := newServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	target, err := rpc.ParseTarget(ts.URL+cfg.ContextRoot, nil)
	if err != nil {
		t.Fatal(err)
	}
	rc := rpc.NewClientFrom(ts.Client())
	ctx := context.Background()

	tc := txn.NewClient(target, rc)
	xid, err := tc.Begin(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := tc.Commit(ctx, xid); err != nil {
		t.Fatal(err)
	}

	ec := ejb.NewClient(target, rc)
	resp, err := ec.Call(ctx, &ejb.Invocation{
		Locator:    ejb.Locator{ModuleID: Module, Bean: "Echo"},
		View:       "Echo",
		Method:     "echo",
		ParamTypes: []string{"java.lang.Object"},
		Args:       []interface{}{"ping"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Value != "ping" {
		t.Errorf("echo returned %v", resp.Value)
	}
	modules, err := ec.Discover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(modules) != 1 || modules[0] != Module {
		t.Errorf("Discover = %v", modules)
	}

	nc := naming.NewClient(target, rc)
	if err := nc.Bind(ctx, "java:global/greeting", "hello"); err != nil {
		t.Fatal(err)
	}
	if v, err := nc.Lookup(ctx, "java:global/greeting"); err != nil || v != "hello" {
		t.Errorf("Lookup = %v, %v", v, err)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != config.DefaultAddr {
		t.Errorf("default config has address %q", cfg.Addr)
	}

	name := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(name, []byte("addr: localhost:1234\nworkers: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(name); !errors.Is(errors.Invalid, err) {
		t.Errorf("invalid config: %v", err)
	}
}

func TestNewSaver(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	cfg := config.NewServer()
	if err := log.SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	saver, h, err := newSaver(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := saver.(*metric.PrometheusSaver); ok || h != nil {
		t.Errorf("debug without a metrics listener: got %T, handler %v", saver, h)
	}

	cfg.MetricsAddr = "localhost:0"
	saver, h, err = newSaver(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := saver.(*metric.PrometheusSaver); !ok || h == nil {
		t.Errorf("metrics listener: got %T, handler %v", saver, h)
	}
}

func TestServiceShutdown(t *testing.T) {
	svc, err := newServer(config.NewServer())
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(svc.Handler())
	defer ts.Close()
	target, err := rpc.ParseTarget(ts.URL+config.NewServer().ContextRoot, nil)
	if err != nil {
		t.Fatal(err)
	}
	rc := rpc.NewClientFrom(ts.Client())

	svc.invocations.Shutdown()

	_, err = ejb.NewClient(target, rc).Call(context.Background(), &ejb.Invocation{
		Locator:    ejb.Locator{ModuleID: Module, Bean: "Echo"},
		View:       "Echo",
		Method:     "echo",
		ParamTypes: []string{"java.lang.Object"},
		Args:       []interface{}{"ping"},
	})
	if !errors.Is(errors.Canceled, err) {
		t.Errorf("invocation after shutdown: got %v, want Canceled", err)
	}
	// The other families keep serving while the listener drains.
	if _, err := txn.NewClient(target, rc).Begin(context.Background(), time.Minute); err != nil {
		t.Errorf("Begin after shutdown: %v", err)
	}
}
