// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"httpremoting.io/errors"
	"httpremoting.io/protocol"
)

func TestServerDefaults(t *testing.T) {
	cfg, err := ParseServer([]byte("addr: localhost:9000\n"), "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "localhost:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.ContextRoot != DefaultContextRoot {
		t.Errorf("ContextRoot = %q, want %q", cfg.ContextRoot, DefaultContextRoot)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, DefaultWorkers)
	}
	if got := cfg.TxnTimeoutDuration(); got != DefaultTxnTimeout {
		t.Errorf("TxnTimeoutDuration = %v, want %v", got, DefaultTxnTimeout)
	}
}

func TestServerTOML(t *testing.T) {
	data := `
addr = "localhost:9001"
txntimeout = "90s"
letscache = "/tmp/lets"
letshosts = ["example.com"]
`
	cfg, err := ParseServer([]byte(data), "toml")
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.TxnTimeoutDuration(); got != 90*time.Second {
		t.Errorf("TxnTimeoutDuration = %v", got)
	}
	if len(cfg.LetsEncryptHosts) != 1 || cfg.LetsEncryptHosts[0] != "example.com" {
		t.Errorf("LetsEncryptHosts = %q", cfg.LetsEncryptHosts)
	}
}

func TestUnknownKey(t *testing.T) {
	if _, err := ParseServer([]byte("bogus: 1\n"), "yaml"); !errors.Is(errors.Invalid, err) {
		t.Errorf("yaml: err = %v, want Invalid", err)
	}
	if _, err := ParseServer([]byte("bogus = 1\n"), "toml"); !errors.Is(errors.Invalid, err) {
		t.Errorf("toml: err = %v, want Invalid", err)
	}
}

func TestBadValues(t *testing.T) {
	tests := []string{
		"txntimeout: forever\n",
		"workers: 0\n",
		"letscache: /tmp/x\n",
	}
	for _, test := range tests {
		if _, err := ParseServer([]byte(test), "yaml"); !errors.Is(errors.Invalid, err) {
			t.Errorf("%q: err = %v, want Invalid", test, err)
		}
	}
}

func TestClientVersion(t *testing.T) {
	tests := []struct {
		version string
		want    *protocol.Version
	}{
		{"", protocol.Latest},
		{"legacy", protocol.Legacy},
		{"EE9", protocol.EE9},
		{"130", protocol.EE10},
	}
	for _, test := range tests {
		cfg, err := ParseClient([]byte("version: \""+test.version+"\"\n"), "yaml")
		if err != nil {
			t.Fatalf("%q: %v", test.version, err)
		}
		v, err := cfg.ProtocolVersion()
		if err != nil {
			t.Fatal(err)
		}
		if v != test.want {
			t.Errorf("%q: version %v, want %v", test.version, v, test.want)
		}
	}
	if _, err := ParseClient([]byte("version: \"4\"\n"), "yaml"); !errors.Is(errors.Unsupported, err) {
		t.Errorf("err = %v, want Unsupported", err)
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "client.toml")
	if err := os.WriteFile(name, []byte("url = \"http://example.com/root\"\nhttp2 = true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("remoting_encodeall", "yes")
	cfg, err := ClientFromFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "http://example.com/root" || !cfg.HTTP2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.EncodeAll {
		t.Error("environment override not applied")
	}
	if _, err := ClientFromFile(filepath.Join(dir, "missing.yaml")); !errors.Is(errors.NotExist, err) {
		t.Errorf("err = %v, want NotExist", err)
	}
}

func TestCertPool(t *testing.T) {
	cfg := NewClient()
	pool, err := cfg.CertPool()
	if err != nil || pool != nil {
		t.Fatalf("CertPool() = %v, %v; want nil, nil", pool, err)
	}
	cfg.TLSCerts = t.TempDir()
	if pool, err := cfg.CertPool(); err != nil || pool != nil {
		t.Fatalf("empty dir: CertPool() = %v, %v; want nil, nil", pool, err)
	}
}
