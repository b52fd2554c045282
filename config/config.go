// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads server and client configurations from YAML or TOML
// files.
//
// The format is chosen by file extension: ".toml" files are TOML, all others
// YAML. Unrecognized keys are errors. Environment variables named
// "remoting_<key>" override the value of a top-level key.
package config // import "httpremoting.io/config"

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v2"

	"httpremoting.io/errors"
	"httpremoting.io/protocol"
)

// Server is the configuration of a remoting server.
type Server struct {
	// Addr is the address to serve on.
	Addr string `yaml:"addr" toml:"addr"`
	// ContextRoot prefixes every request path.
	ContextRoot string `yaml:"contextroot" toml:"contextroot"`
	// InsecureHTTP serves plain HTTP. Only loopback addresses are allowed.
	InsecureHTTP bool `yaml:"insecurehttp" toml:"insecurehttp"`
	// CertFile and KeyFile name the TLS certificate.
	CertFile string `yaml:"certfile" toml:"certfile"`
	KeyFile  string `yaml:"keyfile" toml:"keyfile"`
	// LetsEncryptCache, if set, obtains certificates for LetsEncryptHosts.
	LetsEncryptCache string   `yaml:"letscache" toml:"letscache"`
	LetsEncryptHosts []string `yaml:"letshosts" toml:"letshosts"`
	// LogLevel is one of debug, info, error or disabled.
	LogLevel string `yaml:"log" toml:"log"`
	// MetricsAddr, if set, serves Prometheus metrics on its own listener.
	MetricsAddr string `yaml:"metricsaddr" toml:"metricsaddr"`
	// Workers bounds the number of invocations running at once.
	Workers int `yaml:"workers" toml:"workers"`
	// Sessions bounds the number of remembered stateful sessions.
	Sessions int `yaml:"sessions" toml:"sessions"`
	// TxnTimeout is the timeout of transactions begun or imported
	// without one, as a duration string.
	TxnTimeout string `yaml:"txntimeout" toml:"txntimeout"`
	// CompletedTxns bounds the number of completed transaction ids
	// remembered to reject late imports.
	CompletedTxns int `yaml:"completedtxns" toml:"completedtxns"`
}

// Client is the configuration of a remoting client.
type Client struct {
	// URL is the server URL including the context root.
	URL string `yaml:"url" toml:"url"`
	// Version is the protocol version to speak: "legacy", "ee9", "ee10"
	// or a numeric version header value. Empty means the latest.
	Version string `yaml:"version" toml:"version"`
	// EncodeAll percent-encodes every path segment.
	EncodeAll bool `yaml:"encodeall" toml:"encodeall"`
	// HTTP2 enables HTTP/2 over TLS.
	HTTP2 bool `yaml:"http2" toml:"http2"`
	// TLSCerts is a directory of PEM certificates replacing the
	// system roots.
	TLSCerts string `yaml:"tlscerts" toml:"tlscerts"`
	// Timeout bounds each request, as a duration string.
	Timeout string `yaml:"timeout" toml:"timeout"`
	// Compress asks for gzip compressed invocation bodies.
	Compress bool `yaml:"compress" toml:"compress"`
}

// Defaults.
const (
	DefaultAddr          = ":8080"
	DefaultContextRoot   = "/wildfly-services"
	DefaultWorkers       = 64
	DefaultSessions      = 1024
	DefaultTxnTimeout    = 5 * time.Minute
	DefaultCompletedTxns = 4096
	DefaultTimeout       = 30 * time.Second
)

// NewServer returns a server configuration with all fields defaulted.
func NewServer() *Server {
	return &Server{
		Addr:          DefaultAddr,
		ContextRoot:   DefaultContextRoot,
		LogLevel:      "info",
		Workers:       DefaultWorkers,
		Sessions:      DefaultSessions,
		TxnTimeout:    DefaultTxnTimeout.String(),
		CompletedTxns: DefaultCompletedTxns,
	}
}

// NewClient returns a client configuration with all fields defaulted.
func NewClient() *Client {
	return &Client{
		URL:     "http://localhost" + DefaultAddr + DefaultContextRoot,
		Timeout: DefaultTimeout.String(),
	}
}

// ServerFromFile loads a server configuration from the named file.
func ServerFromFile(name string) (*Server, error) {
	const op errors.Op = "config.ServerFromFile"
	cfg := NewServer()
	if err := load(name, cfg); err != nil {
		return nil, errors.E(op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

// ClientFromFile loads a client configuration from the named file.
func ClientFromFile(name string) (*Client, error) {
	const op errors.Op = "config.ClientFromFile"
	cfg := NewClient()
	if err := load(name, cfg); err != nil {
		return nil, errors.E(op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

// ParseServer parses a server configuration. Format is "yaml" or "toml".
func ParseServer(data []byte, format string) (*Server, error) {
	const op errors.Op = "config.ParseServer"
	cfg := NewServer()
	if err := parse(data, format, cfg); err != nil {
		return nil, errors.E(op, err)
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

// ParseClient parses a client configuration. Format is "yaml" or "toml".
func ParseClient(data []byte, format string) (*Client, error) {
	const op errors.Op = "config.ParseClient"
	cfg := NewClient()
	if err := parse(data, format, cfg); err != nil {
		return nil, errors.E(op, err)
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

// TxnTimeoutDuration returns the parsed TxnTimeout.
func (s *Server) TxnTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.TxnTimeout)
	if err != nil {
		return DefaultTxnTimeout
	}
	return d
}

func (s *Server) validate() error {
	if _, err := time.ParseDuration(s.TxnTimeout); err != nil {
		return errors.E(errors.Invalid, errors.Errorf("txntimeout: %v", err))
	}
	if s.Workers <= 0 {
		return errors.E(errors.Invalid, errors.Errorf("workers must be positive, got %d", s.Workers))
	}
	if s.LetsEncryptCache != "" && len(s.LetsEncryptHosts) == 0 {
		return errors.E(errors.Invalid, errors.Str("letscache requires letshosts"))
	}
	return nil
}

// TimeoutDuration returns the parsed Timeout.
func (c *Client) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return DefaultTimeout
	}
	return d
}

// ProtocolVersion returns the version named by Version.
func (c *Client) ProtocolVersion() (*protocol.Version, error) {
	switch strings.ToLower(c.Version) {
	case "", "latest":
		return protocol.Latest, nil
	case "legacy", "ee8":
		return protocol.Legacy, nil
	case "ee9":
		return protocol.EE9, nil
	case "ee10":
		return protocol.EE10, nil
	}
	return protocol.ParseVersion(c.Version)
}

func (c *Client) validate() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return errors.E(errors.Invalid, errors.Errorf("timeout: %v", err))
	}
	if _, err := c.ProtocolVersion(); err != nil {
		return err
	}
	return nil
}

func load(name string, cfg interface{}) error {
	data, err := os.ReadFile(name)
	if err != nil && !filepath.IsAbs(name) && os.IsNotExist(err) {
		// A local name may live in $HOME/remoting.
		if home, errHome := os.UserHomeDir(); errHome == nil {
			data, err = os.ReadFile(filepath.Join(home, "remoting", name))
		}
	}
	if err != nil {
		if os.IsNotExist(err) {
			return errors.E(errors.NotExist, err)
		}
		return errors.E(errors.IO, err)
	}
	format := "yaml"
	if filepath.Ext(name) == ".toml" {
		format = "toml"
	}
	if err := parse(data, format, cfg); err != nil {
		return err
	}
	applyEnv(cfg)
	return nil
}

func parse(data []byte, format string, cfg interface{}) error {
	switch format {
	case "yaml", "yml":
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return errors.E(errors.Invalid, errors.Errorf("parsing YAML: %v", err))
		}
	case "toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return errors.E(errors.Invalid, errors.Errorf("parsing TOML: %v", err))
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return errors.E(errors.Invalid, errors.Errorf("unrecognized key %q", undecoded[0].String()))
		}
	default:
		return errors.E(errors.Invalid, errors.Errorf("unknown configuration format %q", format))
	}
	return nil
}

// applyEnv overrides string and bool fields with environment variables
// named after their yaml keys.
func applyEnv(cfg interface{}) {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("yaml")
		val, ok := os.LookupEnv("remoting_" + key)
		if !ok {
			continue
		}
		f := v.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(val)
		case reflect.Bool:
			switch val {
			case "y", "yes", "true", "1":
				f.SetBool(true)
			case "n", "no", "false", "0":
				f.SetBool(false)
			}
		}
	}
}
