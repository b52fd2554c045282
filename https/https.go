// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package https serves a remoting handler over HTTPS, or plain HTTP on
// loopback addresses, with optional Let's Encrypt certificates and a
// separate metrics listener.
package https // import "httpremoting.io/https"

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"httpremoting.io/config"
	"httpremoting.io/errors"
	"httpremoting.io/log"
)

// ShutdownTimeout bounds the time Serve waits for active requests once
// its context is done.
const ShutdownTimeout = 30 * time.Second

// Options configures the listeners of a Server.
type Options struct {
	// Addr is the host and port of the main listener.
	Addr string

	// HTTPAddr serves the Let's Encrypt http-01 challenge. It is used
	// only with LetsEncryptCache. If empty, ":80" is used.
	HTTPAddr string

	// LetsEncryptCache is the directory caching Let's Encrypt
	// certificates for LetsEncryptHosts. If non-empty, it takes
	// precedence over CertFile and KeyFile.
	LetsEncryptCache string
	LetsEncryptHosts []string

	// CertFile and KeyFile name the TLS certificate.
	CertFile string
	KeyFile  string

	// InsecureHTTP serves plain HTTP. Addr must then be a loopback
	// address.
	InsecureHTTP bool

	// MetricsAddr, if set, serves Metrics by plain HTTP.
	MetricsAddr string
	Metrics     http.Handler
}

// OptionsFromConfig returns the Options described by cfg.
func OptionsFromConfig(cfg *config.Server) *Options {
	return &Options{
		Addr:             cfg.Addr,
		LetsEncryptCache: cfg.LetsEncryptCache,
		LetsEncryptHosts: cfg.LetsEncryptHosts,
		CertFile:         cfg.CertFile,
		KeyFile:          cfg.KeyFile,
		InsecureHTTP:     cfg.InsecureHTTP,
		MetricsAddr:      cfg.MetricsAddr,
	}
}

// Server holds the bound listeners of a handler.
type Server struct {
	main      *listener
	challenge *listener // nil unless using Let's Encrypt
	metrics   *listener // nil unless MetricsAddr is set
}

type listener struct {
	ln  net.Listener
	srv *http.Server
}

// Listen binds the listeners described by opt. The handler is not
// served until Serve is called.
func Listen(h http.Handler, opt *Options) (*Server, error) {
	const op errors.Op = "https.Listen"
	if opt.Addr == "" {
		return nil, errors.E(op, errors.Invalid, errors.Str("no address"))
	}
	httpLogger := log.NewStdLogger(log.Info)
	main := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		// Invocation bodies stream; only idle connections are bounded.
		IdleTimeout: 60 * time.Second,
		ErrorLog:    httpLogger,
	}

	var challenge *http.Server
	switch {
	case opt.InsecureHTTP:
		if !IsLoopback(opt.Addr) {
			return nil, errors.E(op, errors.Permission, errors.Errorf("insecure HTTP on non-loopback address %q", opt.Addr))
		}
		log.Info.Printf("https: serving insecure HTTP on %q", opt.Addr)
	case opt.LetsEncryptCache != "":
		if len(opt.LetsEncryptHosts) == 0 {
			return nil, errors.E(op, errors.Invalid, errors.Str("Let's Encrypt requires at least one host"))
		}
		log.Info.Printf("https: serving HTTPS on %q using Let's Encrypt certificates cached in %s", opt.Addr, opt.LetsEncryptCache)
		if err := os.MkdirAll(opt.LetsEncryptCache, 0700); err != nil {
			return nil, errors.E(op, errors.IO, err)
		}
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(opt.LetsEncryptCache),
			HostPolicy: autocert.HostWhitelist(opt.LetsEncryptHosts...),
		}
		main.TLSConfig = m.TLSConfig()
		httpAddr := opt.HTTPAddr
		if httpAddr == "" {
			httpAddr = ":80"
		}
		challenge = &http.Server{
			Addr:              httpAddr,
			Handler:           m.HTTPHandler(nil),
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          httpLogger,
		}
	default:
		log.Info.Printf("https: serving HTTPS on %q using %s", opt.Addr, opt.CertFile)
		cfg, err := newTLSConfig(opt.CertFile, opt.KeyFile)
		if err != nil {
			return nil, errors.E(op, err)
		}
		main.TLSConfig = cfg
	}
	if main.TLSConfig != nil {
		if err := http2.ConfigureServer(main, nil); err != nil {
			return nil, errors.E(op, errors.Internal, err)
		}
	}

	s := &Server{}
	var err error
	defer func() {
		if err != nil {
			s.close()
		}
	}()
	if s.main, err = bind(opt.Addr, main); err != nil {
		return nil, errors.E(op, err)
	}
	if challenge != nil {
		if s.challenge, err = bind(challenge.Addr, challenge); err != nil {
			return nil, errors.E(op, err)
		}
	}
	if opt.MetricsAddr != "" && opt.Metrics != nil {
		metrics := &http.Server{
			Handler:           opt.Metrics,
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          httpLogger,
		}
		if s.metrics, err = bind(opt.MetricsAddr, metrics); err != nil {
			return nil, errors.E(op, err)
		}
		log.Info.Printf("https: serving metrics on %q", s.metrics.ln.Addr())
	}
	return s, nil
}

func bind(addr string, srv *http.Server) (*listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.E(errors.IO, err)
	}
	if srv.TLSConfig != nil {
		ln = tls.NewListener(ln, srv.TLSConfig)
	}
	return &listener{ln: ln, srv: srv}, nil
}

func (s *Server) listeners() []*listener {
	var out []*listener
	for _, l := range []*listener{s.main, s.challenge, s.metrics} {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (s *Server) close() {
	for _, l := range s.listeners() {
		l.ln.Close()
	}
}

// Addr returns the address of the main listener.
func (s *Server) Addr() net.Addr {
	return s.main.ln.Addr()
}

// MetricsAddr returns the address of the metrics listener, or nil.
func (s *Server) MetricsAddr() net.Addr {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.ln.Addr()
}

// Serve serves every listener until ctx is done or one of them fails,
// then shuts all of them down, waiting up to ShutdownTimeout for active
// requests. It returns nil after a shutdown caused by ctx.
func (s *Server) Serve(ctx context.Context) error {
	const op errors.Op = "https.Serve"
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range s.listeners() {
		l := l
		g.Go(func() error {
			if err := l.srv.Serve(l.ln); err != http.ErrServerClosed {
				return errors.E(op, errors.IO, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		for _, l := range s.listeners() {
			if err := l.srv.Shutdown(sctx); err != nil {
				log.Error.Printf("https: shutting down %s: %v", l.ln.Addr(), err)
			}
		}
		return nil
	})
	return g.Wait()
}

// ListenAndServe binds the listeners described by opt and serves h on
// them until ctx is done.
func ListenAndServe(ctx context.Context, h http.Handler, opt *Options) error {
	s, err := Listen(h, opt)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// IsLoopback reports whether addr, with or without a port, names the
// loopback interface.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// newTLSConfig creates a TLS config serving the certificate in the
// given files.
func newTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	const op errors.Op = "https.newTLSConfig"
	if certFile == "" || keyFile == "" {
		return nil, errors.E(op, errors.Invalid, errors.Str("no TLS certificate configured"))
	}
	for _, f := range []string{certFile, keyFile} {
		if err := isReadableFile(f); err != nil {
			return nil, errors.E(op, errors.Invalid, errors.Errorf("%s: %v", f, err))
		}
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	return &tls.Config{
		MinVersion:       tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384},
		Certificates:     []tls.Certificate{cert},
	}, nil
}

// isReadableFile returns an error unless path is a readable plain file.
func isReadableFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.Str("is directory")
	}
	fd, err := os.Open(path)
	if err != nil {
		return errors.E(errors.Permission, err)
	}
	fd.Close()
	return nil
}
