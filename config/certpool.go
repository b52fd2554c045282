// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"crypto/x509"
	"os"
	"path/filepath"

	"httpremoting.io/errors"
	"httpremoting.io/log"
)

// CertPool returns the pool built from the PEM files in TLSCerts,
// or nil if the system roots should be used.
func (c *Client) CertPool() (*x509.CertPool, error) {
	const op errors.Op = "config.CertPool"
	if c.TLSCerts == "" {
		return nil, nil
	}
	pool, err := certPoolFromDir(c.TLSCerts)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if pool == nil {
		log.Info.Printf("config: no PEM certificates found in %q", c.TLSCerts)
	}
	return pool, nil
}

// certPoolFromDir parses the PEM files in dir. Files without the suffix
// ".pem" are ignored.
func certPoolFromDir(dir string) (*x509.CertPool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.E(errors.IO, errors.Errorf("reading TLS certificates in %q: %v", dir, err))
	}
	var pool *x509.CertPool
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pem" {
			continue
		}
		pem, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.E(errors.IO, errors.Errorf("reading TLS certificate %q: %v", e.Name(), err))
		}
		if pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.E(errors.Invalid, errors.Errorf("no certificates in %q", e.Name()))
		}
	}
	return pool, nil
}
