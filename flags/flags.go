// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flags defines command-line flags to make them consistent between binaries.
// Not all flags make sense for all binaries.
package flags // import "httpremoting.io/flags"

import (
	"flag"
	"fmt"

	"httpremoting.io/config"
	"httpremoting.io/log"
)

// We define the flags in two steps so clients don't have to write *flags.Flag.
// It also makes the documentation easier to read.

var (
	// Config names the configuration file to load.
	Config = defaultConfig

	// Addr is the network address on which to listen for incoming network connections.
	Addr = config.DefaultAddr

	// InsecureHTTP serves plain HTTP on a loopback address instead of HTTPS.
	InsecureHTTP = false

	// LetsEncryptCache is the directory caching Let's Encrypt certificates.
	LetsEncryptCache = ""

	// LogLevel sets the level of logging.
	LogLevel logFlag
)

type logFlag struct {
	level string
}

// String implements flag.Value.
func (l *logFlag) String() string {
	return l.level
}

// Set implements flag.Value.
func (l *logFlag) Set(level string) error {
	if err := log.SetLevel(level); err != nil {
		return fmt.Errorf("invalid level %q", level) // Flag errors are printed with usage.
	}
	l.level = level
	return nil
}

func init() {
	flag.StringVar(&Config, "config", Config, "configuration `file` (YAML, or TOML if it ends in .toml)")
	flag.StringVar(&Addr, "addr", Addr, "listen `address` for incoming network connections")
	flag.BoolVar(&InsecureHTTP, "insecure", InsecureHTTP, "serve insecure HTTP, only on a loopback address")
	flag.StringVar(&LetsEncryptCache, "letscache", LetsEncryptCache, "Let's Encrypt certificate cache `directory`")
	flag.Var(&LogLevel, "log", "`level` of logging: debug, info, error or disabled")
	LogLevel.level = log.GetLevel()
}

// Apply overrides the fields of cfg with the flags set on the command
// line.
func Apply(cfg *config.Server) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = Addr
		case "insecure":
			cfg.InsecureHTTP = InsecureHTTP
		case "letscache":
			cfg.LetsEncryptCache = LetsEncryptCache
		case "log":
			cfg.LogLevel = LogLevel.level
		}
	})
}
