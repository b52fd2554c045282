// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command remotingserver serves the transaction, bean invocation and
// naming operations over HTTP from in-memory implementations.
//
// Usage:
//
//	remotingserver [-config file] [-addr address] [-insecure] [-letscache dir] [-log level] [-version]
//
// Flags set on the command line override the configuration file. When
// the default configuration file does not exist, the defaults are used.
package main // import "httpremoting.io/cmd/remotingserver"

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"httpremoting.io/config"
	"httpremoting.io/errors"
	"httpremoting.io/flags"
	"httpremoting.io/https"
	"httpremoting.io/log"
	"httpremoting.io/metric"
	"httpremoting.io/shutdown"
	"httpremoting.io/version"
)

var printVersion = flag.Bool("version", false, "print build version and exit")

func usage() {
	fmt.Fprintf(os.Stderr, "usage: remotingserver [flags]\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 0 {
		usage()
		os.Exit(2)
	}
	if *printVersion {
		fmt.Print(version.Version())
		return
	}

	cfg, err := loadConfig(flags.Config)
	if err != nil {
		log.Fatal(err)
	}
	flags.Apply(cfg)
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		log.Fatal(err)
	}

	saver, metrics, err := newSaver(cfg)
	if err != nil {
		log.Fatal(err)
	}
	metric.RegisterSaver(saver)

	svc, err := newServer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	opt := https.OptionsFromConfig(cfg)
	opt.Metrics = metrics
	s, err := https.Listen(svc.Handler(), opt)
	if err != nil {
		log.Fatal(err)
	}
	log.Info.Printf("remotingserver: serving %s on %s, version %s", cfg.ContextRoot, s.Addr(), strings.TrimSpace(version.Version()))

	// Handlers run in reverse: in-flight invocations are interrupted
	// before the listeners drain.
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	shutdown.Handle(func() {
		cancel()
		<-served
	})
	shutdown.Handle(svc.invocations.Shutdown)

	err = s.Serve(ctx)
	close(served)
	if err != nil {
		log.Error.Printf("remotingserver: %v", err)
		shutdown.Now(1)
	}
	shutdown.Now(0)
}

// newSaver returns the metric saver for cfg and the handler exposing its
// metrics, if any. Without a metrics listener, debug logging writes the
// spans to the log instead.
func newSaver(cfg *config.Server) (metric.Saver, http.Handler, error) {
	if cfg.MetricsAddr == "" && log.At("debug") {
		return metric.NewLogSaver(), nil, nil
	}
	saver, err := metric.NewPrometheusSaver("remoting")
	if err != nil {
		return nil, nil, err
	}
	return saver, saver.Handler(), nil
}

// loadConfig reads the named configuration file. A missing file at the
// default location yields the default configuration.
func loadConfig(name string) (*config.Server, error) {
	cfg, err := config.ServerFromFile(name)
	if errors.Is(errors.NotExist, err) && !isSet("config") {
		log.Info.Printf("remotingserver: no configuration in %s, using defaults", name)
		return config.NewServer(), nil
	}
	return cfg, err
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
