// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"

	"httpremoting.io/config"
	"httpremoting.io/ejb"
	ejbinprocess "httpremoting.io/ejb/inprocess"
	"httpremoting.io/naming"
	naminginprocess "httpremoting.io/naming/inprocess"
	"httpremoting.io/rpc"
	"httpremoting.io/txn"
	txninprocess "httpremoting.io/txn/inprocess"
)

// Module holds the beans served by the command itself.
var Module = ejb.ModuleID{Module: "remoting"}

// service is the rpc.Server carrying the three operation families.
type service struct {
	*rpc.Server

	// invocations is stopped on shutdown.
	invocations *ejb.Server
}

// newServer returns the service backed by in-memory implementations
// sized by cfg.
func newServer(cfg *config.Server) (*service, error) {
	node, err := os.Hostname()
	if err != nil {
		node = "remotingserver"
	}
	manager := txninprocess.New(txninprocess.Options{
		Timeout:   cfg.TxnTimeoutDuration(),
		Completed: cfg.CompletedTxns,
		Node:      node,
	})

	beans := ejbinprocess.New()
	beans.Register(Module, "Echo", "echo", []string{"java.lang.Object"}, echo)

	ns := naminginprocess.New()
	if _, err := ns.CreateSubcontext("java:global"); err != nil {
		return nil, err
	}

	invocations := ejb.NewServer(ejb.Options{
		Dispatcher: beans,
		Manager:    manager,
		Workers:    cfg.Workers,
		Sessions:   cfg.Sessions,
	})
	s := rpc.NewServer(cfg.ContextRoot, rpc.DefaultCodecs)
	s.Handle(txn.Family, txn.NewServer(manager, nil).Endpoints()...)
	s.Handle(ejb.Family, invocations.Endpoints()...)
	s.Handle(naming.Family, naming.NewServer(ns).Endpoints()...)
	return &service{Server: s, invocations: invocations}, nil
}

// echo returns its argument and the invocation's attachments.
func echo(_ context.Context, inv *ejb.Invocation) (*ejb.Response, error) {
	var v interface{}
	if len(inv.Args) > 0 {
		v = inv.Args[0]
	}
	return &ejb.Response{Value: v, Attachments: inv.Attachments}, nil
}
