// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ejb

import (
	"context"
	"encoding/base64"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"

	"httpremoting.io/cache"
	"httpremoting.io/codec"
	"httpremoting.io/errors"
	"httpremoting.io/log"
	"httpremoting.io/rpc"
	"httpremoting.io/txn"
)

// Dispatcher runs invocations against deployed beans.
type Dispatcher interface {
	// Invoke runs inv. ctx is cancelled if the invocation is cancelled
	// with interruption or the client goes away.
	Invoke(ctx context.Context, inv *Invocation) (*Response, error)

	// OpenSession creates a session with a stateful bean and returns
	// its identifier.
	OpenSession(ctx context.Context, loc Locator, t TransactionInfo) ([]byte, error)

	// Modules lists the deployed modules.
	Modules() []ModuleID
}

// Defaults for Options.
const (
	DefaultWorkers  = 64
	DefaultSessions = 1024
)

// Options configures a Server. Zero fields take their defaults.
type Options struct {
	Dispatcher Dispatcher

	// Manager imports the transactions invocations run in. If nil,
	// transactional invocations are refused.
	Manager txn.Manager

	// Workers bounds the number of invocations dispatched at once.
	Workers int

	// Sessions bounds the number of open sessions remembered.
	Sessions int
}

// Server serves the invocation operations.
type Server struct {
	dispatcher Dispatcher
	manager    txn.Manager
	workers    *semaphore.Weighted
	registry   *Registry
	sessions   *cache.LRU[string, Locator]

	// stopped is cancelled by Shutdown.
	stopped context.Context
	stop    context.CancelFunc
}

// NewServer returns a Server configured by opts.
func NewServer(opts Options) *Server {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Sessions <= 0 {
		opts.Sessions = DefaultSessions
	}
	s := &Server{
		dispatcher: opts.Dispatcher,
		manager:    opts.Manager,
		workers:    semaphore.NewWeighted(int64(opts.Workers)),
		registry:   NewRegistry(),
		sessions:   cache.NewLRU[string, Locator](opts.Sessions),
	}
	s.stopped, s.stop = context.WithCancel(context.Background())
	return s
}

// Shutdown interrupts every invocation in progress and makes later
// invocations fail with errors.Canceled. It is meant to be registered
// with shutdown.Handle.
func (s *Server) Shutdown() {
	s.stop()
	n := s.registry.CancelAll(true)
	log.Info.Printf("ejb: shutdown: interrupted %d registered invocations", n)
}

// Registry returns the registry of the server's cancellable invocations.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Endpoints returns the endpoints of every invocation operation, for
// registration under Family.
func (s *Server) Endpoints() []*rpc.Endpoint {
	endpoints := make([]*rpc.Endpoint, numRequestTypes)
	for t := RequestType(0); t < numRequestTypes; t++ {
		endpoints[t] = s.endpoint(t)
	}
	return endpoints
}

func (s *Server) endpoint(t RequestType) *rpc.Endpoint {
	e := &rpc.Endpoint{Op: t.Operation()}
	switch t {
	case Invoke:
		e.ContentType = &InvocationType
		e.Headers = []string{"Accept"}
		e.Process = s.invoke
	case Cancel:
		e.Process = s.cancel
	case CreateSession:
		e.ContentType = &SessionOpen
		e.Process = s.open
	case Discover:
		e.Process = s.discover
	default:
		panic(errors.E(errors.Op("ejb.endpoint"), errors.Internal, errors.Errorf("unknown request type %d", int(t))))
	}
	return e
}

// locatorOf parses the bean path at the start of segments.
func locatorOf(segments []string) (Locator, error) {
	if len(segments) < 4 {
		return Locator{}, errors.E(errors.Invalid, errors.Errorf("bean path has %d segments, want 4", len(segments)))
	}
	return Locator{
		ModuleID: ModuleID{App: segments[0], Module: segments[1], Distinct: segments[2]},
		Bean:     segments[3],
	}, nil
}

// invocationOf parses the path of an invocation:
// bean path, bean id, view, method and parameter types.
func invocationOf(segments []string) (*Invocation, error) {
	if len(segments) < 7 {
		return nil, errors.E(errors.Invalid, errors.Errorf("invocation path has %d segments, want at least 7", len(segments)))
	}
	loc, err := locatorOf(segments)
	if err != nil {
		return nil, err
	}
	if segments[4] != "" {
		loc.SessionID, err = base64.RawURLEncoding.DecodeString(segments[4])
		if err != nil {
			return nil, errors.E(errors.Invalid, errors.Errorf("bad session id %q", segments[4]))
		}
	}
	return &Invocation{
		Locator:    loc,
		View:       segments[5],
		Method:     segments[6],
		ParamTypes: segments[7:],
	}, nil
}

// pending is the cancel handle of one invocation.
type pending struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	started   bool
	cancelled bool
}

func (p *pending) Cancel(interrupt bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started && !interrupt {
		return
	}
	p.cancelled = true
	p.cancel()
}

// start reports whether the invocation may run.
func (p *pending) start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return false
	}
	p.started = true
	return true
}

func (s *Server) invoke(x *rpc.Exchange) error {
	const op errors.Op = "ejb.Invoke"
	inv, err := invocationOf(x.Segments)
	if err != nil {
		return errors.E(op, err)
	}
	if err := x.Read(func(u codec.Unmarshaller) error { return readInvocationBody(u, inv) }); err != nil {
		return errors.E(op, err)
	}
	if sid := inv.Locator.SessionID; len(sid) > 0 && !s.sessions.Contains(string(sid)) {
		return errors.E(op, errors.NotExist, errors.Errorf("no session %s", base64.RawURLEncoding.EncodeToString(sid)))
	}
	inv.ID = x.R.Header.Get(rpc.InvocationIDHeader)

	if s.stopped.Err() != nil {
		return errors.E(op, errors.Canceled, errors.Str("server is shutting down"))
	}
	ctx, cancel := context.WithCancel(x.R.Context())
	defer cancel()
	defer context.AfterFunc(s.stopped, cancel)()
	p := &pending{cancel: cancel}
	if inv.ID != "" {
		if err := s.registry.Register(inv.ID, p); err != nil {
			return err
		}
		defer s.registry.Complete(inv.ID, p)
	}

	if err := s.workers.Acquire(ctx, 1); err != nil {
		return errors.E(op, errors.Canceled, err)
	}
	defer s.workers.Release(1)
	if !p.start() {
		return errors.E(op, errors.Canceled, errors.Errorf("invocation %q cancelled", inv.ID))
	}

	var resp *Response
	err = s.inTransaction(inv.Transaction, func() error {
		var err error
		resp, err = s.dispatcher.Invoke(ctx, inv)
		return err
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(errors.Canceled, err) {
			return errors.E(op, errors.Canceled, err)
		}
		return err
	}
	if resp == nil {
		resp = &Response{}
	}
	return x.Write(ResponseType, func(m codec.Marshaller) error {
		return writeResponse(m, resp)
	})
}

// inTransaction runs fn inside the transaction described by t.
func (s *Server) inTransaction(t TransactionInfo, fn func() error) error {
	const op errors.Op = "ejb.inTransaction"
	if t.Kind == NoTransaction {
		return fn()
	}
	if s.manager == nil {
		return errors.E(op, errors.Unsupported, errors.Str("transactions are not enabled"))
	}
	imp, err := s.manager.FindOrImport(t.Xid, t.Timeout)
	if err != nil {
		return err
	}
	return imp.Transaction.Perform(fn)
}

func (s *Server) cancel(x *rpc.Exchange) error {
	const op errors.Op = "ejb.Cancel"
	if len(x.Segments) < 6 {
		return errors.E(op, errors.Invalid, errors.Errorf("cancel path has %d segments, want 6", len(x.Segments)))
	}
	id := x.Segments[4]
	interrupt, _ := strconv.ParseBool(x.Segments[5])
	found := s.registry.Cancel(id, interrupt)
	log.Debug.Printf("ejb: cancel %q (interrupt %v): found %v", id, interrupt, found)
	return nil
}

func (s *Server) open(x *rpc.Exchange) error {
	const op errors.Op = "ejb.OpenSession"
	loc, err := locatorOf(x.Segments)
	if err != nil {
		return errors.E(op, err)
	}
	var t TransactionInfo
	err = x.Read(func(u codec.Unmarshaller) error {
		var err error
		t, err = readTransaction(u)
		return err
	})
	if err != nil {
		return errors.E(op, err)
	}
	var sid []byte
	err = s.inTransaction(t, func() error {
		var err error
		sid, err = s.dispatcher.OpenSession(x.R.Context(), loc, t)
		return err
	})
	if err != nil {
		return err
	}
	if len(sid) == 0 {
		return errors.E(op, errors.Internal, errors.Str("empty session id"))
	}
	loc.SessionID = sid
	s.sessions.Add(string(sid), loc)
	x.W.Header().Set(SessionIDHeader, base64.RawURLEncoding.EncodeToString(sid))
	return nil
}

func (s *Server) discover(x *rpc.Exchange) error {
	mods := s.dispatcher.Modules()
	return x.Write(DiscoveryType, func(m codec.Marshaller) error {
		return writeModules(m, mods)
	})
}
