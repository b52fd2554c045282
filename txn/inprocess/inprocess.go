// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inprocess implements an in-memory transaction manager.
package inprocess // import "httpremoting.io/txn/inprocess"

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"httpremoting.io/cache"
	"httpremoting.io/errors"
	"httpremoting.io/log"
	"httpremoting.io/txn"
)

// FormatID is the format of the Xids minted by Begin.
const FormatID = 0x20005

// Defaults for Options.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultCompleted = 4096
)

// State is the lifecycle state of a transaction.
type State int

// Transaction states.
const (
	Active State = iota
	Prepared
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Prepared:
		return "prepared"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	}
	return "unknown"
}

// Options configures a Manager. Zero fields take their defaults.
type Options struct {
	Clock clock.Clock

	// Timeout applies to transactions begun or imported without one.
	Timeout time.Duration

	// Completed bounds the number of finished Xids remembered to reject
	// late re-imports.
	Completed int

	// Node becomes the branch qualifier of minted Xids.
	Node string
}

// Manager is an in-memory txn.Manager.
type Manager struct {
	clock   clock.Clock
	timeout time.Duration
	node    []byte

	mu        sync.Mutex
	txns      map[string]*transaction
	completed *cache.LRU[string, State]
}

var _ txn.Manager = (*Manager)(nil)

// New returns a Manager configured by opts.
func New(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Completed <= 0 {
		opts.Completed = DefaultCompleted
	}
	return &Manager{
		clock:     opts.Clock,
		timeout:   opts.Timeout,
		node:      []byte(opts.Node),
		txns:      make(map[string]*transaction),
		completed: cache.NewLRU[string, State](opts.Completed),
	}
}

// Begin implements txn.Manager.
func (m *Manager) Begin(timeout time.Duration) (txn.LocalTransaction, error) {
	const op errors.Op = "inprocess.Begin"
	id := uuid.New()
	xid := txn.Xid{
		FormatID:        FormatID,
		GlobalID:        id[:],
		BranchQualifier: m.node,
	}
	if err := xid.Valid(); err != nil {
		return nil, errors.E(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(xid, timeout), nil
}

// FindOrImport implements txn.Manager. The manager's lock is the single
// point at which concurrent imports of one Xid are ordered.
func (m *Manager) FindOrImport(xid txn.Xid, timeout time.Duration) (*txn.Imported, error) {
	const op errors.Op = "inprocess.FindOrImport"
	if err := xid.Valid(); err != nil {
		return nil, errors.E(op, err)
	}
	key := xid.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.txns[key]; ok {
		return &txn.Imported{Transaction: t, Control: control{t}}, nil
	}
	if state, ok := m.completed.Get(key); ok {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("transaction %v already %v", xid, state))
	}
	t := m.add(xid, timeout)
	return &txn.Imported{Transaction: t, Control: control{t}, New: true}, nil
}

// add registers a new active transaction. m.mu must be held.
func (m *Manager) add(xid txn.Xid, timeout time.Duration) *transaction {
	if timeout <= 0 {
		timeout = m.timeout
	}
	t := &transaction{m: m, xid: xid, key: xid.Key()}
	t.timer = m.clock.AfterFunc(timeout, t.expire)
	m.txns[t.key] = t
	return t
}

// finish forgets t and remembers its outcome.
func (m *Manager) finish(t *transaction, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txns[t.key] == t {
		delete(m.txns, t.key)
	}
	m.completed.Add(t.key, state)
}

// Recover implements txn.Manager. A scan starting with txn.StartRecovery
// returns every prepared transaction; other scans return nothing.
func (m *Manager) Recover(flags int, parent string) ([]txn.Xid, error) {
	const op errors.Op = "inprocess.Recover"
	if !txn.ValidRecoveryFlags(flags) {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("recovery flags %#x", flags))
	}
	if flags&txn.StartRecovery == 0 {
		return nil, nil
	}
	m.mu.Lock()
	var txns []*transaction
	for _, t := range m.txns {
		txns = append(txns, t)
	}
	m.mu.Unlock()

	var xids []txn.Xid
	for _, t := range txns {
		if t.State() == Prepared {
			xids = append(xids, t.xid)
		}
	}
	sort.Slice(xids, func(i, j int) bool { return xids[i].Key() < xids[j].Key() })
	log.Debug.Printf("inprocess: recovery for %q found %d transactions", parent, len(xids))
	return xids, nil
}

// StateOf returns the state of the transaction named by xid, which may
// be a recently completed one.
func (m *Manager) StateOf(xid txn.Xid) (State, bool) {
	key := xid.Key()
	m.mu.Lock()
	t, ok := m.txns[key]
	m.mu.Unlock()
	if ok {
		return t.State(), true
	}
	return m.completed.Get(key)
}

// Len returns the number of transactions that are not yet completed.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txns)
}

type transaction struct {
	m     *Manager
	xid   txn.Xid
	key   string
	timer clock.Timer

	perform sync.Mutex // serializes Perform

	mu    sync.Mutex // protects state
	state State
}

func (t *transaction) Xid() txn.Xid { return t.xid }

// State returns the current state of the transaction.
func (t *transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *transaction) Perform(fn func() error) error {
	t.perform.Lock()
	defer t.perform.Unlock()
	return fn()
}

func (t *transaction) Commit() error {
	return t.complete("inprocess.Commit", Committed, Active)
}

func (t *transaction) Rollback() error {
	return t.complete("inprocess.Rollback", RolledBack, Active, Prepared)
}

// control exposes a transaction as a subordinate branch.
type control struct {
	t *transaction
}

func (c control) BeforeCompletion() error {
	const op errors.Op = "inprocess.BeforeCompletion"
	if s := c.t.State(); s != Active {
		return errors.E(op, errors.Transaction, errors.Errorf("transaction %v is %v", c.t.xid, s))
	}
	return nil
}

func (c control) Prepare() error {
	const op errors.Op = "inprocess.Prepare"
	t := c.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Active {
		return errors.E(op, errors.Transaction, errors.Errorf("transaction %v is %v", t.xid, t.state))
	}
	t.state = Prepared
	t.timer.Stop()
	return nil
}

// Commit commits the branch. A two-phase commit of a branch that was
// never prepared prepares it first.
func (c control) Commit(onePhase bool) error {
	if onePhase {
		return c.t.complete("inprocess.Commit", Committed, Active)
	}
	return c.t.complete("inprocess.Commit", Committed, Active, Prepared)
}

func (c control) Rollback() error {
	return c.t.Rollback()
}

// Forget discards a branch that is no longer active.
func (c control) Forget() error {
	const op errors.Op = "inprocess.Forget"
	state := c.t.State()
	if state == Active {
		return errors.E(op, errors.Transaction, errors.Errorf("transaction %v is %v", c.t.xid, state))
	}
	c.t.timer.Stop()
	c.t.m.finish(c.t, state)
	return nil
}

// complete moves the transaction to state if it is currently in one of
// from.
func (t *transaction) complete(op errors.Op, state State, from ...State) error {
	t.mu.Lock()
	ok := false
	for _, s := range from {
		if t.state == s {
			ok = true
			break
		}
	}
	if !ok {
		cur := t.state
		t.mu.Unlock()
		return errors.E(op, errors.Transaction, errors.Errorf("transaction %v is %v", t.xid, cur))
	}
	t.state = state
	t.mu.Unlock()
	t.timer.Stop()
	t.m.finish(t, state)
	return nil
}

// expire rolls back a transaction still active when its timeout fires.
func (t *transaction) expire() {
	t.perform.Lock()
	defer t.perform.Unlock()
	if t.State() != Active {
		return
	}
	if err := t.Rollback(); err == nil {
		log.Info.Printf("inprocess: transaction %v timed out", t.xid)
	}
}
