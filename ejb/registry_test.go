// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ejb

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"httpremoting.io/errors"
)

type countingHandle struct {
	cancels   int32
	interrupt int32
}

func (h *countingHandle) Cancel(interrupt bool) {
	atomic.AddInt32(&h.cancels, 1)
	if interrupt {
		atomic.AddInt32(&h.interrupt, 1)
	}
}

func TestConcurrentCancel(t *testing.T) {
	r := NewRegistry()
	target := &countingHandle{}
	if err := r.Register("id-1", target); err != nil {
		t.Fatal(err)
	}
	others := make([]*countingHandle, 10)
	for i := range others {
		others[i] = &countingHandle{}
		if err := r.Register(fmt.Sprintf("other-%d", i), others[i]); err != nil {
			t.Fatal(err)
		}
	}

	const n = 100
	var (
		wg    sync.WaitGroup
		found int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Cancel("id-1", true) {
				atomic.AddInt32(&found, 1)
			}
		}()
	}
	wg.Wait()

	if found != 1 {
		t.Errorf("%d cancels found the invocation, want 1", found)
	}
	if target.cancels != 1 || target.interrupt != 1 {
		t.Errorf("handle cancelled %d times (%d interrupting), want 1", target.cancels, target.interrupt)
	}
	if got := r.Len(); got != len(others) {
		t.Errorf("Len = %d, want %d", got, len(others))
	}
	for i, h := range others {
		if h.cancels != 0 {
			t.Errorf("unrelated handle %d cancelled", i)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	h1, h2 := &countingHandle{}, &countingHandle{}
	if err := r.Register("id", h1); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("id", h2); !errors.Is(errors.Exist, err) {
		t.Fatalf("duplicate Register: got %v, want Exist", err)
	}
	// Completing with a handle that does not own the id leaves it alone.
	r.Complete("id", h2)
	if r.Len() != 1 {
		t.Fatal("Complete removed another handle's registration")
	}
	r.Complete("id", h1)
	if r.Len() != 0 {
		t.Fatal("Complete did not remove the registration")
	}
	if r.Cancel("id", false) {
		t.Error("Cancel after Complete found the invocation")
	}
}

func TestPendingHandle(t *testing.T) {
	cancelled := 0
	p := &pending{cancel: func() { cancelled++ }}
	if !p.start() {
		t.Fatal("start refused")
	}
	p.Cancel(false)
	if cancelled != 0 {
		t.Error("non-interrupting cancel stopped a running invocation")
	}
	p.Cancel(true)
	if cancelled != 1 {
		t.Error("interrupting cancel did not stop a running invocation")
	}

	q := &pending{cancel: func() {}}
	q.Cancel(false)
	if q.start() {
		t.Error("invocation started after cancellation")
	}
}

func TestCancelAll(t *testing.T) {
	r := NewRegistry()
	handles := make([]*countingHandle, 5)
	for i := range handles {
		handles[i] = &countingHandle{}
		if err := r.Register(fmt.Sprintf("id-%d", i), handles[i]); err != nil {
			t.Fatal(err)
		}
	}
	if n := r.CancelAll(true); n != len(handles) {
		t.Errorf("CancelAll = %d, want %d", n, len(handles))
	}
	for i, h := range handles {
		if h.cancels != 1 || h.interrupt != 1 {
			t.Errorf("handle %d cancelled %d times (%d interrupting), want 1", i, h.cancels, h.interrupt)
		}
	}
	if got := r.Len(); got != 0 {
		t.Errorf("Len = %d, want 0", got)
	}
	if r.Cancel("id-0", true) {
		t.Error("Cancel found an invocation after CancelAll")
	}
	if n := r.CancelAll(false); n != 0 {
		t.Errorf("second CancelAll = %d, want 0", n)
	}
}
