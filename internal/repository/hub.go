package repository

import (
	"sync"
)

// hub keeps the per-collection subscriber lists of a store and serializes
// delivery. At most one goroutine delivers a collection at a time and each
// delivery loads its snapshot after the previous one finished, so subscribers
// never observe a collection going back in time.
type hub struct {
	mu         sync.Mutex
	next       int
	subs       map[Collection]map[int]func(Snapshot)
	delivering map[Collection]bool
	pending    map[Collection]bool
}

func newHub() *hub {
	return &hub{
		subs:       make(map[Collection]map[int]func(Snapshot)),
		delivering: make(map[Collection]bool),
		pending:    make(map[Collection]bool),
	}
}

func (h *hub) add(coll Collection, fn func(Snapshot)) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	if h.subs[coll] == nil {
		h.subs[coll] = make(map[int]func(Snapshot))
	}
	h.subs[coll][h.next] = fn
	return h.next
}

func (h *hub) remove(coll Collection, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[coll], id)
}

// listeners returns a copy so callbacks run without the hub lock held.
func (h *hub) listeners(coll Collection) []func(Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]func(Snapshot), 0, len(h.subs[coll]))
	for _, fn := range h.subs[coll] {
		out = append(out, fn)
	}
	return out
}

func (h *hub) has(coll Collection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[coll]) > 0
}

// subscribe registers fn, delivers the current contents from load to it and
// returns an idempotent unsubscribe.
func (h *hub) subscribe(coll Collection, fn func(Snapshot), load func() (Snapshot, bool)) func() {
	id := h.add(coll, fn)
	h.deliver(coll, load, []func(Snapshot){fn})
	var once sync.Once
	return func() {
		once.Do(func() { h.remove(coll, id) })
	}
}

// publish delivers the current contents from load to every subscriber of coll.
func (h *hub) publish(coll Collection, load func() (Snapshot, bool)) {
	if !h.has(coll) {
		return
	}
	h.deliver(coll, load, nil)
}

// deliver runs load and hands the snapshot to first, or to every subscriber
// when first is nil. If another delivery of coll is in flight, including one
// further up the current call stack, the request is recorded and the running
// deliverer reloads and delivers to every subscriber once it is done.
func (h *hub) deliver(coll Collection, load func() (Snapshot, bool), first []func(Snapshot)) {
	h.mu.Lock()
	if h.delivering[coll] {
		h.pending[coll] = true
		h.mu.Unlock()
		return
	}
	h.delivering[coll] = true
	h.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			h.mu.Lock()
			h.delivering[coll] = false
			h.pending[coll] = false
			h.mu.Unlock()
		}
	}()

	targets := first
	for {
		if targets == nil {
			targets = h.listeners(coll)
		}
		if snap, ok := load(); ok {
			for _, fn := range targets {
				fn(snap)
			}
		}
		h.mu.Lock()
		if !h.pending[coll] {
			h.delivering[coll] = false
			h.mu.Unlock()
			finished = true
			return
		}
		h.pending[coll] = false
		h.mu.Unlock()
		targets = nil
	}
}
