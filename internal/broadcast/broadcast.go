// Package broadcast implements a single-slot, multi-reader latch
// carrying the current parsed TLS material. Writes replace the value;
// reads snapshot the current value; a ready channel lets readers block
// until the first value is published.
package broadcast

import (
	"sync"

	"github.com/certproxy/certproxy/internal/material"
)

// Broadcast is a single-writer, multi-reader latch. The zero value is
// not usable; construct with New.
type Broadcast struct {
	mu      sync.RWMutex
	value   material.Material
	hasValue bool

	readyOnce sync.Once
	ready     chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// New returns an empty Broadcast.
func New() *Broadcast {
	return &Broadcast{
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Publish replaces the current value. Callers are responsible for
// only calling Publish with newer material than any prior call; the
// renewal goroutine is the only writer, so this holds by construction.
func (b *Broadcast) Publish(m material.Material) {
	b.mu.Lock()
	b.value = m
	b.hasValue = true
	b.mu.Unlock()

	b.readyOnce.Do(func() { close(b.ready) })
}

// Snapshot non-blockingly returns the current value. ok is false if
// no value has ever been published.
func (b *Broadcast) Snapshot() (material.Material, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value, b.hasValue
}

// WaitFirst blocks until the first value is published, the done
// channel fires (caller shutdown), or the Broadcast is closed. It
// returns false if it returned without a value ever being published.
func (b *Broadcast) WaitFirst(done <-chan struct{}) bool {
	select {
	case <-b.ready:
		return true
	case <-done:
		return false
	case <-b.closed:
		return false
	}
}

// Close unblocks any waiter that never saw a value. Safe to call more
// than once.
func (b *Broadcast) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
