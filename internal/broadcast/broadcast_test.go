package broadcast

import (
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/certproxy/certproxy/internal/material"
)

func TestBroadcast_SnapshotEmpty(t *testing.T) {
	b := New()
	if _, ok := b.Snapshot(); ok {
		t.Fatal("expected no value before first Publish")
	}
}

func TestBroadcast_PublishThenSnapshot(t *testing.T) {
	b := New()
	m1 := material.Material{Config: &tls.Config{ServerName: "one"}}
	b.Publish(m1)

	got, ok := b.Snapshot()
	if !ok {
		t.Fatal("expected a value after Publish")
	}
	if got.Config.ServerName != "one" {
		t.Errorf("got %q, want one", got.Config.ServerName)
	}

	m2 := material.Material{Config: &tls.Config{ServerName: "two"}}
	b.Publish(m2)

	got, _ = b.Snapshot()
	if got.Config.ServerName != "two" {
		t.Errorf("got %q, want two (monotonic freshness)", got.Config.ServerName)
	}
}

func TestBroadcast_WaitFirst(t *testing.T) {
	b := New()
	done := make(chan struct{})

	waitDone := make(chan bool, 1)
	go func() { waitDone <- b.WaitFirst(done) }()

	time.Sleep(10 * time.Millisecond) // let the waiter block
	b.Publish(material.Material{Config: &tls.Config{ServerName: "ready"}})

	select {
	case ok := <-waitDone:
		if !ok {
			t.Error("expected WaitFirst to return true after Publish")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFirst did not unblock after Publish")
	}
}

func TestBroadcast_WaitFirst_Done(t *testing.T) {
	b := New()
	done := make(chan struct{})
	close(done)

	if b.WaitFirst(done) {
		t.Error("expected WaitFirst to return false when done fires first")
	}
}

func TestBroadcast_Close_UnblocksWaiters(t *testing.T) {
	b := New()
	done := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.WaitFirst(done)
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	b.Close()
	wg.Wait()

	for i, ok := range results {
		if ok {
			t.Errorf("waiter %d: expected false after Close with no publish", i)
		}
	}
}

func TestBroadcast_ConcurrentReadWrite(t *testing.T) {
	b := New()
	b.Publish(material.Material{Config: &tls.Config{ServerName: "seed"}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := b.Snapshot(); !ok {
				t.Error("expected a value")
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish(material.Material{Config: &tls.Config{ServerName: "writer"}})
		}(i)
	}
	wg.Wait()
}
