package registry

import (
	"fmt"
	"sync"
	"testing"
)

type fakeConn struct {
	id string
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) Send(payload []byte) error { return nil }

func TestRegistryMultiDevice(t *testing.T) {
	reg := New(nil)
	reg.Add(1, &fakeConn{id: "b"})
	reg.Add(1, &fakeConn{id: "a"})
	reg.Add(2, &fakeConn{id: "c"})

	conns := reg.ConnectionsFor(1)
	if len(conns) != 2 {
		t.Fatalf("ConnectionsFor() len = %d, want 2", len(conns))
	}
	if conns[0].ID() != "a" || conns[1].ID() != "b" {
		t.Fatalf("ConnectionsFor() order = %s,%s", conns[0].ID(), conns[1].ID())
	}

	connections, users := reg.Count()
	if connections != 3 || users != 2 {
		t.Fatalf("Count() = %d, %d; want 3, 2", connections, users)
	}

	reg.Remove(1, "a")
	reg.Remove(1, "missing")
	if got := reg.ConnectionsFor(1); len(got) != 1 || got[0].ID() != "b" {
		t.Fatalf("after Remove() got %d connections", len(got))
	}
	reg.Remove(1, "b")
	if reg.Online(1) {
		t.Fatal("expected user 1 offline")
	}
	if got := reg.ConnectionsFor(1); len(got) != 0 {
		t.Fatalf("offline user has %d connections", len(got))
	}
	if conns, users := reg.Count(); conns != 1 || users != 1 {
		t.Fatalf("Count() = %d, %d, want 1, 1", conns, users)
	}
}

func TestRegistryConcurrentAddRemove(t *testing.T) {
	reg := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			reg.Add(int64(i%5), &fakeConn{id: id})
			_ = reg.ConnectionsFor(int64(i % 5))
			if i%2 == 0 {
				reg.Remove(int64(i%5), id)
			}
		}(i)
	}
	wg.Wait()

	connections, _ := reg.Count()
	if connections != 25 {
		t.Fatalf("Count() connections = %d, want 25", connections)
	}
}
