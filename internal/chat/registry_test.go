package chat

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_RegisterTwice(t *testing.T) {
	reg := NewRegistry()
	c := newFakeConn("c1")
	if !reg.Register(c) {
		t.Fatal("first Register() = false, want true")
	}
	if reg.Register(c) {
		t.Error("second Register() = true, want false")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_UnregisterReturnsAttributes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newFakeConn("c1"))
	reg.SetAttributes("c1", Attributes{User: "alice", Avatar: "AL"})
	reg.BindUser("alice", "c1")

	attrs, ok := reg.Unregister("c1")
	if !ok || attrs.User != "alice" || attrs.Avatar != "AL" {
		t.Fatalf("Unregister() = %+v, %v", attrs, ok)
	}
	if _, ok := reg.LookupUser("alice"); ok {
		t.Error("user index still points at an unregistered connection")
	}
	if _, ok := reg.Unregister("c1"); ok {
		t.Error("second Unregister() = true, want false")
	}
}

// A stale cleanup from an older connection must not evict the newer owner of
// the same user name.
func TestRegistry_GuardedUnbind(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newFakeConn("old"))
	reg.Register(newFakeConn("new"))
	reg.SetAttributes("old", Attributes{User: "alice"})
	reg.BindUser("alice", "old")
	reg.SetAttributes("new", Attributes{User: "alice"})
	reg.BindUser("alice", "new")

	if reg.UnbindUser("alice", "old") {
		t.Error("UnbindUser(alice, old) = true, want false")
	}
	if _, ok := reg.Unregister("old"); !ok {
		t.Fatal("Unregister(old) failed")
	}
	conn, ok := reg.LookupUser("alice")
	if !ok || conn.ID() != "new" {
		t.Fatalf("LookupUser(alice) = %v, %v; want new", conn, ok)
	}
	if !reg.UnbindUser("alice", "new") {
		t.Error("UnbindUser(alice, new) = false, want true")
	}
}

func TestRegistry_ClearAttributesVersioned(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newFakeConn("c1"))
	reg.SetAttributes("c1", Attributes{User: "alice"})
	first, _ := reg.Get("c1")
	reg.SetAttributes("c1", Attributes{User: "bob"})

	if reg.ClearAttributes("c1", first.Version) {
		t.Error("ClearAttributes with a stale version = true, want false")
	}
	cur, _ := reg.Get("c1")
	if cur.User != "bob" {
		t.Fatalf("User = %q, want bob", cur.User)
	}
	if !reg.ClearAttributes("c1", cur.Version) {
		t.Error("ClearAttributes with current version = false, want true")
	}
	if a, _ := reg.Get("c1"); a.User != "" {
		t.Errorf("User after clear = %q, want empty", a.User)
	}
}

func TestRegistry_KnownUsersDeduplicates(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newFakeConn("c1"))
	reg.BindUser("alice", "c1")
	reg.BindUser("alias", "c1")
	if n := len(reg.KnownUsers()); n != 1 {
		t.Errorf("len(KnownUsers()) = %d, want 1", n)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			reg.Register(newFakeConn(id))
			reg.SetAttributes(id, Attributes{User: id})
			reg.BindUser(id, id)
			_, _ = reg.Get(id)
			_ = reg.KnownUsers()
			if i%2 == 0 {
				reg.Unregister(id)
			}
		}(i)
	}
	wg.Wait()
	if reg.Len() != 25 {
		t.Errorf("Len() = %d, want 25", reg.Len())
	}
	if n := len(reg.KnownUsers()); n != 25 {
		t.Errorf("len(KnownUsers()) = %d, want 25", n)
	}
}

func TestDisplayID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"3f2a9c1d-aa0b-4c1e-9bd4-0a1b2cdeff12", "DEFF12"},
		{"abc", "ABC"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DisplayID(tt.in); got != tt.want {
			t.Errorf("DisplayID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
