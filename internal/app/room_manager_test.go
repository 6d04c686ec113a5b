package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
)

func TestRoomManagerReleasesEmptyRooms(t *testing.T) {
	m := NewRoomManager()
	c := &fakeConn{}
	if !m.Add("c1", "a", "u1", c) {
		t.Fatal("first add should report new member")
	}
	if m.Add("c1", "a", "u1", c) {
		t.Fatal("second add should not")
	}
	first, _ := m.Get("c1")
	if !m.Remove("c1", "a") {
		t.Fatal("remove should report membership")
	}
	if _, ok := m.Get("c1"); ok {
		t.Fatal("empty room still listed")
	}
	if m.Remove("c1", "a") {
		t.Fatal("remove from released room should be a no-op")
	}
	m.Add("c1", "b", "u2", c)
	second, _ := m.Get("c1")
	if first == second {
		t.Fatal("released room was reused")
	}
	if len(m.List()) != 1 {
		t.Fatalf("List = %v", m.List())
	}
}

func TestRoomManagerConcurrentChurn(t *testing.T) {
	m := NewRoomManager()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := core.ConnID(fmt.Sprintf("w%d", w))
			c := &fakeConn{}
			for range 200 {
				m.Add("hot", id, "", c)
				m.Remove("hot", id)
			}
		}()
	}
	wg.Wait()

	// every worker ended with a remove, so nothing may be left behind
	if room, ok := m.Get("hot"); ok && room.MemberCount() != 0 {
		t.Fatalf("members left: %d", room.MemberCount())
	}
	m.Add("hot", "late", "", &fakeConn{})
	room, ok := m.Get("hot")
	if !ok || !room.Has("late") {
		t.Fatal("add after churn landed in a released room")
	}
}

func TestPublisherKicksSlowConsumers(t *testing.T) {
	h := newHarness(t)
	_, ok := h.connect(t, "u-alice", "general")
	slowID, slow := h.connect(t, "u-bob", "general")
	slow.full = true

	res := h.pub.Publish("general", "", core.EventMessage, map[string]string{"x": "y"})
	if res.SendTo != 1 || len(res.Dropped) != 1 || res.Dropped[0] != slowID {
		t.Fatalf("PublishResult = %+v", res)
	}
	if !slow.closed {
		t.Fatal("slow consumer was not kicked")
	}
	if len(ok.events()) != 1 {
		t.Fatal("healthy member missed the frame")
	}
}

func TestPublisherLenientPolicyKeepsMember(t *testing.T) {
	h := newHarness(t)
	h.pub.Policy = PolicyByName("drop")
	_, slow := h.connect(t, "u-bob", "general")
	slow.full = true
	h.pub.Publish("general", "", core.EventMessage, nil)
	if slow.closed {
		t.Fatal("lenient policy closed the connection")
	}
}

func TestPublishToUnknownRoom(t *testing.T) {
	h := newHarness(t)
	if res := h.pub.Publish("nobody", "", core.EventMessage, nil); res.SendTo != 0 {
		t.Fatalf("PublishResult = %+v", res)
	}
}
