package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/store/memory"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var errQueueFull = errors.New("queue full")

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return errQueueFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *fakeConn) events() []inbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]inbound, 0, len(c.frames))
	for _, f := range c.frames {
		var e inbound
		_ = json.Unmarshal(f, &e)
		out = append(out, e)
	}
	return out
}

func (c *fakeConn) types() []string {
	var out []string
	for _, e := range c.events() {
		out = append(out, e.Type)
	}
	return out
}

// last decodes the data of the most recent event of the given type.
func (c *fakeConn) last(t *testing.T, typ string, into any) bool {
	t.Helper()
	evs := c.events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			if err := json.Unmarshal(evs[i].Data, into); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
			return true
		}
	}
	return false
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// prefixCipher marks ciphertext so tests can tell it apart.
type prefixCipher struct{}

func (prefixCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (prefixCipher) Decrypt(s string) string {
	if rest, ok := strings.CutPrefix(s, "enc:"); ok {
		return rest
	}
	return s
}

type failingSink struct{}

func (failingSink) Enqueue(context.Context, domain.Notification) error {
	return errors.New("broker down")
}

type harness struct {
	store *memory.Store
	sink  *memory.Sink
	reg   *Registry
	rooms core.RoomManager
	pub   *Publisher
	pipe  *Pipeline
	reads *ReadTracker
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		sink:  &memory.Sink{},
		rooms: NewRoomManager(),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.reg = NewRegistry(h.store)
	h.pub = &Publisher{Rooms: h.rooms, Policy: SimplePolicy{}, Conns: h.reg}
	now := func() time.Time {
		h.clock = h.clock.Add(time.Second)
		return h.clock
	}
	h.pipe = &Pipeline{
		Channels: h.store,
		Messages: h.store,
		Identity: h.store,
		Cipher:   prefixCipher{},
		Notify:   h.sink,
		Out:      h.pub,
		Now:      now,
	}
	h.reads = &ReadTracker{States: h.store, Messages: h.store, Cipher: prefixCipher{}, Displays: h.reg, Now: now}

	h.store.PutUser("u-alice", domain.Display{Name: "Alice", Username: "alice"})
	h.store.PutUser("u-bob", domain.Display{Name: "Bob", Username: "bob"})
	h.store.PutUser("u-carol", domain.Display{Name: "Carol", Username: "carol"}, "deploy", "release")
	h.store.PutUser("u-mod", domain.Display{Name: "Mod", Username: "mod"})
	h.store.SetRole("s1", "u-alice", domain.RoleMember)
	h.store.SetRole("s1", "u-bob", domain.RoleMember)
	h.store.SetRole("s1", "u-carol", domain.RoleMember)
	h.store.SetRole("s1", "u-mod", domain.RoleModerator)
	h.store.PutChannel(domain.Channel{ID: "general", ServerID: "s1", PostPermission: domain.PostEveryone})
	h.store.PutChannel(domain.Channel{ID: "random", ServerID: "s1", PostPermission: domain.PostEveryone})
	h.store.PutChannel(domain.Channel{ID: "news", ServerID: "s1", PostPermission: domain.PostAdminOnly})
	h.store.PutChannel(domain.Channel{ID: "staff", ServerID: "s1", IsPrivate: true, AllowedRoles: []domain.Role{domain.RoleAdmin}})
	return h
}

// connect registers a connection, identifies it and joins it to channel rooms.
func (h *harness) connect(t *testing.T, user domain.UserID, channels ...domain.ChannelID) (core.ConnID, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	id := h.reg.OnConnect(c)
	if user != "" {
		if err := h.reg.Identify(id, user); err != nil {
			t.Fatalf("Identify: %v", err)
		}
	}
	for _, ch := range channels {
		key := domain.ChannelRoom(ch)
		h.rooms.Add(key, id, user, c)
		if err := h.reg.AddRoom(id, key); err != nil {
			t.Fatalf("AddRoom: %v", err)
		}
	}
	return id, c
}
