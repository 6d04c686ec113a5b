package orch

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/Huddle/internal/adapters/store/memory"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *fakeConn) events() []event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event, 0, len(c.frames))
	for _, f := range c.frames {
		var e event
		_ = json.Unmarshal(f, &e)
		out = append(out, e)
	}
	return out
}

func (c *fakeConn) count(typ string) int {
	n := 0
	for _, e := range c.events() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (c *fakeConn) types() []string {
	var out []string
	for _, e := range c.events() {
		out = append(out, e.Type)
	}
	return out
}

func (c *fakeConn) has(typ string) bool { return slices.Contains(c.types(), typ) }

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

type plainCipher struct{}

func (plainCipher) Encrypt(s string) (string, error) { return s, nil }
func (plainCipher) Decrypt(s string) string          { return s }

type fixture struct {
	o     *Orchestrator
	store *memory.Store
	sink  *memory.Sink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	sink := &memory.Sink{}
	store.PutUser("u-alice", domain.Display{Name: "Alice", Username: "alice"})
	store.PutUser("u-bob", domain.Display{Name: "Bob", Username: "bob"})
	store.PutUser("u-admin", domain.Display{Name: "Ada", Username: "ada"})
	store.SetRole("s1", "u-alice", domain.RoleMember)
	store.SetRole("s1", "u-bob", domain.RoleMember)
	store.SetRole("s1", "u-admin", domain.RoleAdmin)
	store.PutChannel(domain.Channel{ID: "general", ServerID: "s1", PostPermission: domain.PostEveryone})
	store.PutChannel(domain.Channel{ID: "voice", ServerID: "s1", PostPermission: domain.PostEveryone})
	store.PutChannel(domain.Channel{ID: "staff", ServerID: "s1", IsPrivate: true, AllowedRoles: []domain.Role{domain.RoleAdmin}})

	o := New(Stores{
		Identity: store,
		Channels: store,
		Messages: store,
		Reads:    store,
		Cipher:   plainCipher{},
		Notify:   sink,
		Presence: store,
	}, app.SimplePolicy{})
	return &fixture{o: o, store: store, sink: sink}
}

func (f *fixture) connect(t *testing.T, user domain.UserID) (core.ConnID, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	id := f.o.Connect(c)
	if user != "" {
		if err := f.o.Registry.Identify(id, user); err != nil {
			t.Fatal(err)
		}
	}
	return id, c
}

func (f *fixture) join(t *testing.T, id core.ConnID, ch domain.ChannelID) {
	t.Helper()
	if _, err := f.o.Join(t.Context(), id, ch); err != nil {
		t.Fatalf("Join(%s): %v", ch, err)
	}
}
