package app

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	sig   core.SignalConnection
	user  domain.UserID
	rooms map[domain.RoomKey]struct{}
}

// Registry is the presence table: live connections, the user each one is
// identified as and the rooms it joined. It mirrors room membership so a
// disconnect can be unwound without scanning every room.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry

	identity core.IdentityLookup
	dmu      sync.RWMutex
	displays map[domain.UserID]domain.Display
}

func NewRegistry(identity core.IdentityLookup) *Registry {
	return &Registry{
		conns:    make(map[core.ConnID]*connEntry),
		identity: identity,
		displays: make(map[domain.UserID]domain.Display),
	}
}

// OnConnect records an anonymous connection and returns its id.
func (r *Registry) OnConnect(sig core.SignalConnection) core.ConnID {
	id := core.ConnID(uuid.NewString())
	r.mu.Lock()
	r.conns[id] = &connEntry{sig: sig, rooms: make(map[domain.RoomKey]struct{})}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection registered")
	return id
}

// Identify binds id to user. The last call wins.
func (r *Registry) Identify(id core.ConnID, user domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return core.ErrNotFound
	}
	e.user = user
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(user)).Msg("connection identified")
	return nil
}

func (r *Registry) ResolveConnectionUser(id core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.user == "" {
		return "", false
	}
	return e.user, true
}

// Conn returns the transport of a live connection.
func (r *Registry) Conn(id core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.sig, true
}

// OnDisconnect forgets id and hands back what the caller has to unwind.
func (r *Registry) OnDisconnect(id core.ConnID) (domain.UserID, []domain.RoomKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return "", nil, core.ErrNotFound
	}
	delete(r.conns, id)
	rooms := make([]domain.RoomKey, 0, len(e.rooms))
	for k := range e.rooms {
		rooms = append(rooms, k)
	}
	slices.Sort(rooms)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Int("rooms", len(rooms)).Msg("connection removed")
	return e.user, rooms, nil
}

func (r *Registry) AddRoom(id core.ConnID, key domain.RoomKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return core.ErrNotFound
	}
	e.rooms[key] = struct{}{}
	return nil
}

// RemoveRoom reports whether id was in key.
func (r *Registry) RemoveRoom(id core.ConnID, key domain.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, in := e.rooms[key]; !in {
		return false
	}
	delete(e.rooms, key)
	return true
}

func (r *Registry) Rooms(id core.ConnID) []domain.RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]domain.RoomKey, 0, len(e.rooms))
	for k := range e.rooms {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// OnlineUsers lists the distinct identified users with a connection in key.
func (r *Registry) OnlineUsers(key domain.RoomKey) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.UserID]struct{})
	out := make([]domain.UserID, 0)
	for _, e := range r.conns {
		if e.user == "" {
			continue
		}
		if _, in := e.rooms[key]; !in {
			continue
		}
		if _, dup := seen[e.user]; dup {
			continue
		}
		seen[e.user] = struct{}{}
		out = append(out, e.user)
	}
	slices.Sort(out)
	return out
}

// UserInRoom reports whether any live connection of user is in key.
func (r *Registry) UserInRoom(user domain.UserID, key domain.RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.conns {
		if e.user != user {
			continue
		}
		if _, in := e.rooms[key]; in {
			return true
		}
	}
	return false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers f to a single connection without blocking.
func (r *Registry) Send(id core.ConnID, f core.Frame) error {
	sig, ok := r.Conn(id)
	if !ok {
		return core.ErrNotFound
	}
	return sig.TrySend(f)
}

// Close shuts the transport down. The read loop notices and runs the
// disconnect cascade.
func (r *Registry) Close(id core.ConnID) {
	if sig, ok := r.Conn(id); ok {
		sig.Close()
	}
}

// ResolveDisplay returns the cached profile summary of user, loading it on
// first use. Entries live as long as the process.
func (r *Registry) ResolveDisplay(ctx context.Context, user domain.UserID) (domain.Display, error) {
	r.dmu.RLock()
	d, ok := r.displays[user]
	r.dmu.RUnlock()
	if ok {
		return d, nil
	}
	if r.identity == nil {
		return domain.Display{Name: string(user), Username: string(user), Avatar: domain.AvatarFor(string(user), "")}, nil
	}
	d, err := r.identity.GetDisplay(ctx, user)
	if errors.Is(err, core.ErrNotFound) {
		return domain.Display{}, err
	}
	if err != nil {
		return domain.Display{}, core.Transient("get display", err)
	}
	d.Avatar = domain.AvatarFor(d.Name, d.Avatar)
	r.dmu.Lock()
	r.displays[user] = d
	r.dmu.Unlock()
	return d, nil
}
