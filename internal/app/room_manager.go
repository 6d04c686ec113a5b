package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl owns the live fan-out sets. Rooms are created on first
// join and released when the last member leaves.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]core.RoomService
}

func NewRoomManager() core.RoomManager {
	return &RoomManagerImpl{rooms: make(map[domain.RoomKey]core.RoomService)}
}

func (f *RoomManagerImpl) Get(key domain.RoomKey) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[key]
	return room, ok
}

func (f *RoomManagerImpl) getOrCreate(key domain.RoomKey) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[key]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[key]; ok {
		return room
	}
	room = core.NewRoomService(key)
	f.rooms[key] = room
	log.Debug().Str("module", "app.rooms").Str("room", string(key)).Msg("room created")
	return room
}

// Add reports whether id was newly added to key.
func (f *RoomManagerImpl) Add(key domain.RoomKey, id core.ConnID, user domain.UserID, sig core.SignalConnection) bool {
	for {
		room := f.getOrCreate(key)
		added, err := room.AddMember(id, user, sig)
		if errors.Is(err, core.ErrRoomClosed) {
			// lost a race with the release of an emptied room
			continue
		}
		return added
	}
}

// Remove reports whether id was a member of key.
func (f *RoomManagerImpl) Remove(key domain.RoomKey, id core.ConnID) bool {
	room, ok := f.Get(key)
	if !ok {
		return false
	}
	removed := room.RemoveMember(id)
	if room.MemberCount() == 0 {
		f.mu.Lock()
		if f.rooms[key] == room && core.ReleaseIfEmpty(room) {
			delete(f.rooms, key)
			log.Debug().Str("module", "app.rooms").Str("room", string(key)).Msg("room released")
		}
		f.mu.Unlock()
	}
	return removed
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for key, r := range f.rooms {
		out = append(out, core.RoomInfo{Key: key, MemberCount: r.MemberCount()})
	}
	return out
}

// StopRoom forgets the room. Members keep their transports.
func (f *RoomManagerImpl) StopRoom(key domain.RoomKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, key)
}
