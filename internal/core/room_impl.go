package core

import (
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomMember struct {
	user domain.UserID
	sig  SignalConnection
}

// roomImpl is a threadsafe in-memory fan-out set.
// It never closes adapter-owned resources.
//
// fanout serialises whole broadcasts so two events for the same room reach
// every member queue in submission order.
type roomImpl struct {
	key    domain.RoomKey
	mu     sync.RWMutex
	fanout sync.Mutex
	closed bool
	byConn map[ConnID]roomMember
}

func NewRoomService(key domain.RoomKey) RoomService {
	return &roomImpl{
		key:    key,
		byConn: make(map[ConnID]roomMember),
	}
}

func (r *roomImpl) Key() domain.RoomKey { return r.key }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) Has(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[id]
	return ok
}

func (r *roomImpl) AddMember(id ConnID, user domain.UserID, sig SignalConnection) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrRoomClosed
	}
	_, existed := r.byConn[id]
	r.byConn[id] = roomMember{user: user, sig: sig}
	if !existed {
		log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("conn", string(id)).Str("user", string(user)).Msg("member added")
	}
	return !existed, nil
}

func (r *roomImpl) RemoveMember(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[id]; !ok {
		return false
	}
	delete(r.byConn, id)
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("conn", string(id)).Msg("member removed")
	return true
}

// close marks an empty room as released. Later adds must go to a fresh room.
func (r *roomImpl) close() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byConn) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *roomImpl) Broadcast(exclude ConnID, data Frame) PublishResult {
	r.fanout.Lock()
	defer r.fanout.Unlock()

	r.mu.RLock()
	members := make(map[ConnID]SignalConnection, len(r.byConn))
	for id, m := range r.byConn {
		members[id] = m.sig
	}
	r.mu.RUnlock()

	res := PublishResult{}
	for id, sig := range members {
		if id == exclude {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.key)).Str("exclude", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.byConn))
	for id, m := range r.byConn {
		out = append(out, MemberDTO{ConnID: id, UserID: m.user})
	}
	return out
}

// ReleaseIfEmpty closes room when it has no members left.
// Rooms not created by NewRoomService are never released.
func ReleaseIfEmpty(room RoomService) bool {
	r, ok := room.(*roomImpl)
	if !ok {
		return false
	}
	return r.close()
}
