package core

import (
	"errors"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrRoomClosed = errors.New("room closed")

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ConnID ConnID        `json:"connectionId"`
	UserID domain.UserID `json:"userId,omitempty"`
}

// RoomService is the core-facing API of a fan-out set.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Key() domain.RoomKey
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Has(id ConnID) bool

	// AddMember reports whether the connection was newly added.
	// It fails with ErrRoomClosed once the room has been released.
	AddMember(id ConnID, user domain.UserID, sig SignalConnection) (bool, error)
	RemoveMember(id ConnID) bool
	Broadcast(exclude ConnID, data Frame) PublishResult
}

type RoomInfo struct {
	Key         domain.RoomKey `json:"key"`
	MemberCount int            `json:"member_count"`
}

type RoomManager interface {
	Get(key domain.RoomKey) (RoomService, bool)
	Add(key domain.RoomKey, id ConnID, user domain.UserID, sig SignalConnection) bool
	Remove(key domain.RoomKey, id ConnID) bool
	List() []RoomInfo
	StopRoom(key domain.RoomKey)
}
