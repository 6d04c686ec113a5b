package app

import "github.com/dkeye/Huddle/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send queue was full
// during a broadcast.
type Policy interface {
	OnBackPressure(room core.RoomService, conn core.ConnID) BackpressureAction
}

// SimplePolicy kicks slow consumers. A client that cannot keep up has
// already lost frames and has to rejoin to resync.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.RoomService, core.ConnID) BackpressureAction {
	return KickMember
}

// LenientPolicy drops the frame and keeps the member.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(core.RoomService, core.ConnID) BackpressureAction {
	return DropFrame
}

// PolicyByName maps the config value to a policy. Unknown names kick.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return LenientPolicy{}
	}
	return SimplePolicy{}
}
