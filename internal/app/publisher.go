package app

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Closer shuts a connection down.
type Closer interface {
	Close(id core.ConnID)
}

// Publisher encodes an event once and fans it out to a room, applying the
// backpressure policy to members whose queue was full.
type Publisher struct {
	Rooms  core.RoomManager
	Policy Policy
	Conns  Closer
}

func (p *Publisher) Publish(key domain.RoomKey, exclude core.ConnID, event string, data any) core.PublishResult {
	room, ok := p.Rooms.Get(key)
	if !ok {
		return core.PublishResult{}
	}
	f, err := core.Encode(event, data)
	if err != nil {
		log.Error().Str("module", "app.publisher").Str("event", event).Err(err).Msg("encode failed")
		return core.PublishResult{}
	}
	res := room.Broadcast(exclude, f)
	if p.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch p.Policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "app.publisher").Str("room", string(key)).Str("conn", string(slow)).Msg("kicking slow consumer")
			if p.Conns != nil {
				p.Conns.Close(slow)
			}
		case DropFrame, NoAction:
		}
	}
	return res
}
