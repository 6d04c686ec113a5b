package app

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// callSession exists only while it has at least one participant.
type callSession struct {
	server       domain.ServerID
	order        []core.ConnID
	participants map[core.ConnID]*core.Participant
}

func (s *callSession) roster() []core.Participant {
	out := make([]core.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.participants[id])
	}
	return out
}

func (s *callSession) remove(id core.ConnID) {
	delete(s.participants, id)
	s.order = slices.DeleteFunc(s.order, func(c core.ConnID) bool { return c == id })
}

// CallCoordinator tracks voice/video rosters per channel and relays
// negotiation payloads between two connections. It never looks inside them.
type CallCoordinator struct {
	mu       sync.Mutex
	sessions map[domain.ChannelID]*callSession
	byConn   map[core.ConnID]map[domain.ChannelID]struct{}
	out      core.Sender
}

func NewCallCoordinator(out core.Sender) *CallCoordinator {
	return &CallCoordinator{
		sessions: make(map[domain.ChannelID]*callSession),
		byConn:   make(map[core.ConnID]map[domain.ChannelID]struct{}),
		out:      out,
	}
}

// CallState is a roster change the caller may want to announce further.
type CallState struct {
	ChannelID    domain.ChannelID
	ServerID     domain.ServerID
	Participants []core.Participant
}

type userJoinedPayload struct {
	ChannelID    domain.ChannelID   `json:"channelId"`
	ConnID       core.ConnID        `json:"connectionId"`
	UserID       domain.UserID      `json:"userId,omitempty"`
	DisplayName  string             `json:"displayName"`
	Participants []core.Participant `json:"participants"`
}

type userLeftPayload struct {
	ChannelID    domain.ChannelID   `json:"channelId"`
	ConnID       core.ConnID        `json:"connectionId"`
	Participants []core.Participant `json:"participants"`
}

type callParticipantsPayload struct {
	ChannelID    domain.ChannelID   `json:"channelId"`
	Participants []core.ConnID      `json:"participants"`
	Roster       []core.Participant `json:"roster"`
}

type screenSharePayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	ConnID    core.ConnID      `json:"connectionId"`
}

type relayPayload struct {
	From      core.ConnID      `json:"fromConnectionId"`
	ChannelID domain.ChannelID `json:"channelId"`
	Payload   json.RawMessage  `json:"payload"`
}

// Join adds conn to the call in channel and announces it. It returns the
// connection ids that were already in the call.
func (c *CallCoordinator) Join(channel domain.ChannelID, server domain.ServerID, conn core.ConnID, user domain.UserID, displayName string) ([]core.ConnID, CallState, error) {
	if channel == "" {
		return nil, CallState{}, core.BadRequest("channelId required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[channel]
	if !ok {
		s = &callSession{server: server, participants: make(map[core.ConnID]*core.Participant)}
		c.sessions[channel] = s
		log.Info().Str("module", "app.calls").Str("channel", string(channel)).Msg("call started")
	}

	existing := make([]core.ConnID, 0, len(s.order))
	for _, id := range s.order {
		if id != conn {
			existing = append(existing, id)
		}
	}

	p, rejoin := s.participants[conn]
	if rejoin {
		p.DisplayName = displayName
		p.UserID = user
	} else {
		s.participants[conn] = &core.Participant{ConnID: conn, UserID: user, DisplayName: displayName}
		s.order = append(s.order, conn)
		if c.byConn[conn] == nil {
			c.byConn[conn] = make(map[domain.ChannelID]struct{})
		}
		c.byConn[conn][channel] = struct{}{}
	}
	roster := s.roster()

	if !rejoin {
		joined := userJoinedPayload{ChannelID: channel, ConnID: conn, UserID: user, DisplayName: displayName, Participants: roster}
		for _, id := range existing {
			c.send(id, core.EventUserJoined, joined)
		}
	}
	c.send(conn, core.EventCallParticipants, callParticipantsPayload{ChannelID: channel, Participants: existing, Roster: roster})

	log.Info().Str("module", "app.calls").Str("channel", string(channel)).Str("conn", string(conn)).Int("participants", len(roster)).Msg("call joined")
	return existing, CallState{ChannelID: channel, ServerID: s.server, Participants: roster}, nil
}

// Leave removes conn from the call in channel. ok is false when conn was not
// a participant.
func (c *CallCoordinator) Leave(conn core.ConnID, channel domain.ChannelID) (CallState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaveLocked(conn, channel)
}

// LeaveAll drops conn from every call it is in.
func (c *CallCoordinator) LeaveAll(conn core.ConnID) []CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	channels := make([]domain.ChannelID, 0, len(c.byConn[conn]))
	for ch := range c.byConn[conn] {
		channels = append(channels, ch)
	}
	slices.Sort(channels)
	out := make([]CallState, 0, len(channels))
	for _, ch := range channels {
		if st, ok := c.leaveLocked(conn, ch); ok {
			out = append(out, st)
		}
	}
	return out
}

func (c *CallCoordinator) leaveLocked(conn core.ConnID, channel domain.ChannelID) (CallState, bool) {
	s, ok := c.sessions[channel]
	if !ok {
		return CallState{}, false
	}
	if _, in := s.participants[conn]; !in {
		return CallState{}, false
	}
	s.remove(conn)
	if chans := c.byConn[conn]; chans != nil {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(c.byConn, conn)
		}
	}

	roster := s.roster()
	left := userLeftPayload{ChannelID: channel, ConnID: conn, Participants: roster}
	for _, id := range s.order {
		c.send(id, core.EventUserLeft, left)
	}
	if len(s.participants) == 0 {
		delete(c.sessions, channel)
		log.Info().Str("module", "app.calls").Str("channel", string(channel)).Msg("call ended")
	}
	log.Info().Str("module", "app.calls").Str("channel", string(channel)).Str("conn", string(conn)).Int("participants", len(roster)).Msg("call left")
	return CallState{ChannelID: channel, ServerID: s.server, Participants: roster}, true
}

// SetScreenSharing flips the flag of a participant and tells the rest of the
// call. Non-participants are ignored.
func (c *CallCoordinator) SetScreenSharing(conn core.ConnID, channel domain.ChannelID, on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[channel]
	if !ok {
		return false
	}
	p, ok := s.participants[conn]
	if !ok {
		return false
	}
	p.ScreenSharing = on
	event := core.EventScreenShareOff
	if on {
		event = core.EventScreenShareOn
	}
	for _, id := range s.order {
		if id != conn {
			c.send(id, event, screenSharePayload{ChannelID: channel, ConnID: conn})
		}
	}
	return true
}

// Relay forwards an offer, answer or ICE candidate to target verbatim.
// A target that is gone is dropped silently.
func (c *CallCoordinator) Relay(kind string, from, target core.ConnID, channel domain.ChannelID, payload json.RawMessage) error {
	switch kind {
	case core.EventOffer, core.EventAnswer, core.EventIceCandidate:
	default:
		return core.BadRequest("unknown relay kind " + kind)
	}
	if target == "" {
		return core.BadRequest("target required")
	}
	f, err := core.Encode(kind, relayPayload{From: from, ChannelID: channel, Payload: payload})
	if err != nil {
		return err
	}
	if err := c.out.Send(target, f); err != nil {
		log.Debug().Str("module", "app.calls").Str("kind", kind).Str("target", string(target)).Err(err).Msg("relay dropped")
	}
	return nil
}

// Participants reports false when there is no call in channel.
func (c *CallCoordinator) Participants(channel domain.ChannelID) ([]core.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[channel]
	if !ok {
		return nil, false
	}
	return s.roster(), true
}

// ServerCalls returns the rosters of every call announced to server.
func (c *CallCoordinator) ServerCalls(server domain.ServerID) []CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CallState, 0)
	for ch, s := range c.sessions {
		if s.server == server {
			out = append(out, CallState{ChannelID: ch, ServerID: server, Participants: s.roster()})
		}
	}
	slices.SortFunc(out, func(a, b CallState) int { return strings.Compare(string(a.ChannelID), string(b.ChannelID)) })
	return out
}

// ActiveCalls lists channels that currently have a call.
func (c *CallCoordinator) ActiveCalls() []domain.ChannelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChannelID, 0, len(c.sessions))
	for ch := range c.sessions {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

func (c *CallCoordinator) send(id core.ConnID, event string, data any) {
	f, err := core.Encode(event, data)
	if err != nil {
		log.Error().Str("module", "app.calls").Str("event", event).Err(err).Msg("encode failed")
		return
	}
	if err := c.out.Send(id, f); err != nil {
		log.Debug().Str("module", "app.calls").Str("event", event).Str("conn", string(id)).Err(err).Msg("send dropped")
	}
}
