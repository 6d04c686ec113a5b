package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type voiceStatePayload struct {
	ServerID     domain.ServerID    `json:"serverId"`
	ChannelID    domain.ChannelID   `json:"channelId"`
	Participants []core.Participant `json:"participants"`
}

// CallJoin puts the connection into the call of channel. The server-wide
// room hears about it when the channel belongs to a server. A client-sent
// server must match the channel's; direct calls are never announced.
func (o *Orchestrator) CallJoin(ctx context.Context, id core.ConnID, channel domain.ChannelID, displayName string, server domain.ServerID) ([]core.ConnID, error) {
	if channel == "" {
		return nil, core.BadRequest("channelId required")
	}
	if _, ok := o.Registry.Conn(id); !ok {
		return nil, core.ErrNotFound
	}
	ch, err := app.LoadChannel(ctx, o.Channels, channel)
	if err != nil {
		return nil, err
	}
	user, _ := o.Registry.ResolveConnectionUser(id)
	role := domain.RoleMember
	if user != "" {
		if role, _, err = o.Gate.Role(ctx, ch, user); err != nil {
			return nil, err
		}
	}
	if !app.CanAccessChannel(ch, user, role) {
		return nil, core.ErrForbidden
	}
	// the roster is announced to the channel's own server only
	owner := ch.ServerID
	if ch.IsDirect() {
		owner = ""
	}
	if server != "" && server != owner {
		return nil, core.BadRequest("serverId does not match the channel")
	}
	server = owner
	name, err := domain.NormalizeDisplayName(displayName)
	if errors.Is(err, domain.ErrDisplayNameTooLong) {
		return nil, core.BadRequest(err.Error())
	}
	if err != nil {
		name = o.display(ctx, user).Name
	}

	existing, st, err := o.Calls.Join(ch.ID, server, id, user, name)
	if err != nil {
		return nil, err
	}
	o.announceVoiceState(st)
	return existing, nil
}

func (o *Orchestrator) CallLeave(id core.ConnID, channel domain.ChannelID) error {
	if channel == "" {
		return core.BadRequest("channelId required")
	}
	if st, ok := o.Calls.Leave(id, channel); ok {
		o.announceVoiceState(st)
	}
	return nil
}

// Relay forwards a negotiation payload. Unknown targets are dropped.
func (o *Orchestrator) Relay(kind string, from, target core.ConnID, channel domain.ChannelID, payload json.RawMessage) error {
	return o.Calls.Relay(kind, from, target, channel, payload)
}

func (o *Orchestrator) ScreenShare(id core.ConnID, channel domain.ChannelID, on bool) error {
	if channel == "" {
		return core.BadRequest("channelId required")
	}
	o.Calls.SetScreenSharing(id, channel, on)
	return nil
}

func (o *Orchestrator) announceVoiceState(st app.CallState) {
	if st.ServerID == "" {
		return
	}
	participants := st.Participants
	if participants == nil {
		participants = []core.Participant{}
	}
	o.Out.Publish(domain.ServerRoom(st.ServerID), "", core.EventVoiceState, voiceStatePayload{
		ServerID: st.ServerID, ChannelID: st.ChannelID, Participants: participants,
	})
}
