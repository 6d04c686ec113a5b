package orch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type memberView struct {
	ID     domain.UserID `json:"id,omitempty"`
	ConnID core.ConnID   `json:"connectionId"`
	Name   string        `json:"name"`
	Avatar string        `json:"avatar"`
	Role   domain.Role   `json:"role"`
}

type memberJoinedPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Member    memberView       `json:"member"`
}

type memberLeftPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId,omitempty"`
	ConnID    core.ConnID      `json:"connectionId"`
}

type joinedPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Online    []domain.UserID  `json:"online"`
}

type channelPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

type serverJoinedPayload struct {
	ServerID domain.ServerID     `json:"serverId"`
	Calls    []voiceStatePayload `json:"calls"`
}

type serverPayload struct {
	ServerID domain.ServerID `json:"serverId"`
}

type typingPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
	Username  string           `json:"username"`
}

type whiteboardPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	From      core.ConnID      `json:"fromConnectionId"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

type readUpdatePayload struct {
	ChannelID  domain.ChannelID `json:"channelId"`
	UserID     domain.UserID    `json:"userId"`
	LastReadAt time.Time        `json:"lastReadAt"`
}

// JoinResult describes a successful channel join.
type JoinResult struct {
	ChannelID domain.ChannelID
	Added     bool
	Role      domain.Role
}

// Join subscribes the connection to a channel room after the permission
// check. Anonymous connections are judged as plain members.
func (o *Orchestrator) Join(ctx context.Context, id core.ConnID, channel domain.ChannelID) (JoinResult, error) {
	if channel == "" {
		return JoinResult{}, core.BadRequest("channelId required")
	}
	sig, ok := o.Registry.Conn(id)
	if !ok {
		return JoinResult{}, core.ErrNotFound
	}
	ch, err := app.LoadChannel(ctx, o.Channels, channel)
	if err != nil {
		return JoinResult{}, err
	}
	user, _ := o.Registry.ResolveConnectionUser(id)
	role := domain.RoleMember
	if user != "" {
		role, _, err = o.Gate.Role(ctx, ch, user)
		if err != nil {
			return JoinResult{}, err
		}
	}
	if !app.CanAccessChannel(ch, user, role) {
		return JoinResult{}, core.ErrForbidden
	}

	key := domain.ChannelRoom(ch.ID)
	added := o.Rooms.Add(key, id, user, sig)
	if err := o.Registry.AddRoom(id, key); err != nil {
		// the connection went away while joining
		o.Rooms.Remove(key, id)
		return JoinResult{}, err
	}

	d := o.display(ctx, user)
	if user != "" {
		member := domain.ChannelMember{ID: user, Name: d.Name, Avatar: d.Avatar, Role: role}
		if err := o.Channels.AddChannelMember(ctx, ch.ID, member); err != nil {
			log.Warn().Str("module", "orch").Str("channel", string(ch.ID)).Str("user", string(user)).Err(err).Msg("channel member not persisted")
		}
		o.markOnline(ctx, ch.ID, user)
	}
	if added {
		o.Out.Publish(key, "", core.EventMemberJoined, memberJoinedPayload{
			ChannelID: ch.ID,
			Member:    memberView{ID: user, ConnID: id, Name: d.Name, Avatar: d.Avatar, Role: role},
		})
	}
	o.Send(id, core.EventJoined, joinedPayload{ChannelID: ch.ID, Online: o.Registry.OnlineUsers(key)})
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("channel", string(ch.ID)).Bool("added", added).Msg("joined channel")
	return JoinResult{ChannelID: ch.ID, Added: added, Role: role}, nil
}

// Leave is idempotent. memberLeft goes out only when the connection was in
// the room.
func (o *Orchestrator) Leave(ctx context.Context, id core.ConnID, channel domain.ChannelID) error {
	if channel == "" {
		return core.BadRequest("channelId required")
	}
	key := domain.ChannelRoom(channel)
	mirrored := o.Registry.RemoveRoom(id, key)
	removed := o.Rooms.Remove(key, id)
	if removed || mirrored {
		user, _ := o.Registry.ResolveConnectionUser(id)
		o.Out.Publish(key, "", core.EventMemberLeft, memberLeftPayload{ChannelID: channel, UserID: user, ConnID: id})
		o.markOffline(ctx, channel, user)
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("channel", string(channel)).Msg("left channel")
	}
	o.Send(id, core.EventLeft, channelPayload{ChannelID: channel})
	return nil
}

// JoinServer subscribes an identified member of server to its server-wide
// room and replies with the calls currently running there.
func (o *Orchestrator) JoinServer(ctx context.Context, id core.ConnID, server domain.ServerID) error {
	if server == "" {
		return core.BadRequest("serverId required")
	}
	sig, ok := o.Registry.Conn(id)
	if !ok {
		return core.ErrNotFound
	}
	user, err := o.user(id)
	if err != nil {
		return err
	}
	if o.Gate.Identity != nil {
		_, member, err := o.Gate.Identity.GetRole(ctx, server, user)
		if err != nil {
			return core.Transient("get role", err)
		}
		if !member {
			return core.ErrForbidden
		}
	}
	key := domain.ServerRoom(server)
	o.Rooms.Add(key, id, user, sig)
	if err := o.Registry.AddRoom(id, key); err != nil {
		o.Rooms.Remove(key, id)
		return err
	}
	calls := o.Calls.ServerCalls(server)
	states := make([]voiceStatePayload, 0, len(calls))
	for _, st := range calls {
		states = append(states, voiceStatePayload{ServerID: server, ChannelID: st.ChannelID, Participants: st.Participants})
	}
	o.Send(id, core.EventServerJoined, serverJoinedPayload{ServerID: server, Calls: states})
	return nil
}

func (o *Orchestrator) LeaveServer(id core.ConnID, server domain.ServerID) error {
	if server == "" {
		return core.BadRequest("serverId required")
	}
	key := domain.ServerRoom(server)
	o.Registry.RemoveRoom(id, key)
	o.Rooms.Remove(key, id)
	o.Send(id, core.EventServerLeft, serverPayload{ServerID: server})
	return nil
}

// requireMember fails unless the connection is subscribed to channel.
func (o *Orchestrator) requireMember(id core.ConnID, channel domain.ChannelID) error {
	if channel == "" {
		return core.BadRequest("channelId required")
	}
	room, ok := o.Rooms.Get(domain.ChannelRoom(channel))
	if !ok || !room.Has(id) {
		return core.ErrForbidden
	}
	return nil
}

// Typing relays typing indicators to the rest of the channel.
func (o *Orchestrator) Typing(ctx context.Context, id core.ConnID, channel domain.ChannelID, start bool) error {
	user, err := o.user(id)
	if err != nil {
		return err
	}
	if err := o.requireMember(id, channel); err != nil {
		return err
	}
	event := core.EventTypingStop
	if start {
		event = core.EventTypingStart
	}
	d := o.display(ctx, user)
	o.Out.Publish(domain.ChannelRoom(channel), id, event, typingPayload{ChannelID: channel, UserID: user, Username: d.Username})
	return nil
}

// Whiteboard relays a draw or clear event verbatim to the rest of the channel.
func (o *Orchestrator) Whiteboard(id core.ConnID, channel domain.ChannelID, event string, payload json.RawMessage) error {
	if event != core.EventWhiteboardDraw && event != core.EventWhiteboardClear {
		return core.BadRequest("unknown whiteboard event " + event)
	}
	if err := o.requireMember(id, channel); err != nil {
		return err
	}
	o.Out.Publish(domain.ChannelRoom(channel), id, event, whiteboardPayload{ChannelID: channel, From: id, Payload: payload})
	return nil
}

// MarkRead records the watermark for the connection's user and tells the
// rest of the channel.
func (o *Orchestrator) MarkRead(ctx context.Context, id core.ConnID, channel domain.ChannelID, at *time.Time) (time.Time, error) {
	user, err := o.user(id)
	if err != nil {
		return time.Time{}, err
	}
	return o.MarkReadAs(ctx, user, channel, at, id)
}

// MarkReadAs is MarkRead for callers that already know the user. The user
// must be able to see the channel. origin is skipped by the broadcast and
// may be empty.
func (o *Orchestrator) MarkReadAs(ctx context.Context, user domain.UserID, channel domain.ChannelID, at *time.Time, origin core.ConnID) (time.Time, error) {
	if user == "" {
		return time.Time{}, core.ErrForbidden
	}
	ch, err := app.LoadChannel(ctx, o.Channels, channel)
	if err != nil {
		return time.Time{}, err
	}
	if _, err := o.Gate.Access(ctx, ch, user); err != nil {
		return time.Time{}, err
	}
	ts, err := o.Reads.MarkRead(ctx, user, ch.ID, at)
	if err != nil {
		return time.Time{}, err
	}
	o.Out.Publish(domain.ChannelRoom(channel), origin, core.EventUserReadUpdate, readUpdatePayload{ChannelID: channel, UserID: user, LastReadAt: ts})
	return ts, nil
}
