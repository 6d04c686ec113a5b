// Package orch glues the presence registry, rooms, calls and the message
// pipeline into the operations a connection can trigger.
package orch

import (
	"context"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Stores bundles the collaborators. Presence and Notify may be nil.
type Stores struct {
	Identity core.IdentityLookup
	Channels core.ChannelStore
	Messages core.MessageStore
	Reads    core.ReadStateStore
	Cipher   core.Cipher
	Notify   core.NotificationSink
	Presence core.PresenceMirror
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Out      *app.Publisher
	Calls    *app.CallCoordinator
	Pipeline *app.Pipeline
	Reads    *app.ReadTracker
	Channels core.ChannelStore
	Gate     app.Gate
	Presence core.PresenceMirror
}

func New(s Stores, policy app.Policy) *Orchestrator {
	reg := app.NewRegistry(s.Identity)
	rooms := app.NewRoomManager()
	out := &app.Publisher{Rooms: rooms, Policy: policy, Conns: reg}
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Out:      out,
		Calls:    app.NewCallCoordinator(reg),
		Pipeline: &app.Pipeline{
			Channels: s.Channels,
			Messages: s.Messages,
			Identity: s.Identity,
			Cipher:   s.Cipher,
			Notify:   s.Notify,
			Out:      out,
		},
		Reads: &app.ReadTracker{
			States:   s.Reads,
			Messages: s.Messages,
			Cipher:   s.Cipher,
			Displays: reg,
		},
		Channels: s.Channels,
		Gate:     app.Gate{Identity: s.Identity},
		Presence: s.Presence,
	}
}

// Connect registers a fresh anonymous connection.
func (o *Orchestrator) Connect(sig core.SignalConnection) core.ConnID {
	return o.Registry.OnConnect(sig)
}

type identifiedPayload struct {
	ConnID  core.ConnID    `json:"connectionId"`
	UserID  domain.UserID  `json:"userId"`
	Display domain.Display `json:"display"`
}

// Identify binds the connection to user and acknowledges with the cached
// display summary.
func (o *Orchestrator) Identify(ctx context.Context, id core.ConnID, user domain.UserID) error {
	if user == "" {
		return core.BadRequest("userId required")
	}
	if err := o.Registry.Identify(id, user); err != nil {
		return err
	}
	d := o.display(ctx, user)
	o.Send(id, core.EventIdentified, identifiedPayload{ConnID: id, UserID: user, Display: d})
	return nil
}

// Disconnect unwinds everything the connection was part of. It is safe to
// call more than once.
func (o *Orchestrator) Disconnect(ctx context.Context, id core.ConnID) {
	user, rooms, err := o.Registry.OnDisconnect(id)
	if err != nil {
		return
	}
	for _, st := range o.Calls.LeaveAll(id) {
		o.announceVoiceState(st)
	}
	for _, key := range rooms {
		if !o.Rooms.Remove(key, id) {
			continue
		}
		if ch, ok := key.Channel(); ok {
			o.Out.Publish(key, "", core.EventMemberLeft, memberLeftPayload{ChannelID: ch, UserID: user, ConnID: id})
			o.markOffline(ctx, ch, user)
		}
	}
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("user", string(user)).Int("rooms", len(rooms)).Msg("disconnected")
}

// EvictRoom removes every member from key and forgets the room.
func (o *Orchestrator) EvictRoom(ctx context.Context, key domain.RoomKey) {
	room, ok := o.Rooms.Get(key)
	if !ok {
		return
	}
	for _, m := range room.MembersSnapshot() {
		if ch, isChannel := key.Channel(); isChannel {
			_ = o.Leave(ctx, m.ConnID, ch)
			continue
		}
		o.Registry.RemoveRoom(m.ConnID, key)
		o.Rooms.Remove(key, m.ConnID)
	}
	o.Rooms.StopRoom(key)
}

// Send delivers one event to one connection. Failures are only logged.
func (o *Orchestrator) Send(id core.ConnID, event string, data any) {
	f, err := core.Encode(event, data)
	if err != nil {
		log.Error().Str("module", "orch").Str("event", event).Err(err).Msg("encode failed")
		return
	}
	if err := o.Registry.Send(id, f); err != nil {
		log.Debug().Str("module", "orch").Str("event", event).Str("conn", string(id)).Err(err).Msg("send dropped")
	}
}

type nackPayload struct {
	Event     string           `json:"event"`
	Reason    string           `json:"reason"`
	ChannelID domain.ChannelID `json:"channelId,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// Nack tells the calling connection that event failed. It never reaches
// anybody else.
func (o *Orchestrator) Nack(id core.ConnID, event string, channel domain.ChannelID, err error) {
	reason := core.Reason(err)
	l := log.Info()
	if reason == "transient" || reason == "internal" {
		l = log.Warn()
	}
	l.Str("module", "orch").Str("conn", string(id)).Str("event", event).Str("reason", reason).Err(err).Msg("request rejected")
	o.Send(id, core.EventNack, nackPayload{Event: event, Reason: reason, ChannelID: channel, Message: err.Error()})
}

// user returns the identity of a connection or Forbidden when it is anonymous.
func (o *Orchestrator) user(id core.ConnID) (domain.UserID, error) {
	u, ok := o.Registry.ResolveConnectionUser(id)
	if !ok {
		return "", core.ErrForbidden
	}
	return u, nil
}

// display never fails: a lookup error degrades to the raw user id.
func (o *Orchestrator) display(ctx context.Context, user domain.UserID) domain.Display {
	if user == "" {
		return domain.Display{Name: "Guest", Avatar: "G"}
	}
	d, err := o.Registry.ResolveDisplay(ctx, user)
	if err != nil {
		log.Warn().Str("module", "orch").Str("user", string(user)).Err(err).Msg("display lookup failed")
		return domain.Display{Name: string(user), Username: string(user), Avatar: domain.AvatarFor(string(user), "")}
	}
	return d
}

func (o *Orchestrator) markOnline(ctx context.Context, ch domain.ChannelID, user domain.UserID) {
	if o.Presence == nil || user == "" {
		return
	}
	if err := o.Presence.MarkOnline(ctx, ch, user); err != nil {
		log.Warn().Str("module", "orch").Str("channel", string(ch)).Err(err).Msg("presence mirror update failed")
	}
}

// markOffline only fires once the user has no connection left in ch.
func (o *Orchestrator) markOffline(ctx context.Context, ch domain.ChannelID, user domain.UserID) {
	if o.Presence == nil || user == "" || o.Registry.UserInRoom(user, domain.ChannelRoom(ch)) {
		return
	}
	if err := o.Presence.MarkOffline(ctx, ch, user); err != nil {
		log.Warn().Str("module", "orch").Str("channel", string(ch)).Err(err).Msg("presence mirror update failed")
	}
}

// Stats is a point-in-time summary for the health endpoint.
type Stats struct {
	Connections int             `json:"connections"`
	Rooms       []core.RoomInfo `json:"rooms"`
	Calls       int             `json:"calls"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Connections: o.Registry.Count(),
		Rooms:       o.Rooms.List(),
		Calls:       len(o.Calls.ActiveCalls()),
	}
}
