package orch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestJoinLeaveSymmetry(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	watcher, cw := f.connect(t, "u-bob")
	f.join(t, watcher, "general")
	id, c := f.connect(t, "u-alice")
	f.join(t, id, "general")

	if !c.has(core.EventJoined) || !c.has(core.EventMemberJoined) {
		t.Fatalf("joiner got %v", c.types())
	}
	var joined joinedPayload
	c.last(t, core.EventJoined, &joined)
	if len(joined.Online) != 2 {
		t.Fatalf("online = %v", joined.Online)
	}
	if cw.count(core.EventJoined) != 1 {
		t.Fatal("joined ack leaked to another connection")
	}

	if err := f.o.Leave(ctx, id, "general"); err != nil {
		t.Fatal(err)
	}
	c.reset()
	f.o.Out.Publish(domain.ChannelRoom("general"), "", core.EventMessage, map[string]string{"x": "1"})
	if c.has(core.EventMessage) {
		t.Fatal("left connection still receives broadcasts")
	}

	if err := f.o.Leave(ctx, id, "general"); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	if n := cw.count(core.EventMemberLeft); n != 1 {
		t.Fatalf("memberLeft seen %d times, want 1", n)
	}
	if !c.has(core.EventLeft) {
		t.Fatal("left ack missing")
	}
}

func TestJoinGate(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	alice, _ := f.connect(t, "u-alice")
	admin, _ := f.connect(t, "u-admin")
	anon, _ := f.connect(t, "")

	tests := []struct {
		name    string
		id      core.ConnID
		channel domain.ChannelID
		want    error
	}{
		{"missing channel id", alice, "", core.ErrBadRequest},
		{"unknown channel", alice, "nope", core.ErrNotFound},
		{"unknown connection", "ghost", "general", core.ErrNotFound},
		{"member in private channel", alice, "staff", core.ErrForbidden},
		{"anonymous in private channel", anon, "staff", core.ErrForbidden},
		{"admin bypass", admin, "staff", nil},
		{"anonymous in public channel", anon, "general", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.o.Join(ctx, tc.id, tc.channel)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected err %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if room, ok := f.o.Rooms.Get("staff"); !ok || room.Has(alice) {
		t.Fatal("rejected join changed membership")
	}
}

func TestJoinPersistsMemberOnce(t *testing.T) {
	f := newFixture(t)
	id, c := f.connect(t, "u-alice")
	f.join(t, id, "general")
	f.join(t, id, "general")
	second, _ := f.connect(t, "u-alice")
	f.join(t, second, "general")

	ch, _ := f.store.GetChannel(t.Context(), "general")
	if len(ch.Members) != 1 || ch.Members[0].Name != "Alice" {
		t.Fatalf("members = %+v", ch.Members)
	}
	if n := c.count(core.EventMemberJoined); n != 2 {
		t.Fatalf("memberJoined = %d, want one per new connection", n)
	}
	if got := f.store.Online("general"); len(got) != 1 || got[0] != "u-alice" {
		t.Fatalf("presence mirror = %v", got)
	}
}

func TestDisconnectCascade(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	obs, co := f.connect(t, "u-bob")
	f.join(t, obs, "general")
	f.join(t, obs, "voice")
	if err := f.o.JoinServer(ctx, obs, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.o.CallJoin(ctx, obs, "voice", "Bob", ""); err != nil {
		t.Fatal(err)
	}

	id, _ := f.connect(t, "u-alice")
	f.join(t, id, "general")
	f.join(t, id, "voice")
	if _, err := f.o.CallJoin(ctx, id, "voice", "", ""); err != nil {
		t.Fatal(err)
	}
	co.reset()

	f.o.Disconnect(ctx, id)

	if n := co.count(core.EventMemberLeft); n != 2 {
		t.Fatalf("memberLeft = %d, want 2 (%v)", n, co.types())
	}
	var left struct {
		Participants []core.Participant `json:"participants"`
	}
	if !co.last(t, core.EventUserLeft, &left) || len(left.Participants) != 1 {
		t.Fatalf("userLeft = %+v", left)
	}
	var vs voiceStatePayload
	if !co.last(t, core.EventVoiceState, &vs) || vs.ChannelID != "voice" || len(vs.Participants) != 1 {
		t.Fatalf("voiceStateUpdate = %+v", vs)
	}
	if _, _, err := f.o.Registry.OnDisconnect(id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("registry still knows the connection: %v", err)
	}
	if room, _ := f.o.Rooms.Get("general"); room.Has(id) {
		t.Fatal("room still holds the connection")
	}
	if got := f.store.Online("general"); len(got) != 1 || got[0] != "u-bob" {
		t.Fatalf("presence mirror = %v", got)
	}

	co.reset()
	f.o.Disconnect(ctx, id)
	if len(co.events()) != 0 {
		t.Fatal("second disconnect emitted events")
	}

	f.o.Disconnect(ctx, obs)
	if _, ok := f.o.Calls.Participants("voice"); ok {
		t.Fatal("call outlived its last participant")
	}
	if len(f.o.Rooms.List()) != 0 {
		t.Fatalf("rooms left: %+v", f.o.Rooms.List())
	}
}

func TestPresenceMirrorWaitsForLastConnection(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a, _ := f.connect(t, "u-alice")
	b, _ := f.connect(t, "u-alice")
	f.join(t, a, "general")
	f.join(t, b, "general")

	_ = f.o.Leave(ctx, a, "general")
	if len(f.store.Online("general")) != 1 {
		t.Fatal("marked offline while another connection remains")
	}
	f.o.Disconnect(ctx, b)
	if len(f.store.Online("general")) != 0 {
		t.Fatal("still online after the last connection left")
	}
}

func TestCallJoinAnnouncesToServerRoom(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	lurker, cl := f.connect(t, "u-admin")
	if err := f.o.JoinServer(ctx, lurker, "s1"); err != nil {
		t.Fatal(err)
	}
	id, c := f.connect(t, "u-alice")
	existing, err := f.o.CallJoin(ctx, id, "voice", "  Al  ", "s1")
	if err != nil || len(existing) != 0 {
		t.Fatalf("CallJoin = %v, %v", existing, err)
	}
	var vs voiceStatePayload
	if !cl.last(t, core.EventVoiceState, &vs) || vs.ServerID != "s1" || vs.Participants[0].DisplayName != "Al" {
		t.Fatalf("voiceStateUpdate = %+v", vs)
	}
	if !c.has(core.EventCallParticipants) {
		t.Fatal("joiner did not get callParticipants")
	}

	late, cLate := f.connect(t, "u-bob")
	if err := f.o.JoinServer(ctx, late, "s1"); err != nil {
		t.Fatal(err)
	}
	var sj serverJoinedPayload
	if !cLate.last(t, core.EventServerJoined, &sj) || len(sj.Calls) != 1 || sj.Calls[0].ChannelID != "voice" {
		t.Fatalf("serverJoined = %+v", sj)
	}

	if err := f.o.CallLeave(id, "voice"); err != nil {
		t.Fatal(err)
	}
	cl.last(t, core.EventVoiceState, &vs)
	if len(vs.Participants) != 0 {
		t.Fatalf("final voice state = %+v", vs)
	}
}

func TestCallJoinGate(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	id, _ := f.connect(t, "u-alice")
	if _, err := f.o.CallJoin(ctx, id, "staff", "Alice", ""); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("private call err = %v", err)
	}
	if _, err := f.o.CallJoin(ctx, id, "", "Alice", ""); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("missing channel err = %v", err)
	}
}

func TestCallJoinAnnouncesOnlyToOwnServer(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.store.SetRole("s2", "u-admin", domain.RoleAdmin)
	f.store.PutChannel(domain.Channel{ID: "dm-ab", Kind: domain.ChannelDirect, IsPrivate: true, AllowedMembers: []domain.UserID{"u-alice", "u-bob"}})
	lurker, cl := f.connect(t, "u-admin")
	if err := f.o.JoinServer(ctx, lurker, "s2"); err != nil {
		t.Fatal(err)
	}
	id, _ := f.connect(t, "u-alice")

	if _, err := f.o.CallJoin(ctx, id, "dm-ab", "Alice", "s2"); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("direct call with foreign server err = %v", err)
	}
	if _, err := f.o.CallJoin(ctx, id, "voice", "Alice", "s2"); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("s1 call with foreign server err = %v", err)
	}
	if _, err := f.o.CallJoin(ctx, id, "dm-ab", "Alice", ""); err != nil {
		t.Fatalf("direct call: %v", err)
	}
	if cl.has(core.EventVoiceState) {
		t.Fatalf("server s2 heard %v", cl.types())
	}
	if st := f.o.Calls.ServerCalls("s2"); len(st) != 0 {
		t.Fatalf("s2 calls = %+v", st)
	}

	if _, err := f.o.CallJoin(ctx, id, "voice", "Alice", "s1"); err != nil {
		t.Fatalf("matching server: %v", err)
	}
	if cl.has(core.EventVoiceState) {
		t.Fatal("s1 call leaked to s2")
	}
}

func TestJoinServerRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	anon, _ := f.connect(t, "")
	stranger, _ := f.connect(t, "u-nobody")
	if err := f.o.JoinServer(ctx, anon, "s1"); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("anonymous err = %v", err)
	}
	if err := f.o.JoinServer(ctx, stranger, "s1"); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("stranger err = %v", err)
	}
	if err := f.o.LeaveServer(stranger, "s1"); err != nil {
		t.Fatalf("LeaveServer should be idempotent: %v", err)
	}
}

func TestTypingAndWhiteboardExcludeSender(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a, ca := f.connect(t, "u-alice")
	b, cb := f.connect(t, "u-bob")
	f.join(t, a, "general")
	f.join(t, b, "general")
	ca.reset()
	cb.reset()

	if err := f.o.Typing(ctx, a, "general", true); err != nil {
		t.Fatal(err)
	}
	var tp typingPayload
	if !cb.last(t, core.EventTypingStart, &tp) || tp.Username != "alice" {
		t.Fatalf("typingStart = %+v", tp)
	}
	stroke := json.RawMessage(`{"x":1,"y":2}`)
	if err := f.o.Whiteboard(a, "general", core.EventWhiteboardDraw, stroke); err != nil {
		t.Fatal(err)
	}
	var wp whiteboardPayload
	if !cb.last(t, core.EventWhiteboardDraw, &wp) || string(wp.Payload) != string(stroke) || wp.From != a {
		t.Fatalf("whiteboardDraw = %+v", wp)
	}
	if len(ca.events()) != 0 {
		t.Fatalf("sender got %v", ca.types())
	}

	anon, _ := f.connect(t, "")
	if err := f.o.Typing(ctx, anon, "general", true); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("anonymous typing err = %v", err)
	}
	outsider, _ := f.connect(t, "u-admin")
	if err := f.o.Whiteboard(outsider, "general", core.EventWhiteboardClear, nil); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("non-member whiteboard err = %v", err)
	}
}

func TestMarkReadBroadcastsToOthers(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a, ca := f.connect(t, "u-alice")
	b, cb := f.connect(t, "u-bob")
	f.join(t, a, "general")
	f.join(t, b, "general")
	ca.reset()

	ts, err := f.o.MarkRead(ctx, a, "general", nil)
	if err != nil {
		t.Fatal(err)
	}
	var ru readUpdatePayload
	if !cb.last(t, core.EventUserReadUpdate, &ru) || ru.UserID != "u-alice" || !ru.LastReadAt.Equal(ts) {
		t.Fatalf("userReadUpdate = %+v", ru)
	}
	if ca.has(core.EventUserReadUpdate) {
		t.Fatal("origin got its own read update")
	}
}

func TestMarkReadRequiresChannelAccess(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	adm, cadm := f.connect(t, "u-admin")
	f.join(t, adm, "staff")
	cadm.reset()
	a, _ := f.connect(t, "u-alice")

	if _, err := f.o.MarkRead(ctx, a, "staff", nil); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("private channel err = %v", err)
	}
	if cadm.has(core.EventUserReadUpdate) {
		t.Fatal("read update leaked into the private room")
	}
	if _, ok, _ := f.store.Get(ctx, "u-alice", "staff"); ok {
		t.Fatal("watermark written for a hidden channel")
	}
	if _, err := f.o.MarkRead(ctx, a, "no-such-channel", nil); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown channel err = %v", err)
	}
	if _, err := f.o.MarkReadAs(ctx, "u-nobody", "general", nil, ""); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("non-member err = %v", err)
	}
	if _, err := f.o.MarkRead(ctx, adm, "staff", nil); err != nil {
		t.Fatalf("admin mark read: %v", err)
	}
}

func TestSendMessageFlow(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a, ca := f.connect(t, "u-alice")
	b, cb := f.connect(t, "u-bob")
	f.join(t, a, "general")
	f.join(t, b, "general")

	msg, err := f.o.SendMessage(ctx, a, MessageInput{ChannelID: "general", Content: "hi @bob", SuppressEcho: true})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Sender.Name != "Alice" || msg.Sender.ID != "u-alice" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
	if !cb.has(core.EventMessage) || ca.has(core.EventMessage) {
		t.Fatal("echo suppression broken")
	}
	if sent := f.sink.Sent(); len(sent) != 1 || sent[0].UserID != "u-bob" {
		t.Fatalf("notifications = %+v", sent)
	}

	if _, err := f.o.EditMessage(ctx, b, msg.ID, "nope"); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("foreign edit err = %v", err)
	}
	if _, err := f.o.React(ctx, b, msg.ID, "🎉"); err != nil {
		t.Fatal(err)
	}
	if err := f.o.DeleteMessage(ctx, a, msg.ID); err != nil {
		t.Fatal(err)
	}
	if !cb.has(core.EventReactionAdded) || !cb.has(core.EventMessageDeleted) {
		t.Fatalf("bob got %v", cb.types())
	}

	anon, _ := f.connect(t, "")
	if _, err := f.o.SendMessage(ctx, anon, MessageInput{ChannelID: "general", Content: "x"}); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("anonymous post err = %v", err)
	}
	if _, err := f.o.PostAs(ctx, "", MessageInput{ChannelID: "general", Content: "deploy finished"}, ""); err != nil {
		t.Fatalf("system post: %v", err)
	}
}

func TestNackGoesToCallerOnly(t *testing.T) {
	f := newFixture(t)
	a, ca := f.connect(t, "u-alice")
	_, cb := f.connect(t, "u-bob")
	_, err := f.o.Join(t.Context(), a, "staff")
	f.o.Nack(a, "join", "staff", err)

	var n nackPayload
	if !ca.last(t, core.EventNack, &n) || n.Reason != "forbidden" || n.Event != "join" || n.ChannelID != "staff" {
		t.Fatalf("nack = %+v", n)
	}
	if cb.has(core.EventNack) {
		t.Fatal("nack leaked")
	}
}

func TestEvictRoom(t *testing.T) {
	f := newFixture(t)
	a, _ := f.connect(t, "u-alice")
	b, _ := f.connect(t, "u-bob")
	f.join(t, a, "general")
	f.join(t, b, "general")
	f.o.EvictRoom(t.Context(), "general")
	if _, ok := f.o.Rooms.Get("general"); ok {
		t.Fatal("room survived eviction")
	}
	if len(f.o.Registry.Rooms(a)) != 0 || len(f.o.Registry.Rooms(b)) != 0 {
		t.Fatal("registry mirror not cleared")
	}
}

func TestIdentifyAcks(t *testing.T) {
	f := newFixture(t)
	id, c := f.connect(t, "")
	if err := f.o.Identify(t.Context(), id, "u-alice"); err != nil {
		t.Fatal(err)
	}
	var p identifiedPayload
	if !c.last(t, core.EventIdentified, &p) || p.Display.Username != "alice" {
		t.Fatalf("identified = %+v", p)
	}
	if err := f.o.Identify(t.Context(), id, ""); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("empty user err = %v", err)
	}
}
