package app

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// DisplayResolver is satisfied by Registry.
type DisplayResolver interface {
	ResolveDisplay(ctx context.Context, user domain.UserID) (domain.Display, error)
}

// ReadTracker keeps per-user watermarks and answers unread queries on demand.
type ReadTracker struct {
	States   core.ReadStateStore
	Messages core.MessageStore
	Cipher   core.Cipher
	Displays DisplayResolver
	Now      func() time.Time
}

// MarkRead moves the watermark to at, or to now when at is nil.
func (t *ReadTracker) MarkRead(ctx context.Context, user domain.UserID, channel domain.ChannelID, at *time.Time) (time.Time, error) {
	if user == "" || channel == "" {
		return time.Time{}, core.BadRequest("userId and channelId required")
	}
	ts := time.Now()
	if t.Now != nil {
		ts = t.Now()
	}
	if at != nil {
		ts = *at
	}
	ts = domain.Stamp(ts)
	if err := t.States.Upsert(ctx, domain.ReadState{UserID: user, ChannelID: channel, LastReadAt: ts}); err != nil {
		return time.Time{}, core.Transient("upsert read state", err)
	}
	return ts, nil
}

// UnreadCount counts live messages past the watermark and reports whether
// any of them mentions the user.
func (t *ReadTracker) UnreadCount(ctx context.Context, user domain.UserID, channel domain.ChannelID) (int, bool, error) {
	if user == "" || channel == "" {
		return 0, false, core.BadRequest("userId and channelId required")
	}
	last, ok, err := t.States.Get(ctx, user, channel)
	if err != nil {
		return 0, false, core.Transient("get read state", err)
	}
	var since *time.Time
	if ok {
		since = &last
	}
	msgs, err := t.Messages.ListSince(ctx, channel, since)
	if err != nil {
		return 0, false, core.Transient("list messages", err)
	}

	username := ""
	if t.Displays != nil {
		if d, err := t.Displays.ResolveDisplay(ctx, user); err == nil {
			username = d.Username
		}
	}
	count, mentioned := 0, false
	for _, m := range msgs {
		if m.IsDeleted {
			continue
		}
		count++
		if !mentioned && username != "" && mentions(t.Cipher.Decrypt(m.Content), username) {
			mentioned = true
		}
	}
	return count, mentioned, nil
}
