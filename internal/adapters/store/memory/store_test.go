package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestAddChannelMemberIsIdempotent(t *testing.T) {
	s := New()
	s.PutChannel(domain.Channel{ID: "c1"})
	ctx := context.Background()
	for range 3 {
		if err := s.AddChannelMember(ctx, "c1", domain.ChannelMember{ID: "u1", Name: "U"}); err != nil {
			t.Fatalf("AddChannelMember: %v", err)
		}
	}
	ch, _ := s.GetChannel(ctx, "c1")
	if len(ch.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(ch.Members))
	}
	if err := s.AddChannelMember(ctx, "missing", domain.ChannelMember{ID: "u1"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing channel err = %v", err)
	}
}

func TestGetChannelReturnsCopy(t *testing.T) {
	s := New()
	s.PutChannel(domain.Channel{ID: "c1", AllowedMembers: []domain.UserID{"a"}})
	ch, _ := s.GetChannel(context.Background(), "c1")
	ch.AllowedMembers[0] = "mallory"
	again, _ := s.GetChannel(context.Background(), "c1")
	if again.AllowedMembers[0] != "a" {
		t.Fatal("store state leaked through returned channel")
	}
}

func TestListSinceAndHistory(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []domain.MessageID{"m1", "m2", "m3", "m4"} {
		m := &domain.Message{ID: id, ChannelID: "c1", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if id == "m3" {
			m.ThreadID = "m1"
		}
		_ = s.InsertMessage(ctx, m)
	}
	_ = s.SoftDelete(ctx, "m4", domain.DeletedPlaceholder)

	since := base
	got, _ := s.ListSince(ctx, "c1", &since)
	if len(got) != 2 || got[0].ID != "m2" || got[1].ID != "m3" {
		t.Fatalf("ListSince = %+v", ids(got))
	}
	all, _ := s.ListSince(ctx, "c1", nil)
	if len(all) != 3 {
		t.Fatalf("ListSince(nil) = %v", ids(all))
	}

	hist, _ := s.History(ctx, "c1", 2, nil)
	if len(hist) != 2 || hist[0].ID != "m2" || hist[1].ID != "m4" {
		t.Fatalf("History = %v", ids(hist))
	}
	if hist[1].Content != domain.DeletedPlaceholder || !hist[1].IsDeleted {
		t.Fatalf("deleted message = %+v", hist[1])
	}
}

func TestUsernameLookupIgnoresCase(t *testing.T) {
	s := New()
	s.PutUser("u1", domain.Display{Name: "Alice", Username: "Alice"})
	id, ok, _ := s.FindByUsername(context.Background(), "alice")
	if !ok || id != "u1" {
		t.Fatalf("FindByUsername = %q %v", id, ok)
	}
	s.PutUser("u1", domain.Display{Name: "Alice", Username: "ally"})
	if _, ok, _ := s.FindByUsername(context.Background(), "alice"); ok {
		t.Fatal("old username still resolves")
	}
}

func TestPresenceMirror(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.MarkOnline(ctx, "c1", "u1")
	_ = s.MarkOnline(ctx, "c1", "u2")
	_ = s.MarkOffline(ctx, "c1", "u1")
	if got := s.Online("c1"); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("Online = %v", got)
	}
}

func ids(ms []domain.Message) []domain.MessageID {
	out := make([]domain.MessageID, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
