package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func (s *Store) InsertMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (s *Store) GetMessage(_ context.Context, id domain.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *Store) update(id domain.MessageID, fn func(m *domain.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return core.ErrNotFound
	}
	fn(m)
	return nil
}

func (s *Store) IncrementReplyCount(_ context.Context, id domain.MessageID) error {
	return s.update(id, func(m *domain.Message) { m.ReplyCount++ })
}

func (s *Store) SoftDelete(_ context.Context, id domain.MessageID, placeholder string) error {
	return s.update(id, func(m *domain.Message) {
		m.IsDeleted = true
		m.Content = placeholder
	})
}

func (s *Store) UpdateContent(_ context.Context, id domain.MessageID, content string, editedAt time.Time) error {
	return s.update(id, func(m *domain.Message) {
		m.Content = content
		m.EditedAt = &editedAt
	})
}

func (s *Store) SetReactions(_ context.Context, id domain.MessageID, reactions []domain.Reaction) error {
	return s.update(id, func(m *domain.Message) { m.Reactions = cloneReactions(reactions) })
}

func (s *Store) ListSince(_ context.Context, channel domain.ChannelID, since *time.Time) ([]domain.Message, error) {
	return s.collect(func(m *domain.Message) bool {
		return m.ChannelID == channel && !m.IsDeleted && (since == nil || m.Timestamp.After(*since))
	}, 0), nil
}

func (s *Store) History(_ context.Context, channel domain.ChannelID, limit int, before *time.Time) ([]domain.Message, error) {
	return s.collect(func(m *domain.Message) bool {
		return m.ChannelID == channel && m.ThreadID == "" && (before == nil || m.Timestamp.Before(*before))
	}, limit), nil
}

// collect returns matches oldest first. A positive limit keeps the newest ones.
func (s *Store) collect(match func(m *domain.Message) bool, limit int) []domain.Message {
	s.mu.RLock()
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if match(m) {
			out = append(out, *cloneMessage(m))
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Message) int { return a.Timestamp.Compare(b.Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func cloneMessage(m *domain.Message) *domain.Message {
	c := *m
	c.Files = slices.Clone(m.Files)
	c.Reactions = cloneReactions(m.Reactions)
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	return &c
}

func cloneReactions(rs []domain.Reaction) []domain.Reaction {
	if rs == nil {
		return nil
	}
	out := make([]domain.Reaction, len(rs))
	for i, r := range rs {
		out[i] = domain.Reaction{Emoji: r.Emoji, Users: slices.Clone(r.Users)}
	}
	return out
}
