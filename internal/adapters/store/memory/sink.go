package memory

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Sink records notifications and logs them. It stands in for the broker in dev.
type Sink struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (s *Sink) Enqueue(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	s.sent = append(s.sent, n)
	s.mu.Unlock()
	log.Info().Str("module", "store.memory").Str("user", string(n.UserID)).Str("kind", string(n.Kind)).Str("trigger", n.Trigger).Msg("notification queued")
	return nil
}

func (s *Sink) Sent() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, len(s.sent))
	copy(out, s.sent)
	return out
}
