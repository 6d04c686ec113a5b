// Package memory keeps every collaborator in process memory. It backs the
// dev profile and the tests.
package memory

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

type userRecord struct {
	display  domain.Display
	keywords []string
}

type readKey struct {
	user    domain.UserID
	channel domain.ChannelID
}

type Store struct {
	mu         sync.RWMutex
	users      map[domain.UserID]userRecord
	byUsername map[string]domain.UserID
	roles      map[domain.ServerID]map[domain.UserID]domain.Role
	channels   map[domain.ChannelID]*domain.Channel
	messages   map[domain.MessageID]*domain.Message
	reads      map[readKey]time.Time
	online     map[domain.ChannelID]map[domain.UserID]struct{}
}

func New() *Store {
	return &Store{
		users:      make(map[domain.UserID]userRecord),
		byUsername: make(map[string]domain.UserID),
		roles:      make(map[domain.ServerID]map[domain.UserID]domain.Role),
		channels:   make(map[domain.ChannelID]*domain.Channel),
		messages:   make(map[domain.MessageID]*domain.Message),
		reads:      make(map[readKey]time.Time),
		online:     make(map[domain.ChannelID]map[domain.UserID]struct{}),
	}
}
