package core

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// IdentityLookup resolves profile summaries and server roles.
type IdentityLookup interface {
	GetDisplay(ctx context.Context, user domain.UserID) (domain.Display, error)
	// GetRole reports false when the user is not a member of the server.
	GetRole(ctx context.Context, server domain.ServerID, user domain.UserID) (domain.Role, bool, error)
	FindByUsername(ctx context.Context, username string) (domain.UserID, bool, error)
	KeywordWatchers(ctx context.Context) ([]domain.KeywordWatch, error)
}

// ChannelStore returns ErrNotFound for unknown channels.
type ChannelStore interface {
	GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	GetServerMembers(ctx context.Context, server domain.ServerID) ([]domain.ServerMembership, error)
	// AddChannelMember is idempotent by member id.
	AddChannelMember(ctx context.Context, id domain.ChannelID, member domain.ChannelMember) error
}

// MessageStore persists messages with encrypted content. Lookups of unknown
// messages return ErrNotFound.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	IncrementReplyCount(ctx context.Context, id domain.MessageID) error
	SoftDelete(ctx context.Context, id domain.MessageID, placeholder string) error
	UpdateContent(ctx context.Context, id domain.MessageID, content string, editedAt time.Time) error
	SetReactions(ctx context.Context, id domain.MessageID, reactions []domain.Reaction) error
	// ListSince returns non-deleted messages newer than since, oldest first.
	// A nil since returns every non-deleted message.
	ListSince(ctx context.Context, channel domain.ChannelID, since *time.Time) ([]domain.Message, error)
	// History returns top-level messages older than before, oldest first.
	History(ctx context.Context, channel domain.ChannelID, limit int, before *time.Time) ([]domain.Message, error)
}

// Cipher protects message content at rest. Decrypt never fails: on error it
// hands back its input so legacy plaintext rows stay readable.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) string
}

type NotificationSink interface {
	Enqueue(ctx context.Context, n domain.Notification) error
}

// ReadStateStore keeps the last-read watermark; last write wins.
type ReadStateStore interface {
	Upsert(ctx context.Context, state domain.ReadState) error
	Get(ctx context.Context, user domain.UserID, channel domain.ChannelID) (time.Time, bool, error)
}

// PresenceMirror publishes channel presence for readers outside this process.
type PresenceMirror interface {
	MarkOnline(ctx context.Context, channel domain.ChannelID, user domain.UserID) error
	MarkOffline(ctx context.Context, channel domain.ChannelID, user domain.UserID) error
}
