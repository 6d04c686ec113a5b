package domain

import "time"

type MessageID string

// DeletedPlaceholder replaces the content of soft-deleted messages.
const DeletedPlaceholder = "[deleted message]"

type Sender struct {
	ID     UserID `json:"id,omitempty" bson:"id,omitempty"`
	Name   string `json:"name" bson:"name"`
	Avatar string `json:"avatar" bson:"avatar"`
}

type FileAttachment struct {
	ID   string `json:"id" bson:"id" validate:"required"`
	Name string `json:"name" bson:"name" validate:"required"`
	Size int64  `json:"size,omitempty" bson:"size,omitempty"`
	Type string `json:"type,omitempty" bson:"type,omitempty"`
	URL  string `json:"url,omitempty" bson:"url,omitempty"`
}

type Reaction struct {
	Emoji string   `json:"emoji" bson:"emoji"`
	Users []UserID `json:"users" bson:"users"`
}

// Message content is ciphertext while stored and plaintext once it leaves the pipeline.
type Message struct {
	ID         MessageID        `json:"id" bson:"_id"`
	ChannelID  ChannelID        `json:"channelId" bson:"channel_id"`
	Sender     Sender           `json:"sender" bson:"sender"`
	Content    string           `json:"content" bson:"content"`
	Timestamp  time.Time        `json:"timestamp" bson:"timestamp"`
	ThreadID   MessageID        `json:"threadId,omitempty" bson:"thread_id,omitempty"`
	ReplyCount int              `json:"replyCount" bson:"reply_count"`
	EditedAt   *time.Time       `json:"editedAt,omitempty" bson:"edited_at,omitempty"`
	IsDeleted  bool             `json:"isDeleted" bson:"is_deleted"`
	Files      []FileAttachment `json:"files" bson:"files"`
	Reactions  []Reaction       `json:"reactions" bson:"reactions"`
}

// AddReaction records user under emoji and reports whether anything changed.
func (m *Message) AddReaction(emoji string, user UserID) bool {
	for i := range m.Reactions {
		if m.Reactions[i].Emoji != emoji {
			continue
		}
		for _, u := range m.Reactions[i].Users {
			if u == user {
				return false
			}
		}
		m.Reactions[i].Users = append(m.Reactions[i].Users, user)
		return true
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, Users: []UserID{user}})
	return true
}

// Stamp normalizes t to UTC at millisecond precision, the finest every
// store keeps, so watermark comparisons agree across stores.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

type NotificationKind string

const (
	NotifyMention NotificationKind = "mention"
	NotifyKeyword NotificationKind = "keyword"
)

type Notification struct {
	UserID    UserID           `json:"userId"`
	Kind      NotificationKind `json:"kind"`
	MessageID MessageID        `json:"messageId"`
	ChannelID ChannelID        `json:"channelId"`
	Snippet   string           `json:"snippet"`
	Trigger   string           `json:"trigger"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ReadState is the last-read watermark of a user in a channel.
type ReadState struct {
	UserID     UserID    `json:"userId"`
	ChannelID  ChannelID `json:"channelId"`
	LastReadAt time.Time `json:"lastReadAt"`
}
