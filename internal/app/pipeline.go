package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	MaxContentLen       = 4000
)

// Pipeline is the write path for chat messages: authorize, encrypt,
// persist, notify and broadcast.
type Pipeline struct {
	Channels core.ChannelStore
	Messages core.MessageStore
	Identity core.IdentityLookup
	Cipher   core.Cipher
	Notify   core.NotificationSink
	Out      *Publisher
	Now      func() time.Time
}

type PostInput struct {
	ChannelID domain.ChannelID
	Sender    domain.Sender
	Content   string
	Files     []domain.FileAttachment
	ThreadID  domain.MessageID
	// Origin is skipped by the broadcast when SuppressEcho is set because
	// the client already rendered its own write.
	Origin       core.ConnID
	SuppressEcho bool
}

type messagePayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Message   *domain.Message  `json:"message"`
}

type messageEditedPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	MessageID domain.MessageID `json:"messageId"`
	Content   string           `json:"content"`
	EditedAt  time.Time        `json:"editedAt"`
}

type messageDeletedPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	MessageID domain.MessageID `json:"messageId"`
}

type reactionPayload struct {
	ChannelID domain.ChannelID  `json:"channelId"`
	MessageID domain.MessageID  `json:"messageId"`
	Emoji     string            `json:"emoji"`
	UserID    domain.UserID     `json:"userId"`
	Reactions []domain.Reaction `json:"reactions"`
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return domain.Stamp(p.Now())
	}
	return domain.Stamp(time.Now())
}

func (p *Pipeline) gate() Gate { return Gate{Identity: p.Identity} }

// Post stores a message and delivers the plaintext copy to the channel.
func (p *Pipeline) Post(ctx context.Context, in PostInput) (*domain.Message, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Files) == 0 {
		return nil, core.BadRequest("empty message")
	}
	if len(in.Content) > MaxContentLen {
		return nil, core.BadRequest("message too long")
	}
	ch, err := LoadChannel(ctx, p.Channels, in.ChannelID)
	if err != nil {
		return nil, err
	}
	if in.Sender.ID != "" {
		role, err := p.gate().Access(ctx, ch, in.Sender.ID)
		if err != nil {
			return nil, err
		}
		if !CanPost(ch, role) {
			return nil, core.ErrForbidden
		}
	}
	in.Sender.Avatar = domain.AvatarFor(in.Sender.Name, in.Sender.Avatar)

	threadParent := false
	if in.ThreadID != "" {
		parent, err := p.Messages.GetMessage(ctx, in.ThreadID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			// reply counters are advisory, an orphan reply is still stored
		case err != nil:
			return nil, core.Transient("get thread parent", err)
		case parent.ChannelID != ch.ID:
			return nil, core.BadRequest("thread parent belongs to another channel")
		default:
			threadParent = true
		}
	}

	sealed, err := p.Cipher.Encrypt(in.Content)
	if err != nil {
		return nil, core.Transient("encrypt", err)
	}
	files := in.Files
	if files == nil {
		files = []domain.FileAttachment{}
	}
	msg := domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		ChannelID: ch.ID,
		Sender:    in.Sender,
		Content:   sealed,
		Timestamp: p.now(),
		ThreadID:  in.ThreadID,
		Files:     files,
		Reactions: []domain.Reaction{},
	}
	if err := p.Messages.InsertMessage(ctx, &msg); err != nil {
		return nil, core.Transient("insert message", err)
	}
	if threadParent {
		if err := p.Messages.IncrementReplyCount(ctx, in.ThreadID); err != nil {
			log.Warn().Str("module", "app.pipeline").Str("thread", string(in.ThreadID)).Err(err).Msg("reply count not updated")
		}
	}

	msg.Content = in.Content
	p.notify(ctx, &msg)

	exclude := core.ConnID("")
	if in.SuppressEcho {
		exclude = in.Origin
	}
	p.Out.Publish(domain.ChannelRoom(ch.ID), exclude, core.EventMessage, messagePayload{ChannelID: ch.ID, Message: &msg})
	log.Info().Str("module", "app.pipeline").Str("channel", string(ch.ID)).Str("message", string(msg.ID)).Str("sender", string(in.Sender.ID)).Msg("message posted")
	return &msg, nil
}

// notify enqueues mention and keyword notifications. Failures never undo
// the post.
func (p *Pipeline) notify(ctx context.Context, msg *domain.Message) {
	if p.Notify == nil || p.Identity == nil {
		return
	}
	sender := msg.Sender.ID
	base := domain.Notification{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Snippet:   snippet(msg.Content),
		CreatedAt: msg.Timestamp,
	}

	notified := make(map[domain.UserID]struct{})
	for _, name := range extractMentions(msg.Content) {
		user, ok, err := p.Identity.FindByUsername(ctx, name)
		if err != nil {
			log.Warn().Str("module", "app.pipeline").Str("username", name).Err(err).Msg("mention lookup failed")
			continue
		}
		if !ok || user == sender {
			continue
		}
		if _, dup := notified[user]; dup {
			continue
		}
		notified[user] = struct{}{}
		n := base
		n.UserID, n.Kind, n.Trigger = user, domain.NotifyMention, "@"+name
		p.enqueue(ctx, n)
	}

	watchers, err := p.Identity.KeywordWatchers(ctx)
	if err != nil {
		log.Warn().Str("module", "app.pipeline").Err(err).Msg("keyword watchers unavailable")
		return
	}
	for _, w := range watchers {
		if w.UserID == sender {
			continue
		}
		kw, ok := firstKeyword(msg.Content, w.Keywords)
		if !ok {
			continue
		}
		n := base
		n.UserID, n.Kind, n.Trigger = w.UserID, domain.NotifyKeyword, kw
		p.enqueue(ctx, n)
	}
}

func (p *Pipeline) enqueue(ctx context.Context, n domain.Notification) {
	if err := p.Notify.Enqueue(ctx, n); err != nil {
		log.Warn().Str("module", "app.pipeline").Str("user", string(n.UserID)).Str("kind", string(n.Kind)).Err(err).Msg("notification dropped")
	}
}

// loadForChange fetches a live message and checks that actor may change it.
func (p *Pipeline) loadForChange(ctx context.Context, actor domain.UserID, id domain.MessageID) (*domain.Message, error) {
	if actor == "" {
		return nil, core.ErrForbidden
	}
	msg, err := p.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, core.ErrNotFound
	}
	if err := p.authorizeChange(ctx, actor, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// authorizeChange allows the author and moderators of the channel's server.
func (p *Pipeline) authorizeChange(ctx context.Context, actor domain.UserID, msg *domain.Message) error {
	if actor == "" {
		return core.ErrForbidden
	}
	if msg.Sender.ID == actor {
		return nil
	}
	ch, err := LoadChannel(ctx, p.Channels, msg.ChannelID)
	if err != nil {
		return err
	}
	role, member, err := p.gate().Role(ctx, ch, actor)
	if err != nil {
		return err
	}
	if !member || !CanModerate(role) {
		return core.ErrForbidden
	}
	return nil
}

func (p *Pipeline) getRaw(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	if id == "" {
		return nil, core.BadRequest("messageId required")
	}
	msg, err := p.Messages.GetMessage(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, core.Transient("get message", err)
	}
	return msg, nil
}

// Edit replaces the content of a message. Deleted messages cannot be edited.
func (p *Pipeline) Edit(ctx context.Context, actor domain.UserID, id domain.MessageID, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, core.BadRequest("empty message")
	}
	if len(content) > MaxContentLen {
		return nil, core.BadRequest("message too long")
	}
	msg, err := p.loadForChange(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	sealed, err := p.Cipher.Encrypt(content)
	if err != nil {
		return nil, core.Transient("encrypt", err)
	}
	at := p.now()
	if err := p.Messages.UpdateContent(ctx, id, sealed, at); err != nil {
		return nil, core.Transient("update message", err)
	}
	msg.Content = content
	msg.EditedAt = &at
	p.Out.Publish(domain.ChannelRoom(msg.ChannelID), "", core.EventMessageEdited, messageEditedPayload{
		ChannelID: msg.ChannelID, MessageID: id, Content: content, EditedAt: at,
	})
	log.Info().Str("module", "app.pipeline").Str("message", string(id)).Str("actor", string(actor)).Msg("message edited")
	return msg, nil
}

// Delete soft-deletes a message. Deleting twice is a no-op for whoever
// could have deleted it the first time.
func (p *Pipeline) Delete(ctx context.Context, actor domain.UserID, id domain.MessageID) error {
	msg, err := p.getRaw(ctx, id)
	if err != nil {
		return err
	}
	if err := p.authorizeChange(ctx, actor, msg); err != nil {
		return err
	}
	if msg.IsDeleted {
		return nil
	}
	if err := p.Messages.SoftDelete(ctx, id, domain.DeletedPlaceholder); err != nil {
		return core.Transient("delete message", err)
	}
	p.Out.Publish(domain.ChannelRoom(msg.ChannelID), "", core.EventMessageDeleted, messageDeletedPayload{
		ChannelID: msg.ChannelID, MessageID: id,
	})
	log.Info().Str("module", "app.pipeline").Str("message", string(id)).Str("actor", string(actor)).Msg("message deleted")
	return nil
}

// React adds actor's reaction. Repeating the same reaction changes nothing.
func (p *Pipeline) React(ctx context.Context, actor domain.UserID, id domain.MessageID, emoji string) (*domain.Message, error) {
	if actor == "" {
		return nil, core.ErrForbidden
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, core.BadRequest("emoji required")
	}
	msg, err := p.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, core.ErrNotFound
	}
	ch, err := LoadChannel(ctx, p.Channels, msg.ChannelID)
	if err != nil {
		return nil, err
	}
	if _, err := p.gate().Access(ctx, ch, actor); err != nil {
		return nil, err
	}
	msg.Content = p.Cipher.Decrypt(msg.Content)
	if !msg.AddReaction(emoji, actor) {
		return msg, nil
	}
	if err := p.Messages.SetReactions(ctx, id, msg.Reactions); err != nil {
		return nil, core.Transient("set reactions", err)
	}
	p.Out.Publish(domain.ChannelRoom(msg.ChannelID), "", core.EventReactionAdded, reactionPayload{
		ChannelID: msg.ChannelID, MessageID: id, Emoji: emoji, UserID: actor, Reactions: msg.Reactions,
	})
	return msg, nil
}

// Get returns a message with its content decrypted.
func (p *Pipeline) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	msg, err := p.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	msg.Content = p.Cipher.Decrypt(msg.Content)
	return msg, nil
}

// History returns up to limit top-level messages older than before, oldest
// first. A non-empty actor must be able to see the channel.
func (p *Pipeline) History(ctx context.Context, actor domain.UserID, channel domain.ChannelID, limit int, before *time.Time) ([]domain.Message, error) {
	ch, err := LoadChannel(ctx, p.Channels, channel)
	if err != nil {
		return nil, err
	}
	if actor != "" {
		if _, err := p.gate().Access(ctx, ch, actor); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	msgs, err := p.Messages.History(ctx, ch.ID, limit, before)
	if err != nil {
		return nil, core.Transient("history", err)
	}
	for i := range msgs {
		msgs[i].Content = p.Cipher.Decrypt(msgs[i].Content)
	}
	return msgs, nil
}
