package mongodb

import (
	"context"
	"slices"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) InsertMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.db.Collection(collMessages).InsertOne(ctx, msg)
	return err
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var m domain.Message
	if err := s.db.Collection(collMessages).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) update(ctx context.Context, id domain.MessageID, update bson.M) error {
	res, err := s.db.Collection(collMessages).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementReplyCount(ctx context.Context, id domain.MessageID) error {
	return s.update(ctx, id, bson.M{"$inc": bson.M{"reply_count": 1}})
}

func (s *Store) SoftDelete(ctx context.Context, id domain.MessageID, placeholder string) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{"is_deleted": true, "content": placeholder}})
}

func (s *Store) UpdateContent(ctx context.Context, id domain.MessageID, content string, editedAt time.Time) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{"content": content, "edited_at": editedAt}})
}

func (s *Store) SetReactions(ctx context.Context, id domain.MessageID, reactions []domain.Reaction) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{"reactions": reactions}})
}

func (s *Store) ListSince(ctx context.Context, channel domain.ChannelID, since *time.Time) ([]domain.Message, error) {
	return s.find(ctx, sinceFilter(channel, since), options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
}

// History queries newest first so the limit keeps the latest messages, then
// flips the page to oldest first.
func (s *Store) History(ctx context.Context, channel domain.ChannelID, limit int, before *time.Time) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	out, err := s.find(ctx, historyFilter(channel, before), opts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Message, error) {
	cur, err := s.db.Collection(collMessages).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sinceFilter(channel domain.ChannelID, since *time.Time) bson.M {
	f := bson.M{"channel_id": channel, "is_deleted": bson.M{"$ne": true}}
	if since != nil {
		f["timestamp"] = bson.M{"$gt": *since}
	}
	return f
}

func historyFilter(channel domain.ChannelID, before *time.Time) bson.M {
	f := bson.M{
		"channel_id": channel,
		"$or": bson.A{
			bson.M{"thread_id": bson.M{"$exists": false}},
			bson.M{"thread_id": ""},
		},
	}
	if before != nil {
		f["timestamp"] = bson.M{"$lt": *before}
	}
	return f
}
