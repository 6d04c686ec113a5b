// Package redisstate keeps read watermarks and channel presence in Redis.
package redisstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// PresenceTTL bounds how long a channel presence set outlives its last update.
	PresenceTTL time.Duration
}

type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func Connect(ctx context.Context, c Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, c.PresenceTTL), nil
}

func New(rdb redis.UniversalClient, presenceTTL time.Duration) *Store {
	if presenceTTL <= 0 {
		presenceTTL = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: presenceTTL}
}

func (s *Store) Close() error { return s.rdb.Close() }

// read key: huddle:read:<user>, field per channel, value unix millis
func readKey(user domain.UserID) string { return "huddle:read:" + string(user) }

// presence key: huddle:presence:<channel>, set of user ids
func presenceKey(channel domain.ChannelID) string { return "huddle:presence:" + string(channel) }

func (s *Store) Upsert(ctx context.Context, st domain.ReadState) error {
	return s.rdb.HSet(ctx, readKey(st.UserID), string(st.ChannelID), st.LastReadAt.UnixMilli()).Err()
}

func (s *Store) Get(ctx context.Context, user domain.UserID, channel domain.ChannelID) (time.Time, bool, error) {
	ms, err := s.rdb.HGet(ctx, readKey(user), string(channel)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *Store) MarkOnline(ctx context.Context, channel domain.ChannelID, user domain.UserID) error {
	key := presenceKey(channel)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, string(user))
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *Store) MarkOffline(ctx context.Context, channel domain.ChannelID, user domain.UserID) error {
	return s.rdb.SRem(ctx, presenceKey(channel), string(user)).Err()
}

// Online lists the users mirrored as present in channel.
func (s *Store) Online(ctx context.Context, channel domain.ChannelID) ([]domain.UserID, error) {
	ids, err := s.rdb.SMembers(ctx, presenceKey(channel)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out, nil
}
