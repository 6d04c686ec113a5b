// Package notify hands notifications to the delivery workers over NATS.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Servers       []string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NatsSink publishes every notification to <prefix>.<kind>.
type NatsSink struct {
	pub    msgPublisher
	conn   *nats.Conn
	prefix string
}

func Connect(cfg Config) (*NatsSink, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","),
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Str("module", "notify").Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "notify").Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	s := newSink(nc, cfg.SubjectPrefix)
	s.conn = nc
	return s, nil
}

func newSink(pub msgPublisher, prefix string) *NatsSink {
	if prefix == "" {
		prefix = "notifications"
	}
	return &NatsSink{pub: pub, prefix: prefix}
}

func (s *NatsSink) subject(kind domain.NotificationKind) string {
	return s.prefix + "." + string(kind)
}

// Enqueue publishes without waiting for a consumer. Delivery is at most once.
func (s *NatsSink) Enqueue(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := nats.NewMsg(s.subject(n.Kind))
	msg.Data = data
	msg.Header.Set("User-Id", string(n.UserID))
	msg.Header.Set("Message-Id", string(n.MessageID))
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (s *NatsSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
