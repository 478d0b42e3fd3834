// Package redis provides a Redis-backed session storage shared by several instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/quiz-ui/internal/ports"
)

const (
	defaultPrefix  = "quiz-ui:"
	defaultChannel = "quiz-ui:storage-events"
)

// StorageOptions configures a Storage.
type StorageOptions struct {
	// Prefix is prepended to every slot key.
	Prefix string
	// Channel is the pub/sub channel carrying change events.
	Channel string
	// Origin identifies this instance; its own writes are not echoed back by Watch.
	Origin string
	Logger *slog.Logger
}

// Storage keeps session slots in Redis keys and announces every write on a pub/sub
// channel so other instances observe it.
type Storage struct {
	client  redis.UniversalClient
	prefix  string
	channel string
	origin  string
	logger  *slog.Logger
}

var _ ports.Storage = (*Storage)(nil)

// NewStorage creates a new Redis-based storage.
func NewStorage(client redis.UniversalClient, opts StorageOptions) *Storage {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	channel := opts.Channel
	if channel == "" {
		channel = defaultChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		client:  client,
		prefix:  prefix,
		channel: channel,
		origin:  opts.Origin,
		logger:  logger,
	}
}

type eventPayload struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	payload, err := s.event(key)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.prefix+key, value, 0)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	payload, err := s.event(key)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.prefix+key)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *Storage) event(key string) (string, error) {
	data, err := json.Marshal(eventPayload{Key: key, Origin: s.origin})
	if err != nil {
		return "", fmt.Errorf("marshal storage event: %w", err)
	}
	return string(data), nil
}

// Watch subscribes to the change channel and blocks until ctx is done.
func (s *Storage) Watch(ctx context.Context, fn func(ports.StorageEvent)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.logger.WarnContext(ctx, "close storage subscription failed", "error", err)
		}
	}()

	// Wait for the subscription to be confirmed so no event published after Watch
	// returns control is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("storage subscription closed")
			}
			var ev eventPayload
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.WarnContext(ctx, "ignoring malformed storage event", "error", err)
				continue
			}
			if ev.Origin != "" && ev.Origin == s.origin {
				continue
			}
			fn(ports.StorageEvent{Key: ev.Key, Origin: ev.Origin})
		}
	}
}
