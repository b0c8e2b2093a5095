// Package redisstream builds the watermill transport that carries session
// lifecycle events: an in-memory go channel by default, Redis Streams when
// enabled.
package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus pairs a publisher with the subscriber used by in-process consumers.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	redisEnabled bool
	client       redis.UniversalClient
	closers      []func() error
}

// BuildBus constructs the event transport. If settings.Enabled is false, it
// returns an in-memory go channel pub/sub.
func BuildBus(s Settings, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if !s.Enabled {
		ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Bus{
			Publisher:  ps,
			Subscriber: ps,
			closers:    []func() error{ps.Close},
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}

	return &Bus{
		Publisher:    pub,
		Subscriber:   sub,
		redisEnabled: true,
		client:       client,
		closers:      []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

func (b *Bus) RedisEnabled() bool { return b != nil && b.redisEnabled }

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func (b *Bus) EnsureGroupAtTail(ctx context.Context, stream, group string) error {
	if b == nil || !b.redisEnabled || b.client == nil {
		return nil
	}
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}

// Close releases the subscriber, publisher and redis client in that order.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
