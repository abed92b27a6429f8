package websocket

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"schoolchat/pkg/logger"
)

const roomChannelPrefix = "chat:room:"

func RoomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// RedisBus relays outbound frames between instances. Every instance
// publishes to the room channel and fans out what it receives locally.
type RedisBus struct {
	client  *redis.Client
	manager *Manager
	ready   chan struct{}
}

func NewRedisBus(client *redis.Client, manager *Manager) *RedisBus {
	return &RedisBus{
		client:  client,
		manager: manager,
		ready:   make(chan struct{}),
	}
}

func (b *RedisBus) Publish(ctx context.Context, roomID string, payload []byte) error {
	return b.client.Publish(ctx, RoomChannel(roomID), payload).Err()
}

// Ready is closed once the subscription is confirmed by the server.
func (b *RedisBus) Ready() <-chan struct{} {
	return b.ready
}

// Run blocks until ctx is canceled.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(b.ready)
	logger.Info("Subscribed to %s* on Redis", roomChannelPrefix)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			roomID := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			b.manager.Broadcast(roomID, []byte(msg.Payload))
		}
	}
}
