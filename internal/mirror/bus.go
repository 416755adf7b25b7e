// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package mirror

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/models"
)

// ResponseTopic is shared by every mirror context for leaderboard replies.
const ResponseTopic = "mirror.responses"

// RequestTopic is the leaderboard request topic of one mirror context.
func RequestTopic(id ViewID) string {
	return "mirror." + string(id) + ".requests"
}

// ReconnectTopic is the reconnect command topic of one mirror context.
func ReconnectTopic(id ViewID) string {
	return "mirror." + string(id) + ".reconnect"
}

// Bus carries messages between the host and mirror contexts. Nothing
// crosses the boundary except these messages. Messages published to a topic
// nobody subscribes to are dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logging.NewWatermillAdapter()),
	}
}

// SendRequest publishes a leaderboard request to one context.
func (b *Bus) SendRequest(id ViewID, req models.LeaderboardRequest) error {
	return b.publish(RequestTopic(id), id, req)
}

// SendReconnect publishes a reconnect command to one context.
func (b *Bus) SendReconnect(id ViewID, cmd models.ReconnectCommand) error {
	return b.publish(ReconnectTopic(id), id, cmd)
}

// SendResponse publishes a reply on the shared response topic.
func (b *Bus) SendResponse(id ViewID, resp models.LeaderboardResponse) error {
	return b.publish(ResponseTopic, id, resp)
}

// Requests subscribes to a context's leaderboard requests.
func (b *Bus) Requests(ctx context.Context, id ViewID) (<-chan models.LeaderboardRequest, error) {
	return subscribe[models.LeaderboardRequest](ctx, b, RequestTopic(id))
}

// Reconnects subscribes to a context's reconnect commands.
func (b *Bus) Reconnects(ctx context.Context, id ViewID) (<-chan models.ReconnectCommand, error) {
	return subscribe[models.ReconnectCommand](ctx, b, ReconnectTopic(id))
}

// Responses subscribes to the shared response topic.
func (b *Bus) Responses(ctx context.Context) (<-chan models.LeaderboardResponse, error) {
	return subscribe[models.LeaderboardResponse](ctx, b, ResponseTopic)
}

// Close closes the underlying pubsub; all subscriptions end.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

func (b *Bus) publish(topic string, id ViewID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("view_id", string(id))
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// subscribe decodes every message on topic into T. Undecodable messages
// are logged and acked. The returned channel closes when ctx ends or the
// bus closes.
func subscribe[T any](ctx context.Context, b *Bus, topic string) (<-chan T, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan T)
	go func() {
		defer close(out)
		for msg := range msgs {
			var v T
			if err := json.Unmarshal(msg.Payload, &v); err != nil {
				logging.Warn().Str("topic", topic).Str("message_uuid", msg.UUID).Err(err).
					Msg("Dropping undecodable mirror message")
				msg.Ack()
				continue
			}
			select {
			case out <- v:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}
