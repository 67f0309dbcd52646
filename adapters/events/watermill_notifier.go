package events

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/ports"
)

const (
	// ReplayBufferSize is how many notifications are kept per DID for
	// redelivery on reconnect.
	ReplayBufferSize = 50

	// subscriberBuffer bounds each subscriber's queue. When it fills, the
	// oldest notification is dropped; state remains queryable over REST.
	subscriberBuffer = 64

	topicPrefix = "notifications."
)

var topicSanitizer = regexp.MustCompile(`[^a-zA-Z0-9\-._]+`)

// Topic returns the bus topic for a DID.
func Topic(did string) string {
	return topicPrefix + topicSanitizer.ReplaceAllString(did, "_")
}

// WatermillNotifier is the per-DID notification bus. Live delivery rides a
// Watermill pub/sub; a small in-memory ring per DID covers redelivery after
// reconnects. Replayed events precede live ones on every new subscription.
type WatermillNotifier struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	replay map[string][]core.Notification
}

// NewWatermillNotifier builds a notifier on an in-process Watermill channel.
func NewWatermillNotifier(logger watermill.LoggerAdapter) *WatermillNotifier {
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: subscriberBuffer,
	}, logger)
	return &WatermillNotifier{
		pub:    ps,
		sub:    ps,
		logger: logger,
		replay: make(map[string][]core.Notification),
	}
}

// Publish fans the notification out to every subscriber of did and appends it
// to the replay buffer.
func (n *WatermillNotifier) Publish(ctx context.Context, did string, notif core.Notification) error {
	payload, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// The ring append and the bus publish happen under one lock so a
	// subscriber registering in between cannot see the event twice, once
	// from the backlog and once live.
	n.mu.Lock()
	defer n.mu.Unlock()

	buf := append(n.replay[did], notif)
	if len(buf) > ReplayBufferSize {
		buf = buf[len(buf)-ReplayBufferSize:]
	}
	n.replay[did] = buf

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := n.pub.Publish(Topic(did), msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe returns a channel of notifications for did. Buffered events are
// replayed first, then live ones. Cancelling ctx closes the channel.
func (n *WatermillNotifier) Subscribe(ctx context.Context, did string) (<-chan core.Notification, error) {
	// Registering with the bus and snapshotting the backlog must be atomic
	// with respect to Publish, otherwise an event published in between
	// would be delivered from both paths.
	n.mu.Lock()
	msgs, err := n.sub.Subscribe(ctx, Topic(did))
	if err != nil {
		n.mu.Unlock()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	backlog := append([]core.Notification(nil), n.replay[did]...)
	n.mu.Unlock()

	out := make(chan core.Notification, subscriberBuffer)
	go func() {
		defer close(out)

		for _, notif := range backlog {
			select {
			case out <- notif:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var notif core.Notification
				if err := json.Unmarshal(msg.Payload, &notif); err != nil {
					n.logger.Error("dropping malformed notification", err, watermill.LogFields{"did": did})
					msg.Ack()
					continue
				}
				msg.Ack()

				select {
				case out <- notif:
				default:
					// Queue full: drop the oldest so a slow consumer never
					// stalls the publisher.
					select {
					case <-out:
					default:
					}
					select {
					case out <- notif:
					default:
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Clear empties the replay buffer for did.
func (n *WatermillNotifier) Clear(ctx context.Context, did string) error {
	n.mu.Lock()
	delete(n.replay, did)
	n.mu.Unlock()
	return nil
}

var _ ports.Notifier = (*WatermillNotifier)(nil)
