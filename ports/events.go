package ports

import (
	"context"

	"github.com/Sleepy9988/decent-identity/core"
)

// Notifier is the per-DID event channel. Publish must never block on slow
// subscribers; losing a notification is non-fatal since state remains
// queryable over REST.
type Notifier interface {
	// Publish fans the notification out to every subscriber of did and
	// appends it to the did's replay buffer.
	Publish(ctx context.Context, did string, n core.Notification) error

	// Subscribe returns a channel of notifications for did, preceded by a
	// replay of the buffered ones. Cancelling ctx closes the channel.
	Subscribe(ctx context.Context, did string) (<-chan core.Notification, error)

	// Clear empties the replay buffer for did ("mark all read").
	Clear(ctx context.Context, did string) error
}

// EventPublisher broadcasts session lifecycle events to other instances.
type EventPublisher interface {
	PublishLogout(ctx context.Context, did string, tokenID string) error
}
