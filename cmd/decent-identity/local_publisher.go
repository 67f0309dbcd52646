package main

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// newLocalPublisher backs the event publisher with an in-process pub/sub for
// Redis-less deployments. Published events vanish if nothing subscribes,
// which matches the best-effort contract of logout events.
func newLocalPublisher(logger watermill.LoggerAdapter) message.Publisher {
	return gochannel.NewGoChannel(gochannel.Config{}, logger)
}
