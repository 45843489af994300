// Package broadcast implements a pluggable cross-node broadcast bus:
// Redis pub/sub is one valid backing, an in-process channel fabric is
// equally valid for a single-node deployment. Both satisfy the same Bus
// interface so the router and transport layers never know which is
// wired.
package broadcast

import (
	"context"
	"encoding/json"
)

// Message is one cross-node fan-out event: a recipient user id and the
// real-time frame payload to deliver to every live local connection of
// that user.
type Message struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// Bus publishes messages for a user and lets the local node subscribe
// to everything published cluster-wide, so a message sent on one node
// reaches a recipient whose socket is held open on another.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe registers handler to be called for every Message
	// published on any node. Subscribe blocks until ctx is canceled.
	Subscribe(ctx context.Context, handler func(Message)) error
	Close() error
}
