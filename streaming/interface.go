package streaming

import (
	"context"
	"time"
)

// Event is the envelope published for every record lifecycle change.
type Event struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Publisher emits events to an external stream. Publishing is
// best-effort; callers must not fail their own operation on error.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
	Close() error
}
