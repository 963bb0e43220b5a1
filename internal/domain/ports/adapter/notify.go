package adapter

import "context"

// NotificationSink delivers a human-readable message to the operator
// channel (Telegram, email, chat). Returns true iff the message was
// accepted by the channel.
type NotificationSink interface {
	Notify(ctx context.Context, title, content string) (bool, error)
}
