package notify

import "context"

// Sink delivers a formatted message to a subscriber. The engine depends
// only on this contract; the Telegram adapter is the production
// implementation.
type Sink interface {
	Send(ctx context.Context, subscriberID int64, text string) error
}

// Func adapts a plain function to a Sink.
type Func func(ctx context.Context, subscriberID int64, text string) error

func (f Func) Send(ctx context.Context, subscriberID int64, text string) error {
	return f(ctx, subscriberID, text)
}
