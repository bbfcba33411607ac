package channel

import (
	"context"

	"oneclick/pkg/bus"
)

// Sender delivers outbound lines to the peer of exactly one session.
// Send returns an error matching ErrPeerDisconnected once the peer is gone.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) Send(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Handler processes one inbound line, replying through the session's own sender.
type Handler func(ctx context.Context, inbound bus.InboundMessage, sender Sender) error

// Adapter bridges one polling transport (for example Telegram) into the router.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
