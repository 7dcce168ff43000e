package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mesh-gateway/meshgw/internal/dispatch"
	"github.com/mesh-gateway/meshgw/internal/message"
)

// ErrInvalidRequest marks input rejected before queueing.
var ErrInvalidRequest = errors.New("invalid request")

// Dispatcher is the queue surface the facade needs.
type Dispatcher interface {
	Enqueue(req message.SendRequest) *dispatch.Entry
}

var _ Dispatcher = (*dispatch.Queue)(nil)

// Gateway validates requests and bridges callers to the dispatch queue.
// Many callers may invoke Send concurrently; each waits only on its own
// entry's resolution.
type Gateway struct {
	queue  Dispatcher
	logger *slog.Logger
}

// New creates the facade.
func New(queue Dispatcher, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{queue: queue, logger: logger}
}

// Send processes one request to its terminal outcome. Invalid requests fail
// fast with INVALID_REQUEST and never reach the queue. If ctx expires while
// waiting, Send returns ctx's error; the enqueued entry still completes and
// its outcome is discarded (mid-transmission cancellation is unsupported).
func (g *Gateway) Send(ctx context.Context, req message.SendRequest) (message.Outcome, error) {
	if err := validate(req); err != nil {
		g.logger.Debug("request rejected", "error", err)
		return message.Failed(message.ReasonInvalidRequest, err), err
	}

	entry := g.queue.Enqueue(req)
	select {
	case outcome := <-entry.Outcome():
		return outcome, nil
	case <-ctx.Done():
		return message.Outcome{}, ctx.Err()
	}
}

func validate(req message.SendRequest) error {
	if req.Text == "" {
		return fmt.Errorf("%w: text must be non-empty", ErrInvalidRequest)
	}
	if req.ChannelIndex < 0 {
		return fmt.Errorf("%w: channelIndex must be non-negative", ErrInvalidRequest)
	}
	return nil
}
