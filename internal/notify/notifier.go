// Package notify delivers fulfillment outcomes to buyers.
//
// Delivery is best effort: the Manager queues notifications and worker
// goroutines hand them to a Notifier, logging and swallowing every failure.
package notify

import (
	"context"
	"errors"

	"github.com/fairyhunter13/points-exchange/internal/model"
	"github.com/fairyhunter13/points-exchange/internal/obs"
)

// ErrNotificationFailed wraps every delivery error.
var ErrNotificationFailed = errors.New("notification failed")

// Notifier sends one message. Implementations may block on the network and
// must honor ctx.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Nop discards notifications. It is used when no mail transport is configured.
type Nop struct{}

func (Nop) Notify(_ context.Context, n model.Notification) error {
	obs.Logger.Debug("notification_discarded", "order_no", n.OrderNo, "kind", string(n.Kind))
	return nil
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, n model.Notification) error

func (f Func) Notify(ctx context.Context, n model.Notification) error { return f(ctx, n) }
