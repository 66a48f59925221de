package obs

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// ManualReview describes an order an operator has to fulfill or refund by hand.
type ManualReview struct {
	OrderNo   string
	TradeNo   string
	ProductID string
	Contact   string
	Amount    string
	Reason    string
	Err       error
}

// InitSentry configures the Sentry client used by Escalate. An empty DSN
// leaves escalation log-only.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: release})
}

// FlushSentry waits up to timeout for buffered events to be delivered.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Escalate records an order as requiring manual review. The log entry carries
// everything an operator needs to locate the payment.
func Escalate(r ManualReview) {
	attrs := []any{
		"order_no", r.OrderNo,
		"trade_no", r.TradeNo,
		"product_id", r.ProductID,
		"contact", r.Contact,
		"amount", r.Amount,
		"reason", r.Reason,
	}
	if r.Err != nil {
		attrs = append(attrs, "error", r.Err.Error())
	}
	Logger.Warn("manual_review_required", attrs...)
	Counters.Add("manual_review", 1)

	// No-op unless InitSentry bound a client.
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("order_no", r.OrderNo)
		scope.SetTag("product_id", r.ProductID)
		scope.SetTag("reason", r.Reason)
		scope.SetTag("trade_no", r.TradeNo)
		scope.SetTag("amount", r.Amount)
		if r.Err != nil {
			sentry.CaptureException(fmt.Errorf("manual review %s: %w", r.Reason, r.Err))
			return
		}
		sentry.CaptureMessage("manual review: " + r.Reason)
	})
}
