package fulfillment

import (
	"errors"

	"github.com/fairyhunter13/points-exchange/internal/journal"
	"github.com/fairyhunter13/points-exchange/internal/notify"
	"github.com/fairyhunter13/points-exchange/internal/ordertoken"
)

// Decision errors. None of them ever reaches the gateway.
var (
	ErrPayloadIncomplete    = errors.New("callback payload incomplete")
	ErrSignatureInvalid     = errors.New("callback signature invalid")
	ErrMerchantMismatch     = errors.New("callback for another merchant")
	ErrTradeNotFinal        = errors.New("trade status not final")
	ErrMalformedToken       = ordertoken.ErrMalformedToken
	ErrTokenExpired         = ordertoken.ErrTokenExpired
	ErrDuplicateOrder       = journal.ErrDuplicate
	ErrInventoryUnavailable = errors.New("inventory unavailable")
	ErrNotificationFailed   = notify.ErrNotificationFailed
)

// Escalated reports whether err marks an order for manual review.
func Escalated(err error) bool {
	return errors.Is(err, ErrInventoryUnavailable)
}
