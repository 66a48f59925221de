// Package model defines domain types used by the service.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product lifecycle states.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Product is a catalog entry together with its pool of undistributed card keys.
// Stock must equal len(CardKeys) after every successful dispense.
type Product struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Stock       int64           `json:"stock" yaml:"stock"`
	CardKeys    CardKeys        `json:"-" yaml:"card_keys"`
	Status      string          `json:"status" yaml:"status"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty" yaml:"-"`
}

// CardKeys is the ordered credential pool stored as a JSON array column.
type CardKeys []string

// Value implements driver.Valuer.
func (k CardKeys) Value() (driver.Value, error) {
	if k == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(k))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON, JSONB and TEXT columns.
func (k *CardKeys) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*k = CardKeys{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("card_keys: unsupported column type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("card_keys: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*k = out
	return nil
}

// Trade statuses reported by the gateway.
const (
	TradeSuccess = "TRADE_SUCCESS"
)

// CallbackPayload is the set of fields delivered by the gateway in one
// payment notification. Fields keeps every raw field for signature checking.
type CallbackPayload struct {
	OutTradeNo  string
	TradeNo     string
	Money       string
	TradeStatus string
	Sign        string
	SignType    string
	Fields      map[string]string
}

// NewCallbackPayload builds a payload from flattened request fields.
func NewCallbackPayload(fields map[string]string) CallbackPayload {
	return CallbackPayload{
		OutTradeNo:  fields["out_trade_no"],
		TradeNo:     fields["trade_no"],
		Money:       fields["money"],
		TradeStatus: fields["trade_status"],
		Sign:        fields["sign"],
		SignType:    fields["sign_type"],
		Fields:      fields,
	}
}

// OutcomeKind distinguishes the two results of a dispense.
type OutcomeKind int

const (
	// OutcomeUnavailable means nothing was dispensed.
	OutcomeUnavailable OutcomeKind = iota
	// OutcomeDispensed means exactly one card key left the pool.
	OutcomeDispensed
)

func (k OutcomeKind) String() string {
	if k == OutcomeDispensed {
		return "dispensed"
	}
	return "unavailable"
}

// Reasons attached to an unavailable outcome.
const (
	ReasonNotFound    = "product_not_found"
	ReasonInactive    = "product_inactive"
	ReasonOutOfStock  = "out_of_stock"
	ReasonNoCardKeys  = "no_card_keys"
	ReasonLedgerError = "ledger_error"
)

// Outcome is the transient result of one dispense attempt.
type Outcome struct {
	Kind           OutcomeKind
	CardKey        string
	ProductName    string
	RemainingStock int64
	Reason         string
}

// Dispensed builds a successful outcome.
func Dispensed(cardKey, productName string, remaining int64) Outcome {
	return Outcome{Kind: OutcomeDispensed, CardKey: cardKey, ProductName: productName, RemainingStock: remaining}
}

// Unavailable builds an outcome carrying only the reason.
func Unavailable(reason string) Outcome {
	return Outcome{Kind: OutcomeUnavailable, Reason: reason}
}

// NotificationKind selects the buyer message template.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyFailure NotificationKind = "failure"
)

// Notification is the payload handed to a notifier.
type Notification struct {
	Kind        NotificationKind
	To          string
	OrderNo     string
	TradeNo     string
	ProductID   string
	ProductName string
	CardKey     string
	Amount      decimal.Decimal
	At          time.Time
}

// ErrProductInvalid is returned when a product fails validation before
// being written to a store.
var ErrProductInvalid = errors.New("invalid product")

// Validate checks the static invariants of a product record.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: id is required", ErrProductInvalid)
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrProductInvalid)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must be >= 0", ErrProductInvalid)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must be >= 0", ErrProductInvalid)
	case p.Status != StatusActive && p.Status != StatusInactive:
		return fmt.Errorf("%w: status must be active or inactive", ErrProductInvalid)
	}
	return nil
}
