// Package fulfillment turns a confirmed payment callback into exactly one
// dispensed card key.
//
// Engine.Handle runs a state machine
//
//	Received -> Verified -> TokenParsed -> Dispensing -> Notified -> Acknowledged
//
// where any state may jump straight to Acknowledged once a decision is made.
// Every path ends in the same acknowledgment, so the gateway never retries a
// callback whose ledger step may already have run.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/epay"
	"github.com/fairyhunter13/points-exchange/internal/journal"
	"github.com/fairyhunter13/points-exchange/internal/ledger"
	"github.com/fairyhunter13/points-exchange/internal/model"
	"github.com/fairyhunter13/points-exchange/internal/obs"
	"github.com/fairyhunter13/points-exchange/internal/ordertoken"
)

// Ack is the body the gateway recognizes as "received, do not retry".
const Ack = "success"

// State is a step of the fulfillment state machine.
type State int

const (
	StateReceived State = iota
	StateVerified
	StateTokenParsed
	StateDispensing
	StateNotified
	StateAcknowledged
)

var stateNames = [...]string{"received", "verified", "token_parsed", "dispensing", "notified", "acknowledged"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal tags how a callback was decided.
type Terminal int

const (
	// TerminalRejected: the callback was deliberately ignored.
	TerminalRejected Terminal = iota
	// TerminalFulfilled: a card key was dispensed.
	TerminalFulfilled
	// TerminalEscalated: the order needs an operator.
	TerminalEscalated
)

func (t Terminal) String() string {
	switch t {
	case TerminalFulfilled:
		return "fulfilled"
	case TerminalEscalated:
		return "escalated"
	default:
		return "rejected"
	}
}

// Decision is the single exit value of Handle.
type Decision struct {
	Terminal Terminal
	// Reached is the last state entered before acknowledgment.
	Reached State
	Err     error
	Order   ordertoken.Token
	Outcome *model.Outcome
	// Notified is true once a buyer notification was handed to the dispatcher.
	Notified bool
}

// Ack returns the transport acknowledgment, identical for every decision.
func (Decision) Ack() string { return Ack }

// Dispatcher hands notifications to the notifier without blocking.
type Dispatcher interface {
	Dispatch(n model.Notification) bool
}

// Engine sequences verification, token checks, the ledger step and buyer
// notification.
type Engine struct {
	verifier   *epay.Verifier
	merchant   string
	codec      *ordertoken.Codec
	ledger     ledger.Ledger
	journal    journal.Journal
	dispatcher Dispatcher
	now        func() time.Time
}

// New wires an Engine. A nil journal disables duplicate detection.
func New(cfg config.Config, l ledger.Ledger, j journal.Journal, d Dispatcher) *Engine {
	return &Engine{
		verifier:   epay.NewVerifier(cfg.EpayKey),
		merchant:   cfg.EpayPID,
		codec:      ordertoken.NewCodec(cfg.ReplayWindow),
		ledger:     l,
		journal:    j,
		dispatcher: d,
		now:        time.Now,
	}
}

// WithClock replaces the engine clock; used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.codec.Now = now
	return e
}

// run carries one callback through the state machine.
type run struct {
	payload model.CallbackPayload
	state   State
	amount  decimal.Decimal
	d       Decision
}

func (r *run) advance(s State) {
	r.state = s
	r.d.Reached = s
}

func (r *run) decide(t Terminal, err error) {
	r.d.Terminal = t
	r.d.Err = err
	r.state = StateAcknowledged
}

// Handle processes one callback and always returns a decision.
func (e *Engine) Handle(ctx context.Context, p model.CallbackPayload) Decision {
	r := &run{payload: p, state: StateReceived}
	obs.Logger.Info("callback_received", "order_no", p.OutTradeNo, "trade_no", p.TradeNo, "trade_status", p.TradeStatus)

	for r.state != StateAcknowledged {
		switch r.state {
		case StateReceived:
			e.verify(r)
		case StateVerified:
			e.parseToken(r)
		case StateTokenParsed:
			e.claim(ctx, r)
		case StateDispensing:
			e.dispense(ctx, r)
		case StateNotified:
			r.decide(r.d.Terminal, r.d.Err)
		default:
			r.decide(TerminalRejected, fmt.Errorf("unknown state %s", r.state))
		}
	}
	e.acknowledge(r)
	return r.d
}

func (e *Engine) verify(r *run) {
	p := r.payload
	if p.OutTradeNo == "" || p.TradeNo == "" || p.Money == "" {
		r.decide(TerminalRejected, ErrPayloadIncomplete)
		return
	}
	if !e.verifier.Verify(p.Fields) {
		r.decide(TerminalRejected, ErrSignatureInvalid)
		return
	}
	if pid := p.Fields["pid"]; e.merchant != "" && pid != e.merchant {
		r.decide(TerminalRejected, fmt.Errorf("%w: pid %q", ErrMerchantMismatch, pid))
		return
	}
	amount, err := decimal.NewFromString(p.Money)
	if err != nil {
		r.decide(TerminalRejected, fmt.Errorf("%w: money %q", ErrPayloadIncomplete, p.Money))
		return
	}
	r.amount = amount
	r.advance(StateVerified)
}

func (e *Engine) parseToken(r *run) {
	if r.payload.TradeStatus != model.TradeSuccess {
		r.decide(TerminalRejected, fmt.Errorf("%w: %q", ErrTradeNotFinal, r.payload.TradeStatus))
		return
	}
	tok, err := e.codec.Parse(r.payload.OutTradeNo)
	r.d.Order = tok
	if err != nil {
		r.decide(TerminalRejected, err)
		return
	}
	r.advance(StateTokenParsed)
}

func (e *Engine) claim(ctx context.Context, r *run) {
	if e.journal != nil {
		_, err := e.journal.Claim(ctx, journal.Claim{
			OrderNo:   r.payload.OutTradeNo,
			TradeNo:   r.payload.TradeNo,
			ProductID: r.d.Order.ProductID,
		})
		switch {
		case errors.Is(err, journal.ErrDuplicate):
			r.decide(TerminalRejected, ErrDuplicateOrder)
			return
		case err != nil:
			// The order may or may not have been seen before; do not risk a
			// second key and do not mail the buyer.
			e.escalate(r, "journal_error", err)
			r.decide(TerminalEscalated, fmt.Errorf("%w: journal: %v", ErrInventoryUnavailable, err))
			return
		}
	}
	r.advance(StateDispensing)
}

func (e *Engine) dispense(ctx context.Context, r *run) {
	tok := r.d.Order
	// The ledger step must finish even if the gateway hangs up; the ledger
	// bounds its own lock wait.
	out, err := e.ledger.Dispense(context.WithoutCancel(ctx), tok.ProductID)
	if err != nil {
		out = model.Unavailable(model.ReasonLedgerError)
	}
	r.d.Outcome = &out

	n := model.Notification{
		To:        tok.Contact,
		OrderNo:   r.payload.OutTradeNo,
		TradeNo:   r.payload.TradeNo,
		ProductID: tok.ProductID,
		Amount:    r.amount,
		At:        e.now(),
	}

	if out.Kind == model.OutcomeDispensed {
		obs.Logger.Info("card_key_dispensed",
			"order_no", r.payload.OutTradeNo,
			"trade_no", r.payload.TradeNo,
			"product_id", tok.ProductID,
			"product_name", out.ProductName,
			"remaining_stock", out.RemainingStock,
		)
		e.complete(ctx, r, journal.StatusDispensed, fmt.Sprintf("remaining=%d", out.RemainingStock))
		n.Kind = model.NotifySuccess
		n.ProductName = out.ProductName
		n.CardKey = out.CardKey
		r.d.Terminal = TerminalFulfilled
	} else {
		status := journal.StatusUnavailable
		if err != nil {
			status = journal.StatusFailed
		}
		e.escalate(r, out.Reason, err)
		e.complete(ctx, r, status, out.Reason)
		n.Kind = model.NotifyFailure
		r.d.Terminal = TerminalEscalated
		r.d.Err = fmt.Errorf("%w: %s", ErrInventoryUnavailable, out.Reason)
		if err != nil {
			r.d.Err = fmt.Errorf("%w: %s: %v", ErrInventoryUnavailable, out.Reason, err)
		}
	}

	if e.dispatcher != nil {
		r.d.Notified = e.dispatcher.Dispatch(n)
	}
	if !r.d.Notified {
		obs.Logger.Warn("notification_not_queued", "order_no", r.payload.OutTradeNo, "kind", string(n.Kind), "error", ErrNotificationFailed)
	}
	r.advance(StateNotified)
}

func (e *Engine) complete(ctx context.Context, r *run, status, detail string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Complete(context.WithoutCancel(ctx), r.payload.OutTradeNo, status, detail); err != nil {
		obs.Logger.Warn("journal_complete_failed", "order_no", r.payload.OutTradeNo, "status", status, "error", err)
	}
}

func (e *Engine) escalate(r *run, reason string, err error) {
	obs.Escalate(obs.ManualReview{
		OrderNo:   r.payload.OutTradeNo,
		TradeNo:   r.payload.TradeNo,
		ProductID: r.d.Order.ProductID,
		Contact:   r.d.Order.Contact,
		Amount:    r.payload.Money,
		Reason:    reason,
		Err:       err,
	})
}

func (e *Engine) acknowledge(r *run) {
	d := r.d
	attrs := []any{
		"order_no", r.payload.OutTradeNo,
		"trade_no", r.payload.TradeNo,
		"terminal", d.Terminal.String(),
		"reached", d.Reached.String(),
		"notified", d.Notified,
	}
	if d.Order.ProductID != "" {
		attrs = append(attrs, "product_id", d.Order.ProductID)
	}
	if d.Err != nil {
		attrs = append(attrs, "error", d.Err.Error())
	}
	obs.Counters.Add("callbacks", 1)
	obs.Counters.Add(d.Terminal.String(), 1)
	if d.Terminal == TerminalEscalated {
		obs.Logger.Warn("callback_decided", attrs...)
		return
	}
	obs.Logger.Info("callback_decided", attrs...)
}
