// Package journal records which paid orders have already been taken into
// fulfillment, so a repeated gateway callback never reaches the ledger twice.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry states.
const (
	StatusClaimed     = "claimed"
	StatusDispensed   = "dispensed"
	StatusUnavailable = "unavailable"
	StatusFailed      = "failed"
)

var (
	// ErrDuplicate is returned when an order number was already claimed.
	ErrDuplicate = errors.New("order already claimed")
	// ErrUnknownOrder is returned by Complete for an unclaimed order.
	ErrUnknownOrder = errors.New("order not claimed")
)

// Entry is one journaled order.
type Entry struct {
	ID        string    `db:"id" json:"id"`
	OrderNo   string    `db:"order_no" json:"order_no"`
	TradeNo   string    `db:"trade_no" json:"trade_no"`
	ProductID string    `db:"product_id" json:"product_id"`
	Status    string    `db:"status" json:"status"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Claim is the input of a claim.
type Claim struct {
	OrderNo   string
	TradeNo   string
	ProductID string
}

// Journal is the duplicate-detection store.
type Journal interface {
	// Claim atomically records the order; ErrDuplicate if it already exists.
	Claim(ctx context.Context, c Claim) (Entry, error)
	// Complete records the final state of a claimed order.
	Complete(ctx context.Context, orderNo, status, detail string) error
	// Get returns a journaled order.
	Get(ctx context.Context, orderNo string) (Entry, error)
}

// Memory is an in-process Journal.
type Memory struct {
	mu  sync.Mutex
	m   map[string]Entry
	now func() time.Time
}

// NewMemory returns an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]Entry), now: time.Now}
}

func (j *Memory) Claim(_ context.Context, c Claim) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.m[c.OrderNo]; ok {
		return Entry{}, ErrDuplicate
	}
	now := j.now().UTC()
	e := Entry{
		ID:        uuid.NewString(),
		OrderNo:   c.OrderNo,
		TradeNo:   c.TradeNo,
		ProductID: c.ProductID,
		Status:    StatusClaimed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	j.m[c.OrderNo] = e
	return e, nil
}

func (j *Memory) Complete(_ context.Context, orderNo, status, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.m[orderNo]
	if !ok {
		return ErrUnknownOrder
	}
	e.Status = status
	e.Detail = detail
	e.UpdatedAt = j.now().UTC()
	j.m[orderNo] = e
	return nil
}

func (j *Memory) Get(_ context.Context, orderNo string) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.m[orderNo]
	if !ok {
		return Entry{}, ErrUnknownOrder
	}
	return e, nil
}
