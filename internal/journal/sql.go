package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQL is a Journal backed by the fulfillments table. The unique order_no
// column makes Claim atomic across processes.
type SQL struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQL wraps an open database.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

const schema = `CREATE TABLE IF NOT EXISTS fulfillments (
	id VARCHAR(36) PRIMARY KEY,
	order_no VARCHAR(255) NOT NULL UNIQUE,
	trade_no VARCHAR(64) NOT NULL,
	product_id VARCHAR(50) NOT NULL,
	status VARCHAR(20) NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Migrate creates the fulfillments table if it does not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate fulfillments: %w", err)
	}
	return nil
}

func (j *SQL) Claim(ctx context.Context, c Claim) (Entry, error) {
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
	res, err := j.db.NamedExecContext(ctx, `INSERT INTO fulfillments
		(id, order_no, trade_no, product_id, status, detail, created_at, updated_at)
		VALUES (:id, :order_no, :trade_no, :product_id, :status, :detail, :created_at, :updated_at)
		ON CONFLICT (order_no) DO NOTHING`, e)
	if err != nil {
		return Entry{}, fmt.Errorf("claim %s: %w", c.OrderNo, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, fmt.Errorf("claim %s: %w", c.OrderNo, err)
	}
	if n == 0 {
		return Entry{}, ErrDuplicate
	}
	return e, nil
}

func (j *SQL) Complete(ctx context.Context, orderNo, status, detail string) error {
	res, err := j.db.ExecContext(ctx,
		j.db.Rebind(`UPDATE fulfillments SET status = ?, detail = ?, updated_at = ? WHERE order_no = ?`),
		status, detail, j.now().UTC(), orderNo)
	if err != nil {
		return fmt.Errorf("complete %s: %w", orderNo, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownOrder
	}
	return nil
}

func (j *SQL) Get(ctx context.Context, orderNo string) (Entry, error) {
	var e Entry
	err := j.db.GetContext(ctx, &e, j.db.Rebind(`SELECT id, order_no, trade_no, product_id, status, detail, created_at, updated_at
		FROM fulfillments WHERE order_no = ?`), orderNo)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrUnknownOrder
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get %s: %w", orderNo, err)
	}
	return e, nil
}
