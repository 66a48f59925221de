package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/points-exchange/internal/model"
)

// SQL is a Ledger backed by the products table.
//
// On Postgres the product row is locked with SELECT ... FOR UPDATE and lock
// waits are bounded by lock_timeout. On SQLite the write lock is the database
// lock, bounded by busy_timeout and the transaction deadline.
type SQL struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// NewSQL wraps an open database. A zero lockTimeout leaves lock waits bounded
// only by the caller's context.
func NewSQL(db *sqlx.DB, lockTimeout time.Duration) *SQL {
	return &SQL{db: db, lockTimeout: lockTimeout, now: time.Now}
}

type productRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Stock       int64           `db:"stock"`
	CardKeys    model.CardKeys  `db:"card_keys"`
	Status      string          `db:"status"`
}

func (r productRow) product() model.Product {
	return model.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		CardKeys:    r.CardKeys,
		Status:      r.Status,
	}
}

const selectProduct = `SELECT id, name, COALESCE(description, '') AS description, price, stock, card_keys, status
	FROM products WHERE id = ?`

func (s *SQL) postgres() bool { return s.db.DriverName() == DriverPostgres }

func (s *SQL) Dispense(ctx context.Context, productID string) (model.Outcome, error) {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*s.lockTimeout)
		defer cancel()
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("dispense %s: begin: %w", productID, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := selectProduct
	if s.postgres() {
		if s.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return model.Outcome{}, fmt.Errorf("dispense %s: lock timeout: %w", productID, err)
			}
		}
		query += " FOR UPDATE"
	}

	var row productRow
	if err := tx.GetContext(ctx, &row, tx.Rebind(query), productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Unavailable(model.ReasonNotFound), nil
		}
		return model.Outcome{}, fmt.Errorf("dispense %s: select: %w", productID, err)
	}
	p := row.product()
	if reason, ok := check(p); !ok {
		return model.Unavailable(reason), nil
	}

	key := p.CardKeys[0]
	rest := p.CardKeys[1:]
	var remaining int64
	err = tx.QueryRowxContext(ctx,
		tx.Rebind(`UPDATE products SET card_keys = ?, stock = stock - 1, updated_at = ? WHERE id = ? RETURNING stock`),
		rest, s.now().UTC(), productID,
	).Scan(&remaining)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("dispense %s: update: %w", productID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Outcome{}, fmt.Errorf("dispense %s: commit: %w", productID, err)
	}
	return model.Dispensed(key, p.Name, remaining), nil
}

func (s *SQL) Product(ctx context.Context, id string) (model.Product, error) {
	var row productRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(selectProduct), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return model.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	return row.product(), nil
}

func (s *SQL) Put(ctx context.Context, p model.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.CardKeys == nil {
		p.CardKeys = model.CardKeys{}
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO products (id, name, description, price, stock, card_keys, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			stock = excluded.stock,
			card_keys = excluded.card_keys,
			status = excluded.status,
			updated_at = excluded.updated_at`),
		p.ID, p.Name, p.Description, p.Price.StringFixed(2), p.Stock, p.CardKeys, p.Status, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put product %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
