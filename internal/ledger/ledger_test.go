package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/points-exchange/internal/model"
)

type factory func(t *testing.T) Ledger

func backends() map[string]factory {
	b := map[string]factory{
		"memory": func(t *testing.T) Ledger { return NewMemory() },
		"sqlite": func(t *testing.T) Ledger {
			ctx := context.Background()
			db, err := OpenDB(ctx, DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			require.NoError(t, Migrate(ctx, db))
			return NewSQL(db, 5*time.Second)
		},
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		b["postgres"] = func(t *testing.T) Ledger {
			ctx := context.Background()
			db, err := OpenDB(ctx, DriverPostgres, dsn)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			require.NoError(t, Migrate(ctx, db))
			return NewSQL(db, 5*time.Second)
		}
	}
	return b
}

// productID keeps ids unique per test so a shared Postgres database works.
func productID(t *testing.T) string {
	return fmt.Sprintf("p-%d", time.Now().UnixNano())
}

func product(id string, keys ...string) model.Product {
	return model.Product{
		ID:       id,
		Name:     "Video VIP",
		Price:    decimal.RequireFromString("10.00"),
		Stock:    int64(len(keys)),
		CardKeys: keys,
		Status:   model.StatusActive,
	}
}

func TestDispenseHeadFirst(t *testing.T) {
	for name, newLedger := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newLedger(t)
			id := productID(t)
			require.NoError(t, l.Put(ctx, product(id, "A", "B", "C")))

			for i, want := range []string{"A", "B", "C"} {
				out, err := l.Dispense(ctx, id)
				require.NoError(t, err)
				require.Equal(t, model.OutcomeDispensed, out.Kind)
				assert.Equal(t, want, out.CardKey)
				assert.Equal(t, "Video VIP", out.ProductName)
				assert.Equal(t, int64(2-i), out.RemainingStock)
			}

			out, err := l.Dispense(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.OutcomeUnavailable, out.Kind)
			assert.Equal(t, model.ReasonOutOfStock, out.Reason)

			p, err := l.Product(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(0), p.Stock)
			assert.Empty(t, p.CardKeys)
		})
	}
}

func TestDispensePreconditions(t *testing.T) {
	for name, newLedger := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newLedger(t)

			out, err := l.Dispense(ctx, "missing-"+productID(t))
			require.NoError(t, err)
			assert.Equal(t, model.ReasonNotFound, out.Reason)

			inactive := product(productID(t)+"-i", "A")
			inactive.Status = model.StatusInactive
			require.NoError(t, l.Put(ctx, inactive))
			out, err = l.Dispense(ctx, inactive.ID)
			require.NoError(t, err)
			assert.Equal(t, model.ReasonInactive, out.Reason)

			// Stock edited to zero by an admin while keys remain.
			drained := product(productID(t)+"-s", "A")
			drained.Stock = 0
			require.NoError(t, l.Put(ctx, drained))
			out, err = l.Dispense(ctx, drained.ID)
			require.NoError(t, err)
			assert.Equal(t, model.ReasonOutOfStock, out.Reason)

			// Stock left positive with an empty pool.
			empty := product(productID(t) + "-k")
			empty.Stock = 3
			require.NoError(t, l.Put(ctx, empty))
			out, err = l.Dispense(ctx, empty.ID)
			require.NoError(t, err)
			assert.Equal(t, model.ReasonNoCardKeys, out.Reason)

			p, err := l.Product(ctx, empty.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(3), p.Stock, "failed dispense must not mutate")
		})
	}
}

func TestDispenseConcurrentExactlyN(t *testing.T) {
	const n = 8
	for name, newLedger := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newLedger(t)
			id := productID(t)
			keys := make([]string, n)
			for i := range keys {
				keys[i] = fmt.Sprintf("KEY-%02d", i)
			}
			require.NoError(t, l.Put(ctx, product(id, keys...)))

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				got  = map[string]int{}
				miss int
			)
			for i := 0; i < n+4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					out, err := l.Dispense(ctx, id)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					defer mu.Unlock()
					if out.Kind == model.OutcomeDispensed {
						got[out.CardKey]++
					} else {
						miss++
					}
				}()
			}
			wg.Wait()

			assert.Len(t, got, n)
			for k, c := range got {
				assert.Equal(t, 1, c, "key %s dispensed more than once", k)
			}
			assert.Equal(t, 4, miss)
			p, err := l.Product(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(0), p.Stock)
			assert.Empty(t, p.CardKeys)
		})
	}
}

func TestProductNotFound(t *testing.T) {
	for name, newLedger := range backends() {
		t.Run(name, func(t *testing.T) {
			_, err := newLedger(t).Product(context.Background(), "nope-"+productID(t))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPutValidates(t *testing.T) {
	l := NewMemory()
	bad := product("x", "A")
	bad.Status = "draft"
	assert.ErrorIs(t, l.Put(context.Background(), bad), model.ErrProductInvalid)
}

func TestOpenDBUnsupportedDriver(t *testing.T) {
	_, err := OpenDB(context.Background(), "mysql", "")
	assert.Error(t, err)
}
