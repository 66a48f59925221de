package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/points-exchange/internal/ledger"
)

func journals(t *testing.T) map[string]Journal {
	ctx := context.Background()
	db, err := ledger.OpenDB(ctx, ledger.DriverSQLite, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return map[string]Journal{"memory": NewMemory(), "sqlite": NewSQL(db)}
}

func TestClaimOnce(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := Claim{OrderNo: "1.a@b#c.P1.1", TradeNo: "T1", ProductID: "P1"}
			e, err := j.Claim(ctx, c)
			require.NoError(t, err)
			assert.Equal(t, StatusClaimed, e.Status)
			assert.NotEmpty(t, e.ID)

			_, err = j.Claim(ctx, c)
			assert.ErrorIs(t, err, ErrDuplicate)

			require.NoError(t, j.Complete(ctx, c.OrderNo, StatusDispensed, "remaining=3"))
			got, err := j.Get(ctx, c.OrderNo)
			require.NoError(t, err)
			assert.Equal(t, StatusDispensed, got.Status)
			assert.Equal(t, "remaining=3", got.Detail)
			assert.Equal(t, "T1", got.TradeNo)
		})
	}
}

func TestCompleteUnknown(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, j.Complete(context.Background(), "nope", StatusFailed, ""), ErrUnknownOrder)
			_, err := j.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrUnknownOrder)
		})
	}
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			order := fmt.Sprintf("%d.a@b#c.P1.7", time.Now().UnixMilli())
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := j.Claim(context.Background(), Claim{OrderNo: order, TradeNo: "T", ProductID: "P1"}); err == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}
