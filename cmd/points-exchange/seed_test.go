package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/points-exchange/internal/ledger"
	"github.com/fairyhunter13/points-exchange/internal/model"
)

const sampleCatalog = `
products:
  - id: vip-30
    name: Video VIP 30 days
    description: monthly membership
    price: 10.00
    card_keys: [AAA-111, BBB-222, CCC-333]
  - id: empty
    name: Sold out
    price: "5"
    status: inactive
`

func TestReadCatalog(t *testing.T) {
	products, err := readCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, products, 2)

	vip := products[0]
	assert.Equal(t, "vip-30", vip.ID)
	assert.Equal(t, int64(3), vip.Stock)
	assert.Equal(t, model.StatusActive, vip.Status)
	assert.Equal(t, "10.00", vip.Price.StringFixed(2))
	assert.Equal(t, model.CardKeys{"AAA-111", "BBB-222", "CCC-333"}, vip.CardKeys)

	assert.Equal(t, int64(0), products[1].Stock)
	assert.Equal(t, model.StatusInactive, products[1].Status)
}

func TestReadCatalog_Invalid(t *testing.T) {
	_, err := readCatalog(strings.NewReader("products: {not: [a list"))
	assert.Error(t, err)
}

func TestSeed_DispensesInListedOrder(t *testing.T) {
	products, err := readCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	l := ledger.NewMemory()
	require.NoError(t, seed(context.Background(), l, products))

	out, err := l.Dispense(context.Background(), "vip-30")
	require.NoError(t, err)
	assert.Equal(t, "AAA-111", out.CardKey)
	assert.Equal(t, int64(2), out.RemainingStock)
}
