package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrack/internal/core/id"
	"unitrack/internal/core/types"
	"unitrack/internal/domain/units"
)

func TestUnitRepo_ActiveQuery(t *testing.T) {
	repo := NewUnitRepo(nil, nil)

	sql, args, err := repo.activeQuery("f1", "Widget", true).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM units")
	assert.Contains(t, sql, "facility_id = $1")
	assert.Contains(t, sql, "quantity > $4")
	assert.Contains(t, sql, "ORDER BY received_date, seq")
	assert.True(t, len(sql) > 10 && sql[len(sql)-10:] == "FOR UPDATE")
	assert.Equal(t, []any{"f1", "Widget", "active", 0}, args)

	sql, _, err = repo.activeQuery("f1", "Widget", false).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "FOR UPDATE")
}

func TestUnitRepo_PrefixInUseQuery(t *testing.T) {
	repo := NewUnitRepo(nil, nil)

	sql, args, err := repo.prefixInUseQuery("f1", "WID").ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT EXISTS (SELECT 1 FROM units")
	assert.Contains(t, sql, "starts_with(batch_id, $2)")
	assert.Equal(t, []any{"f1", "WID-"}, args)
}

func TestUnitRepo_BatchIDsQuery(t *testing.T) {
	repo := NewUnitRepo(nil, nil)

	sql, args, err := repo.batchIDsQuery("WID").ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT DISTINCT batch_id")
	assert.Contains(t, sql, "batch_id ~ $1")
	assert.NotContains(t, sql, "facility_id")
	assert.Equal(t, []any{"^WID-[0-9]+$"}, args)
}

func TestUnitRepo_UpdateQuery(t *testing.T) {
	repo := NewUnitRepo(nil, nil)
	u := &units.Unit{ID: id.New(), Quantity: 2, Status: units.StatusActive, Version: 4}

	sql, args, err := repo.updateQuery(units.UnitUpdate{Unit: u, ExpectedVersion: 3, MinQuantity: 5}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "UPDATE units SET quantity = $1")
	assert.Contains(t, sql, "version = $4")
	assert.Contains(t, sql, "quantity >= $")
	assert.Contains(t, args, 3)
	assert.Contains(t, args, 5)

	sql, _, err = repo.updateQuery(units.UnitUpdate{Unit: u, ExpectedVersion: 3}).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "quantity >=")
}

func TestUnitRepo_ExpiryQuery(t *testing.T) {
	repo := NewUnitRepo(nil, nil)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	sql, args, err := repo.expiryQuery("f1", units.ExpiryFilter{Before: now}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "expiry_date < $")
	assert.NotContains(t, sql, "expiry_date >=")
	assert.NotContains(t, sql, "expiry_date <=")
	assert.Contains(t, args, now)

	sql, _, err = repo.expiryQuery("f1", units.ExpiryFilter{From: now, Through: now.Add(time.Hour)}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "expiry_date >= $")
	assert.Contains(t, sql, "expiry_date <= $")
	assert.Contains(t, sql, "ORDER BY expiry_date, seq")
}

func TestUnitRepo_StockLevelsQuery(t *testing.T) {
	repo := NewUnitRepo(nil, nil)

	sql, args, err := repo.stockLevelsQuery("f1", 10).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "GROUP BY product_name")
	assert.Contains(t, sql, "HAVING SUM(quantity) <= $")
	assert.Equal(t, 10, args[len(args)-1])
}

func TestUnitRow_RoundTrip(t *testing.T) {
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	u := &units.Unit{
		ID:              id.New(),
		Seq:             9,
		ProductName:     "Widget",
		FacilityID:      "f1",
		BatchID:         "WID-001",
		UnitSKU:         "WID-001-001",
		Quantity:        1,
		InitialQuantity: 1,
		PricePerUnit:    types.MustMoney("2.50"),
		TotalPrice:      types.MustMoney("2.50"),
		Expiry:          units.Expiry{IsTracked: true, Date: &expiry, AlertWindowDays: 30, Status: units.ExpiryFresh},
		Status:          units.StatusActive,
		Version:         1,
	}

	back := newUnitRow(u).toDomain()

	assert.True(t, u.PricePerUnit.Equal(back.PricePerUnit))
	assert.Equal(t, u.Expiry, back.Expiry)
	assert.Equal(t, u.UnitSKU, back.UnitSKU)
	assert.Equal(t, u.Seq, back.Seq)
}

func TestFromNumeric_Invalid(t *testing.T) {
	var zero unitRow
	assert.True(t, fromNumeric(zero.PricePerUnit).IsZero())
}
