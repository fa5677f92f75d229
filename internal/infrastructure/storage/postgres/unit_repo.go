package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"unitrack/internal/core/apperror"
	"unitrack/internal/core/id"
	"unitrack/internal/core/numerator"
	"unitrack/internal/core/types"
	"unitrack/internal/domain/units"
)

const (
	unitsTable         = "units"
	distributionsTable = "unit_distributions"
	historyTable       = "unit_history"
)

// unitRow is one row of the units table.
type unitRow struct {
	ID              id.ID          `db:"id"`
	Seq             int64          `db:"seq"`
	FacilityID      string         `db:"facility_id"`
	ProductName     string         `db:"product_name"`
	Category        string         `db:"category"`
	Description     string         `db:"description"`
	BatchID         string         `db:"batch_id"`
	UnitSKU         string         `db:"unit_sku"`
	Quantity        int            `db:"quantity"`
	InitialQuantity int            `db:"initial_quantity"`
	PricePerUnit    pgtype.Numeric `db:"price_per_unit"`
	TotalPrice      pgtype.Numeric `db:"total_price"`
	ReceivedDate    time.Time      `db:"received_date"`
	ExpiryTracked   bool           `db:"expiry_tracked"`
	ExpiryDate      *time.Time     `db:"expiry_date"`
	AlertWindowDays int            `db:"alert_window_days"`
	ExpiryStatus    string         `db:"expiry_status"`
	Status          string         `db:"status"`
	Version         int            `db:"version"`
	CreatedBy       string         `db:"created_by"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// distributionRow is one row of unit_distributions.
type distributionRow struct {
	ID              int64          `db:"id"`
	UnitID          id.ID          `db:"unit_id"`
	Reason          string         `db:"reason"`
	Destination     string         `db:"destination"`
	QuantityTaken   int            `db:"quantity_taken"`
	UnitPriceAtTime pgtype.Numeric `db:"unit_price_at_time"`
	RemainingAfter  int            `db:"remaining_after"`
	ActorID         string         `db:"actor_id"`
	OperationID     string         `db:"operation_id"`
	CreatedAt       time.Time      `db:"created_at"`
}

var (
	unitColumns       = ExtractDBColumns[unitRow]()
	unitInsertColumns = withoutColumns(unitColumns, "seq")

	distributionColumns       = ExtractDBColumns[distributionRow]()
	distributionInsertColumns = withoutColumns(distributionColumns, "id")

	historySelectColumns = ExtractDBColumns[historyRow]()
)

func withoutColumns(cols []string, drop ...string) []string {
	return slices.DeleteFunc(slices.Clone(cols), func(c string) bool { return slices.Contains(drop, c) })
}

func toNumeric(m types.Money) pgtype.Numeric {
	return pgtype.Numeric{Int: m.Coefficient(), Exp: m.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) types.Money {
	if !n.Valid || n.Int == nil {
		return types.Zero()
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func newUnitRow(u *units.Unit) unitRow {
	return unitRow{
		ID:              u.ID,
		Seq:             u.Seq,
		FacilityID:      u.FacilityID,
		ProductName:     u.ProductName,
		Category:        u.Category,
		Description:     u.Description,
		BatchID:         u.BatchID,
		UnitSKU:         u.UnitSKU,
		Quantity:        u.Quantity,
		InitialQuantity: u.InitialQuantity,
		PricePerUnit:    toNumeric(u.PricePerUnit),
		TotalPrice:      toNumeric(u.TotalPrice),
		ReceivedDate:    u.ReceivedDate,
		ExpiryTracked:   u.Expiry.IsTracked,
		ExpiryDate:      u.Expiry.Date,
		AlertWindowDays: u.Expiry.AlertWindowDays,
		ExpiryStatus:    string(u.Expiry.Status),
		Status:          string(u.Status),
		Version:         u.Version,
		CreatedBy:       u.CreatedBy,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (r unitRow) toDomain() *units.Unit {
	return &units.Unit{
		ID:              r.ID,
		Seq:             r.Seq,
		ProductName:     r.ProductName,
		Category:        r.Category,
		Description:     r.Description,
		FacilityID:      r.FacilityID,
		BatchID:         r.BatchID,
		UnitSKU:         r.UnitSKU,
		Quantity:        r.Quantity,
		InitialQuantity: r.InitialQuantity,
		PricePerUnit:    fromNumeric(r.PricePerUnit),
		TotalPrice:      fromNumeric(r.TotalPrice),
		ReceivedDate:    r.ReceivedDate,
		Expiry: units.Expiry{
			IsTracked:       r.ExpiryTracked,
			Date:            r.ExpiryDate,
			AlertWindowDays: r.AlertWindowDays,
			Status:          units.ExpiryStatus(r.ExpiryStatus),
		},
		Status:    units.Status(r.Status),
		Version:   r.Version,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newDistributionRow(unitID id.ID, d units.Distribution) distributionRow {
	return distributionRow{
		UnitID:          unitID,
		Reason:          d.Reason,
		Destination:     d.Destination,
		QuantityTaken:   d.QuantityTaken,
		UnitPriceAtTime: toNumeric(d.UnitPriceAtTime),
		RemainingAfter:  d.RemainingAfter,
		ActorID:         d.ActorID,
		OperationID:     d.OperationID,
		CreatedAt:       d.Timestamp,
	}
}

func (r distributionRow) toDomain() units.Distribution {
	return units.Distribution{
		Reason:          r.Reason,
		Destination:     r.Destination,
		QuantityTaken:   r.QuantityTaken,
		UnitPriceAtTime: fromNumeric(r.UnitPriceAtTime),
		Timestamp:       r.CreatedAt,
		RemainingAfter:  r.RemainingAfter,
		ActorID:         r.ActorID,
		OperationID:     r.OperationID,
	}
}

// UnitRepo implements units.Repository on PostgreSQL.
type UnitRepo struct {
	txManager *TxManager
	codec     *HistoryCodec
	builder   squirrel.StatementBuilderType
}

var _ units.Repository = (*UnitRepo)(nil)

// NewUnitRepo creates a unit repository.
func NewUnitRepo(txManager *TxManager, codec *HistoryCodec) *UnitRepo {
	return &UnitRepo{
		txManager: txManager,
		codec:     codec,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *UnitRepo) unitSelect() squirrel.SelectBuilder {
	return r.builder.Select(unitColumns...).From(unitsTable)
}

// FindBatchIDByProductName implements units.PrefixRepository.
func (r *UnitRepo) FindBatchIDByProductName(ctx context.Context, facilityID, productName string) (string, error) {
	sql, args, err := r.builder.Select("batch_id").From(unitsTable).
		Where(squirrel.Eq{"facility_id": facilityID}).
		Where("lower(product_name) = lower(?)", productName).
		OrderBy("seq").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build query: %w", err)
	}

	var batchID string
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&batchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find batch by product name: %w", err)
	}
	return batchID, nil
}

func (r *UnitRepo) prefixInUseQuery(facilityID, prefix string) squirrel.SelectBuilder {
	return r.builder.Select("1").From(unitsTable).
		Where(squirrel.Eq{"facility_id": facilityID}).
		Where("starts_with(batch_id, ?)", prefix+numerator.Separator).
		Limit(1).
		Prefix("SELECT EXISTS (").
		Suffix(")")
}

// PrefixInUse implements units.PrefixRepository.
func (r *UnitRepo) PrefixInUse(ctx context.Context, facilityID, prefix string) (bool, error) {
	sql, args, err := r.prefixInUseQuery(facilityID, prefix).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check prefix: %w", err)
	}
	return exists, nil
}

func (r *UnitRepo) batchIDsQuery(prefix string) squirrel.SelectBuilder {
	return r.builder.Select("batch_id").Distinct().From(unitsTable).
		Where("batch_id ~ ?", numerator.BatchPattern(prefix)).
		OrderBy("batch_id")
}

// ListBatchIDs implements units.BatchRepository.
func (r *UnitRepo) ListBatchIDs(ctx context.Context, prefix string) ([]string, error) {
	sql, args, err := r.batchIDsQuery(prefix).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []string
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select batch ids: %w", err)
	}
	return ids, nil
}

// InsertUnits implements units.Repository. Units and their creation history
// are copied in one transaction.
func (r *UnitRepo) InsertUnits(ctx context.Context, batch []*units.Unit) error {
	if len(batch) == 0 {
		return nil
	}

	unitValues := make([][]any, 0, len(batch))
	var historyValues [][]any
	for _, u := range batch {
		unitValues = append(unitValues, StructValues(newUnitRow(u), unitInsertColumns))
		for _, h := range u.History {
			row, err := r.codec.Encode(u.ID, h)
			if err != nil {
				return err
			}
			historyValues = append(historyValues, row.values())
		}
	}

	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		inserter := NewBatchInserter(r.txManager)
		if _, err := inserter.CopyFromSlice(ctx, unitsTable, unitInsertColumns, unitValues); err != nil {
			return mapWriteError(err, "unit", "copy")
		}
		if _, err := inserter.CopyFromSlice(ctx, historyTable, historyColumns, historyValues); err != nil {
			return mapWriteError(err, "unit history", "copy")
		}
		return nil
	})
}

func (r *UnitRepo) activeQuery(facilityID, productName string, forUpdate bool) squirrel.SelectBuilder {
	q := r.unitSelect().
		Where(squirrel.Eq{
			"facility_id":  facilityID,
			"product_name": productName,
			"status":       string(units.StatusActive),
		}).
		Where(squirrel.Gt{"quantity": 0}).
		OrderBy("received_date", "seq")
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

// FindActive implements units.Repository.
func (r *UnitRepo) FindActive(ctx context.Context, facilityID, productName string, forUpdate bool) ([]*units.Unit, error) {
	return r.selectUnits(ctx, r.activeQuery(facilityID, productName, forUpdate))
}

func (r *UnitRepo) updateQuery(upd units.UnitUpdate) squirrel.UpdateBuilder {
	u := upd.Unit
	q := r.builder.Update(unitsTable).
		Set("quantity", u.Quantity).
		Set("status", string(u.Status)).
		Set("expiry_status", string(u.Expiry.Status)).
		Set("version", u.Version).
		Set("updated_at", u.UpdatedAt).
		Where(squirrel.Eq{"id": u.ID, "version": upd.ExpectedVersion})
	if upd.MinQuantity > 0 {
		q = q.Where(squirrel.GtOrEq{"quantity": upd.MinQuantity})
	}
	return q
}

// UpdateUnit implements units.Repository.
func (r *UnitRepo) UpdateUnit(ctx context.Context, upd units.UnitUpdate) error {
	sql, args, err := r.updateQuery(upd).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	queries := make([]BatchQuery, 0, len(upd.History)+1)
	if upd.Distribution != nil {
		row := newDistributionRow(upd.Unit.ID, *upd.Distribution)
		q, a, err := r.builder.Insert(distributionsTable).
			Columns(distributionInsertColumns...).
			Values(StructValues(row, distributionInsertColumns)...).
			ToSql()
		if err != nil {
			return fmt.Errorf("build distribution insert: %w", err)
		}
		queries = append(queries, BatchQuery{SQL: q, Args: a})
	}
	for _, h := range upd.History {
		row, err := r.codec.Encode(upd.Unit.ID, h)
		if err != nil {
			return err
		}
		q, a, err := r.builder.Insert(historyTable).Columns(historyColumns...).Values(row.values()...).ToSql()
		if err != nil {
			return fmt.Errorf("build history insert: %w", err)
		}
		queries = append(queries, BatchQuery{SQL: q, Args: a})
	}

	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
		if err != nil {
			return mapWriteError(err, "unit", "update")
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewConcurrentModification("unit", upd.Unit.UnitSKU)
		}
		if err := NewBatchExecutor(r.txManager).ExecuteBatch(ctx, queries); err != nil {
			return mapWriteError(err, "unit", "append")
		}
		return nil
	})
}

// GetBySKU implements units.Repository.
func (r *UnitRepo) GetBySKU(ctx context.Context, facilityID, unitSKU string) (*units.Unit, error) {
	found, err := r.selectUnits(ctx, r.unitSelect().
		Where(squirrel.Eq{"facility_id": facilityID, "unit_sku": unitSKU}))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperror.NewNotFound("unit", unitSKU)
	}
	return found[0], nil
}

// ListByBatch implements units.Repository.
func (r *UnitRepo) ListByBatch(ctx context.Context, facilityID, batchID string) ([]*units.Unit, error) {
	return r.selectUnits(ctx, r.unitSelect().
		Where(squirrel.Eq{"facility_id": facilityID, "batch_id": batchID}).
		OrderBy("seq"))
}

func (r *UnitRepo) expiryQuery(facilityID string, f units.ExpiryFilter) squirrel.SelectBuilder {
	q := r.unitSelect().
		Where(squirrel.Eq{
			"facility_id":    facilityID,
			"status":         string(units.StatusActive),
			"expiry_tracked": true,
		}).
		Where(squirrel.Gt{"quantity": 0}).
		Where(squirrel.NotEq{"expiry_date": nil})

	if !f.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"expiry_date": f.From})
	}
	if !f.Before.IsZero() {
		q = q.Where(squirrel.Lt{"expiry_date": f.Before})
	}
	if !f.Through.IsZero() {
		q = q.Where(squirrel.LtOrEq{"expiry_date": f.Through})
	}
	return q.OrderBy("expiry_date", "seq")
}

// ListByExpiry implements units.Repository.
func (r *UnitRepo) ListByExpiry(ctx context.Context, facilityID string, f units.ExpiryFilter) ([]*units.Unit, error) {
	return r.selectUnits(ctx, r.expiryQuery(facilityID, f))
}

func (r *UnitRepo) stockLevelsQuery(facilityID string, threshold int) squirrel.SelectBuilder {
	return r.builder.Select("product_name", "SUM(quantity) AS available", "COUNT(*) AS units").
		From(unitsTable).
		Where(squirrel.Eq{"facility_id": facilityID, "status": string(units.StatusActive)}).
		Where(squirrel.Gt{"quantity": 0}).
		GroupBy("product_name").
		Having("SUM(quantity) <= ?", threshold).
		OrderBy("product_name")
}

// StockLevels implements units.Repository.
func (r *UnitRepo) StockLevels(ctx context.Context, facilityID string, threshold int) ([]units.StockLevel, error) {
	sql, args, err := r.stockLevelsQuery(facilityID, threshold).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var levels []units.StockLevel
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &levels, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock levels: %w", err)
	}
	return levels, nil
}

// ListFacilities implements units.Repository.
func (r *UnitRepo) ListFacilities(ctx context.Context) ([]string, error) {
	sql, args, err := r.builder.Select("facility_id").Distinct().From(unitsTable).OrderBy("facility_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []string
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select facilities: %w", err)
	}
	return out, nil
}

// selectUnits runs q and loads the distributions and history of every unit.
func (r *UnitRepo) selectUnits(ctx context.Context, q squirrel.SelectBuilder) ([]*units.Unit, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []unitRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select units: %w", err)
	}

	out := make([]*units.Unit, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	if err := r.attachChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UnitRepo) attachChildren(ctx context.Context, list []*units.Unit) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]id.ID, len(list))
	byID := make(map[id.ID]*units.Unit, len(list))
	for i, u := range list {
		ids[i] = u.ID
		byID[u.ID] = u
	}
	querier := r.txManager.GetQuerier(ctx)

	sql, args, err := r.builder.Select(distributionColumns...).From(distributionsTable).
		Where(squirrel.Eq{"unit_id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var dists []distributionRow
	if err := pgxscan.Select(ctx, querier, &dists, sql, args...); err != nil {
		return fmt.Errorf("select distributions: %w", err)
	}
	for _, d := range dists {
		u := byID[d.UnitID]
		u.Distributions = append(u.Distributions, d.toDomain())
	}

	sql, args, err = r.builder.Select(historySelectColumns...).From(historyTable).
		Where(squirrel.Eq{"unit_id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var hist []historyRow
	if err := pgxscan.Select(ctx, querier, &hist, sql, args...); err != nil {
		return fmt.Errorf("select history: %w", err)
	}
	for _, h := range hist {
		entry, err := r.codec.Decode(h)
		if err != nil {
			return err
		}
		u := byID[h.UnitID]
		u.History = append(u.History, entry)
	}
	return nil
}
