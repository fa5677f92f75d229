package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"unitrack/internal/core/apperror"
	"unitrack/internal/domain/units"
)

const tableOperations = "unit_operations"

type operationRow struct {
	OperationID string    `db:"operation_id"`
	Kind        string    `db:"kind"`
	FacilityID  string    `db:"facility_id"`
	Result      []byte    `db:"result"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// OperationStore records the outcome of engine calls carrying an operation
// id so retries replay instead of applying twice.
type OperationStore struct {
	txManager *TxManager
	ttl       time.Duration
	builder   sq.StatementBuilderType
	now       func() time.Time
}

var _ units.OperationLog = (*OperationStore)(nil)

// NewOperationStore creates a store keeping records for ttl.
func NewOperationStore(txManager *TxManager, ttl time.Duration) *OperationStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &OperationStore{
		txManager: txManager,
		ttl:       ttl,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *OperationStore) getQuery(operationID string) sq.SelectBuilder {
	return s.builder.
		Select("operation_id", "kind", "facility_id", "result", "created_at", "expires_at").
		From(tableOperations).
		Where(sq.Eq{"operation_id": operationID}).
		Where(sq.Gt{"expires_at": s.now()})
}

func (s *OperationStore) insertQuery(rec units.OperationRecord) sq.InsertBuilder {
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	row := operationRow{
		OperationID: rec.ID,
		Kind:        string(rec.Kind),
		FacilityID:  rec.FacilityID,
		Result:      rec.Result,
		CreatedAt:   created,
		ExpiresAt:   created.Add(s.ttl),
	}
	return s.builder.
		Insert(tableOperations).
		SetMap(StructToMap(row)).
		Suffix("ON CONFLICT (operation_id) DO NOTHING")
}

// GetOperation implements units.OperationLog.
func (s *OperationStore) GetOperation(ctx context.Context, operationID string) (*units.OperationRecord, error) {
	query, args, err := s.getQuery(operationID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row operationRow
	err = pgxscan.Get(ctx, s.txManager.GetQuerier(ctx), &row, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return &units.OperationRecord{
		ID:         row.OperationID,
		Kind:       units.OperationKind(row.Kind),
		FacilityID: row.FacilityID,
		Result:     row.Result,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// SaveOperation implements units.OperationLog. It runs in the caller's
// transaction, so the record commits together with the units it describes.
func (s *OperationStore) SaveOperation(ctx context.Context, rec units.OperationRecord) error {
	query, args, err := s.insertQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewIdempotencyConflict(rec.ID)
	}
	return nil
}

// CleanupExpired removes records past their ttl.
func (s *OperationStore) CleanupExpired(ctx context.Context) (int64, error) {
	query, args, err := s.builder.
		Delete(tableOperations).
		Where(sq.Lt{"expires_at": s.now()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup operations: %w", err)
	}
	return tag.RowsAffected(), nil
}
