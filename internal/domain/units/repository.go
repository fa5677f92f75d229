package units

import (
	"context"
	"encoding/json"
	"time"
)

// PrefixRepository answers the lookups the prefix allocator needs.
type PrefixRepository interface {
	// FindBatchIDByProductName returns the batch id of any unit in the
	// facility whose product name matches case-insensitively, or "" if none.
	FindBatchIDByProductName(ctx context.Context, facilityID, productName string) (string, error)

	// PrefixInUse reports whether any batch id in the facility starts with
	// prefix followed by the separator.
	PrefixInUse(ctx context.Context, facilityID, prefix string) (bool, error)
}

// BatchRepository lists batch ids for sequencing.
type BatchRepository interface {
	// ListBatchIDs returns the distinct batch ids across every facility that
	// match {prefix}-{digits}. Unit SKUs embed the batch id, so the scan is
	// not facility-scoped.
	ListBatchIDs(ctx context.Context, prefix string) ([]string, error)
}

// UnitUpdate is a conditional write of one unit. The store applies it only
// when the stored version equals ExpectedVersion and the stored quantity is
// at least MinQuantity; otherwise it returns CONCURRENT_MODIFICATION.
// Distribution and History are appended, never replacing earlier rows.
type UnitUpdate struct {
	Unit            *Unit
	ExpectedVersion int
	MinQuantity     int
	Distribution    *Distribution
	History         []HistoryEntry
}

// ExpiryFilter selects active, tracked units by expiry date.
// A zero bound is open.
type ExpiryFilter struct {
	From    time.Time // date >= From
	Before  time.Time // date < Before
	Through time.Time // date <= Through
}

// StockLevel is the aggregate active quantity of one product.
type StockLevel struct {
	ProductName string `json:"productName"`
	Available   int    `json:"available"`
	Units       int    `json:"units"`
}

// Repository is the unit store.
type Repository interface {
	PrefixRepository
	BatchRepository

	// InsertUnits stores new units. A unit sku collision returns DUPLICATE_ENTRY.
	// The store assigns Seq in slice order.
	InsertUnits(ctx context.Context, units []*Unit) error

	// FindActive returns active units with quantity > 0 for the product in
	// FIFO order: received date, then creation sequence. With forUpdate the
	// rows stay locked until the surrounding transaction ends.
	FindActive(ctx context.Context, facilityID, productName string, forUpdate bool) ([]*Unit, error)

	// UpdateUnit applies a conditional write.
	UpdateUnit(ctx context.Context, upd UnitUpdate) error

	// GetBySKU returns one unit or NOT_FOUND.
	GetBySKU(ctx context.Context, facilityID, unitSKU string) (*Unit, error)

	// ListByBatch returns the units of a batch in creation order.
	ListByBatch(ctx context.Context, facilityID, batchID string) ([]*Unit, error)

	// ListByExpiry returns active tracked units matching f ordered by
	// expiry date, then creation sequence.
	ListByExpiry(ctx context.Context, facilityID string, f ExpiryFilter) ([]*Unit, error)

	// StockLevels returns products whose active quantity is in (0, threshold],
	// ordered by product name.
	StockLevels(ctx context.Context, facilityID string, threshold int) ([]StockLevel, error)

	// ListFacilities returns every facility holding at least one unit.
	ListFacilities(ctx context.Context) ([]string, error)
}

// OperationKind names the engine call an operation id was used for.
type OperationKind string

const (
	OperationCreateUnits OperationKind = "create_units"
	OperationDistribute  OperationKind = "distribute"
)

// OperationRecord is the stored outcome of an idempotent call.
type OperationRecord struct {
	ID         string          `json:"id"`
	Kind       OperationKind   `json:"kind"`
	FacilityID string          `json:"facilityId"`
	Result     json.RawMessage `json:"result"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// OperationLog stores idempotent call outcomes.
type OperationLog interface {
	// GetOperation returns the record or nil if the id was never used.
	GetOperation(ctx context.Context, operationID string) (*OperationRecord, error)

	// SaveOperation stores a record. A reused id returns IDEMPOTENCY_CONFLICT.
	SaveOperation(ctx context.Context, rec OperationRecord) error
}

// Locker serializes allocation per key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }
