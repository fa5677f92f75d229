package units

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"unitrack/internal/core/apperror"
	"unitrack/internal/core/tx"
)

var tracer = otel.Tracer("unitrack/units")

// DefaultMaxCreateAttempts bounds retries of CreateUnits after a sku collision.
const DefaultMaxCreateAttempts = 3

// Service is the unit engine. It owns prefix allocation, batch sequencing,
// unit materialization, FIFO distribution and expiry classification.
type Service struct {
	repo       Repository
	txManager  tx.Manager
	operations OperationLog // optional
	locker     Locker
	clock      func() time.Time

	prefixes  *PrefixAllocator
	sequencer *BatchSequencer

	maxCreateAttempts int
}

// ServiceConfig configures the unit engine.
type ServiceConfig struct {
	Repo      Repository
	TxManager tx.Manager // nil runs without transactions
	// Operations enables replay of calls that carry an operation id.
	Operations OperationLog
	// Locker serializes prefix and batch allocation per facility and
	// product. Nil disables locking; the unique sku constraint still holds.
	Locker Locker
	// Prefixes overrides Repo for prefix lookups, e.g. with a cache.
	Prefixes          PrefixRepository
	Clock             func() time.Time
	MaxCreateAttempts int
}

// NewService creates the unit engine.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:              cfg.Repo,
		txManager:         cfg.TxManager,
		operations:        cfg.Operations,
		locker:            cfg.Locker,
		clock:             cfg.Clock,
		maxCreateAttempts: cfg.MaxCreateAttempts,
	}
	if s.txManager == nil {
		s.txManager = tx.None{}
	}
	if s.locker == nil {
		s.locker = nopLocker{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.maxCreateAttempts <= 0 {
		s.maxCreateAttempts = DefaultMaxCreateAttempts
	}
	prefixRepo := cfg.Prefixes
	if prefixRepo == nil {
		prefixRepo = cfg.Repo
	}
	s.prefixes = NewPrefixAllocator(prefixRepo)
	s.sequencer = NewBatchSequencer(s.prefixes, cfg.Repo, s.clock)
	return s
}

// Prefixes returns the prefix allocator.
func (s *Service) Prefixes() *PrefixAllocator { return s.prefixes }

// Sequencer returns the batch sequencer.
func (s *Service) Sequencer() *BatchSequencer { return s.sequencer }

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// AllocationKey is the lock key guarding allocation for one product.
func AllocationKey(facilityID, productName string) string {
	return "unitrack:alloc:" + facilityID + ":" + strings.ToLower(strings.TrimSpace(productName))
}

// replay returns the stored result of operationID, or nil if it was not used.
// A record of a different kind or facility is an idempotency conflict.
func (s *Service) replay(ctx context.Context, operationID string, kind OperationKind, facilityID string, dst any) (bool, error) {
	if s.operations == nil || operationID == "" {
		return false, nil
	}
	rec, err := s.operations.GetOperation(ctx, operationID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if rec.Kind != kind || rec.FacilityID != facilityID {
		return false, apperror.NewIdempotencyConflict(operationID)
	}
	if err := json.Unmarshal(rec.Result, dst); err != nil {
		return false, apperror.NewInternal(err)
	}
	return true, nil
}

func (s *Service) recordOperation(ctx context.Context, operationID string, kind OperationKind, facilityID string, result any) error {
	if s.operations == nil || operationID == "" {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return apperror.NewInternal(err)
	}
	return s.operations.SaveOperation(ctx, OperationRecord{
		ID:         operationID,
		Kind:       kind,
		FacilityID: facilityID,
		Result:     raw,
		CreatedAt:  s.now(),
	})
}

// refresh reclassifies expiry on units just loaded from the store.
func (s *Service) refresh(units ...*Unit) {
	now := s.now()
	for _, u := range units {
		u.RefreshExpiry(now)
	}
}
